// Package merkle computes the transaction root committed to by block headers.
//
// The padding rule is part of consensus: at every level with an odd number
// of nodes the last hash is paired with itself. A single leaf is its own
// root and an empty leaf list yields the zero hash.
package merkle

import (
	"powchain/ec"
)

// HashFromTwoHashes is the basic operation of the Merkle tree: Hash(left | right).
func HashFromTwoHashes(left, right ec.Hash256) ec.Hash256 {
	return ec.SumPair(left, right)
}

// RootFromHashes computes the root over leaf hashes without modifying them.
func RootFromHashes(leaves []ec.Hash256) ec.Hash256 {
	if len(leaves) == 0 {
		return ec.ZeroHash
	}

	level := make([]ec.Hash256, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

func nextLevel(level []ec.Hash256) []ec.Hash256 {
	n := (len(level) + 1) / 2
	next := make([]ec.Hash256, n)
	for i := 0; i < n; i++ {
		left := level[2*i]
		right := left
		if 2*i+1 < len(level) {
			right = level[2*i+1]
		}
		next[i] = HashFromTwoHashes(left, right)
	}
	return next
}

// Proof is the list of sibling hashes from a leaf up to the root.
type Proof struct {
	Index int
	Total int
	Aunts []ec.Hash256
}

// ProofsFromHashes returns the root and one inclusion proof per leaf.
func ProofsFromHashes(leaves []ec.Hash256) (ec.Hash256, []*Proof) {
	if len(leaves) == 0 {
		return ec.ZeroHash, nil
	}

	proofs := make([]*Proof, len(leaves))
	for i := range proofs {
		proofs[i] = &Proof{Index: i, Total: len(leaves)}
	}

	level := make([]ec.Hash256, len(leaves))
	copy(level, leaves)
	// pos[i] is the position of leaf i's ancestor in the current level
	pos := make([]int, len(leaves))
	for i := range pos {
		pos[i] = i
	}

	for len(level) > 1 {
		for i, p := range pos {
			sib := p ^ 1
			if sib >= len(level) {
				sib = p
			}
			proofs[i].Aunts = append(proofs[i].Aunts, level[sib])
			pos[i] = p / 2
		}
		level = nextLevel(level)
	}
	return level[0], proofs
}

// Verify checks that leaf sits at p.Index in a tree of p.Total leaves with the given root.
func (p *Proof) Verify(leaf ec.Hash256, root ec.Hash256) bool {
	if p.Index < 0 || p.Total <= 0 || p.Index >= p.Total {
		return false
	}
	if len(p.Aunts) != treeDepth(p.Total) {
		return false
	}

	h := leaf
	idx := p.Index
	width := p.Total
	for _, aunt := range p.Aunts {
		if idx%2 == 0 {
			if idx+1 >= width && aunt != h {
				return false
			}
			h = HashFromTwoHashes(h, aunt)
		} else {
			h = HashFromTwoHashes(aunt, h)
		}
		idx /= 2
		width = (width + 1) / 2
	}
	return h == root
}

func treeDepth(total int) int {
	d := 0
	for total > 1 {
		total = (total + 1) / 2
		d++
	}
	return d
}
