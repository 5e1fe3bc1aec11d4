package blockchain

import (
	"math/big"

	"powchain/block"
	"powchain/ec"
	"powchain/tx"
)

const noParent = -1

// blockNode is one entry of the block arena. Nodes refer to their parent
// by position so branch walks are slice lookups.
type blockNode struct {
	hash   ec.Hash256
	parent int
	blk    *block.Block

	// work is the cumulative work from genesis up to and including this block.
	work *big.Int

	// undo is nil until needed when the node was loaded from storage.
	undo tx.BlockUndo
}

func (n *blockNode) height() uint64 {
	return n.blk.Height
}

func (n *blockNode) header() *block.Header {
	return &n.blk.Header
}

// blockIndex holds every accepted block, on or off the active branch.
// NOTE: not goroutine-safe, guarded by the Blockchain lock.
type blockIndex struct {
	nodes  []*blockNode
	byHash map[ec.Hash256]int

	// active[h] is the node at height h on the best branch.
	active []int
}

func newBlockIndex() *blockIndex {
	return &blockIndex{byHash: make(map[ec.Hash256]int)}
}

func (bi *blockIndex) add(n *blockNode) int {
	idx := len(bi.nodes)
	bi.nodes = append(bi.nodes, n)
	bi.byHash[n.hash] = idx
	return idx
}

func (bi *blockIndex) lookup(hash ec.Hash256) (int, bool) {
	idx, ok := bi.byHash[hash]
	return idx, ok
}

func (bi *blockIndex) node(idx int) *blockNode {
	return bi.nodes[idx]
}

func (bi *blockIndex) tip() int {
	return bi.active[len(bi.active)-1]
}

func (bi *blockIndex) isActive(idx int) bool {
	h := bi.nodes[idx].height()
	return h < uint64(len(bi.active)) && bi.active[h] == idx
}

// ancestor follows parent links from idx down to height.
func (bi *blockIndex) ancestor(idx int, height uint64) (int, bool) {
	if bi.nodes[idx].height() < height {
		return 0, false
	}
	if bi.isActive(idx) {
		return bi.active[height], true
	}
	for idx != noParent && bi.nodes[idx].height() > height {
		idx = bi.nodes[idx].parent
		if bi.isActive(idx) {
			return bi.active[height], true
		}
	}
	return idx, idx != noParent
}

// forkPoint returns the last common node of the branch ending at idx and
// the active branch.
func (bi *blockIndex) forkPoint(idx int) int {
	for !bi.isActive(idx) {
		idx = bi.nodes[idx].parent
	}
	return idx
}

// branch lists the nodes after fork up to and including idx, lowest first.
func (bi *blockIndex) branch(fork, idx int) []int {
	var path []int
	for idx != fork {
		path = append(path, idx)
		idx = bi.nodes[idx].parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// setActive makes the branch ending at idx the best one.
func (bi *blockIndex) setActive(idx int) {
	fork := bi.forkPoint(idx)
	path := bi.branch(fork, idx)
	bi.active = append(bi.active[:bi.nodes[fork].height()+1], path...)
}
