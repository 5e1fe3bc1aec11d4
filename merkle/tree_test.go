package merkle

import (
	"testing"

	"powchain/ec"
	"powchain/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func randomLeaves(n int) []ec.Hash256 {
	leaves := make([]ec.Hash256, n)
	for i := range leaves {
		leaves[i] = ec.BytesToHash256(util.RandomBytes(32))
	}
	return leaves
}

func TestRootSmallTrees(t *testing.T) {
	assert.Equal(t, ec.ZeroHash, RootFromHashes(nil))

	a, b, c := randomLeaves(1)[0], randomLeaves(1)[0], randomLeaves(1)[0]
	assert.Equal(t, a, RootFromHashes([]ec.Hash256{a}))
	assert.Equal(t, HashFromTwoHashes(a, b), RootFromHashes([]ec.Hash256{a, b}))

	// odd count: the last hash is paired with itself
	want := HashFromTwoHashes(HashFromTwoHashes(a, b), HashFromTwoHashes(c, c))
	assert.Equal(t, want, RootFromHashes([]ec.Hash256{a, b, c}))
}

func TestRootDoesNotModifyInput(t *testing.T) {
	leaves := randomLeaves(5)
	saved := append([]ec.Hash256(nil), leaves...)
	RootFromHashes(leaves)
	assert.Equal(t, saved, leaves)
}

func TestProofs(t *testing.T) {
	total := 100
	leaves := randomLeaves(total)

	root := RootFromHashes(leaves)
	root2, proofs := ProofsFromHashes(leaves)
	require.Equal(t, root, root2, "Unmatched root hashes")

	for i, leaf := range leaves {
		proof := proofs[i]
		require.True(t, proof.Verify(leaf, root), "Verification failed for index %v.", i)

		// wrong leaf
		assert.False(t, proof.Verify(leaves[(i+1)%total], root))

		// wrong root
		assert.False(t, proof.Verify(leaf, ec.Sum256(root[:])))

		// trail too long
		orig := proof.Aunts
		proof.Aunts = append(append([]ec.Hash256(nil), orig...), randomLeaves(1)[0])
		assert.False(t, proof.Verify(leaf, root))

		// trail too short
		proof.Aunts = orig[:len(orig)-1]
		assert.False(t, proof.Verify(leaf, root))
		proof.Aunts = orig

		// wrong index
		proof.Index = (i + 1) % total
		assert.False(t, proof.Verify(leaf, root))
		proof.Index = i
	}
}

func TestTamperChangesRoot(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		leaves := randomLeaves(n)
		root := RootFromHashes(leaves)

		i := rapid.IntRange(0, n-1).Draw(rt, "i")
		tampered := append([]ec.Hash256(nil), leaves...)
		tampered[i][rapid.IntRange(0, 31).Draw(rt, "byte")] ^= 0x01
		if RootFromHashes(tampered) == root {
			rt.Fatalf("tampering leaf %d of %d did not change the root", i, n)
		}
	})
}
