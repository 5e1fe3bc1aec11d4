// Package consensus holds the pluggable block validity rules. The chain
// depends only on Validator; ProofOfWork is the default variant.
package consensus

import (
	"time"

	"powchain/block"
	"powchain/chain"
	"powchain/ec"
	"powchain/tx"
)

// ChainView is the read-only window a Validator gets on the chain.
// Implementations are called with the chain's read or write lock held.
type ChainView interface {
	Params() *chain.ChainParams

	// Tip is the header of the best block.
	Tip() *block.Header

	// Header looks up any stored block, on or off the active branch.
	Header(hash ec.Hash256) (*block.Header, bool)

	// Ancestor returns the ancestor at height of the block with the given
	// hash, following that block's own branch.
	Ancestor(hash ec.Hash256, height uint64) (*block.Header, bool)

	// Utxos is the unspent output set at the tip.
	Utxos() tx.UtxoReader

	Now() time.Time
}

type Validator interface {
	Name() string

	// ValidateBlock checks the consensus rules of blk against its parent,
	// which must already be known to view.
	ValidateBlock(blk *block.Block, view ChainView) error

	// CreateCandidate builds an unsealed block on top of view.Tip from the
	// pending transactions that are valid against the tip.
	CreateCandidate(view ChainView, pending tx.Transactions) (*block.Block, error)
}

// RecentTimestamps returns the timestamps of up to n blocks ending at the
// block with the given hash, newest first.
func RecentTimestamps(view ChainView, hash ec.Hash256, n int) []int64 {
	h, ok := view.Header(hash)
	if !ok {
		return nil
	}
	ts := make([]int64, 0, n)
	for len(ts) < n {
		ts = append(ts, h.Timestamp)
		if h.Height == 0 {
			break
		}
		h, ok = view.Header(h.PrevHash)
		if !ok {
			break
		}
	}
	return ts
}
