package block

import (
	"sort"
	"time"

	"powchain/chain"
	"powchain/ec"
	"powchain/merkle"
	"powchain/tx"
)

// ValidateStructure runs the checks that need nothing but the block itself.
func ValidateStructure(blk *Block, params *chain.ChainParams) error {
	hash := blk.Hash()
	if len(blk.Transactions) == 0 {
		return NewError(ErrEmptyBlock, hash, "no transactions")
	}

	if hash != blk.Header.Hash() {
		return NewError(ErrInvalidHash, hash, "cached hash does not match header %s", blk.Header.Hash().Short())
	}

	// recompute every transaction hash so a body changed after sealing is caught here
	hashes := make([]ec.Hash256, len(blk.Transactions))
	for i, t := range blk.Transactions {
		hashes[i] = t.ComputeHash()
	}
	if root := merkle.RootFromHashes(hashes); root != blk.MerkleRoot {
		return NewError(ErrInvalidMerkleRoot, hash, "computed %s, header has %s", root.Short(), blk.MerkleRoot.Short())
	}

	if len(blk.Transactions) > params.MaxBlockTrxs {
		return NewError(ErrBlockTooLarge, hash, "%d transactions, limit %d", len(blk.Transactions), params.MaxBlockTrxs)
	}
	if size := blk.Size(); size > params.MaxBlockSize {
		return NewError(ErrBlockTooLarge, hash, "%d bytes, limit %d", size, params.MaxBlockSize)
	}

	cb := blk.Transactions[0]
	if !cb.IsCoinbase() {
		return NewError(ErrBadCoinbase, hash, "first transaction is not a coinbase")
	}
	if h, ok := cb.CoinbaseHeight(); !ok || h != blk.Height {
		return NewError(ErrBadCoinbase, hash, "coinbase does not commit to height %d", blk.Height)
	}

	seen := make(map[ec.Hash256]struct{}, len(hashes))
	for i, t := range blk.Transactions {
		if i > 0 && t.IsCoinbase() {
			return NewError(ErrBadCoinbase, hash, "extra coinbase at %d", i)
		}
		if err := tx.ValidateStructure(t); err != nil {
			return TxFailure(hash, i, err)
		}
		if _, dup := seen[hashes[i]]; dup {
			return NewError(ErrDuplicateTransaction, hash, "transaction %s appears twice", hashes[i].Short())
		}
		seen[hashes[i]] = struct{}{}
	}
	return nil
}

// ValidateAgainstParent checks linkage and the timestamp policy. recent holds
// the timestamps of up to MedianTimeSpan ancestors, parent included.
func ValidateAgainstParent(blk *Block, parent *Header, recent []int64, now time.Time, params *chain.ChainParams) error {
	hash := blk.Hash()
	if blk.PrevHash != parent.Hash() {
		return NewError(ErrInvalidPreviousHash, hash, "previous hash %s, parent is %s", blk.PrevHash.Short(), parent.Hash().Short())
	}
	if blk.Height != parent.Height+1 {
		return NewError(ErrInvalidHeight, hash, "height %d on parent at %d", blk.Height, parent.Height)
	}

	if median := MedianTime(recent); blk.Timestamp <= median {
		return NewError(ErrInvalidTimestamp, hash, "timestamp %d not after median %d", blk.Timestamp, median)
	}
	if limit := now.Unix() + params.MaxFutureDrift; blk.Timestamp > limit {
		return NewError(ErrInvalidTimestamp, hash, "timestamp %d too far in the future (limit %d)", blk.Timestamp, limit)
	}
	return nil
}

// ValidateGenesis checks the fixed shape of the first block.
func ValidateGenesis(blk *Block, params *chain.ChainParams) error {
	hash := blk.Hash()
	if blk.Height != 0 {
		return NewError(ErrInvalidHeight, hash, "genesis at height %d", blk.Height)
	}
	if !blk.PrevHash.IsZero() {
		return NewError(ErrInvalidPreviousHash, hash, "genesis must have a zero previous hash")
	}
	return ValidateStructure(blk, params)
}

// MedianTime returns the median of timestamps, or the lowest possible value if empty.
func MedianTime(timestamps []int64) int64 {
	if len(timestamps) == 0 {
		return -1 << 63
	}
	sorted := append([]int64(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}
