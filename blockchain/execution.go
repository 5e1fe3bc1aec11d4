package blockchain

import (
	"powchain/block"
	"powchain/chain"
	"powchain/ec"
	"powchain/tx"
	"powchain/util/log"
)

//-----------------------------------------------------------------------------
// BlockExecutor handles the ledger side of a block: every transaction is
// validated against a UtxoView and applied to it, in block order, so a later
// transaction sees the outputs created and spent by earlier ones.

type BlockExecutor struct {
	params   *chain.ChainParams
	verifier ec.SigVerifier

	logger log.Logger
}

func NewBlockExecutor(params *chain.ChainParams, verifier ec.SigVerifier, logger log.Logger) *BlockExecutor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BlockExecutor{
		params:   params,
		verifier: verifier,
		logger:   logger,
	}
}

// ExecuteBlock validates the transactions of blk against view and applies
// them. On error view is left partially applied and must be discarded.
// The coinbase may claim at most the block reward plus the fees.
func (bexec *BlockExecutor) ExecuteBlock(view *tx.UtxoView, blk *block.Block) (tx.BlockUndo, error) {
	hash := blk.Hash()
	undo := make(tx.BlockUndo, len(blk.Transactions))

	var fees uint64
	for i, t := range blk.Transactions {
		if i == 0 {
			continue
		}
		fee, err := tx.ValidateAgainstUtxo(t, view, bexec.verifier)
		if err != nil {
			return nil, block.TxFailure(hash, i, err)
		}
		if fees+fee < fees {
			return nil, block.NewError(block.ErrInvalidTransaction, hash, "fees overflow at %d", i)
		}
		fees += fee
		undo[i] = tx.Apply(t, view, blk.Height)
	}

	cb := blk.Transactions[0]
	claimed, ok := cb.OutputSum()
	allowed := bexec.params.Reward(blk.Height) + fees
	if !ok || claimed > allowed {
		return nil, block.NewError(block.ErrBadCoinbase, hash, "coinbase claims %d, allowed %d", claimed, allowed)
	}
	undo[0] = tx.Apply(cb, view, blk.Height)

	return undo, nil
}

// RollbackBlock reverts ExecuteBlock using the undo data it returned.
func (bexec *BlockExecutor) RollbackBlock(view *tx.UtxoView, blk *block.Block, undo tx.BlockUndo) {
	for i := len(blk.Transactions) - 1; i >= 0; i-- {
		var entry tx.UndoEntry
		if i < len(undo) {
			entry = undo[i]
		}
		tx.Undo(blk.Transactions[i], view, entry)
	}
}
