package blockchain

import (
	"math/big"
	"time"

	"powchain/block"
	"powchain/chain"
	"powchain/ec"
	"powchain/state"
	"powchain/tx"
)

// chainView gives consensus code read access to the chain. Callers hold
// the chain lock.
type chainView struct {
	bc *Blockchain
}

func (v chainView) Params() *chain.ChainParams {
	return v.bc.params
}

func (v chainView) Tip() *block.Header {
	return v.bc.index.node(v.bc.index.tip()).header()
}

func (v chainView) Header(hash ec.Hash256) (*block.Header, bool) {
	idx, ok := v.bc.index.lookup(hash)
	if !ok {
		return nil, false
	}
	return v.bc.index.node(idx).header(), true
}

func (v chainView) Ancestor(hash ec.Hash256, height uint64) (*block.Header, bool) {
	idx, ok := v.bc.index.lookup(hash)
	if !ok {
		return nil, false
	}
	idx, ok = v.bc.index.ancestor(idx, height)
	if !ok {
		return nil, false
	}
	return v.bc.index.node(idx).header(), true
}

func (v chainView) Utxos() tx.UtxoReader {
	return v.bc.cst.Utxos()
}

func (v chainView) Now() time.Time {
	return v.bc.clock.Now()
}

//-----------------------------------------------------------------------------

// CreateCandidate asks the validator for a block on top of the current tip.
// The returned channel is closed once the candidate is stale.
func (bc *Blockchain) CreateCandidate(pending tx.Transactions) (*block.Block, <-chan struct{}, error) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	blk, err := bc.validator.CreateCandidate(chainView{bc}, pending)
	return blk, bc.tipChanged, err
}

// LatestBlock returns the tip of the active branch.
func (bc *Blockchain) LatestBlock() *block.Block {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.index.node(bc.index.tip()).blk
}

func (bc *Blockchain) Height() uint64 {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.cst.Height
}

// BlockByHash looks up a block of the active branch.
func (bc *Blockchain) BlockByHash(hash ec.Hash256) (*block.Block, bool) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	idx, ok := bc.index.lookup(hash)
	if !ok || !bc.index.isActive(idx) {
		return nil, false
	}
	return bc.index.node(idx).blk, true
}

// KnownBlock looks up any accepted block, side branches included.
func (bc *Blockchain) KnownBlock(hash ec.Hash256) (*block.Block, bool) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	idx, ok := bc.index.lookup(hash)
	if !ok {
		return nil, false
	}
	return bc.index.node(idx).blk, true
}

func (bc *Blockchain) BlockByHeight(height uint64) (*block.Block, error) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	if height >= uint64(len(bc.index.active)) {
		return nil, block.ErrUnknownBlock{Height: height}
	}
	return bc.index.node(bc.index.active[height]).blk, nil
}

// State returns a copy of the chain state without its UTXO set.
func (bc *Blockchain) State() *state.ChainState {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	cst := *bc.cst
	cst.SetUtxos(nil)
	return &cst
}

// WithUtxos runs fn on a fresh view of the tip UTXO set while holding the
// read lock. The view is discarded afterwards.
func (bc *Blockchain) WithUtxos(fn func(view *tx.UtxoView, height uint64) error) error {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return fn(tx.NewUtxoView(bc.cst.Utxos()), bc.cst.Height)
}

func (bc *Blockchain) GetUtxo(op tx.OutPoint) (tx.UtxoEntry, bool) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.cst.Utxos().Get(op)
}

// Balance sums the unspent outputs locked by script.
func (bc *Blockchain) Balance(script []byte) uint64 {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.cst.Utxos().Balance(script)
}

// GetTransaction finds a transaction of the active branch in the store.
func (bc *Blockchain) GetTransaction(hash ec.Hash256) (*tx.Transaction, ec.Hash256, error) {
	t, blockHash, err := bc.store.GetTransaction(hash)
	if err != nil || t == nil {
		return t, blockHash, err
	}
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	if idx, ok := bc.index.lookup(blockHash); !ok || !bc.index.isActive(idx) {
		return nil, ec.ZeroHash, nil
	}
	return t, blockHash, nil
}

// BlockLocator lists active block hashes from the tip back to genesis,
// dense near the tip and doubling the gap after ten entries.
func (bc *Blockchain) BlockLocator() []ec.Hash256 {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()

	var locator []ec.Hash256
	step := uint64(1)
	height := uint64(len(bc.index.active) - 1)
	for {
		locator = append(locator, bc.index.node(bc.index.active[height]).hash)
		if height == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}
	return locator
}

// BlocksAfter returns up to max active blocks following the first locator
// hash found on the active branch, or following genesis if none is.
func (bc *Blockchain) BlocksAfter(locator []ec.Hash256, max int) []*block.Block {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()

	start := uint64(0)
	for _, hash := range locator {
		if idx, ok := bc.index.lookup(hash); ok && bc.index.isActive(idx) {
			start = bc.index.node(idx).height()
			break
		}
	}

	var blocks []*block.Block
	for h := start + 1; h < uint64(len(bc.index.active)) && len(blocks) < max; h++ {
		blocks = append(blocks, bc.index.node(bc.index.active[h]).blk)
	}
	return blocks
}

func (bc *Blockchain) UtxoCount() int {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.cst.Utxos().Len()
}

// TotalWork is the cumulative work of the active branch, rounded for display.
func (bc *Blockchain) TotalWork() float64 {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	f, _ := new(big.Float).SetInt(bc.cst.Work).Float64()
	return f
}
