// Package blockchain keeps the block tree, picks the branch with the most
// cumulative work and owns the UTXO set of its tip.
package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"powchain/block"
	"powchain/chain"
	"powchain/consensus"
	"powchain/ec"
	"powchain/genesis"
	"powchain/state"
	"powchain/store"
	"powchain/tx"
	"powchain/util/log"

	"github.com/lightningnetwork/lnd/clock"
)

type OutcomeKind int

const (
	Extended OutcomeKind = iota + 1
	ForkStored
	ReorgApplied
)

func (k OutcomeKind) String() string {
	switch k {
	case Extended:
		return "Extended"
	case ForkStored:
		return "ForkStored"
	case ReorgApplied:
		return "ReorgApplied"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome describes an accepted block. Connected and Disconnected list the
// blocks that joined and left the active branch, in the order it happened.
type Outcome struct {
	Kind   OutcomeKind
	Hash   ec.Hash256
	Height uint64

	Connected    []*block.Block
	Disconnected []*block.Block
}

type Option func(*Blockchain)

func WithClock(c clock.Clock) Option {
	return func(bc *Blockchain) {
		bc.clock = c
	}
}

func WithLogger(l log.Logger) Option {
	return func(bc *Blockchain) {
		bc.logger = l
	}
}

// Blockchain is shared by the network handlers, the miner and readers.
// AddBlock and AddMinedBlock take the write lock, everything else the read lock.
type Blockchain struct {
	mtx sync.RWMutex

	params    *chain.ChainParams
	validator consensus.Validator
	exec      *BlockExecutor
	store     store.Store
	clock     clock.Clock

	index *blockIndex
	cst   *state.ChainState

	// tipChanged is closed and replaced each time the tip moves.
	tipChanged chan struct{}

	logger log.Logger
}

// NewBlockchain opens the chain kept in st. An empty store is initialized
// with the genesis block of doc.
func NewBlockchain(st store.Store, doc *genesis.Document, validator consensus.Validator, verifier ec.SigVerifier, options ...Option) (*Blockchain, error) {
	bc := &Blockchain{
		params:     doc.ChainParams,
		validator:  validator,
		store:      st,
		clock:      clock.NewDefaultClock(),
		index:      newBlockIndex(),
		tipChanged: make(chan struct{}),
		logger:     log.NewNopLogger(),
	}
	for _, option := range options {
		option(bc)
	}
	bc.logger = bc.logger.With("module", "blockchain")
	bc.exec = NewBlockExecutor(bc.params, verifier, bc.logger)

	g, err := doc.Block(context.Background())
	if err != nil {
		return nil, fmt.Errorf("genesis block: %w", err)
	}

	cst, err := st.GetChainState()
	if err != nil {
		return nil, newError(ErrStorage, g.Hash(), err)
	}
	if cst == nil {
		err = bc.initGenesis(doc, g)
	} else {
		err = bc.load(cst, doc, g)
	}
	if err != nil {
		return nil, err
	}

	bc.logger.Info("Chain opened", "chain", bc.cst.ChainId, "height", bc.cst.Height, "tip", bc.cst.TipHash.Short())
	return bc, nil
}

func (bc *Blockchain) initGenesis(doc *genesis.Document, g *block.Block) error {
	hash := g.Hash()
	cst := state.MakeGenesisState(doc, g)
	undo := tx.BlockUndo{nil}

	diff := &tx.UtxoDiff{Added: make(map[tx.OutPoint]tx.UtxoEntry)}
	cst.Utxos().ForEach(func(op tx.OutPoint, e tx.UtxoEntry) bool {
		diff.Added[op] = e
		return true
	})
	err := bc.store.SaveConnect(g, undo, []*block.Block{g}, cst, diff)
	if err != nil {
		return newError(ErrStorage, hash, err)
	}

	idx := bc.index.add(&blockNode{hash: hash, parent: noParent, blk: g, work: new(big.Int).Set(cst.Work), undo: undo})
	bc.index.active = []int{idx}
	bc.cst = cst
	return nil
}

// load rebuilds the index from the stored blocks. Blocks come in height
// order so every parent is indexed before its children.
func (bc *Blockchain) load(cst *state.ChainState, doc *genesis.Document, g *block.Block) error {
	if cst.ChainId != doc.ChainId {
		return fmt.Errorf("stored chain %q does not match genesis %q", cst.ChainId, doc.ChainId)
	}

	err := bc.store.ForEachBlock(func(blk *block.Block) bool {
		hash := blk.Hash()
		if blk.IsGenesis() {
			if hash != g.Hash() {
				bc.logger.Warn("Skip foreign genesis", "hash", hash.Short())
				return true
			}
			bc.index.add(&blockNode{hash: hash, parent: noParent, blk: blk, work: consensus.CalcWork(blk.Bits)})
			return true
		}
		parent, ok := bc.index.lookup(blk.PrevHash)
		if !ok {
			bc.logger.Warn("Skip stored block without parent", "hash", hash.Short(), "height", blk.Height)
			return true
		}
		work := new(big.Int).Add(bc.index.node(parent).work, consensus.CalcWork(blk.Bits))
		bc.index.add(&blockNode{hash: hash, parent: parent, blk: blk, work: work})
		return true
	})
	if err != nil {
		return newError(ErrStorage, cst.TipHash, err)
	}

	tip, ok := bc.index.lookup(cst.TipHash)
	if !ok {
		return newError(ErrStorage, cst.TipHash, state.ErrUnknownTip{Height: int64(cst.Height), Hash: cst.TipHash.String()})
	}
	n := bc.index.node(tip)
	if n.height() != cst.Height || n.work.Cmp(cst.Work) != 0 {
		got := state.NewChainState(cst.ChainId, nil)
		got.Advance(n.header(), n.work)
		return newError(ErrStorage, cst.TipHash, state.ErrStateMismatch{Got: got, Expected: cst})
	}

	active := make([]int, n.height()+1)
	for idx := tip; idx != noParent; idx = bc.index.node(idx).parent {
		active[bc.index.node(idx).height()] = idx
	}
	if bc.index.node(active[0]).hash != g.Hash() {
		return newError(ErrStorage, cst.TipHash, fmt.Errorf("active branch starts at %s, genesis is %s",
			bc.index.node(active[0]).hash.Short(), g.Hash().Short()))
	}
	bc.index.active = active
	bc.cst = cst
	return nil
}

func (bc *Blockchain) Params() *chain.ChainParams {
	return bc.params
}

func (bc *Blockchain) Validator() consensus.Validator {
	return bc.validator
}

// TipChanged returns a channel that is closed when the tip next moves.
func (bc *Blockchain) TipChanged() <-chan struct{} {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.tipChanged
}

func (bc *Blockchain) notifyTipChanged() {
	close(bc.tipChanged)
	bc.tipChanged = make(chan struct{})
}

//-----------------------------------------------------------------------------

// AddBlock validates blk and files it into the block tree. Validation
// failures, unknown parents and duplicates return a *ChainError and leave
// the chain untouched. Everything is persisted before memory changes.
func (bc *Blockchain) AddBlock(blk *block.Block) (*Outcome, error) {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.addBlock(blk)
}

// AddMinedBlock is AddBlock for locally mined blocks. A block that does not
// build on the current tip anymore fails with ErrStaleCandidate.
func (bc *Blockchain) AddMinedBlock(blk *block.Block) (*Outcome, error) {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	if blk.PrevHash != bc.cst.TipHash {
		return nil, newError(ErrStaleCandidate, blk.Hash(), fmt.Errorf("built on %s, tip is %s", blk.PrevHash.Short(), bc.cst.TipHash.Short()))
	}
	return bc.addBlock(blk)
}

func (bc *Blockchain) addBlock(blk *block.Block) (*Outcome, error) {
	hash := blk.Hash()
	outcome, err := bc.processBlock(blk)
	if err != nil {
		bc.logger.Info("Rejected block", "hash", hash.Short(), "height", blk.Height, "err", err)
		return nil, err
	}
	bc.logger.Info("Accepted block", "hash", hash.Short(), "height", blk.Height, "outcome", outcome.Kind,
		"connected", len(outcome.Connected), "disconnected", len(outcome.Disconnected))
	return outcome, nil
}

func (bc *Blockchain) processBlock(blk *block.Block) (*Outcome, error) {
	hash := blk.Hash()
	if _, ok := bc.index.lookup(hash); ok {
		return nil, newError(ErrDuplicateBlock, hash, nil)
	}

	if err := block.ValidateStructure(blk, bc.params); err != nil {
		return nil, newError(ErrInvalidBlock, hash, err)
	}

	parent, ok := bc.index.lookup(blk.PrevHash)
	if !ok {
		return nil, newError(ErrUnknownParent, hash, fmt.Errorf("parent %s", blk.PrevHash.Short()))
	}
	pnode := bc.index.node(parent)

	view := chainView{bc}
	recent := consensus.RecentTimestamps(view, pnode.hash, bc.params.MedianTimeSpan)
	if err := block.ValidateAgainstParent(blk, pnode.header(), recent, bc.clock.Now(), bc.params); err != nil {
		return nil, newError(ErrInvalidBlock, hash, err)
	}
	if err := bc.validator.ValidateBlock(blk, view); err != nil {
		return nil, newError(ErrInvalidBlock, hash, err)
	}

	// UTXO state as of the parent, then blk on top of it
	tip := bc.index.tip()
	fork := bc.index.forkPoint(parent)
	uv := tx.NewUtxoView(bc.cst.Utxos())
	disconnected, err := bc.rollbackTo(uv, tip, fork)
	if err != nil {
		return nil, newError(ErrReorgFailed, hash, err)
	}
	connected, err := bc.replay(uv, fork, parent)
	if err != nil {
		return nil, newError(ErrReorgFailed, hash, err)
	}
	undo, err := bc.exec.ExecuteBlock(uv, blk)
	if err != nil {
		return nil, newError(ErrInvalidBlock, hash, err)
	}

	n := &blockNode{
		hash:   hash,
		parent: parent,
		blk:    blk,
		work:   new(big.Int).Add(pnode.work, consensus.CalcWork(blk.Bits)),
		undo:   undo,
	}
	outcome := &Outcome{Hash: hash, Height: blk.Height}

	switch {
	case parent == tip:
		outcome.Kind = Extended
	case n.work.Cmp(bc.index.node(tip).work) > 0:
		outcome.Kind = ReorgApplied
	default:
		if err := bc.store.SaveBlock(blk, undo); err != nil {
			return nil, newError(ErrStorage, hash, err)
		}
		bc.index.add(n)
		outcome.Kind = ForkStored
		return outcome, nil
	}

	connected = append(connected, n)
	for _, c := range connected {
		outcome.Connected = append(outcome.Connected, c.blk)
	}
	for _, d := range disconnected {
		outcome.Disconnected = append(outcome.Disconnected, d.blk)
	}

	next := *bc.cst
	next.Advance(&blk.Header, n.work)
	diff := uv.Changes()
	if err := bc.store.SaveConnect(blk, undo, outcome.Connected, &next, diff); err != nil {
		return nil, newError(ErrStorage, hash, err)
	}

	// persisted, now switch memory over
	next.Utxos().ApplyDiff(diff)
	bc.cst = &next
	bc.index.setActive(bc.index.add(n))
	bc.notifyTipChanged()

	if outcome.Kind == ReorgApplied {
		bc.logger.Info("Reorganized", "fork", bc.index.node(fork).height(), "old_tip", bc.index.node(tip).hash.Short(),
			"new_tip", hash.Short(), "depth", len(disconnected))
	}
	return outcome, nil
}

// rollbackTo undoes the active blocks above fork, tip first.
func (bc *Blockchain) rollbackTo(uv *tx.UtxoView, tip, fork int) ([]*blockNode, error) {
	var undone []*blockNode
	for idx := tip; idx != fork; idx = bc.index.node(idx).parent {
		n := bc.index.node(idx)
		undo, err := bc.undoOf(n)
		if err != nil {
			return nil, err
		}
		bc.exec.RollbackBlock(uv, n.blk, undo)
		undone = append(undone, n)
	}
	return undone, nil
}

// replay executes the side branch blocks after fork up to and including to.
func (bc *Blockchain) replay(uv *tx.UtxoView, fork, to int) ([]*blockNode, error) {
	var done []*blockNode
	for _, idx := range bc.index.branch(fork, to) {
		n := bc.index.node(idx)
		if _, err := bc.exec.ExecuteBlock(uv, n.blk); err != nil {
			return nil, err
		}
		done = append(done, n)
	}
	return done, nil
}

func (bc *Blockchain) undoOf(n *blockNode) (tx.BlockUndo, error) {
	if n.undo != nil {
		return n.undo, nil
	}
	undo, err := bc.store.GetUndo(n.hash)
	if err != nil {
		return nil, err
	}
	if undo == nil {
		return nil, fmt.Errorf("no undo data for %s", n.hash.Short())
	}
	n.undo = undo
	return undo, nil
}
