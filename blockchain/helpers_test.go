package blockchain

import (
	"context"
	"errors"
	"testing"
	"time"

	"powchain/block"
	"powchain/chain"
	"powchain/consensus"
	"powchain/db"
	"powchain/ec"
	"powchain/genesis"
	"powchain/state"
	"powchain/store"
	"powchain/tx"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const testGenesisTime = 1700000000

type harness struct {
	t      *testing.T
	key    ec.PrivKey
	payout []byte
	doc    *genesis.Document
	clock  *clock.TestClock
	kvdb   db.KvDb
	store  *faultyStore
	pow    *consensus.ProofOfWork
	bc     *Blockchain
}

func newHarness(t *testing.T) *harness {
	key := ec.NewPrivKey()
	pub := key.PubKey()

	doc := genesis.NewDocument("test-chain", pub, chain.RegtestChainParams())
	doc.GenesisTime = testGenesisTime
	require.NoError(t, doc.ValidateAndComplete())
	_, err := doc.Seal(context.Background())
	require.NoError(t, err)

	kvdb := db.NewMemDb()
	h := &harness{
		t:      t,
		key:    key,
		payout: pub[:],
		doc:    doc,
		clock:  clock.NewTestClock(time.Unix(testGenesisTime+3600, 0)),
		kvdb:   kvdb,
		store:  &faultyStore{Store: store.NewKvStore(kvdb)},
		pow:    consensus.NewProofOfWork(ec.Secp256k1Verifier{}, consensus.WithPayoutScript(pub[:])),
	}
	h.bc = h.open()
	return h
}

func (h *harness) open() *Blockchain {
	bc, err := NewBlockchain(h.store, h.doc, h.pow, ec.Secp256k1Verifier{}, WithClock(h.clock))
	require.NoError(h.t, err)
	return bc
}

// makeBlock mines a child of parent holding txs after a coinbase tagged with tag.
func (h *harness) makeBlock(parent *block.Block, tag string, txs ...*tx.Transaction) *block.Block {
	height := parent.Height + 1
	var fees uint64
	for _, t := range txs {
		in, out := h.sumInputs(t), uint64(0)
		for _, o := range t.Outputs {
			out += o.Value
		}
		if in > out {
			fees += in - out
		}
	}
	cb := tx.NewCoinbase(height, h.payout, h.doc.ChainParams.Reward(height)+fees, []byte(tag))
	all := append(tx.Transactions{cb}, txs...)

	h.bc.mtx.RLock()
	bits := consensus.NextBits(chainView{h.bc}, &parent.Header)
	h.bc.mtx.RUnlock()

	blk := block.NewBlock(block.Header{
		Version:    block.CurrentVersion,
		Height:     height,
		PrevHash:   parent.Hash(),
		MerkleRoot: block.MerkleRoot(all),
		Timestamp:  parent.Timestamp + h.doc.ChainParams.TargetSpacing,
		Bits:       bits,
	}, all)
	require.NoError(h.t, h.pow.Mine(context.Background(), blk))
	return blk
}

// sumInputs looks inputs up in every known block, so side branches work too.
func (h *harness) sumInputs(t *tx.Transaction) uint64 {
	var sum uint64
	for _, in := range t.Inputs {
		h.bc.mtx.RLock()
		for _, n := range h.bc.index.nodes {
			for _, bt := range n.blk.Transactions {
				if bt.Hash() == in.PrevOut.Hash {
					sum += bt.Outputs[in.PrevOut.Index].Value
				}
			}
		}
		h.bc.mtx.RUnlock()
	}
	return sum
}

// spend pays value from output index of prev to a fresh key, with the
// rest going back to the harness key minus fee.
func (h *harness) spend(prev *tx.Transaction, index uint32, value, fee uint64) *tx.Transaction {
	other := ec.NewPrivKey()
	otherPub := other.PubKey()
	avail := prev.Outputs[index].Value
	outputs := []tx.TxOutput{{Value: value, Script: otherPub[:]}}
	if change := avail - value - fee; change > 0 {
		outputs = append(outputs, tx.TxOutput{Value: change, Script: h.payout})
	}
	t := tx.NewTransaction([]tx.TxInput{{PrevOut: tx.NewOutPoint(prev.Hash(), index)}}, outputs, h.clock.Now().Unix())
	require.NoError(h.t, t.SignInputs([]ec.PrivKey{h.key}))
	return t
}

func (h *harness) add(blk *block.Block) *Outcome {
	out, err := h.bc.AddBlock(blk)
	require.NoError(h.t, err)
	return out
}

// extend adds n coinbase-only blocks on top of parent.
func (h *harness) extend(parent *block.Block, tag string, n int) []*block.Block {
	var blocks []*block.Block
	for i := 0; i < n; i++ {
		parent = h.makeBlock(parent, tag)
		h.add(parent)
		blocks = append(blocks, parent)
	}
	return blocks
}

var errInjected = errors.New("injected storage failure")

// faultyStore fails writes or undo reads when asked to.
type faultyStore struct {
	store.Store
	failConnect bool
	failBlock   bool
	failUndo    bool
}

func (fs *faultyStore) SaveBlock(blk *block.Block, undo tx.BlockUndo) error {
	if fs.failBlock {
		return errInjected
	}
	return fs.Store.SaveBlock(blk, undo)
}

func (fs *faultyStore) SaveConnect(blk *block.Block, undo tx.BlockUndo, connected []*block.Block, cst *state.ChainState, diff *tx.UtxoDiff) error {
	if fs.failConnect {
		return errInjected
	}
	return fs.Store.SaveConnect(blk, undo, connected, cst, diff)
}

func (fs *faultyStore) GetUndo(hash ec.Hash256) (tx.BlockUndo, error) {
	if fs.failUndo {
		return nil, errInjected
	}
	return fs.Store.GetUndo(hash)
}
