package store

import (
	"errors"
	"math/big"
	"testing"

	"powchain/block"
	"powchain/db"
	"powchain/ec"
	"powchain/state"
	"powchain/tx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshStore() (*KvStore, db.KvDb) {
	kvdb := db.NewMemDb()
	return NewKvStore(kvdb), kvdb
}

func makeBlock(height uint64, prev ec.Hash256) *block.Block {
	cb := tx.NewCoinbase(height, []byte{0x01, 0x02}, 50, nil)
	txs := tx.Transactions{cb}
	h := block.Header{
		Version:    block.CurrentVersion,
		Height:     height,
		PrevHash:   prev,
		MerkleRoot: block.MerkleRoot(txs),
		Timestamp:  1600000000 + int64(height)*10,
		Bits:       0x207fffff,
		Nonce:      height,
	}
	return block.NewBlock(h, txs)
}

func TestSaveAndGetBlock(t *testing.T) {
	st, _ := freshStore()

	blk := makeBlock(3, ec.Sum256([]byte("parent")))
	require.NoError(t, st.SaveBlock(blk, tx.BlockUndo{nil}))

	got, err := st.GetBlock(blk.Hash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, blk.Hash(), got.Hash())
	assert.Equal(t, blk.Header, got.Header)
	assert.Len(t, got.Transactions, 1)

	missing, err := st.GetBlock(ec.Sum256([]byte("nothing")))
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestForEachBlockOrder(t *testing.T) {
	st, _ := freshStore()

	prev := ec.ZeroHash
	var blocks []*block.Block
	for i := uint64(0); i < 5; i++ {
		blk := makeBlock(i, prev)
		blocks = append(blocks, blk)
		prev = blk.Hash()
	}
	// save out of order
	for _, i := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, st.SaveBlock(blocks[i], tx.BlockUndo{nil}))
	}

	var heights []uint64
	require.NoError(t, st.ForEachBlock(func(blk *block.Block) bool {
		heights = append(heights, blk.Height)
		return true
	}))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, heights)

	count := 0
	require.NoError(t, st.ForEachBlock(func(blk *block.Block) bool {
		count++
		return count < 2
	}))
	assert.Equal(t, 2, count)
}

func TestTransactionIndex(t *testing.T) {
	st, _ := freshStore()

	blk := makeBlock(7, ec.ZeroHash)
	cb := blk.Coinbase()
	cst := state.NewChainState("test-chain", nil)
	cst.Advance(&blk.Header, big.NewInt(1))
	require.NoError(t, st.SaveConnect(blk, tx.BlockUndo{nil}, []*block.Block{blk}, cst, nil))

	got, bh, err := st.GetTransaction(cb.Hash())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cb.Hash(), got.Hash())
	assert.Equal(t, blk.Hash(), bh)

	got, _, err = st.GetTransaction(ec.Sum256([]byte("x")))
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestUndoRoundTrip(t *testing.T) {
	st, _ := freshStore()

	blk := makeBlock(1, ec.ZeroHash)
	hash := blk.Hash()
	undo := tx.BlockUndo{
		{{
			OutPoint: tx.NewOutPoint(ec.Sum256([]byte("a")), 1),
			Entry:    tx.UtxoEntry{Output: tx.TxOutput{Value: 9, Script: []byte{7}}, Height: 2},
		}},
		{},
	}
	require.NoError(t, st.SaveBlock(blk, undo))

	got, err := st.GetUndo(hash)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0], 1)
	assert.Equal(t, undo[0][0].OutPoint, got[0][0].OutPoint)
	assert.Equal(t, uint64(9), got[0][0].Entry.Output.Value)
	assert.Empty(t, got[1])

	got, err = st.GetUndo(ec.ZeroHash)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestChainStateWithUtxos(t *testing.T) {
	st, _ := freshStore()

	cst, err := st.GetChainState()
	require.NoError(t, err)
	assert.Nil(t, cst)

	op1 := tx.NewOutPoint(ec.Sum256([]byte("one")), 0)
	op2 := tx.NewOutPoint(ec.Sum256([]byte("two")), 1)
	e1 := tx.UtxoEntry{Output: tx.TxOutput{Value: 10, Script: []byte{1}}, Height: 1, Coinbase: true}
	e2 := tx.UtxoEntry{Output: tx.TxOutput{Value: 20, Script: []byte{2}}, Height: 1}

	cst = state.NewChainState("test-chain", nil)
	blk := makeBlock(1, ec.ZeroHash)
	cst.Advance(&blk.Header, big.NewInt(12345))
	diff := &tx.UtxoDiff{Added: map[tx.OutPoint]tx.UtxoEntry{op1: e1, op2: e2}}
	require.NoError(t, st.SaveConnect(blk, tx.BlockUndo{nil}, []*block.Block{blk}, cst, diff))

	loaded, err := st.GetChainState()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, cst.Equal(loaded))
	assert.Equal(t, 2, loaded.Utxos().Len())
	got, ok := loaded.Utxos().Get(op1)
	require.True(t, ok)
	assert.Equal(t, e1, got)

	blk2 := makeBlock(2, blk.Hash())
	cst.Advance(&blk2.Header, big.NewInt(23456))
	diff = &tx.UtxoDiff{Removed: []tx.OutPoint{op1}}
	require.NoError(t, st.SaveConnect(blk2, tx.BlockUndo{nil}, []*block.Block{blk2}, cst, diff))

	loaded, err = st.GetChainState()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), loaded.Height)
	assert.Equal(t, 1, loaded.Utxos().Len())
	_, ok = loaded.Utxos().Get(op1)
	assert.False(t, ok)
}

func TestCorruptedChainState(t *testing.T) {
	st, kvdb := freshStore()
	require.NoError(t, kvdb.Put(chainStateKey, []byte("artful-doger")))

	_, err := st.GetChainState()
	require.Error(t, err)
	var se *StorageError
	assert.True(t, errors.As(err, &se))
}

func TestCorruptedBlock(t *testing.T) {
	st, kvdb := freshStore()

	blk := makeBlock(1, ec.ZeroHash)
	require.NoError(t, st.SaveBlock(blk, tx.BlockUndo{nil}))
	require.NoError(t, kvdb.Put(blockKey(1, blk.Hash()), []byte{0x01}))

	_, err := st.GetBlock(blk.Hash())
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "decode block", se.Op)
}

type failingBatch struct {
	db.KvBatch
}

func (failingBatch) Write() error {
	return errors.New("disk full")
}

// failingDb hands out batches that never reach the backing db.
type failingDb struct {
	db.KvDb
}

func (f failingDb) NewBatch() db.KvBatch {
	return failingBatch{f.KvDb.NewBatch()}
}

func TestSaveConnectIsAtomic(t *testing.T) {
	kvdb := db.NewMemDb()
	st := NewKvStore(failingDb{kvdb})

	blk := makeBlock(1, ec.ZeroHash)
	cst := state.NewChainState("test-chain", nil)
	cst.Advance(&blk.Header, big.NewInt(7))
	op := tx.NewOutPoint(blk.Coinbase().Hash(), 0)
	diff := &tx.UtxoDiff{Added: map[tx.OutPoint]tx.UtxoEntry{op: {Output: blk.Coinbase().Outputs[0], Height: 1, Coinbase: true}}}

	err := st.SaveConnect(blk, tx.BlockUndo{nil}, []*block.Block{blk}, cst, diff)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "save chain state", se.Op)

	// nothing of the failed connect is visible
	got, err := st.GetBlock(blk.Hash())
	require.NoError(t, err)
	assert.Nil(t, got)
	undo, err := st.GetUndo(blk.Hash())
	require.NoError(t, err)
	assert.Nil(t, undo)
	trx, _, err := st.GetTransaction(blk.Coinbase().Hash())
	require.NoError(t, err)
	assert.Nil(t, trx)
	loaded, err := st.GetChainState()
	require.NoError(t, err)
	assert.Nil(t, loaded)
	count := 0
	require.NoError(t, st.ForEachBlock(func(*block.Block) bool {
		count++
		return true
	}))
	assert.Zero(t, count)
}
