// Package store persists blocks, undo data, transactions and the chain
// state with its UTXO set on top of a db.KvDb.
package store

import (
	"encoding/binary"
	"fmt"

	"powchain/block"
	"powchain/db"
	"powchain/ec"
	"powchain/obj"
	"powchain/state"
	"powchain/tx"
)

// Store is what the chain needs from persistent storage. Getters return
// nil and no error when the record does not exist.
type Store interface {
	// SaveBlock keeps a block off the active branch together with the undo
	// data needed to disconnect it once it gets connected.
	SaveBlock(blk *block.Block, undo tx.BlockUndo) error
	GetBlock(hash ec.Hash256) (*block.Block, error)
	GetUndo(hash ec.Hash256) (tx.BlockUndo, error)

	GetTransaction(hash ec.Hash256) (*tx.Transaction, ec.Hash256, error)

	// SaveConnect moves the tip to blk. The block, its undo data, the
	// transaction index of every connected block, the state record and the
	// UTXO changes go into one atomic batch.
	SaveConnect(blk *block.Block, undo tx.BlockUndo, connected []*block.Block, cst *state.ChainState, diff *tx.UtxoDiff) error
	GetChainState() (*state.ChainState, error)

	// ForEachBlock visits stored blocks by ascending height until fn returns false.
	ForEachBlock(fn func(blk *block.Block) bool) error

	Close()
}

// StorageError wraps a failure of the backing database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

//-----------------------------------------------------------------------------

func hash2HeightKey(hash ec.Hash256) []byte {
	buf := make([]byte, 1+ec.HashSize)
	buf[0] = 'h'
	copy(buf[1:], hash[:])
	return buf
}

func blockKey(height uint64, hash ec.Hash256) []byte {
	buf := make([]byte, 9+ec.HashSize)
	buf[0] = 'B'
	binary.BigEndian.PutUint64(buf[1:], height)
	copy(buf[9:], hash[:])
	return buf
}

func undoKey(hash ec.Hash256) []byte {
	buf := make([]byte, 1+ec.HashSize)
	buf[0] = 'U'
	copy(buf[1:], hash[:])
	return buf
}

func trxKey(hash ec.Hash256) []byte {
	buf := make([]byte, 1+ec.HashSize)
	buf[0] = 'T'
	copy(buf[1:], hash[:])
	return buf
}

func utxoKey(op tx.OutPoint) []byte {
	buf := make([]byte, 1+ec.HashSize+4)
	buf[0] = 'u'
	copy(buf[1:], op.Hash[:])
	binary.BigEndian.PutUint32(buf[1+ec.HashSize:], op.Index)
	return buf
}

func utxoKeyToOutPoint(key []byte) (op tx.OutPoint, ok bool) {
	if len(key) != 1+ec.HashSize+4 {
		return op, false
	}
	copy(op.Hash[:], key[1:])
	op.Index = binary.BigEndian.Uint32(key[1+ec.HashSize:])
	return op, true
}

var (
	_blockPrefix = []byte{'B'}
	_utxoPrefix  = []byte{'u'}
)

var chainStateKey = []byte("chainState")

//-----------------------------------------------------------------------------

// KvStore implements Store on a KvDb.
type KvStore struct {
	kvdb db.KvDb
}

var _ Store = (*KvStore)(nil)

func NewKvStore(kvdb db.KvDb) *KvStore {
	return &KvStore{kvdb: kvdb}
}

func (ks *KvStore) Close() {
	ks.kvdb.Close()
}

func (ks *KvStore) get(key []byte) ([]byte, error) {
	bz, err := ks.kvdb.Get(key)
	if err == db.ErrNotFound {
		return nil, nil
	}
	return bz, err
}

func putBlock(batch db.KvBatch, blk *block.Block) error {
	bz, err := obj.Encode(blk)
	if err != nil {
		return err
	}
	hash := blk.Hash()
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], blk.Height)
	batch.Put(blockKey(blk.Height, hash), bz)
	batch.Put(hash2HeightKey(hash), height[:])
	return nil
}

func putUndo(batch db.KvBatch, hash ec.Hash256, undo tx.BlockUndo) error {
	bz, err := obj.Encode(&undo)
	if err != nil {
		return err
	}
	batch.Put(undoKey(hash), bz)
	return nil
}

func putTransaction(batch db.KvBatch, t *tx.Transaction, blockHash ec.Hash256) error {
	bz, err := obj.Encode(t)
	if err != nil {
		return err
	}
	value := make([]byte, 0, ec.HashSize+len(bz))
	value = append(value, blockHash[:]...)
	value = append(value, bz...)
	batch.Put(trxKey(t.Hash()), value)
	return nil
}

func putChainState(batch db.KvBatch, cst *state.ChainState, diff *tx.UtxoDiff) error {
	if diff != nil {
		for _, op := range diff.Removed {
			batch.Delete(utxoKey(op))
		}
		for op, e := range diff.Added {
			e := e
			bz, err := obj.Encode(&e)
			if err != nil {
				return err
			}
			batch.Put(utxoKey(op), bz)
		}
	}
	batch.Put(chainStateKey, cst.Bytes())
	return nil
}

func (ks *KvStore) SaveBlock(blk *block.Block, undo tx.BlockUndo) error {
	batch := ks.kvdb.NewBatch()
	if err := putBlock(batch, blk); err != nil {
		return wrap("save block", err)
	}
	if err := putUndo(batch, blk.Hash(), undo); err != nil {
		return wrap("save undo", err)
	}
	return wrap("save block", batch.Write())
}

func (ks *KvStore) SaveConnect(blk *block.Block, undo tx.BlockUndo, connected []*block.Block, cst *state.ChainState, diff *tx.UtxoDiff) error {
	batch := ks.kvdb.NewBatch()
	if err := putBlock(batch, blk); err != nil {
		return wrap("save block", err)
	}
	if err := putUndo(batch, blk.Hash(), undo); err != nil {
		return wrap("save undo", err)
	}
	for _, c := range connected {
		hash := c.Hash()
		for _, t := range c.Transactions {
			if err := putTransaction(batch, t, hash); err != nil {
				return wrap("save transaction", err)
			}
		}
	}
	if err := putChainState(batch, cst, diff); err != nil {
		return wrap("save utxo", err)
	}
	return wrap("save chain state", batch.Write())
}

func (ks *KvStore) GetBlock(hash ec.Hash256) (*block.Block, error) {
	hz, err := ks.get(hash2HeightKey(hash))
	if err != nil || hz == nil {
		return nil, wrap("get block", err)
	}
	if len(hz) != 8 {
		return nil, wrap("get block", fmt.Errorf("corrupted height of %s", hash.Short()))
	}

	bz, err := ks.get(blockKey(binary.BigEndian.Uint64(hz), hash))
	if err != nil || bz == nil {
		return nil, wrap("get block", err)
	}
	blk, err := block.DecodeBlock(bz)
	if err != nil {
		return nil, wrap("decode block", err)
	}
	return blk, nil
}

func (ks *KvStore) GetUndo(hash ec.Hash256) (tx.BlockUndo, error) {
	bz, err := ks.get(undoKey(hash))
	if err != nil || bz == nil {
		return nil, wrap("get undo", err)
	}
	var undo tx.BlockUndo
	if err := obj.Decode(bz, &undo); err != nil {
		return nil, wrap("decode undo", err)
	}
	return undo, nil
}

// GetTransaction also returns the hash of the block the transaction was saved with.
func (ks *KvStore) GetTransaction(hash ec.Hash256) (*tx.Transaction, ec.Hash256, error) {
	bz, err := ks.get(trxKey(hash))
	if err != nil || bz == nil {
		return nil, ec.ZeroHash, wrap("get transaction", err)
	}
	if len(bz) < ec.HashSize {
		return nil, ec.ZeroHash, wrap("get transaction", fmt.Errorf("corrupted record of %s", hash.Short()))
	}
	t, err := tx.DecodeTransaction(bz[ec.HashSize:])
	if err != nil {
		return nil, ec.ZeroHash, wrap("decode transaction", err)
	}
	return t, ec.BytesToHash256(bz[:ec.HashSize]), nil
}

// GetChainState loads the state record together with the full UTXO set.
func (ks *KvStore) GetChainState() (*state.ChainState, error) {
	bz, err := ks.get(chainStateKey)
	if err != nil || bz == nil {
		return nil, wrap("get chain state", err)
	}
	cst, err := state.ChainStateFromBytes(bz)
	if err != nil {
		return nil, wrap("decode chain state", err)
	}

	utxos := tx.NewUtxoSet()
	var decodeErr error
	err = ks.kvdb.Iterate(_utxoPrefix, func(key, value []byte) bool {
		op, ok := utxoKeyToOutPoint(key)
		if !ok {
			decodeErr = fmt.Errorf("malformed utxo key %x", key)
			return false
		}
		var e tx.UtxoEntry
		if decodeErr = obj.Decode(value, &e); decodeErr != nil {
			return false
		}
		utxos.Put(op, e)
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, wrap("load utxo set", err)
	}

	cst.SetUtxos(utxos)
	return cst, nil
}

func (ks *KvStore) ForEachBlock(fn func(blk *block.Block) bool) error {
	var decodeErr error
	err := ks.kvdb.Iterate(_blockPrefix, func(key, value []byte) bool {
		blk, err := block.DecodeBlock(value)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(blk)
	})
	if err == nil {
		err = decodeErr
	}
	return wrap("iterate blocks", err)
}
