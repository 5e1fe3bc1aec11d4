package db

import (
	"bytes"
	"sort"
	"strings"
	"sync"
)

type MemDb struct {
	dict map[string][]byte
	lock sync.RWMutex
}

var _ KvDb = (*MemDb)(nil)

func NewMemDb() *MemDb {
	return &MemDb{
		dict: make(map[string][]byte),
	}
}

func copyBytes(b []byte) []byte {
	x := make([]byte, len(b))
	copy(x, b)
	return x
}

func (db *MemDb) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.dict[string(key)] = copyBytes(value)
	return nil
}

func (db *MemDb) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	_, ok := db.dict[string(key)]
	return ok, nil
}

func (db *MemDb) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if value, ok := db.dict[string(key)]; ok {
		return copyBytes(value), nil
	}
	return nil, ErrNotFound
}

func (db *MemDb) Remove(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	delete(db.dict, string(key))
	return nil
}

func (db *MemDb) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	type kv struct {
		k string
		v []byte
	}

	db.lock.RLock()
	p := string(prefix)
	items := make([]kv, 0)
	for k, v := range db.dict {
		if strings.HasPrefix(k, p) {
			items = append(items, kv{k, v})
		}
	}
	db.lock.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare([]byte(items[i].k), []byte(items[j].k)) < 0
	})
	for _, item := range items {
		if !fn([]byte(item.k), item.v) {
			break
		}
	}
	return nil
}

func (db *MemDb) Close() {
}

func (db *MemDb) NewBatch() KvBatch {
	return &_MemBatch{mdb: db}
}

func (db *MemDb) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()
	return len(db.dict)
}

type _KV struct {
	k   []byte
	v   []byte
	del bool
}

type _MemBatch struct {
	mdb   *MemDb
	items []_KV
	size  int
}

func (b *_MemBatch) Put(key, value []byte) error {
	b.items = append(b.items, _KV{k: copyBytes(key), v: copyBytes(value)})
	b.size += len(key) + len(value)
	return nil
}

func (b *_MemBatch) Delete(key []byte) error {
	b.items = append(b.items, _KV{k: copyBytes(key), del: true})
	b.size += len(key)
	return nil
}

func (b *_MemBatch) Write() error {
	b.mdb.lock.Lock()
	defer b.mdb.lock.Unlock()

	for _, item := range b.items {
		if item.del {
			delete(b.mdb.dict, string(item.k))
		} else {
			b.mdb.dict[string(item.k)] = item.v
		}
	}
	return nil
}

func (b *_MemBatch) DataSize() int {
	return b.size
}

func (b *_MemBatch) Reset() {
	b.items = b.items[:0]
	b.size = 0
}
