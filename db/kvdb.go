package db

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key is absent, whatever the backend.
var ErrNotFound = errors.New("db: not found")

type KvDb interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Remove(key []byte) error
	Close()
	NewBatch() KvBatch

	// Iterate visits keys with the given prefix in ascending byte order
	// until fn returns false. Slices passed to fn are only valid during the call.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

type KvBatch interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Write() error  // Write to the backing db
	Reset()        // Reset resets the batch for reuse
	DataSize() int // amount of data in the batch
}

const (
	BACKEND_LEVELDB = "leveldb"
	BACKEND_MEMDB   = "memdb"
)

// Open opens a database of the named backend. The memdb backend ignores path.
func Open(backend string, path string, cache int, handles int) (KvDb, error) {
	switch backend {
	case BACKEND_LEVELDB:
		return NewLevelDb(path, cache, handles)
	case BACKEND_MEMDB, "":
		return NewMemDb(), nil
	}
	return nil, fmt.Errorf("db: unknown backend %q", backend)
}
