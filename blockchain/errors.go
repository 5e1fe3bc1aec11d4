package blockchain

import (
	"errors"
	"fmt"

	"powchain/ec"
)

type ErrorKind int

const (
	// ErrInvalidBlock wraps a *block.BlockError or a *tx.TxError.
	ErrInvalidBlock ErrorKind = iota + 1
	ErrUnknownParent
	ErrDuplicateBlock
	ErrReorgFailed
	ErrStaleCandidate
	ErrStorage
)

var _kindNames = map[ErrorKind]string{
	ErrInvalidBlock:   "InvalidBlock",
	ErrUnknownParent:  "UnknownParent",
	ErrDuplicateBlock: "DuplicateBlock",
	ErrReorgFailed:    "ReorgFailed",
	ErrStaleCandidate: "StaleCandidate",
	ErrStorage:        "Storage",
}

func (k ErrorKind) String() string {
	if name, ok := _kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ChainError is returned by AddBlock when a block is not accepted, or
// was accepted in memory but could not be persisted (ErrStorage, in
// which case nothing changed).
type ChainError struct {
	Kind ErrorKind
	Hash ec.Hash256
	Err  error
}

func (e *ChainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("chain: block %s: %s", e.Hash.Short(), e.Kind)
	}
	return fmt.Sprintf("chain: block %s: %s: %v", e.Hash.Short(), e.Kind, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, hash ec.Hash256, err error) *ChainError {
	return &ChainError{Kind: kind, Hash: hash, Err: err}
}

// IsKind reports whether err, or anything it wraps, is a ChainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
