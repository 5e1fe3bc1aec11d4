package block

import (
	"errors"
	"fmt"

	"powchain/ec"
)

type ErrorKind int

const (
	ErrInvalidHash ErrorKind = iota + 1
	ErrInvalidPreviousHash
	ErrInvalidMerkleRoot
	ErrInvalidProofOfWork
	ErrInvalidTimestamp
	ErrEmptyBlock
	ErrInvalidHeight
	ErrBadCoinbase
	ErrBlockTooLarge
	ErrUnexpectedDifficulty
	ErrDuplicateTransaction
	ErrInvalidTransaction
)

var _kindNames = map[ErrorKind]string{
	ErrInvalidHash:          "InvalidHash",
	ErrInvalidPreviousHash:  "InvalidPreviousHash",
	ErrInvalidMerkleRoot:    "InvalidMerkleRoot",
	ErrInvalidProofOfWork:   "InvalidProofOfWork",
	ErrInvalidTimestamp:     "InvalidTimestamp",
	ErrEmptyBlock:           "EmptyBlock",
	ErrInvalidHeight:        "InvalidHeight",
	ErrBadCoinbase:          "BadCoinbase",
	ErrBlockTooLarge:        "BlockTooLarge",
	ErrUnexpectedDifficulty: "UnexpectedDifficulty",
	ErrDuplicateTransaction: "DuplicateTransaction",
	ErrInvalidTransaction:   "InvalidTransaction",
}

func (k ErrorKind) String() string {
	if name, ok := _kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// BlockError reports why a block was rejected. A transaction failure is
// carried in Cause as a *tx.TxError together with its position in TxIndex.
type BlockError struct {
	Kind    ErrorKind
	Hash    ec.Hash256
	Msg     string
	TxIndex int
	Cause   error
}

func (e *BlockError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("block %s: %s: tx %d: %v", e.Hash.Short(), e.Kind, e.TxIndex, e.Cause)
	}
	return fmt.Sprintf("block %s: %s: %s", e.Hash.Short(), e.Kind, e.Msg)
}

func (e *BlockError) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, hash ec.Hash256, format string, args ...interface{}) *BlockError {
	return &BlockError{Kind: kind, Hash: hash, Msg: fmt.Sprintf(format, args...), TxIndex: -1}
}

// TxFailure wraps the error of the transaction at index.
func TxFailure(hash ec.Hash256, index int, cause error) *BlockError {
	return &BlockError{Kind: ErrInvalidTransaction, Hash: hash, TxIndex: index, Cause: cause}
}

// IsKind reports whether err, or anything it wraps, is a BlockError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var be *BlockError
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

type ErrUnknownBlock struct {
	Height uint64
}

func (e ErrUnknownBlock) Error() string {
	return fmt.Sprintf("Could not find block #%d", e.Height)
}
