package tx

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	ErrInvalidSignature ErrorKind = iota + 1
	ErrInvalidHash
	ErrInsufficientFunds
	ErrDoubleSpend
	ErrMissingOutput
	ErrMalformedTransaction
)

var _kindNames = map[ErrorKind]string{
	ErrInvalidSignature:     "InvalidSignature",
	ErrInvalidHash:          "InvalidHash",
	ErrInsufficientFunds:    "InsufficientFunds",
	ErrDoubleSpend:          "DoubleSpend",
	ErrMissingOutput:        "MissingOutput",
	ErrMalformedTransaction: "MalformedTransaction",
}

func (k ErrorKind) String() string {
	if name, ok := _kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// TxError reports why a transaction was rejected. Index is the offending
// input or output, or -1 when the error concerns the whole transaction.
type TxError struct {
	Kind  ErrorKind
	Index int
	Msg   string
}

func (e *TxError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("tx: %s at %d: %s", e.Kind, e.Index, e.Msg)
	}
	return fmt.Sprintf("tx: %s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, index int, format string, args ...interface{}) *TxError {
	return &TxError{Kind: kind, Index: index, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err, or anything it wraps, is a TxError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TxError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

var ErrTrxPoolIsFull = errors.New("TrxPool is full")
var ErrTxInCache = errors.New("Tx already exists in cache")
