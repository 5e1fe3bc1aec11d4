package state

import (
	"fmt"
)

type (
	ErrStateMismatch struct {
		Got      *ChainState
		Expected *ChainState
	}

	ErrUnknownTip struct {
		Height int64
		Hash   string
	}
)

func (e ErrStateMismatch) Error() string {
	return fmt.Sprintf("ChainState after replay does not match saved state. Got ----\n%v\nExpected ----\n%v\n", e.Got, e.Expected)
}

func (e ErrUnknownTip) Error() string {
	return fmt.Sprintf("Saved tip %s at height %d is not among the stored blocks", e.Hash, e.Height)
}
