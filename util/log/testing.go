package log

import (
	"os"
	"testing"
)

// TestingLogger writes to stderr when tests run with -v, and discards otherwise.
func TestingLogger() Logger {
	if testing.Verbose() {
		return New(os.Stderr)
	}
	return NewNopLogger()
}
