package ec

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"math/big"
	"sync"

	"golang.org/x/crypto/sha3"
	"halftwo/mangos/xstr"
)

const HashSize = 32

// Hash256 is the identity of blocks and transactions.
type Hash256 [HashSize]byte

var ZeroHash Hash256

func New256Hasher() hash.Hash {
	return sha3.New256()
}

var _s256Pool = sync.Pool{
	New: func() interface{} {
		return New256Hasher()
	},
}

// Sum256 is the only digest used for identity and for proof-of-work comparison.
func Sum256(msg []byte) (hh Hash256) {
	hasher := _s256Pool.Get().(hash.Hash)
	defer _s256Pool.Put(hasher)

	hasher.Reset()
	hasher.Write(msg)
	hasher.Sum(hh[:0])
	return
}

// SumPair hashes the concatenation of two hashes.
func SumPair(left, right Hash256) Hash256 {
	var buf [HashSize * 2]byte
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])
	return Sum256(buf[:])
}

// right aligned
// parameter to must 0 initialized
func bytes_slice2array(from, to []byte) {
	if len(from) > len(to) {
		k := len(from) - len(to)
		from = from[k:]
	}

	copy(to[len(to)-len(from):], from)
}

func BytesToHash256(b []byte) (h Hash256) {
	bytes_slice2array(b, h[:])
	return
}

func HexToHash256(s string) (h Hash256, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return
	}
	if len(b) != HashSize {
		err = fmt.Errorf("ec: invalid hash length %d", len(b))
		return
	}
	copy(h[:], b)
	return
}

func (h Hash256) IsZero() bool {
	return xstr.IndexNotByte(h[:], 0) == -1
}

// Big interprets the hash as a big-endian unsigned integer.
func (h Hash256) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

func (h Hash256) Compare(h2 Hash256) int {
	return bytes.Compare(h[:], h2[:])
}

func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

// Short is the 8-byte prefix used in log lines.
func (h Hash256) Short() string {
	return hex.EncodeToString(h[:8])
}

func (h Hash256) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash256) UnmarshalText(text []byte) error {
	x, err := HexToHash256(string(text))
	if err != nil {
		return err
	}
	*h = x
	return nil
}
