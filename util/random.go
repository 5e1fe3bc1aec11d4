package util

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"
)

var MyRand *rand.Rand

func init() {
	MyRand = NewRand()
}

func NewRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err == nil {
		seed = int64(binary.BigEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func RandomBytes(size int) []byte {
	bz := make([]byte, size)
	FillRandomBytes(bz)
	return bz
}

func FillRandomBytes(bz []byte) {
	if _, err := crand.Read(bz); err != nil {
		MyRand.Read(bz)
	}
}

// RandomUint64 is used to pick the starting nonce of a mining round.
func RandomUint64() uint64 {
	var buf [8]byte
	FillRandomBytes(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}
