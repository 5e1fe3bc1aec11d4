package obj

import (
	"bytes"
	"fmt"
	"io"

	"halftwo/mangos/xerr"
)

// Serializable is implemented by every entity that is hashed, persisted
// or sent over the wire. The same encoding serves all three.
type Serializable interface {
	Serialize(w io.Writer) error
	Deserialize(r io.Reader) error
}

// Encode returns the canonical encoding of v.
func Encode(v Serializable) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.Serialize(&buf); err != nil {
		return nil, xerr.Trace(err, "obj: encode failed")
	}
	return buf.Bytes(), nil
}

// MustEncode is for values built in-process, where an encoding failure
// means a programming error.
func MustEncode(v Serializable) []byte {
	bz, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return bz
}

// Decode fills v from bz and rejects trailing bytes.
func Decode(bz []byte, v Serializable) error {
	r := bytes.NewReader(bz)
	if err := v.Deserialize(r); err != nil {
		return xerr.Trace(err, "obj: decode failed")
	}
	if r.Len() != 0 {
		return xerr.Trace(fmt.Errorf("obj: %d trailing bytes", r.Len()))
	}
	return nil
}
