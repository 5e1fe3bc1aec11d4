package obj

import (
	"encoding/binary"
	"fmt"
	"io"

	"halftwo/mangos/xerr"
)

// Serializer writes big-endian fixed-width integers, uvarints and
// length-prefixed byte strings. The first error sticks; later writes are no-ops.
type Serializer struct {
	W   io.Writer
	N   int
	Err error
}

func NewSerializer(w io.Writer) *Serializer {
	return &Serializer{W: w}
}

func (s *Serializer) SetError(err error) {
	if s.Err == nil {
		s.Err = err
	}
}

func (s *Serializer) Write(data []byte) {
	if s.Err == nil && len(data) > 0 {
		var n int
		n, s.Err = s.W.Write(data)
		s.N += n
		if s.Err == nil && n != len(data) {
			s.Err = xerr.Trace(fmt.Errorf("Write less than expected data"))
		}
	}
}

func (s *Serializer) WriteByte(b byte) {
	s.Write([]byte{b})
}

func (s *Serializer) WriteUint32(n uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	s.Write(buf[:])
}

func (s *Serializer) WriteUint64(n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	s.Write(buf[:])
}

func (s *Serializer) WriteInt64(n int64) {
	s.WriteUint64(uint64(n))
}

func (s *Serializer) WriteUvarint(n uint64) {
	if s.Err == nil {
		var buf [binary.MaxVarintLen64]byte
		k := binary.PutUvarint(buf[:], n)
		s.Write(buf[:k])
	}
}

func (s *Serializer) WriteVariableBytes(data []byte) {
	if s.Err == nil {
		s.WriteUvarint(uint64(len(data)))
		s.Write(data)
	}
}

// Deserializer mirrors Serializer. Length prefixes are bounded by the
// caller so a hostile peer cannot make us allocate arbitrarily.
type Deserializer struct {
	R   io.Reader
	N   int
	Err error
}

func NewDeserializer(r io.Reader) *Deserializer {
	return &Deserializer{R: r}
}

func (d *Deserializer) SetError(err error) {
	if d.Err == nil {
		d.Err = err
	}
}

func (d *Deserializer) Read(data []byte) {
	if d.Err == nil && len(data) > 0 {
		var n int
		n, d.Err = io.ReadFull(d.R, data)
		d.N += n
		if d.Err == nil && n != len(data) {
			d.Err = xerr.Trace(fmt.Errorf("Read less than expected data"))
		}
	}
}

func (d *Deserializer) ReadByte() byte {
	var b [1]byte
	d.Read(b[:])
	return b[0]
}

func (d *Deserializer) ReadUint32() uint32 {
	var buf [4]byte
	d.Read(buf[:])
	if d.Err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(buf[:])
}

func (d *Deserializer) ReadUint64() uint64 {
	var buf [8]byte
	d.Read(buf[:])
	if d.Err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(buf[:])
}

func (d *Deserializer) ReadInt64() int64 {
	return int64(d.ReadUint64())
}

func (d *Deserializer) ReadUvarint() (k uint64) {
	if d.Err != nil {
		return 0
	}

	var buf [binary.MaxVarintLen64]byte
	for m := 1; m <= len(buf); m++ {
		d.Read(buf[m-1 : m])
		if d.Err != nil {
			return 0
		}

		var x int
		k, x = binary.Uvarint(buf[:m])
		if x > 0 {
			if x != m || (m > 1 && buf[m-1] == 0) {
				d.Err = xerr.Trace(fmt.Errorf("Non-canonical uvarint"))
				return 0
			}
			return k
		} else if x < 0 {
			break
		}
	}
	d.Err = xerr.Trace(fmt.Errorf("Uvarint overflows 64 bits"))
	return 0
}

func (d *Deserializer) ReadUvarintAndCheck(min, max uint64) (k uint64) {
	k = d.ReadUvarint()
	if d.Err == nil && (k < min || k > max) {
		d.Err = xerr.Trace(fmt.Errorf("Varint (%d) out of range [%d, %d]", k, min, max))
	}
	return k
}

// ReadVariableBytes reads a length-prefixed byte string of at most max bytes.
// A zero-length string decodes as nil.
func (d *Deserializer) ReadVariableBytes(max int) []byte {
	k := d.ReadUvarintAndCheck(0, uint64(max))
	if d.Err != nil || k == 0 {
		return nil
	}

	data := make([]byte, k)
	d.Read(data)
	if d.Err != nil {
		return nil
	}
	return data
}
