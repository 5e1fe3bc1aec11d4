package block

import (
	"encoding/binary"
	"io"

	"powchain/obj"
	"powchain/tx"

	"halftwo/mangos/xerr"
)

func (h *Header) encodeTo(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:], h.Version)
	binary.BigEndian.PutUint64(buf[4:], h.Height)
	copy(buf[12:44], h.PrevHash[:])
	copy(buf[44:76], h.MerkleRoot[:])
	binary.BigEndian.PutUint64(buf[76:], uint64(h.Timestamp))
	binary.BigEndian.PutUint32(buf[84:], h.Bits)
	binary.BigEndian.PutUint64(buf[88:], h.Nonce)
}

func (h *Header) Serialize(w io.Writer) error {
	s := obj.NewSerializer(w)
	s.WriteUint32(h.Version)
	s.WriteUint64(h.Height)
	s.Write(h.PrevHash[:])
	s.Write(h.MerkleRoot[:])
	s.WriteInt64(h.Timestamp)
	s.WriteUint32(h.Bits)
	s.WriteUint64(h.Nonce)
	return s.Err
}

func (h *Header) Deserialize(r io.Reader) error {
	d := obj.NewDeserializer(r)
	h.Version = d.ReadUint32()
	h.Height = d.ReadUint64()
	d.Read(h.PrevHash[:])
	d.Read(h.MerkleRoot[:])
	h.Timestamp = d.ReadInt64()
	h.Bits = d.ReadUint32()
	h.Nonce = d.ReadUint64()
	return d.Err
}

func (b *Block) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}
	s := obj.NewSerializer(w)
	s.WriteUvarint(uint64(len(b.Transactions)))
	for _, t := range b.Transactions {
		if s.Err != nil {
			break
		}
		s.SetError(t.Serialize(w))
	}
	return s.Err
}

// Deserialize reads a block and seals it with the hash of the header read.
func (b *Block) Deserialize(r io.Reader) error {
	var h Header
	if err := h.Deserialize(r); err != nil {
		return err
	}

	d := obj.NewDeserializer(r)
	n := d.ReadUvarintAndCheck(0, MaxBlockTrxs)
	if d.Err != nil {
		return d.Err
	}

	var txs tx.Transactions
	if n > 0 {
		txs = make(tx.Transactions, n)
		for i := range txs {
			t := &tx.Transaction{}
			if err := t.Deserialize(r); err != nil {
				return xerr.Tracef(err, "transaction %d", i)
			}
			txs[i] = t
		}
	}

	*b = Block{Header: h, Transactions: txs}
	b.Seal()
	return nil
}

// MaxBlockTrxs bounds the decoder; chain params set the consensus limit.
const MaxBlockTrxs = 1 << 16

func (b *Block) Encode() []byte {
	return obj.MustEncode(b)
}

func DecodeBlock(bz []byte) (*Block, error) {
	b := &Block{}
	if err := obj.Decode(bz, b); err != nil {
		return nil, err
	}
	return b, nil
}

func DecodeHeader(bz []byte) (*Header, error) {
	h := &Header{}
	if err := obj.Decode(bz, h); err != nil {
		return nil, err
	}
	return h, nil
}
