package tx

import (
	"io"

	"powchain/obj"
)

// BlockUndo holds one UndoEntry per transaction of a block, coinbase included.
type BlockUndo []UndoEntry

func (bu *BlockUndo) Serialize(w io.Writer) error {
	s := obj.NewSerializer(w)
	s.WriteUvarint(uint64(len(*bu)))
	for _, entry := range *bu {
		s.WriteUvarint(uint64(len(entry)))
		for i := range entry {
			so := &entry[i]
			s.Write(so.OutPoint.Hash[:])
			s.WriteUint32(so.OutPoint.Index)
			if s.Err == nil {
				s.SetError(so.Entry.Serialize(s.W))
			}
		}
	}
	return s.Err
}

func (bu *BlockUndo) Deserialize(r io.Reader) error {
	d := obj.NewDeserializer(r)
	n := d.ReadUvarintAndCheck(0, MaxTxInputs)
	var undo BlockUndo
	for k := uint64(0); d.Err == nil && k < n; k++ {
		m := d.ReadUvarintAndCheck(0, MaxTxInputs)
		var entry UndoEntry
		for j := uint64(0); d.Err == nil && j < m; j++ {
			var so SpentOutput
			d.Read(so.OutPoint.Hash[:])
			so.OutPoint.Index = d.ReadUint32()
			if d.Err == nil {
				d.SetError(so.Entry.Deserialize(d.R))
			}
			entry = append(entry, so)
		}
		undo = append(undo, entry)
	}
	if d.Err != nil {
		return d.Err
	}
	*bu = undo
	return nil
}
