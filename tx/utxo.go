package tx

import (
	"io"
	"sort"

	"powchain/obj"
	"powchain/util"
)

// UtxoEntry is an unspent output together with where it was created.
type UtxoEntry struct {
	Output   TxOutput
	Height   uint64
	Coinbase bool
}

func (e *UtxoEntry) Serialize(w io.Writer) error {
	s := obj.NewSerializer(w)
	s.WriteUint64(e.Output.Value)
	s.WriteVariableBytes(e.Output.Script)
	s.WriteUint64(e.Height)
	if e.Coinbase {
		s.WriteByte(1)
	} else {
		s.WriteByte(0)
	}
	return s.Err
}

func (e *UtxoEntry) Deserialize(r io.Reader) error {
	d := obj.NewDeserializer(r)
	e.Output.Value = d.ReadUint64()
	e.Output.Script = d.ReadVariableBytes(MaxScriptSize)
	e.Height = d.ReadUint64()
	e.Coinbase = d.ReadByte() != 0
	return d.Err
}

// UtxoReader is the read side shared by the live set and overlay views.
type UtxoReader interface {
	Get(op OutPoint) (UtxoEntry, bool)
}

// UtxoSet is the live set of unspent outputs at the chain tip.
// It is not safe for concurrent mutation; the chain lock guards it.
type UtxoSet struct {
	dict map[OutPoint]UtxoEntry
}

var _ UtxoReader = (*UtxoSet)(nil)

func NewUtxoSet() *UtxoSet {
	return &UtxoSet{dict: make(map[OutPoint]UtxoEntry)}
}

func (us *UtxoSet) Get(op OutPoint) (UtxoEntry, bool) {
	e, ok := us.dict[op]
	return e, ok
}

func (us *UtxoSet) Put(op OutPoint, e UtxoEntry) {
	us.dict[op] = e
}

func (us *UtxoSet) Delete(op OutPoint) {
	delete(us.dict, op)
}

func (us *UtxoSet) Len() int {
	return len(us.dict)
}

// ForEach visits entries in OutPoint order until fn returns false.
func (us *UtxoSet) ForEach(fn func(op OutPoint, e UtxoEntry) bool) {
	ops := make([]OutPoint, 0, len(us.dict))
	for op := range us.dict {
		ops = append(ops, op)
	}
	SortOutPoints(ops)
	for _, op := range ops {
		if !fn(op, us.dict[op]) {
			return
		}
	}
}

func (us *UtxoSet) Clone() *UtxoSet {
	c := &UtxoSet{dict: make(map[OutPoint]UtxoEntry, len(us.dict))}
	for op, e := range us.dict {
		c.dict[op] = e
	}
	return c
}

// Balance sums the values of outputs locked by script.
func (us *UtxoSet) Balance(script []byte) uint64 {
	var sum uint64
	for _, e := range us.dict {
		if string(e.Output.Script) == string(script) {
			sum += e.Output.Value
		}
	}
	return sum
}

func SortOutPoints(ops []OutPoint) {
	sort.Slice(ops, func(i, j int) bool {
		if c := ops[i].Hash.Compare(ops[j].Hash); c != 0 {
			return c < 0
		}
		return ops[i].Index < ops[j].Index
	})
}

// UtxoView is a copy-on-write overlay on top of a UtxoReader. Nothing
// reaches the base until Commit.
//
// Keys of added never exist in the base. The removed map hides base
// entries; its value is true when the output was spent by a transaction
// and false when it was taken out by a rollback.
type UtxoView struct {
	base    UtxoReader
	added   map[OutPoint]UtxoEntry
	removed map[OutPoint]bool
}

var _ UtxoReader = (*UtxoView)(nil)

func NewUtxoView(base UtxoReader) *UtxoView {
	return &UtxoView{
		base:    base,
		added:   make(map[OutPoint]UtxoEntry),
		removed: make(map[OutPoint]bool),
	}
}

func (v *UtxoView) Get(op OutPoint) (UtxoEntry, bool) {
	if _, ok := v.removed[op]; ok {
		return UtxoEntry{}, false
	}
	if e, ok := v.added[op]; ok {
		return e, true
	}
	return v.base.Get(op)
}

// IsSpent reports whether op was consumed by a transaction applied to this view.
func (v *UtxoView) IsSpent(op OutPoint) bool {
	return v.removed[op]
}

func (v *UtxoView) remove(op OutPoint, spent bool) (UtxoEntry, bool) {
	e, ok := v.Get(op)
	if !ok {
		return UtxoEntry{}, false
	}
	delete(v.added, op)
	v.removed[op] = spent
	return e, true
}

// Spend consumes op. It returns false if op is not available.
func (v *UtxoView) Spend(op OutPoint) (UtxoEntry, bool) {
	return v.remove(op, true)
}

// Add makes op available. Adding an output that is already unspent is
// a caller error and panics.
func (v *UtxoView) Add(op OutPoint, e UtxoEntry) {
	_, exists := v.Get(op)
	util.Assert(!exists)

	if _, ok := v.removed[op]; ok {
		delete(v.removed, op)
		if _, inBase := v.base.Get(op); inBase {
			return
		}
	}
	v.added[op] = e
}

// UtxoDiff is the net change a view would make to its base.
type UtxoDiff struct {
	Added   map[OutPoint]UtxoEntry
	Removed []OutPoint
}

func (d *UtxoDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

func (v *UtxoView) Changes() *UtxoDiff {
	diff := &UtxoDiff{Added: make(map[OutPoint]UtxoEntry, len(v.added))}
	for op, e := range v.added {
		diff.Added[op] = e
	}
	for op := range v.removed {
		if _, ok := v.base.Get(op); ok {
			diff.Removed = append(diff.Removed, op)
		}
	}
	SortOutPoints(diff.Removed)
	return diff
}

// ApplyDiff writes a diff to the live set.
func (us *UtxoSet) ApplyDiff(diff *UtxoDiff) {
	for _, op := range diff.Removed {
		us.Delete(op)
	}
	for op, e := range diff.Added {
		us.Put(op, e)
	}
}

// Commit writes the view's changes into set, which must be the view's base.
func (v *UtxoView) Commit(set *UtxoSet) {
	set.ApplyDiff(v.Changes())
	v.added = make(map[OutPoint]UtxoEntry)
	v.removed = make(map[OutPoint]bool)
}
