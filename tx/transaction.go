package tx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"powchain/ec"
	"powchain/obj"
	"powchain/util"
)

const (
	// CoinbaseIndex marks the single input of a coinbase transaction.
	CoinbaseIndex uint32 = 0xffffffff

	MaxScriptSize    = 1024
	MaxScriptSigSize = 1024
	MaxSignatureSize = 1024
	MaxTxInputs      = 1 << 16
	MaxTxOutputs     = 1 << 16

	Coin     uint64 = 100000000
	MaxMoney uint64 = 21000000 * Coin
)

// OutPoint references one output of an earlier transaction.
type OutPoint struct {
	Hash  ec.Hash256
	Index uint32
}

func NewOutPoint(hash ec.Hash256, index uint32) OutPoint {
	return OutPoint{Hash: hash, Index: index}
}

// CoinbaseOutPoint is the null previous output carried by coinbase inputs.
func CoinbaseOutPoint() OutPoint {
	return OutPoint{Index: CoinbaseIndex}
}

func (op OutPoint) IsNull() bool {
	return op.Index == CoinbaseIndex && op.Hash.IsZero()
}

func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.Hash.Short(), op.Index)
}

type TxInput struct {
	PrevOut   OutPoint
	ScriptSig []byte
	Sequence  uint32
}

// TxOutput is locked by Script, an opaque predicate. With the secp256k1
// verifier the script is a compressed public key.
type TxOutput struct {
	Value  uint64
	Script []byte
}

type Transaction struct {
	Inputs    []TxInput
	Outputs   []TxOutput
	Timestamp int64
	// Signature is covered by the hash but not interpreted by consensus.
	Signature []byte

	_hash   ec.Hash256
	_sealed bool
}

func NewTransaction(inputs []TxInput, outputs []TxOutput, timestamp int64) *Transaction {
	t := &Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Timestamp: timestamp,
	}
	t.Seal()
	return t
}

// NewCoinbase creates the reward transaction of the block at height.
// The height is the prefix of the coinbase scriptsig, which makes every
// coinbase hash unique.
func NewCoinbase(height uint64, script []byte, value uint64, extra []byte) *Transaction {
	sig := make([]byte, 8, 8+len(extra))
	binary.BigEndian.PutUint64(sig, height)
	sig = append(sig, extra...)

	t := &Transaction{
		Inputs:  []TxInput{{PrevOut: CoinbaseOutPoint(), ScriptSig: sig}},
		Outputs: []TxOutput{{Value: value, Script: util.CloneBytes(script)}},
	}
	t.Seal()
	return t
}

func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsNull()
}

// CoinbaseHeight extracts the height committed to by a coinbase scriptsig.
func (t *Transaction) CoinbaseHeight() (uint64, bool) {
	if !t.IsCoinbase() || len(t.Inputs[0].ScriptSig) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(t.Inputs[0].ScriptSig), true
}

func (t *Transaction) serializeBody(s *obj.Serializer, withScriptSig bool) {
	s.WriteUvarint(uint64(len(t.Inputs)))
	for i := range t.Inputs {
		in := &t.Inputs[i]
		s.Write(in.PrevOut.Hash[:])
		s.WriteUint32(in.PrevOut.Index)
		if withScriptSig {
			s.WriteVariableBytes(in.ScriptSig)
		} else {
			s.WriteVariableBytes(nil)
		}
		s.WriteUint32(in.Sequence)
	}

	s.WriteUvarint(uint64(len(t.Outputs)))
	for i := range t.Outputs {
		out := &t.Outputs[i]
		s.WriteUint64(out.Value)
		s.WriteVariableBytes(out.Script)
	}

	s.WriteInt64(t.Timestamp)
	s.WriteVariableBytes(t.Signature)
}

func (t *Transaction) Serialize(w io.Writer) error {
	s := obj.NewSerializer(w)
	t.serializeBody(s, true)
	return s.Err
}

// Deserialize reads a transaction and seals it with the hash of what was read.
func (t *Transaction) Deserialize(r io.Reader) error {
	d := obj.NewDeserializer(r)

	nIn := d.ReadUvarintAndCheck(0, MaxTxInputs)
	var inputs []TxInput
	if d.Err == nil && nIn > 0 {
		inputs = make([]TxInput, nIn)
		for i := range inputs {
			in := &inputs[i]
			d.Read(in.PrevOut.Hash[:])
			in.PrevOut.Index = d.ReadUint32()
			in.ScriptSig = d.ReadVariableBytes(MaxScriptSigSize)
			in.Sequence = d.ReadUint32()
			if d.Err != nil {
				break
			}
		}
	}

	nOut := d.ReadUvarintAndCheck(0, MaxTxOutputs)
	var outputs []TxOutput
	if d.Err == nil && nOut > 0 {
		outputs = make([]TxOutput, nOut)
		for i := range outputs {
			out := &outputs[i]
			out.Value = d.ReadUint64()
			out.Script = d.ReadVariableBytes(MaxScriptSize)
			if d.Err != nil {
				break
			}
		}
	}

	timestamp := d.ReadInt64()
	signature := d.ReadVariableBytes(MaxSignatureSize)
	if d.Err != nil {
		return d.Err
	}

	*t = Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Timestamp: timestamp,
		Signature: signature,
	}
	t.Seal()
	return nil
}

func (t *Transaction) Encode() []byte {
	return obj.MustEncode(t)
}

func DecodeTransaction(bz []byte) (*Transaction, error) {
	t := &Transaction{}
	if err := obj.Decode(bz, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ComputeHash always recomputes the digest of the current contents.
func (t *Transaction) ComputeHash() ec.Hash256 {
	return ec.Sum256(t.Encode())
}

// Seal caches the hash of the current contents.
func (t *Transaction) Seal() ec.Hash256 {
	t._hash = t.ComputeHash()
	t._sealed = true
	return t._hash
}

// Hash returns the cached hash, sealing the transaction on first use.
func (t *Transaction) Hash() ec.Hash256 {
	if !t._sealed {
		return t.Seal()
	}
	return t._hash
}

// SigHash is the message every input signs: the encoding with all
// scriptsigs emptied.
func (t *Transaction) SigHash() ec.Hash256 {
	var buf bytes.Buffer
	s := obj.NewSerializer(&buf)
	t.serializeBody(s, false)
	util.AssertNoError(s.Err)
	return ec.Sum256(buf.Bytes())
}

// SignInputs signs input i with keys[i] and reseals the transaction.
func (t *Transaction) SignInputs(keys []ec.PrivKey) error {
	if len(keys) != len(t.Inputs) {
		return fmt.Errorf("tx: %d keys for %d inputs", len(keys), len(t.Inputs))
	}

	msg := t.SigHash()
	for i, key := range keys {
		sig, err := key.SignHash(msg)
		if err != nil {
			return err
		}
		t.Inputs[i].ScriptSig = util.CloneBytes(sig[:])
	}
	t.Seal()
	return nil
}

func (t *Transaction) OutputSum() (uint64, bool) {
	var sum uint64
	for _, out := range t.Outputs {
		if out.Value > MaxMoney || sum+out.Value < sum {
			return 0, false
		}
		sum += out.Value
	}
	return sum, sum <= MaxMoney
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Tx{%s in=%d out=%d}", t.Hash().Short(), len(t.Inputs), len(t.Outputs))
}

type Transactions []*Transaction

func (txs Transactions) Hashes() []ec.Hash256 {
	hashes := make([]ec.Hash256, len(txs))
	for i, t := range txs {
		hashes[i] = t.Hash()
	}
	return hashes
}
