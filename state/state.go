package state

import (
	"bytes"
	"fmt"
	"math/big"

	"powchain/block"
	"powchain/consensus"
	"powchain/ec"
	"powchain/genesis"
	"powchain/tx"

	"halftwo/mangos/vbs"
	"halftwo/mangos/xerr"
)

// ChainState describes the best block of the chain and owns the UTXO set
// at that block. It is mutated only by the chain while holding its write lock.
// NOTE: not goroutine-safe.
type ChainState struct {
	// Immutable
	ChainId string

	// Height=0 at genesis
	TipHash ec.Hash256
	Height  uint64
	Bits    uint32
	TipTime int64

	// Work is the sum of the work of every block up to the tip.
	Work *big.Int

	utxos *tx.UtxoSet
}

// NewChainState returns an empty state, before genesis.
func NewChainState(chainId string, utxos *tx.UtxoSet) *ChainState {
	if utxos == nil {
		utxos = tx.NewUtxoSet()
	}
	return &ChainState{
		ChainId: chainId,
		Work:    new(big.Int),
		utxos:   utxos,
	}
}

// MakeGenesisState creates the state right after the genesis block,
// whose coinbase is applied to a fresh UTXO set.
func MakeGenesisState(doc *genesis.Document, g *block.Block) *ChainState {
	cst := NewChainState(doc.ChainId, nil)
	uv := tx.NewUtxoView(cst.utxos)
	for _, t := range g.Transactions {
		tx.Apply(t, uv, 0)
	}
	uv.Commit(cst.utxos)
	cst.Advance(&g.Header, consensus.CalcWork(g.Bits))
	return cst
}

func (cst *ChainState) Utxos() *tx.UtxoSet {
	return cst.utxos
}

// SetUtxos replaces the UTXO set, used when loading from storage.
func (cst *ChainState) SetUtxos(utxos *tx.UtxoSet) {
	cst.utxos = utxos
}

// Advance moves the tip to h, which carries the given cumulative work.
func (cst *ChainState) Advance(h *block.Header, work *big.Int) {
	cst.TipHash = h.Hash()
	cst.Height = h.Height
	cst.Bits = h.Bits
	cst.TipTime = h.Timestamp
	cst.Work = new(big.Int).Set(work)
}

// Clone makes a copy of the ChainState for mutating, UTXO set included.
func (cst *ChainState) Clone() *ChainState {
	st2 := *cst
	st2.Work = new(big.Int).Set(cst.Work)
	if cst.utxos != nil {
		st2.utxos = cst.utxos.Clone()
	}
	return &st2
}

// Equal compares the persisted fields.
func (cst *ChainState) Equal(cst2 *ChainState) bool {
	return bytes.Equal(cst.Bytes(), cst2.Bytes())
}

func (cst *ChainState) String() string {
	return fmt.Sprintf("ChainState{%s #%d %s bits=%#08x work=%s}", cst.ChainId, cst.Height, cst.TipHash.Short(), cst.Bits, cst.Work)
}

type _Record struct {
	ChainId string
	TipHash []byte
	Height  int64
	Bits    int64
	TipTime int64
	Work    []byte
}

// Bytes serializes the ChainState, without the UTXO set, using vbs.
func (cst *ChainState) Bytes() []byte {
	rec := _Record{
		ChainId: cst.ChainId,
		TipHash: cst.TipHash[:],
		Height:  int64(cst.Height),
		Bits:    int64(cst.Bits),
		TipTime: cst.TipTime,
		Work:    cst.Work.Bytes(),
	}
	bz, err := vbs.Marshal(rec)
	if err != nil {
		panic(err)
	}
	return bz
}

// ChainStateFromBytes is the inverse of Bytes. The UTXO set is left empty.
func ChainStateFromBytes(bz []byte) (*ChainState, error) {
	rec := _Record{}
	if err := vbs.Unmarshal(bz, &rec); err != nil {
		return nil, xerr.Trace(err, "Could not unmarshal ChainState")
	}
	if len(rec.TipHash) != ec.HashSize {
		return nil, fmt.Errorf("ChainState: tip hash has %d bytes", len(rec.TipHash))
	}

	cst := NewChainState(rec.ChainId, nil)
	copy(cst.TipHash[:], rec.TipHash)
	cst.Height = uint64(rec.Height)
	cst.Bits = uint32(rec.Bits)
	cst.TipTime = rec.TipTime
	cst.Work.SetBytes(rec.Work)
	return cst, nil
}
