package block

import (
	"fmt"

	"powchain/ec"
	"powchain/merkle"
	"powchain/tx"
)

const HeaderSize = 4 + 8 + 32 + 32 + 8 + 4 + 8

const CurrentVersion = 1

type Header struct {
	Version    uint32     // 4
	Height     uint64     // 8
	PrevHash   ec.Hash256 // 32
	MerkleRoot ec.Hash256 // 32
	Timestamp  int64      // 8
	Bits       uint32     // 4, compact target
	Nonce      uint64     // 8
}

// Hash is the proof-of-work hash of the header.
func (h *Header) Hash() ec.Hash256 {
	var buf [HeaderSize]byte
	h.encodeTo(buf[:])
	return ec.Sum256(buf[:])
}

func (h *Header) IsGenesis() bool {
	return h.Height == 0 && h.PrevHash.IsZero()
}

type Block struct {
	Header
	Transactions tx.Transactions

	_hash   ec.Hash256
	_sealed bool
}

// NewBlock computes the Merkle root over txs and seals the block.
func NewBlock(header Header, txs tx.Transactions) *Block {
	blk := &Block{Header: header, Transactions: txs}
	blk.MerkleRoot = MerkleRoot(txs)
	blk.Seal()
	return blk
}

// Seal caches the hash of the current header.
func (b *Block) Seal() ec.Hash256 {
	b._hash = b.Header.Hash()
	b._sealed = true
	return b._hash
}

// Hash returns the cached hash, sealing the block on first use.
func (b *Block) Hash() ec.Hash256 {
	if !b._sealed {
		return b.Seal()
	}
	return b._hash
}

// Coinbase returns the first transaction, or nil for an empty block.
func (b *Block) Coinbase() *tx.Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// Size is the length of the canonical encoding.
func (b *Block) Size() int {
	return len(b.Encode())
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{#%d %s txs=%d}", b.Height, b.Hash().Short(), len(b.Transactions))
}

// MerkleRoot commits to the transaction hashes in block order.
func MerkleRoot(txs tx.Transactions) ec.Hash256 {
	return merkle.RootFromHashes(txs.Hashes())
}
