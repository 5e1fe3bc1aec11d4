package node

import (
	"fmt"

	"powchain/block"
	"powchain/ec"
	"powchain/tx"

	"halftwo/mangos/vbs"
	"halftwo/mangos/xerr"
)

type MessageCode byte

const (
	MSG_NEW_BLOCK       MessageCode = 0x01
	MSG_NEW_TRANSACTION MessageCode = 0x02
	MSG_GET_BLOCKS      MessageCode = 0x03
	MSG_GET_DATA        MessageCode = 0x04
)

const (
	MAX_MESSAGE_SIZE = 4 * 1024 * 1024

	// MAX_HASHES_PER_MSG bounds locators and GetData requests.
	MAX_HASHES_PER_MSG = 500

	// MAX_BLOCKS_PER_REPLY bounds the answer to GetBlocks.
	MAX_BLOCKS_PER_REPLY = 500
)

// Message is one of the variants exchanged with peers.
type Message interface {
	Code() MessageCode
	String() string
}

type NewBlockMsg struct {
	Block *block.Block
}

type NewTransactionMsg struct {
	Tx *tx.Transaction
}

// GetBlocksMsg asks for the active blocks after the first locator hash the
// receiver knows.
type GetBlocksMsg struct {
	Locator []ec.Hash256
}

// GetDataMsg asks for blocks or transactions by hash.
type GetDataMsg struct {
	Hashes []ec.Hash256
}

func (*NewBlockMsg) Code() MessageCode       { return MSG_NEW_BLOCK }
func (*NewTransactionMsg) Code() MessageCode { return MSG_NEW_TRANSACTION }
func (*GetBlocksMsg) Code() MessageCode      { return MSG_GET_BLOCKS }
func (*GetDataMsg) Code() MessageCode        { return MSG_GET_DATA }

func (m *NewBlockMsg) String() string {
	return fmt.Sprintf("[NewBlock %s]", m.Block)
}

func (m *NewTransactionMsg) String() string {
	return fmt.Sprintf("[NewTransaction %s]", m.Tx)
}

func (m *GetBlocksMsg) String() string {
	return fmt.Sprintf("[GetBlocks %d hashes]", len(m.Locator))
}

func (m *GetDataMsg) String() string {
	return fmt.Sprintf("[GetData %d hashes]", len(m.Hashes))
}

type _HashList struct {
	Hashes [][]byte
}

func encodeHashes(hashes []ec.Hash256) ([]byte, error) {
	if len(hashes) > MAX_HASHES_PER_MSG {
		return nil, fmt.Errorf("%d hashes, limit %d", len(hashes), MAX_HASHES_PER_MSG)
	}
	hl := _HashList{Hashes: make([][]byte, len(hashes))}
	for i := range hashes {
		hl.Hashes[i] = hashes[i][:]
	}
	return vbs.Marshal(hl)
}

func decodeHashes(bz []byte) ([]ec.Hash256, error) {
	hl := _HashList{}
	if err := vbs.Unmarshal(bz, &hl); err != nil {
		return nil, xerr.Trace(err, "Could not unmarshal hash list")
	}
	if len(hl.Hashes) > MAX_HASHES_PER_MSG {
		return nil, fmt.Errorf("%d hashes, limit %d", len(hl.Hashes), MAX_HASHES_PER_MSG)
	}
	hashes := make([]ec.Hash256, len(hl.Hashes))
	for i, h := range hl.Hashes {
		if len(h) != ec.HashSize {
			return nil, fmt.Errorf("hash %d has %d bytes", i, len(h))
		}
		copy(hashes[i][:], h)
	}
	return hashes, nil
}

// EncodeMessage writes the message code followed by the payload. Blocks
// and transactions use their canonical encoding.
func EncodeMessage(msg Message) ([]byte, error) {
	var payload []byte
	var err error
	switch m := msg.(type) {
	case *NewBlockMsg:
		payload = m.Block.Encode()
	case *NewTransactionMsg:
		payload = m.Tx.Encode()
	case *GetBlocksMsg:
		payload, err = encodeHashes(m.Locator)
	case *GetDataMsg:
		payload, err = encodeHashes(m.Hashes)
	default:
		return nil, fmt.Errorf("Unknown message type %T", msg)
	}
	if err != nil {
		return nil, err
	}
	if len(payload)+1 > MAX_MESSAGE_SIZE {
		return nil, fmt.Errorf("message of %d bytes exceeds %d", len(payload)+1, MAX_MESSAGE_SIZE)
	}
	return append([]byte{byte(msg.Code())}, payload...), nil
}

func DecodeMessage(bz []byte) (Message, error) {
	if len(bz) == 0 {
		return nil, fmt.Errorf("No data to decode")
	}
	if len(bz) > MAX_MESSAGE_SIZE {
		return nil, fmt.Errorf("message of %d bytes exceeds %d", len(bz), MAX_MESSAGE_SIZE)
	}

	payload := bz[1:]
	switch MessageCode(bz[0]) {
	case MSG_NEW_BLOCK:
		blk, err := block.DecodeBlock(payload)
		if err != nil {
			return nil, err
		}
		return &NewBlockMsg{Block: blk}, nil
	case MSG_NEW_TRANSACTION:
		t, err := tx.DecodeTransaction(payload)
		if err != nil {
			return nil, err
		}
		return &NewTransactionMsg{Tx: t}, nil
	case MSG_GET_BLOCKS:
		hashes, err := decodeHashes(payload)
		if err != nil {
			return nil, err
		}
		return &GetBlocksMsg{Locator: hashes}, nil
	case MSG_GET_DATA:
		hashes, err := decodeHashes(payload)
		if err != nil {
			return nil, err
		}
		return &GetDataMsg{Hashes: hashes}, nil
	}
	return nil, fmt.Errorf("Invalid MessageCode(%x)", bz[0])
}

// Broadcaster announces locally accepted blocks and transactions to peers.
type Broadcaster interface {
	BroadcastBlock(blk *block.Block)
	BroadcastTransaction(t *tx.Transaction)
}

type NopBroadcaster struct{}

var _ Broadcaster = NopBroadcaster{}

func (NopBroadcaster) BroadcastBlock(*block.Block)          {}
func (NopBroadcaster) BroadcastTransaction(*tx.Transaction) {}
