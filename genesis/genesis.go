package genesis

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"powchain/block"
	"powchain/chain"
	"powchain/consensus"
	"powchain/ec"
	"powchain/tx"

	"halftwo/mangos/xerr"
)

// Document defines the initial conditions for a blockchain: its consensus
// parameters and the block at height 0.
type Document struct {
	ChainId     string
	GenesisTime int64

	// PayoutPubKey receives the genesis coinbase.
	PayoutPubKey ec.PubKey
	Message      string

	// Nonce is where the genesis search starts. After the first search it
	// is the solution, which makes loading instant.
	Nonce uint64

	ChainParams *chain.ChainParams
}

// SaveAs is a utility method for saving Document as a JSON file.
func (doc *Document) SaveAs(file string) error {
	bz, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(file, bz, 0644)
}

// ValidateAndComplete checks that all necessary fields are present
// and fills in defaults for optional fields left empty
func (doc *Document) ValidateAndComplete() error {
	if doc.ChainId == "" {
		return fmt.Errorf("Genesis doc must include non-empty ChainId")
	}

	if doc.ChainParams == nil {
		doc.ChainParams = chain.DefaultChainParams()
	} else {
		if err := doc.ChainParams.Validate(); err != nil {
			return err
		}
	}

	if doc.PayoutPubKey.IsZero() {
		return fmt.Errorf("The genesis file must have a payout pubkey")
	}

	if doc.GenesisTime == 0 {
		doc.GenesisTime = time.Now().Unix()
	}

	return nil
}

// Block builds the genesis block and searches its nonce, starting from
// doc.Nonce. The result is deterministic for a given document.
func (doc *Document) Block(ctx context.Context) (*block.Block, error) {
	params := doc.ChainParams
	cb := tx.NewCoinbase(0, doc.PayoutPubKey[:], params.Reward(0), []byte(doc.ChainId+"|"+doc.Message))
	blk := block.NewBlock(block.Header{
		Version:   block.CurrentVersion,
		Height:    0,
		Timestamp: doc.GenesisTime,
		Bits:      params.PowLimitBits,
		Nonce:     doc.Nonce,
	}, tx.Transactions{cb})

	pow := consensus.NewProofOfWork(nil)
	if err := pow.Mine(ctx, blk); err != nil {
		return nil, err
	}
	if err := block.ValidateGenesis(blk, params); err != nil {
		return nil, err
	}
	return blk, nil
}

// Seal mines the genesis block and records its nonce in the document.
func (doc *Document) Seal(ctx context.Context) (*block.Block, error) {
	blk, err := doc.Block(ctx)
	if err != nil {
		return nil, err
	}
	doc.Nonce = blk.Nonce
	return blk, nil
}

//------------------------------------------------------------
// Make genesis state from file

// DocumentFromJson unmarshalls JSON data into a Document.
func DocumentFromJson(jsonBlob []byte) (*Document, error) {
	doc := Document{}
	err := json.Unmarshal(jsonBlob, &doc)
	if err != nil {
		return nil, err
	}

	if err := doc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &doc, err
}

// DocumentFromFile reads JSON data from a file and unmarshalls it into a Document.
func DocumentFromFile(docFile string) (*Document, error) {
	jsonBlob, err := ioutil.ReadFile(docFile)
	if err != nil {
		return nil, xerr.Trace(err, "Couldn't read genesis Document file")
	}
	doc, err := DocumentFromJson(jsonBlob)
	if err != nil {
		return nil, xerr.Tracef(err, "Error reading genesis Document at %v", docFile)
	}
	return doc, nil
}

// NewDocument returns a document for a fresh chain paying to payout.
func NewDocument(chainId string, payout ec.PubKey, params *chain.ChainParams) *Document {
	return &Document{
		ChainId:      chainId,
		GenesisTime:  time.Now().Unix(),
		PayoutPubKey: payout,
		ChainParams:  params,
	}
}
