package genesis

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"testing"

	"powchain/block"
	"powchain/chain"
	"powchain/consensus"
	"powchain/ec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBad(t *testing.T) {
	pub := randomPubKey()
	// test some bad ones from raw json
	testCases := [][]byte{
		[]byte{},                        // empty
		[]byte{1, 2, 3, 4, 5},           // junk
		[]byte(`{}`),                    // empty
		[]byte(`{"ChainId":"mychain"}`), // missing PayoutPubKey
		[]byte(`{"ChainId":"mychain","PayoutPubKey":"zz"}`),     // bad PayoutPubKey
		[]byte(`{"PayoutPubKey":"` + pub.String() + `"}`),       // missing ChainId
	}

	for _, testCase := range testCases {
		_, err := DocumentFromJson(testCase)
		assert.Error(t, err, "expected error for bad doc json %q", testCase)
	}
}

func TestGenesisGood(t *testing.T) {
	pub := randomPubKey()
	genDocBytes := []byte(`{"ChainId":"test-chain","ChainParams":null,"PayoutPubKey":"` + pub.String() + `"}`)
	doc, err := DocumentFromJson(genDocBytes)
	require.NoError(t, err, "expected no error for good doc json")
	assert.NotNil(t, doc.ChainParams, "expected chain params to be filled in")
	assert.NotZero(t, doc.GenesisTime)

	// create json with chain params filled
	genDocBytes, err = json.Marshal(doc)
	assert.NoError(t, err, "error marshalling doc")
	doc, err = DocumentFromJson(genDocBytes)
	assert.NoError(t, err, "expected no error for valid doc json")

	// test with invalid chain params
	doc.ChainParams.MaxBlockSize = 0
	genDocBytes, err = json.Marshal(doc)
	assert.NoError(t, err, "error marshalling doc")
	_, err = DocumentFromJson(genDocBytes)
	assert.Error(t, err, "expected error for doc json with block size of 0")
}

func TestGenesisBlock(t *testing.T) {
	doc := randomDocument()
	blk, err := doc.Seal(context.Background())
	require.NoError(t, err)

	assert.True(t, blk.IsGenesis())
	assert.Equal(t, doc.Nonce, blk.Nonce)
	require.NoError(t, block.ValidateGenesis(blk, doc.ChainParams))
	require.NoError(t, consensus.CheckProofOfWork(blk.Hash(), blk.Bits, doc.ChainParams.PowLimit()))

	// deterministic
	again, err := doc.Block(context.Background())
	require.NoError(t, err)
	assert.Equal(t, blk.Hash(), again.Hash())

	cb := blk.Coinbase()
	assert.Equal(t, doc.PayoutPubKey[:], cb.Outputs[0].Script)
	assert.Equal(t, doc.ChainParams.Reward(0), cb.Outputs[0].Value)
}

func TestGenesisSaveAs(t *testing.T) {
	tmpfile, err := ioutil.TempFile("", "genesis")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	doc := randomDocument()
	_, err = doc.Seal(context.Background())
	require.NoError(t, err)

	// save
	require.NoError(t, doc.SaveAs(tmpfile.Name()))
	stat, err := tmpfile.Stat()
	require.NoError(t, err)
	if stat.Size() <= 0 {
		t.Fatalf("SaveAs failed to write any bytes to %v", tmpfile.Name())
	}

	err = tmpfile.Close()
	require.NoError(t, err)

	// load
	doc2, err := DocumentFromFile(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, doc, doc2)

	_, err = DocumentFromFile(tmpfile.Name() + ".missing")
	assert.Error(t, err)
}

func randomPubKey() ec.PubKey {
	privkey := ec.NewPrivKey()
	return privkey.PubKey()
}

func randomDocument() *Document {
	return NewDocument("xyz", randomPubKey(), chain.RegtestChainParams())
}
