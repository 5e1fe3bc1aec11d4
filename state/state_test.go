package state

import (
	"context"
	"testing"

	"powchain/chain"
	"powchain/consensus"
	"powchain/ec"
	"powchain/genesis"
	"powchain/tx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisState(t *testing.T) {
	key := ec.NewPrivKey()
	doc := genesis.NewDocument("state-test", key.PubKey(), chain.RegtestChainParams())
	g, err := doc.Seal(context.Background())
	require.NoError(t, err)

	cst := MakeGenesisState(doc, g)
	assert.Equal(t, g.Hash(), cst.TipHash)
	assert.Equal(t, uint64(0), cst.Height)
	assert.Equal(t, consensus.CalcWork(g.Bits), cst.Work)

	e, ok := cst.Utxos().Get(tx.NewOutPoint(g.Transactions[0].Hash(), 0))
	require.True(t, ok)
	assert.Equal(t, doc.ChainParams.Reward(0), e.Output.Value)

	// round trip without the utxo set
	decoded, err := ChainStateFromBytes(cst.Bytes())
	require.NoError(t, err)
	assert.True(t, cst.Equal(decoded))
	assert.Equal(t, cst.Work, decoded.Work)
	assert.Equal(t, 0, decoded.Utxos().Len())

	// clone is independent
	c := cst.Clone()
	c.Work.SetInt64(1)
	c.Utxos().Delete(tx.NewOutPoint(g.Transactions[0].Hash(), 0))
	assert.Equal(t, 1, cst.Utxos().Len())
	assert.False(t, cst.Equal(c))

	_, err = ChainStateFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
