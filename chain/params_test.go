package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultChainParams().Validate())
	require.NoError(t, RegtestChainParams().Validate())

	cases := []func(*ChainParams){
		func(p *ChainParams) { p.MaxBlockSize = 0 },
		func(p *ChainParams) { p.MaxBlockSize = MAX_BLOCK_SIZE + 1 },
		func(p *ChainParams) { p.MaxBlockTrxs = 0 },
		func(p *ChainParams) { p.TargetSpacing = 0 },
		func(p *ChainParams) { p.RetargetInterval = 0 },
		func(p *ChainParams) { p.MaxAdjustFactor = 0 },
		func(p *ChainParams) { p.MedianTimeSpan = 0 },
		func(p *ChainParams) { p.MaxFutureDrift = -1 },
		func(p *ChainParams) { p.PowLimitBits = 0 },
	}
	for i, mutate := range cases {
		p := DefaultChainParams()
		mutate(p)
		assert.Error(t, p.Validate(), "case %d", i)
	}
}

func TestReward(t *testing.T) {
	p := DefaultChainParams()
	p.HalvingInterval = 10

	assert.Equal(t, p.BlockReward, p.Reward(0))
	assert.Equal(t, p.BlockReward, p.Reward(9))
	assert.Equal(t, p.BlockReward/2, p.Reward(10))
	assert.Equal(t, p.BlockReward/4, p.Reward(25))
	assert.Equal(t, uint64(0), p.Reward(10*64))

	p.HalvingInterval = 0
	assert.Equal(t, p.BlockReward, p.Reward(1<<40))
}

func TestClone(t *testing.T) {
	p := DefaultChainParams()
	c := p.Clone()
	c.BlockReward = 1
	assert.NotEqual(t, p.BlockReward, c.BlockReward)
	assert.Equal(t, p.ExpectedTimespan(), int64(DEFAULT_RETARGET_INTERVAL*DEFAULT_TARGET_SPACING))
}
