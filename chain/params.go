package chain

import (
	"fmt"
	"math/big"

	btcchain "github.com/btcsuite/btcd/blockchain"
)

const MAX_BLOCK_SIZE = 1024 * 1024 * 16
const MAX_BLOCK_TRXS = 1024 * 64

const (
	DEFAULT_BLOCK_REWARD      = 50 * 100000000
	DEFAULT_HALVING_INTERVAL  = 210000
	DEFAULT_TARGET_SPACING    = 60
	DEFAULT_RETARGET_INTERVAL = 2016
	DEFAULT_MAX_ADJUST_FACTOR = 4
	DEFAULT_MEDIAN_TIME_SPAN  = 11
	DEFAULT_MAX_FUTURE_DRIFT  = 2 * 60 * 60

	// DEFAULT_POW_LIMIT_BITS keeps a fresh network mineable on one CPU.
	DEFAULT_POW_LIMIT_BITS = 0x1f00ffff

	// REGTEST_POW_LIMIT_BITS lets about every second nonce succeed.
	REGTEST_POW_LIMIT_BITS = 0x207fffff
)

// ChainParams contains consensus critical parameters
// that determine the validity of blocks.
type ChainParams struct {
	// BlockReward is the coinbase subsidy at height 1, halved every
	// HalvingInterval blocks. A zero HalvingInterval disables halving.
	BlockReward     uint64
	HalvingInterval uint64

	// TargetSpacing is the desired number of seconds between blocks.
	TargetSpacing int64

	// The target is recomputed every RetargetInterval blocks, moving by
	// at most a factor of MaxAdjustFactor each time.
	RetargetInterval uint64
	MaxAdjustFactor  int64

	// PowLimitBits is the compact encoding of the easiest allowed target.
	// The genesis block uses it.
	PowLimitBits uint32

	// A timestamp must exceed the median of the last MedianTimeSpan
	// ancestors and be at most MaxFutureDrift seconds ahead of local time.
	MedianTimeSpan int
	MaxFutureDrift int64

	MaxBlockSize int
	MaxBlockTrxs int
}

// DefaultChainParams returns a default ChainParams.
func DefaultChainParams() *ChainParams {
	return &ChainParams{
		BlockReward:      DEFAULT_BLOCK_REWARD,
		HalvingInterval:  DEFAULT_HALVING_INTERVAL,
		TargetSpacing:    DEFAULT_TARGET_SPACING,
		RetargetInterval: DEFAULT_RETARGET_INTERVAL,
		MaxAdjustFactor:  DEFAULT_MAX_ADJUST_FACTOR,
		PowLimitBits:     DEFAULT_POW_LIMIT_BITS,
		MedianTimeSpan:   DEFAULT_MEDIAN_TIME_SPAN,
		MaxFutureDrift:   DEFAULT_MAX_FUTURE_DRIFT,
		MaxBlockSize:     1024 * 1024,
		MaxBlockTrxs:     1024 * 4,
	}
}

// RegtestChainParams has a trivial target and a short retarget window for tests.
func RegtestChainParams() *ChainParams {
	pms := DefaultChainParams()
	pms.PowLimitBits = REGTEST_POW_LIMIT_BITS
	pms.RetargetInterval = 8
	pms.HalvingInterval = 150
	pms.TargetSpacing = 10
	return pms
}

// Validate validates the ChainParams to ensure all values
// are within their allowed limits, and returns an error if they are not.
func (pms *ChainParams) Validate() error {
	if pms.MaxBlockSize <= 0 {
		return fmt.Errorf("MaxBlockSize must be greater than 0. Got %d", pms.MaxBlockSize)
	}
	if pms.MaxBlockSize > MAX_BLOCK_SIZE {
		return fmt.Errorf("MaxBlockSize (%d) is too big. Must not be greater than %d",
			pms.MaxBlockSize, MAX_BLOCK_SIZE)
	}
	if pms.MaxBlockTrxs <= 0 || pms.MaxBlockTrxs > MAX_BLOCK_TRXS {
		return fmt.Errorf("MaxBlockTrxs (%d) must be in (0, %d]", pms.MaxBlockTrxs, MAX_BLOCK_TRXS)
	}
	if pms.TargetSpacing <= 0 {
		return fmt.Errorf("TargetSpacing must be greater than 0. Got %d", pms.TargetSpacing)
	}
	if pms.RetargetInterval == 0 {
		return fmt.Errorf("RetargetInterval must be greater than 0")
	}
	if pms.MaxAdjustFactor < 1 {
		return fmt.Errorf("MaxAdjustFactor must be at least 1. Got %d", pms.MaxAdjustFactor)
	}
	if pms.MedianTimeSpan < 1 {
		return fmt.Errorf("MedianTimeSpan must be at least 1. Got %d", pms.MedianTimeSpan)
	}
	if pms.MaxFutureDrift < 0 {
		return fmt.Errorf("MaxFutureDrift must not be negative. Got %d", pms.MaxFutureDrift)
	}
	if pms.PowLimit().Sign() <= 0 {
		return fmt.Errorf("PowLimitBits (%#08x) does not encode a positive target", pms.PowLimitBits)
	}
	return nil
}

func (pms *ChainParams) Clone() *ChainParams {
	pms2 := *pms
	return &pms2
}

func (pms *ChainParams) PowLimit() *big.Int {
	return btcchain.CompactToBig(pms.PowLimitBits)
}

// Reward is the coinbase subsidy for a block at height.
func (pms *ChainParams) Reward(height uint64) uint64 {
	if pms.HalvingInterval == 0 {
		return pms.BlockReward
	}
	halvings := height / pms.HalvingInterval
	if halvings >= 64 {
		return 0
	}
	return pms.BlockReward >> halvings
}

// ExpectedTimespan is the number of seconds one retarget window should take.
func (pms *ChainParams) ExpectedTimespan() int64 {
	return int64(pms.RetargetInterval) * pms.TargetSpacing
}
