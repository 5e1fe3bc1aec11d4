package consensus

import (
	"context"
	"errors"
	"math/big"

	"powchain/block"
	"powchain/chain"
	"powchain/ec"
	"powchain/tx"
	"powchain/util"
	"powchain/util/log"

	btcchain "github.com/btcsuite/btcd/blockchain"
)

const DEFAULT_POLL_INTERVAL = 1 << 12

var ErrMiningCancelled = errors.New("consensus: mining cancelled")

// ProofOfWork accepts a block when its header hash, read as a big-endian
// integer, is below the target encoded in the header bits.
type ProofOfWork struct {
	verifier ec.SigVerifier
	payout   []byte
	extra    []byte

	// PollInterval is how many nonces Mine tries between checks of its context.
	PollInterval uint64

	logger log.Logger
}

var _ Validator = (*ProofOfWork)(nil)

type Option func(*ProofOfWork)

// WithPayoutScript sets the script coinbase outputs of candidates pay to.
func WithPayoutScript(script []byte) Option {
	return func(pow *ProofOfWork) {
		pow.payout = util.CloneBytes(script)
	}
}

// WithCoinbaseExtra appends data after the height in candidate coinbases.
func WithCoinbaseExtra(extra []byte) Option {
	return func(pow *ProofOfWork) {
		pow.extra = util.CloneBytes(extra)
	}
}

func WithPollInterval(n uint64) Option {
	return func(pow *ProofOfWork) {
		pow.PollInterval = n
	}
}

func NewProofOfWork(verifier ec.SigVerifier, options ...Option) *ProofOfWork {
	pow := &ProofOfWork{
		verifier:     verifier,
		PollInterval: DEFAULT_POLL_INTERVAL,
		logger:       log.NewNopLogger(),
	}
	for _, option := range options {
		option(pow)
	}
	if pow.PollInterval == 0 {
		pow.PollInterval = 1
	}
	return pow
}

func (pow *ProofOfWork) SetLogger(l log.Logger) {
	pow.logger = l
}

func (pow *ProofOfWork) Name() string {
	return "pow"
}

// CompactToTarget decodes header bits.
func CompactToTarget(bits uint32) *big.Int {
	return btcchain.CompactToBig(bits)
}

func TargetToCompact(target *big.Int) uint32 {
	return btcchain.BigToCompact(target)
}

// CalcWork is the expected number of hashes to meet bits: 2^256 / (target+1).
func CalcWork(bits uint32) *big.Int {
	return btcchain.CalcWork(bits)
}

// CheckProofOfWork validates bits against the limit and hash against bits.
func CheckProofOfWork(hash ec.Hash256, bits uint32, powLimit *big.Int) error {
	target := CompactToTarget(bits)
	if target.Sign() <= 0 {
		return block.NewError(block.ErrInvalidProofOfWork, hash, "bits %#08x encode a non-positive target", bits)
	}
	if target.Cmp(powLimit) > 0 {
		return block.NewError(block.ErrInvalidProofOfWork, hash, "target above the limit")
	}
	if hash.Big().Cmp(target) >= 0 {
		return block.NewError(block.ErrInvalidProofOfWork, hash, "hash not below target %#08x", bits)
	}
	return nil
}

func (pow *ProofOfWork) ValidateBlock(blk *block.Block, view ChainView) error {
	params := view.Params()
	hash := blk.Hash()

	var want uint32
	if blk.IsGenesis() {
		want = params.PowLimitBits
	} else {
		parent, ok := view.Header(blk.PrevHash)
		if !ok {
			return block.NewError(block.ErrInvalidPreviousHash, hash, "parent %s unknown", blk.PrevHash.Short())
		}
		want = NextBits(view, parent)
	}
	if blk.Bits != want {
		return block.NewError(block.ErrUnexpectedDifficulty, hash, "bits %#08x, expected %#08x", blk.Bits, want)
	}

	return CheckProofOfWork(hash, blk.Bits, params.PowLimit())
}

// NextBits is the difficulty a child of parent must carry.
//
// Every RetargetInterval blocks the target is scaled by the time the last
// window took over the time it should have taken. The ratio is clamped to
// MaxAdjustFactor in either direction and the result capped at the limit.
func NextBits(view ChainView, parent *block.Header) uint32 {
	params := view.Params()
	next := parent.Height + 1
	if next%params.RetargetInterval != 0 {
		return parent.Bits
	}

	first, ok := view.Ancestor(parent.Hash(), next-params.RetargetInterval)
	if !ok {
		return parent.Bits
	}
	return Retarget(params, parent.Bits, parent.Timestamp-first.Timestamp)
}

// Retarget scales the target of oldBits by actual over expected seconds.
func Retarget(params *chain.ChainParams, oldBits uint32, actual int64) uint32 {
	expected := params.ExpectedTimespan()
	min := expected / params.MaxAdjustFactor
	max := expected * params.MaxAdjustFactor
	if actual < min {
		actual = min
	} else if actual > max {
		actual = max
	}

	target := CompactToTarget(oldBits)
	target.Mul(target, big.NewInt(actual))
	target.Div(target, big.NewInt(expected))

	limit := params.PowLimit()
	if target.Cmp(limit) > 0 {
		target = limit
	}
	if target.Sign() <= 0 {
		target = big.NewInt(1)
	}
	return TargetToCompact(target)
}

// Mine searches nonces on a copy of the header. blk is only written, and
// resealed, once a solution is found. The context is polled every
// PollInterval nonces; when it is done Mine returns ErrMiningCancelled.
func (pow *ProofOfWork) Mine(ctx context.Context, blk *block.Block) error {
	target := CompactToTarget(blk.Bits)
	if target.Sign() <= 0 || target.BitLen() > 8*ec.HashSize {
		return block.NewError(block.ErrInvalidProofOfWork, blk.Hash(), "bits %#08x encode a target out of range", blk.Bits)
	}
	limit := ec.BytesToHash256(target.Bytes())

	h := blk.Header
	start := h.Nonce
	for i := uint64(0); ; i++ {
		if i%pow.PollInterval == 0 {
			select {
			case <-ctx.Done():
				return ErrMiningCancelled
			default:
			}
		}

		if h.Hash().Compare(limit) < 0 {
			blk.Header = h
			blk.Seal()
			pow.logger.Debug("Found nonce", "height", h.Height, "nonce", h.Nonce, "tries", i+1)
			return nil
		}

		h.Nonce++
		if h.Nonce == start {
			// nonce space exhausted for this timestamp
			h.Timestamp++
		}
	}
}

func (pow *ProofOfWork) CreateCandidate(view ChainView, pending tx.Transactions) (*block.Block, error) {
	params := view.Params()
	tip := view.Tip()
	height := tip.Height + 1

	reserved := block.HeaderSize + 16
	coinbase := tx.NewCoinbase(height, pow.payout, 0, pow.extra)
	reserved += len(coinbase.Encode()) + 16

	uv := tx.NewUtxoView(view.Utxos())
	included := make(tx.Transactions, 0, len(pending))
	var fees uint64
	size := reserved
	for _, t := range pending {
		// the coinbase takes one of the MaxBlockTrxs slots
		if len(included)+1 >= params.MaxBlockTrxs {
			break
		}
		if t.IsCoinbase() {
			continue
		}
		if err := tx.ValidateStructure(t); err != nil {
			continue
		}
		tsize := len(t.Encode())
		if size+tsize > params.MaxBlockSize {
			continue
		}
		fee, err := tx.ValidateAgainstUtxo(t, uv, pow.verifier)
		if err != nil {
			pow.logger.Debug("Skip pending trx", "hash", t.Hash().Short(), "err", err)
			continue
		}
		tx.Apply(t, uv, height)
		included = append(included, t)
		fees += fee
		size += tsize
	}

	coinbase = tx.NewCoinbase(height, pow.payout, params.Reward(height)+fees, pow.extra)

	timestamp := view.Now().Unix()
	median := block.MedianTime(RecentTimestamps(view, tip.Hash(), params.MedianTimeSpan))
	if timestamp <= median {
		timestamp = median + 1
	}

	header := block.Header{
		Version:   block.CurrentVersion,
		Height:    height,
		PrevHash:  tip.Hash(),
		Timestamp: timestamp,
		Bits:      NextBits(view, tip),
		Nonce:     util.RandomUint64(),
	}
	return block.NewBlock(header, append(tx.Transactions{coinbase}, included...)), nil
}
