// Package mining runs the local block producer.
package mining

import (
	"context"
	"errors"
	"time"

	"powchain/block"
	"powchain/blockchain"
	"powchain/consensus"
	"powchain/metrics"
	"powchain/tx"
	"powchain/util/log"

	"github.com/lightningnetwork/lnd/clock"
)

const DEFAULT_RETRY_DELAY = time.Second

type Chain interface {
	CreateCandidate(pending tx.Transactions) (*block.Block, <-chan struct{}, error)
	AddMinedBlock(blk *block.Block) (*blockchain.Outcome, error)
}

// Sealer searches the proof for a candidate, see consensus.ProofOfWork.Mine.
type Sealer interface {
	Mine(ctx context.Context, blk *block.Block) error
}

type Pending interface {
	Reap(maxTrxs int) tx.Transactions
}

// Miner builds a candidate on the tip, seals it without holding the chain
// lock and submits it. A tip change cancels the search and starts over.
type Miner struct {
	chain   Chain
	sealer  Sealer
	pending Pending
	maxTrxs int

	// OnBlock is called for every mined block the chain accepted.
	OnBlock func(blk *block.Block, outcome *blockchain.Outcome)

	clock      clock.Clock
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     log.Logger
}

type Option func(*Miner)

func WithClock(c clock.Clock) Option {
	return func(m *Miner) {
		m.clock = c
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(m *Miner) {
		m.retryDelay = d
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Miner) {
		m.metrics = mt
	}
}

func NewMiner(chain Chain, sealer Sealer, pending Pending, maxTrxs int, options ...Option) *Miner {
	m := &Miner{
		chain:      chain,
		sealer:     sealer,
		pending:    pending,
		maxTrxs:    maxTrxs,
		clock:      clock.NewDefaultClock(),
		retryDelay: DEFAULT_RETRY_DELAY,
		logger:     log.NewNopLogger(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

func (m *Miner) SetLogger(l log.Logger) {
	m.logger = l
}

// Run mines until ctx is done. It returns nil on cancellation.
func (m *Miner) Run(ctx context.Context) error {
	m.logger.Info("Miner started")
	defer m.logger.Info("Miner stopped")

	for ctx.Err() == nil {
		blk, err := m.MineOne(ctx)
		switch {
		case err == nil:
			m.logger.Info("Mined block", "hash", blk.Hash().Short(), "height", blk.Height, "trxs", len(blk.Transactions))
		case errors.Is(err, consensus.ErrMiningCancelled), blockchain.IsKind(err, blockchain.ErrStaleCandidate):
			m.metrics.Stale()
		default:
			m.logger.Error("Mining failed", "err", err)
			select {
			case <-m.clock.TickAfter(m.retryDelay):
			case <-ctx.Done():
			}
		}
	}
	return nil
}

// MineOne produces at most one block. It returns consensus.ErrMiningCancelled
// when the tip moved or ctx ended before a solution was found.
func (m *Miner) MineOne(ctx context.Context) (*block.Block, error) {
	var pending tx.Transactions
	if m.pending != nil {
		pending = m.pending.Reap(m.maxTrxs)
	}

	blk, tipChanged, err := m.chain.CreateCandidate(pending)
	if err != nil {
		return nil, err
	}

	mctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-tipChanged:
			cancel()
		case <-mctx.Done():
		}
	}()

	if err := m.sealer.Mine(mctx, blk); err != nil {
		return nil, err
	}

	outcome, err := m.chain.AddMinedBlock(blk)
	if err != nil {
		return nil, err
	}
	m.metrics.Mined()
	if m.OnBlock != nil {
		m.OnBlock(blk, outcome)
	}
	return blk, nil
}
