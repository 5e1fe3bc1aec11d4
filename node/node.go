package node

import (
	"context"
	"errors"
	"fmt"

	"powchain/block"
	"powchain/blockchain"
	"powchain/cfg"
	"powchain/consensus"
	"powchain/db"
	"powchain/ec"
	"powchain/genesis"
	"powchain/metrics"
	"powchain/mining"
	"powchain/store"
	"powchain/tx"
	"powchain/util/log"
	"powchain/version"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Node is the highest level interface to a full node.
// It wires the chain, the trx pool, the miner and the metrics exporter, and
// is what the network layer calls into.
type Node struct {
	// config
	config     *cfg.Config
	genesisDoc *genesis.Document

	store    store.Store
	chain    *blockchain.Blockchain
	trxPool  *tx.TrxPool
	pow      *consensus.ProofOfWork
	verifier ec.SigVerifier
	miner    *mining.Miner

	broadcaster Broadcaster
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	clock       clock.Clock

	logger log.Logger
}

type Option func(*Node)

func WithBroadcaster(b Broadcaster) Option {
	return func(n *Node) {
		n.broadcaster = b
	}
}

func WithClock(c clock.Clock) Option {
	return func(n *Node) {
		n.clock = c
	}
}

// WithGenesis uses doc instead of reading config.GenesisFile.
func WithGenesis(doc *genesis.Document) Option {
	return func(n *Node) {
		n.genesisDoc = doc
	}
}

// NewNode returns a new, ready to go, Node.
func NewNode(config *cfg.Config, logger log.Logger, options ...Option) (*Node, error) {
	n := &Node{
		config:      config,
		verifier:    ec.Secp256k1Verifier{},
		broadcaster: NopBroadcaster{},
		clock:       clock.NewDefaultClock(),
		logger:      logger,
	}
	for _, option := range options {
		option(n)
	}

	if n.genesisDoc == nil {
		doc, err := genesis.DocumentFromFile(config.GenesisFile)
		if err != nil {
			return nil, err
		}
		n.genesisDoc = doc
	}
	doc := n.genesisDoc

	payout := doc.PayoutPubKey
	if config.Mining.PayoutPubKey != "" {
		pk, err := ec.HexToPubKey(config.Mining.PayoutPubKey)
		if err != nil {
			return nil, fmt.Errorf("Mining.PayoutPubKey: %w", err)
		}
		payout = pk
	}

	kvdb, err := db.Open(config.DbBackend, config.DbPath, config.DbCache, config.DbHandles)
	if err != nil {
		return nil, err
	}
	n.store = store.NewKvStore(kvdb)

	n.metrics = metrics.NewMetrics(config.Metrics.Namespace)

	n.pow = consensus.NewProofOfWork(n.verifier,
		consensus.WithPayoutScript(payout[:]),
		consensus.WithCoinbaseExtra([]byte("powchain/"+version.Version)))
	n.pow.SetLogger(logger.With("module", "consensus"))

	n.chain, err = blockchain.NewBlockchain(n.store, doc, n.pow, n.verifier,
		blockchain.WithClock(n.clock),
		blockchain.WithLogger(logger))
	if err != nil {
		n.store.Close()
		return nil, err
	}

	n.registry = prometheus.NewRegistry()
	if err := n.metrics.Register(n.registry); err != nil {
		n.store.Close()
		return nil, err
	}
	n.registry.MustRegister(metrics.NewChainCollector(config.Metrics.Namespace, n.chain))

	n.trxPool = tx.NewTrxPool(config.TrxPool, n.chain.Height())
	n.trxPool.SetLogger(logger.With("module", "trxpool"))

	if config.Mining.Enabled {
		maxTrxs := config.Mining.MaxBlockTrxs
		if maxTrxs <= 0 || maxTrxs >= doc.ChainParams.MaxBlockTrxs {
			maxTrxs = doc.ChainParams.MaxBlockTrxs - 1
		}
		n.miner = mining.NewMiner(n.chain, n.pow, n.trxPool, maxTrxs,
			mining.WithClock(n.clock),
			mining.WithMetrics(n.metrics))
		n.miner.SetLogger(logger.With("module", "miner"))
		n.miner.OnBlock = func(blk *block.Block, outcome *blockchain.Outcome) {
			n.afterAccepted(outcome)
		}
	}
	return n, nil
}

// Run starts the miner and the metrics server, if enabled, and blocks
// until ctx is done or one of them fails.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Info("Starting Node", "version", version.Version, "chain", n.genesisDoc.ChainId, "height", n.chain.Height())

	g, gctx := errgroup.WithContext(ctx)
	if n.miner != nil {
		g.Go(func() error {
			return n.miner.Run(gctx)
		})
	}
	if n.config.Metrics.Enabled {
		srv, err := metrics.CreateMetricsServer(n.registry, n.config.Metrics.ListenAddr, n.logger.With("module", "metrics"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	n.logger.Info("Stopping Node")
	return err
}

func (n *Node) Close() {
	n.store.Close()
}

func (n *Node) Chain() *blockchain.Blockchain {
	return n.chain
}

func (n *Node) TrxPool() *tx.TrxPool {
	return n.trxPool
}

func (n *Node) GenesisDoc() *genesis.Document {
	return n.genesisDoc
}

func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

//------------------------------------------------------------------------------

// HandleNewBlock passes a block received from the network to the chain.
// Accepted blocks that move the tip are relayed.
func (n *Node) HandleNewBlock(blk *block.Block) (*blockchain.Outcome, error) {
	outcome, err := n.chain.AddBlock(blk)
	if err != nil {
		var ce *blockchain.ChainError
		if errors.As(err, &ce) {
			n.metrics.BlockRejected(ce.Kind.String())
		}
		return nil, err
	}
	n.afterAccepted(outcome)
	return outcome, nil
}

// afterAccepted brings the pool in line with the new tip and relays it.
func (n *Node) afterAccepted(outcome *blockchain.Outcome) {
	n.metrics.BlockAccepted(outcome.Kind.String(), len(outcome.Disconnected))
	if outcome.Kind == blockchain.ForkStored {
		return
	}

	var included, orphaned tx.Transactions
	for _, blk := range outcome.Connected {
		included = append(included, blk.Transactions...)
	}
	for _, blk := range outcome.Disconnected {
		orphaned = append(orphaned, blk.Transactions...)
	}

	n.chain.WithUtxos(func(view *tx.UtxoView, height uint64) error {
		n.trxPool.Update(height, included, view, n.verifier)
		if len(orphaned) > 0 {
			readded := n.trxPool.Readd(orphaned, view, n.verifier)
			n.logger.Info("Readded trxs of disconnected blocks", "count", readded)
		}
		return nil
	})
	n.metrics.PoolSize(n.trxPool.Size())

	if tip, ok := n.chain.BlockByHash(outcome.Hash); ok {
		n.broadcaster.BroadcastBlock(tip)
	}
}

// HandleNewTransaction validates t against the tip and queues it for the
// next block.
func (n *Node) HandleNewTransaction(t *tx.Transaction) error {
	err := n.chain.WithUtxos(func(view *tx.UtxoView, _ uint64) error {
		err := n.trxPool.CheckAndPush(t, view, n.verifier)
		if errors.Is(err, tx.ErrTxInCache) && !n.trxPool.Has(t.Hash()) {
			// seen before and no longer pooled, most likely committed
			if _, verr := tx.ValidateAgainstUtxo(t, view, n.verifier); verr != nil {
				return verr
			}
		}
		return err
	})
	n.metrics.TrxAdmitted(err == nil, n.trxPool.Size())
	if err != nil {
		return err
	}
	if n.config.TrxPool.Broadcast {
		n.broadcaster.BroadcastTransaction(t)
	}
	return nil
}

// HandleMessage dispatches a peer message and returns the replies for that
// peer. A block with an unknown parent is answered with a GetBlocks carrying
// our locator so the peer can fill the gap.
func (n *Node) HandleMessage(msg Message) ([]Message, error) {
	n.logger.Debug("Receive", "msg", msg)

	switch m := msg.(type) {
	case *NewBlockMsg:
		_, err := n.HandleNewBlock(m.Block)
		if blockchain.IsKind(err, blockchain.ErrUnknownParent) {
			return []Message{&GetBlocksMsg{Locator: n.locator()}}, nil
		}
		if blockchain.IsKind(err, blockchain.ErrDuplicateBlock) {
			return nil, nil
		}
		return nil, err

	case *NewTransactionMsg:
		err := n.HandleNewTransaction(m.Tx)
		if errors.Is(err, tx.ErrTxInCache) {
			return nil, nil
		}
		return nil, err

	case *GetBlocksMsg:
		var replies []Message
		for _, blk := range n.chain.BlocksAfter(m.Locator, MAX_BLOCKS_PER_REPLY) {
			replies = append(replies, &NewBlockMsg{Block: blk})
		}
		return replies, nil

	case *GetDataMsg:
		var replies []Message
		for _, hash := range m.Hashes {
			if blk, ok := n.chain.KnownBlock(hash); ok {
				replies = append(replies, &NewBlockMsg{Block: blk})
				continue
			}
			if t, ok := n.trxPool.Get(hash); ok {
				replies = append(replies, &NewTransactionMsg{Tx: t})
				continue
			}
			t, _, err := n.chain.GetTransaction(hash)
			if err != nil {
				return replies, err
			}
			if t != nil {
				replies = append(replies, &NewTransactionMsg{Tx: t})
			}
		}
		return replies, nil
	}
	return nil, fmt.Errorf("Unknown message type %T", msg)
}

// ReceiveMessage decodes a raw peer message, handles it and encodes the replies.
func (n *Node) ReceiveMessage(bz []byte) ([][]byte, error) {
	msg, err := DecodeMessage(bz)
	if err != nil {
		n.logger.Info("Error decoding message", "err", err, "size", len(bz))
		return nil, err
	}
	replies, err := n.HandleMessage(msg)
	out := make([][]byte, 0, len(replies))
	for _, r := range replies {
		rz, encErr := EncodeMessage(r)
		if encErr != nil {
			n.logger.Error("Could not encode reply", "msg", r, "err", encErr)
			continue
		}
		out = append(out, rz)
	}
	return out, err
}

func (n *Node) locator() []ec.Hash256 {
	locator := n.chain.BlockLocator()
	if len(locator) > MAX_HASHES_PER_MSG {
		locator = locator[:MAX_HASHES_PER_MSG]
	}
	return locator
}
