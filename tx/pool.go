package tx

import (
	"container/list"
	"sync"

	"powchain/cfg"
	"powchain/ec"
	"powchain/util/log"
)

// TrxPool is an ordered in-memory pool for transactions before they are mined.
// Pooled transactions spend only outputs of the tip UTXO set and never
// conflict with each other.
type TrxPool struct {
	config *cfg.TrxPoolConfig

	mtx                   sync.Mutex
	cache                 *_TrxCache
	trxs                  *list.List // good trxs in arrival order
	index                 map[ec.Hash256]*list.Element
	spends                map[OutPoint]ec.Hash256
	counter               int64         // simple incrementing counter
	height                uint64        // the last block Update()'d to
	notifiedTrxsAvailable bool
	trxsAvailable         chan struct{} // fires once for each height, when the TrxPool is not empty

	logger log.Logger
}

// TrxPoolOption sets an optional parameter on the TrxPool.
type TrxPoolOption func(*TrxPool)

// NewTrxPool returns a new TrxPool with the given configuration.
func NewTrxPool(config *cfg.TrxPoolConfig, height uint64, options ...TrxPoolOption) *TrxPool {
	tp := &TrxPool{
		config: config,
		cache:  newTrxCache(config.CacheSize),
		trxs:   list.New(),
		index:  make(map[ec.Hash256]*list.Element),
		spends: make(map[OutPoint]ec.Hash256),
		height: height,
		logger: log.NewNopLogger(),
	}
	for _, option := range options {
		option(tp)
	}
	return tp
}

// EnableTrxsAvailable initializes the TrxsAvailable channel,
// ensuring it will trigger once every height when transactions are available.
// NOTE: not thread safe - should only be called once, on startup
func (tp *TrxPool) EnableTrxsAvailable() {
	tp.trxsAvailable = make(chan struct{}, 1)
}

// SetLogger sets the Logger.
func (tp *TrxPool) SetLogger(l log.Logger) {
	tp.logger = l
}

// Size returns the number of transactions in the TrxPool.
func (tp *TrxPool) Size() int {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()
	return tp.trxs.Len()
}

// Flush removes all transactions from the TrxPool and resets the cache.
func (tp *TrxPool) Flush() {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()

	tp.trxs.Init()
	tp.index = make(map[ec.Hash256]*list.Element)
	tp.spends = make(map[OutPoint]ec.Hash256)
	tp.cache.Reset()
}

func (tp *TrxPool) Has(hash ec.Hash256) bool {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()
	_, ok := tp.index[hash]
	return ok
}

func (tp *TrxPool) Get(hash ec.Hash256) (*Transaction, bool) {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()
	if e, ok := tp.index[hash]; ok {
		return e.Value.(*_PoolTrx).trx, true
	}
	return nil, false
}

// CheckAndPush validates a new transaction against view, the UTXO
// snapshot at the tip, and queues it if it is acceptable.
func (tp *TrxPool) CheckAndPush(t *Transaction, view *UtxoView, verifier ec.SigVerifier) error {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()
	return tp.checkAndPush(t, view, verifier)
}

func (tp *TrxPool) checkAndPush(t *Transaction, view *UtxoView, verifier ec.SigVerifier) error {
	if tp.trxs.Len() >= tp.config.Size {
		return ErrTrxPoolIsFull
	}

	if err := ValidateStructure(t); err != nil {
		return err
	}
	if t.IsCoinbase() {
		return newError(ErrMalformedTransaction, -1, "coinbase outside a block")
	}

	hash := t.Hash()
	if !tp.cache.Push(hash) {
		return ErrTxInCache
	}

	for i := range t.Inputs {
		if other, ok := tp.spends[t.Inputs[i].PrevOut]; ok {
			tp.cache.Remove(hash)
			return newError(ErrDoubleSpend, i, "outpoint %s already spent by pooled %s", t.Inputs[i].PrevOut, other.Short())
		}
	}

	if _, err := ValidateAgainstUtxo(t, view, verifier); err != nil {
		tp.cache.Remove(hash)
		return err
	}

	tp.counter++
	ptrx := &_PoolTrx{
		counter: tp.counter,
		height:  tp.height,
		trx:     t,
	}
	tp.index[hash] = tp.trxs.PushBack(ptrx)
	for i := range t.Inputs {
		tp.spends[t.Inputs[i].PrevOut] = hash
	}
	tp.logger.Debug("Added trx", "hash", hash.Short(), "size", tp.trxs.Len())
	tp.notifyTrxsAvailable()
	return nil
}

// TrxsAvailable returns a channel which fires once for every height,
// and only when transactions are available in the TrxPool.
// NOTE: the returned channel may be nil if EnableTrxsAvailable was not called.
func (tp *TrxPool) TrxsAvailable() <-chan struct{} {
	return tp.trxsAvailable
}

func (tp *TrxPool) notifyTrxsAvailable() {
	if tp.trxs.Len() == 0 {
		panic("notified trxs available but TrxPool is empty!")
	}
	if tp.trxsAvailable != nil && !tp.notifiedTrxsAvailable {
		// channel cap is 1, so this will send once
		tp.notifiedTrxsAvailable = true
		select {
		case tp.trxsAvailable <- struct{}{}:
		default:
		}
	}
}

// Reap returns transactions in arrival order.
// If maxTrxs is -1, there is no cap on the number of returned transactions.
func (tp *TrxPool) Reap(maxTrxs int) Transactions {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()

	if maxTrxs == 0 {
		return Transactions{}
	} else if maxTrxs < 0 || maxTrxs > tp.trxs.Len() {
		maxTrxs = tp.trxs.Len()
	}
	trxs := make(Transactions, 0, maxTrxs)
	for e := tp.trxs.Front(); e != nil && len(trxs) < maxTrxs; e = e.Next() {
		trxs = append(trxs, e.Value.(*_PoolTrx).trx)
	}
	return trxs
}

// Update informs the TrxPool that the given trxs were committed at height
// and can be discarded. Pooled trxs spending the same outputs are dropped.
// When rechecking is enabled and view is not nil, the rest is validated
// again against view and dropped on failure.
func (tp *TrxPool) Update(height uint64, included Transactions, view *UtxoView, verifier ec.SigVerifier) {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()

	tp.height = height
	tp.notifiedTrxsAvailable = false

	blockSpends := make(map[OutPoint]struct{})
	for _, t := range included {
		if e, ok := tp.index[t.Hash()]; ok {
			tp.removeElement(e)
		}
		if !t.IsCoinbase() {
			for i := range t.Inputs {
				blockSpends[t.Inputs[i].PrevOut] = struct{}{}
			}
		}
	}

	recheck := tp.config.Recheck && view != nil
	for e := tp.trxs.Front(); e != nil; {
		next := e.Next()
		t := e.Value.(*_PoolTrx).trx
		if conflicts(t, blockSpends) {
			tp.logger.Debug("Drop conflicting trx", "hash", t.Hash().Short())
			tp.removeElement(e)
		} else if recheck {
			if _, err := ValidateAgainstUtxo(t, view, verifier); err != nil {
				tp.logger.Debug("Drop trx on recheck", "hash", t.Hash().Short(), "err", err)
				tp.removeElement(e)
				tp.cache.Remove(t.Hash())
			}
		}
		e = next
	}

	if tp.trxs.Len() > 0 {
		tp.notifyTrxsAvailable()
	}
}

// Readd queues transactions of blocks that left the active chain.
// It returns how many were accepted again.
func (tp *TrxPool) Readd(trxs Transactions, view *UtxoView, verifier ec.SigVerifier) int {
	tp.mtx.Lock()
	defer tp.mtx.Unlock()

	n := 0
	for _, t := range trxs {
		if t.IsCoinbase() {
			continue
		}
		tp.cache.Remove(t.Hash())
		if err := tp.checkAndPush(t, view, verifier); err != nil {
			tp.logger.Debug("Trx not readded", "hash", t.Hash().Short(), "err", err)
			continue
		}
		n++
	}
	return n
}

func conflicts(t *Transaction, spends map[OutPoint]struct{}) bool {
	for i := range t.Inputs {
		if _, ok := spends[t.Inputs[i].PrevOut]; ok {
			return true
		}
	}
	return false
}

func (tp *TrxPool) removeElement(e *list.Element) {
	t := e.Value.(*_PoolTrx).trx
	tp.trxs.Remove(e)
	delete(tp.index, t.Hash())
	for i := range t.Inputs {
		delete(tp.spends, t.Inputs[i].PrevOut)
	}
}

// _PoolTrx is a transaction that passed validation
type _PoolTrx struct {
	counter int64  // a simple incrementing counter
	height  uint64 // height that this trx had been validated in
	trx     *Transaction
}

type _TrxCache struct {
	mtx  sync.Mutex
	size int
	dict map[ec.Hash256]struct{}
	list *list.List // to remove oldest trx when cache gets too big
}

// newTrxCache returns a new _TrxCache.
func newTrxCache(cacheSize int) *_TrxCache {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &_TrxCache{
		size: cacheSize,
		dict: make(map[ec.Hash256]struct{}, cacheSize),
		list: list.New(),
	}
}

// Reset resets the cache to an empty state.
func (cache *_TrxCache) Reset() {
	cache.mtx.Lock()
	cache.dict = make(map[ec.Hash256]struct{}, cache.size)
	cache.list.Init()
	cache.mtx.Unlock()
}

// Push adds the given hash to the cache and returns true. It returns false if
// it is already in the cache.
func (cache *_TrxCache) Push(hash ec.Hash256) bool {
	cache.mtx.Lock()
	defer cache.mtx.Unlock()

	if _, exists := cache.dict[hash]; exists {
		return false
	}

	if cache.list.Len() >= cache.size {
		popped := cache.list.Front()
		// NOTE: the hash may have already been removed from the map
		// but deleting a non-existent element is fine
		delete(cache.dict, popped.Value.(ec.Hash256))
		cache.list.Remove(popped)
	}
	cache.dict[hash] = struct{}{}
	cache.list.PushBack(hash)
	return true
}

// Remove removes the given hash from the cache.
func (cache *_TrxCache) Remove(hash ec.Hash256) {
	cache.mtx.Lock()
	delete(cache.dict, hash)
	cache.mtx.Unlock()
}
