package consensus

import (
	"context"
	"math/big"
	"testing"
	"time"

	"powchain/block"
	"powchain/chain"
	"powchain/ec"
	"powchain/tx"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	params  *chain.ChainParams
	headers map[ec.Hash256]*block.Header
	tip     *block.Header
	utxos   *tx.UtxoSet
	clock   *clock.TestClock
}

var _ ChainView = (*fakeView)(nil)

func newFakeView(params *chain.ChainParams, start time.Time) *fakeView {
	return &fakeView{
		params:  params,
		headers: make(map[ec.Hash256]*block.Header),
		utxos:   tx.NewUtxoSet(),
		clock:   clock.NewTestClock(start),
	}
}

func (v *fakeView) Params() *chain.ChainParams { return v.params }
func (v *fakeView) Tip() *block.Header         { return v.tip }
func (v *fakeView) Utxos() tx.UtxoReader       { return v.utxos }
func (v *fakeView) Now() time.Time             { return v.clock.Now() }

func (v *fakeView) Header(hash ec.Hash256) (*block.Header, bool) {
	h, ok := v.headers[hash]
	return h, ok
}

func (v *fakeView) Ancestor(hash ec.Hash256, height uint64) (*block.Header, bool) {
	h, ok := v.headers[hash]
	for ok && h.Height > height {
		h, ok = v.headers[h.PrevHash]
	}
	if !ok || h.Height != height {
		return nil, false
	}
	return h, true
}

// connect records blk as the new tip and applies it to the utxo set.
func (v *fakeView) connect(blk *block.Block) {
	h := blk.Header
	v.headers[blk.Hash()] = &h
	v.tip = &h
	uv := tx.NewUtxoView(v.utxos)
	for _, t := range blk.Transactions {
		tx.Apply(t, uv, blk.Height)
	}
	uv.Commit(v.utxos)
}

func newKey() (ec.PrivKey, []byte) {
	key := ec.NewPrivKey()
	pub := key.PubKey()
	return key, pub[:]
}

func mineGenesis(t *testing.T, pow *ProofOfWork, view *fakeView, payout []byte) *block.Block {
	cb := tx.NewCoinbase(0, payout, view.params.Reward(0), nil)
	g := block.NewBlock(block.Header{
		Version:   block.CurrentVersion,
		Timestamp: view.Now().Unix(),
		Bits:      view.params.PowLimitBits,
	}, tx.Transactions{cb})
	require.NoError(t, pow.Mine(context.Background(), g))
	return g
}

func TestMineAndValidate(t *testing.T) {
	params := chain.RegtestChainParams()
	_, payout := newKey()
	pow := NewProofOfWork(ec.Secp256k1Verifier{}, WithPayoutScript(payout))
	view := newFakeView(params, time.Unix(1700000000, 0))

	g := mineGenesis(t, pow, view, payout)
	require.NoError(t, pow.ValidateBlock(g, view))
	view.connect(g)

	view.clock.SetTime(view.Now().Add(10 * time.Second))
	cand, err := pow.CreateCandidate(view, nil)
	require.NoError(t, err)
	require.NoError(t, pow.Mine(context.Background(), cand))
	require.NoError(t, pow.ValidateBlock(cand, view))
	require.NoError(t, block.ValidateStructure(cand, params))
	assert.Equal(t, g.Hash(), cand.PrevHash)

	// a block whose hash is not below the target
	bad := *cand
	for CheckProofOfWork(bad.Header.Hash(), bad.Bits, params.PowLimit()) == nil {
		bad.Nonce++
	}
	bad.Seal()
	err = pow.ValidateBlock(&bad, view)
	assert.True(t, block.IsKind(err, block.ErrInvalidProofOfWork), "got %v", err)

	wrongBits := *cand
	wrongBits.Bits = 0x1f00ffff
	wrongBits.Seal()
	err = pow.ValidateBlock(&wrongBits, view)
	assert.True(t, block.IsKind(err, block.ErrUnexpectedDifficulty), "got %v", err)
}

func TestCheckProofOfWork(t *testing.T) {
	limit := CompactToTarget(chain.REGTEST_POW_LIMIT_BITS)

	var low ec.Hash256
	low[31] = 1
	assert.NoError(t, CheckProofOfWork(low, chain.REGTEST_POW_LIMIT_BITS, limit))

	var high ec.Hash256
	for i := range high {
		high[i] = 0xff
	}
	assert.True(t, block.IsKind(CheckProofOfWork(high, chain.REGTEST_POW_LIMIT_BITS, limit), block.ErrInvalidProofOfWork))

	// hash exactly equal to the target fails
	target := CompactToTarget(0x1f00ffff)
	eq := ec.BytesToHash256(target.Bytes())
	assert.True(t, block.IsKind(CheckProofOfWork(eq, 0x1f00ffff, limit), block.ErrInvalidProofOfWork))

	// bits easier than the limit
	assert.Error(t, CheckProofOfWork(low, 0x2100ffff, limit))
	// negative target
	assert.Error(t, CheckProofOfWork(low, 0x1f800001, limit))
}

func TestMineCancelled(t *testing.T) {
	pow := NewProofOfWork(ec.Secp256k1Verifier{}, WithPollInterval(16))

	// a target of 1 is never met in practice
	blk := block.NewBlock(block.Header{Height: 1, Bits: 0x03000001, Timestamp: 5}, tx.Transactions{tx.NewCoinbase(1, nil, 1, nil)})
	saved := blk.Header
	savedHash := blk.Hash()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := pow.Mine(ctx, blk)
	assert.Equal(t, ErrMiningCancelled, err)
	assert.Equal(t, saved, blk.Header)
	assert.Equal(t, savedHash, blk.Hash())

	// already cancelled
	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	assert.Equal(t, ErrMiningCancelled, pow.Mine(ctx2, blk))
}

func TestRetarget(t *testing.T) {
	params := chain.RegtestChainParams()
	expected := params.ExpectedTimespan()
	old := uint32(0x1f00ffff)
	oldTarget := CompactToTarget(old)

	scaled := func(num, den int64) *big.Int {
		x := new(big.Int).Mul(oldTarget, big.NewInt(num))
		x.Div(x, big.NewInt(den))
		return CompactToTarget(TargetToCompact(x))
	}

	// blocks came twice as fast: target halves
	assert.Equal(t, scaled(expected/2, expected), CompactToTarget(Retarget(params, old, expected/2)))

	// on time: unchanged
	assert.Equal(t, old, Retarget(params, old, expected))

	// clamped in both directions
	f := params.MaxAdjustFactor
	assert.Equal(t, Retarget(params, old, expected/f), Retarget(params, old, 1))
	assert.Equal(t, Retarget(params, old, expected*f), Retarget(params, old, expected*1000))
	assert.Equal(t, Retarget(params, old, expected/f), Retarget(params, old, -50))

	// never easier than the limit
	assert.Equal(t, params.PowLimitBits, Retarget(params, params.PowLimitBits, expected*f))
}

func TestNextBits(t *testing.T) {
	params := chain.RegtestChainParams()
	view := newFakeView(params, time.Unix(1700000000, 0))

	prev := ec.ZeroHash
	var parent *block.Header
	for h := uint64(0); h < params.RetargetInterval; h++ {
		hdr := &block.Header{Height: h, PrevHash: prev, Timestamp: 1700000000 + int64(h)*3, Bits: 0x1f00ffff}
		view.headers[hdr.Hash()] = hdr
		prev = hdr.Hash()
		parent = hdr

		if h+1 < params.RetargetInterval {
			assert.Equal(t, uint32(0x1f00ffff), NextBits(view, hdr), "height %d", h)
		}
	}

	first, ok := view.Ancestor(parent.Hash(), 0)
	require.True(t, ok)
	want := Retarget(params, parent.Bits, parent.Timestamp-first.Timestamp)
	got := NextBits(view, parent)
	assert.Equal(t, want, got)
	assert.True(t, CompactToTarget(got).Cmp(CompactToTarget(0x1f00ffff)) < 0, "fast blocks make the target harder")
}

func TestCreateCandidate(t *testing.T) {
	params := chain.RegtestChainParams()
	key, payout := newKey()
	_, other := newKey()
	pow := NewProofOfWork(ec.Secp256k1Verifier{}, WithPayoutScript(payout), WithCoinbaseExtra([]byte("pool")))
	view := newFakeView(params, time.Unix(1700000000, 0))

	g := mineGenesis(t, pow, view, payout)
	view.connect(g)
	prev := tx.NewOutPoint(g.Transactions[0].Hash(), 0)

	sign := func(outs ...tx.TxOutput) *tx.Transaction {
		trx := &tx.Transaction{Inputs: []tx.TxInput{{PrevOut: prev}}, Outputs: outs}
		require.NoError(t, trx.SignInputs([]ec.PrivKey{key}))
		return trx
	}
	reward := params.Reward(0)
	good := sign(tx.TxOutput{Value: reward - 7, Script: other})
	conflict := sign(tx.TxOutput{Value: reward - 1, Script: other})
	unsigned := tx.NewTransaction([]tx.TxInput{{PrevOut: tx.NewOutPoint(ec.Sum256([]byte("x")), 0)}}, []tx.TxOutput{{Value: 1}}, 0)

	// the clock lags behind the parent: the timestamp still moves past the median
	view.clock.SetTime(time.Unix(g.Timestamp-100, 0))
	cand, err := pow.CreateCandidate(view, tx.Transactions{good, conflict, unsigned})
	require.NoError(t, err)

	require.Len(t, cand.Transactions, 2)
	assert.Equal(t, good, cand.Transactions[1])
	cb := cand.Transactions[0]
	assert.Equal(t, params.Reward(1)+7, cb.Outputs[0].Value)
	assert.Equal(t, payout, cb.Outputs[0].Script)
	assert.Equal(t, g.Timestamp+1, cand.Timestamp)
	assert.Equal(t, uint64(1), cand.Height)
	assert.NoError(t, block.ValidateStructure(cand, params))

	// candidate creation leaves the tip set alone
	_, ok := view.utxos.Get(prev)
	assert.True(t, ok)
}

func TestCreateCandidateFillsBlock(t *testing.T) {
	params := chain.RegtestChainParams()
	params.MaxBlockTrxs = 3
	key, payout := newKey()
	pow := NewProofOfWork(ec.Secp256k1Verifier{}, WithPayoutScript(payout))
	view := newFakeView(params, time.Unix(1700000000, 0))

	g := mineGenesis(t, pow, view, payout)
	view.connect(g)

	var pending tx.Transactions
	for i := 0; i < 5; i++ {
		prev := tx.NewOutPoint(ec.Sum256([]byte{byte(i)}), 0)
		view.utxos.Put(prev, tx.UtxoEntry{Output: tx.TxOutput{Value: 100, Script: payout}})
		trx := tx.NewTransaction([]tx.TxInput{{PrevOut: prev}}, []tx.TxOutput{{Value: 90, Script: payout}}, 0)
		require.NoError(t, trx.SignInputs([]ec.PrivKey{key}))
		pending = append(pending, trx)
	}

	cand, err := pow.CreateCandidate(view, pending)
	require.NoError(t, err)
	require.Len(t, cand.Transactions, params.MaxBlockTrxs)
	assert.Equal(t, pending[:2], cand.Transactions[1:])
	assert.Equal(t, params.Reward(1)+20, cand.Transactions[0].Outputs[0].Value)
	assert.NoError(t, block.ValidateStructure(cand, params))
}

func TestCalcWork(t *testing.T) {
	easy := CalcWork(chain.REGTEST_POW_LIMIT_BITS)
	hard := CalcWork(0x1f00ffff)
	assert.True(t, hard.Cmp(easy) > 0)
	assert.Equal(t, "pow", NewProofOfWork(nil).Name())
}
