package ec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivKeys(t *testing.T) {
	msg := []byte("hello,world!")
	k := NewPrivKey()
	p := k.PubKey()
	sig, err := k.SignMessage(msg)
	require.NoError(t, err)

	require.True(t, sig.VerifyMessagePubKey(msg, p), "(*Signature).VerifyMessagePubKey() failed")
	require.False(t, sig.VerifyMessagePubKey([]byte("hello,world?"), p))

	rp, err := sig.RecoverHashPubKey(Sum256(msg))
	require.NoError(t, err)
	assert.Equal(t, p, rp)

	t.Logf("k %s", k)
	t.Logf("p %s", p)
	t.Logf("s %x %x %x", sig[:1], sig[1:33], sig[33:])
}

func TestSecp256k1Verifier(t *testing.T) {
	k := NewPrivKey()
	p := k.PubKey()
	digest := Sum256([]byte("spend"))
	sig, err := k.SignHash(digest)
	require.NoError(t, err)

	var v SigVerifier = Secp256k1Verifier{}
	assert.True(t, v.Verify(p[:], digest[:], sig[:]))

	otherKey := NewPrivKey()
	other := otherKey.PubKey()
	assert.False(t, v.Verify(other[:], digest[:], sig[:]))
	assert.False(t, v.Verify(p[:5], digest[:], sig[:]))
	assert.False(t, v.Verify(p[:], digest[:4], sig[:]))
	assert.False(t, v.Verify(p[:], digest[:], sig[:64]))
	assert.False(t, v.Verify(p[:], digest[:], nil))
}

func TestHash256(t *testing.T) {
	h := Sum256([]byte("abc"))
	require.False(t, h.IsZero())
	require.True(t, ZeroHash.IsZero())

	h2, err := HexToHash256(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	_, err = HexToHash256("00ff")
	assert.Error(t, err)

	assert.Equal(t, 0, h.Big().Cmp(BytesToHash256(h[:]).Big()))
	assert.Equal(t, 0, ZeroHash.Big().Sign())

	text, err := h.MarshalText()
	require.NoError(t, err)
	var h3 Hash256
	require.NoError(t, h3.UnmarshalText(text))
	assert.Equal(t, h, h3)
}

func TestSumPair(t *testing.T) {
	a := Sum256([]byte("a"))
	b := Sum256([]byte("b"))
	assert.NotEqual(t, SumPair(a, b), SumPair(b, a))
	assert.Equal(t, Sum256(append(append([]byte{}, a[:]...), b[:]...)), SumPair(a, b))
}
