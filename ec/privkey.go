package ec

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"

	secp256k1 "github.com/btcsuite/btcd/btcec"
	"halftwo/mangos/xstr"
)

type PrivKey [32]byte

func NewPrivKey() (k PrivKey) {
	priv, err := secp256k1.NewPrivateKey(secp256k1.S256())
	if err != nil {
		panic(err)
	}
	copy(k[:], priv.Serialize())
	return
}

func (k *PrivKey) IsZero() bool {
	return xstr.IndexNotByte(k[:], 0) == -1
}

func (k *PrivKey) ToEcdsa() *ecdsa.PrivateKey {
	key, _ := secp256k1.PrivKeyFromBytes(secp256k1.S256(), k[:])
	return key.ToECDSA()
}

// SignHash produces a compact recoverable signature over a 32-byte digest.
func (k *PrivKey) SignHash(hash Hash256) (sg Signature, err error) {
	priv, _ := secp256k1.PrivKeyFromBytes(secp256k1.S256(), k[:])
	sig, err := secp256k1.SignCompact(secp256k1.S256(), priv, hash[:], true)
	if err != nil {
		return
	}
	copy(sg[:], sig)
	return
}

func (k *PrivKey) SignMessage(msg []byte) (sg Signature, err error) {
	return k.SignHash(Sum256(msg))
}

func (k *PrivKey) PubKey() (p PubKey) {
	_, pub := secp256k1.PrivKeyFromBytes(secp256k1.S256(), k[:])
	copy(p[:], pub.SerializeCompressed())
	return
}

func (k *PrivKey) Equal(k2 PrivKey) bool {
	return bytes.Equal(k[:], k2[:])
}

func (k PrivKey) String() string {
	return hex.EncodeToString(k[:])
}

func HexToPrivKey(s string) (k PrivKey, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return
	}

	if len(b) != len(k) {
		err = fmt.Errorf("invalid PrivKey string")
		return
	}

	copy(k[:], b)
	return
}

func (k *PrivKey) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(k.String())), nil
}

func (k *PrivKey) UnmarshalJSON(bz []byte) error {
	s, err := strconv.Unquote(string(bz))
	if err != nil {
		return fmt.Errorf("Invalid PrivKey string")
	}

	key, err := HexToPrivKey(s)
	if err != nil {
		return err
	}

	*k = key
	return nil
}
