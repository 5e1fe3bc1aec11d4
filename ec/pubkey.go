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

const PubKeySize = 33

// PubKey is a compressed secp256k1 public key.
type PubKey [PubKeySize]byte

func EcdsaToPubKey(pub *ecdsa.PublicKey) (p PubKey) {
	if pub.Curve != secp256k1.S256() {
		panic("PublicKey curve is not secp256k1")
	}
	copy(p[:], (*secp256k1.PublicKey)(pub).SerializeCompressed())
	return
}

func BytesToPubKey(b []byte) (p PubKey, err error) {
	if len(b) != PubKeySize {
		err = fmt.Errorf("invalid PubKey length %d", len(b))
		return
	}
	copy(p[:], b)
	return
}

func (p *PubKey) IsZero() bool {
	return xstr.IndexNotByte(p[:], 0) == -1
}

func (p *PubKey) ToEcdsa() (*ecdsa.PublicKey, error) {
	key, err := secp256k1.ParsePubKey(p[:], secp256k1.S256())
	if err != nil {
		return nil, err
	}
	return key.ToECDSA(), nil
}

func (p *PubKey) Equal(p2 PubKey) bool {
	return bytes.Equal(p[:], p2[:])
}

func (p PubKey) String() string {
	return hex.EncodeToString(p[:])
}

func HexToPubKey(s string) (p PubKey, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return
	}
	return BytesToPubKey(b)
}

func (p *PubKey) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

func (p *PubKey) UnmarshalJSON(bz []byte) error {
	s, err := strconv.Unquote(string(bz))
	if err != nil {
		return fmt.Errorf("Invalid PubKey string")
	}

	pkey, err := HexToPubKey(s)
	if err != nil {
		return err
	}

	*p = pkey
	return nil
}
