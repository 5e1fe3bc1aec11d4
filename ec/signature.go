package ec

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"

	secp256k1 "github.com/btcsuite/btcd/btcec"
	"halftwo/mangos/xstr"
)

const SignatureSize = 65

// Signature is a compact recoverable secp256k1 signature: recovery byte, R, S.
type Signature [SignatureSize]byte

func BytesToSignature(b []byte) (sg Signature, ok bool) {
	if len(b) != SignatureSize {
		return
	}
	copy(sg[:], b)
	return sg, true
}

func (sg *Signature) IsZero() bool {
	return xstr.IndexNotByte(sg[:], 0) == -1
}

func (sg *Signature) RecoverHashPubKey(hash Hash256) (p PubKey, err error) {
	pub, _, err := secp256k1.RecoverCompact(secp256k1.S256(), sg[:], hash[:])
	if err != nil {
		return
	}
	copy(p[:], pub.SerializeCompressed())
	return
}

func (sg *Signature) VerifyHashPubKey(hash Hash256, p PubKey) bool {
	pub, err := secp256k1.ParsePubKey(p[:], secp256k1.S256())
	if err != nil {
		return false
	}
	return sg.verifyEcdsaPublicKey(hash[:], pub.ToECDSA())
}

func (sg *Signature) VerifyMessagePubKey(msg []byte, p PubKey) bool {
	return sg.VerifyHashPubKey(Sum256(msg), p)
}

func (sg *Signature) verifyEcdsaPublicKey(hash []byte, pub *ecdsa.PublicKey) bool {
	R := new(big.Int).SetBytes(sg[1:33])
	S := new(big.Int).SetBytes(sg[33:65])
	return ecdsa.Verify(pub, hash, R, S)
}

func (sg *Signature) Equal(s2 Signature) bool {
	return bytes.Equal(sg[:], s2[:])
}

func (sg Signature) String() string {
	return hex.EncodeToString(sg[:])
}
