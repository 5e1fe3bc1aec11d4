package ec

// SigVerifier decides whether sig authorizes msg for the holder of pubkey.
// The ledger treats both pubkey and sig as opaque bytes.
type SigVerifier interface {
	Verify(pubkey, msg, sig []byte) bool
}

// Secp256k1Verifier expects a 33-byte compressed key, a 32-byte digest
// and a 65-byte compact signature.
type Secp256k1Verifier struct{}

var _ SigVerifier = Secp256k1Verifier{}

func (Secp256k1Verifier) Verify(pubkey, msg, sig []byte) bool {
	p, err := BytesToPubKey(pubkey)
	if err != nil {
		return false
	}
	sg, ok := BytesToSignature(sig)
	if !ok {
		return false
	}
	if len(msg) != HashSize {
		return false
	}
	return sg.VerifyHashPubKey(BytesToHash256(msg), p)
}

