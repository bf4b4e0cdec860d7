package node

import (
	"crypto/ecdsa"

	"github.com/driftnetworks/drift/src/crypto"
	"github.com/driftnetworks/drift/src/crypto/keys"
)

// Validator holds the local node's identity: its signing key and moniker.
// The GUID every peer knows us by is derived from the public key, so
// claiming someone else's GUID requires their private key.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	guid     uint64
	pubBytes []byte
	pubHex   string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
	}
}

// GUID returns the stable identity derived from the validator's public key.
func (v *Validator) GUID() uint64 {
	if v.guid == 0 {
		v.guid = keys.PublicKeyGUID(v.PublicKeyBytes())
	}
	return v.guid
}

// PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	if len(v.pubBytes) == 0 {
		v.pubBytes = keys.FromPublicKey(&v.Key.PublicKey)
	}
	return v.pubBytes
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
	}
	return v.pubHex
}

// SignChallenge signs an authentication nonce, producing the signature a
// challenger verifies against our GUID.
func (v *Validator) SignChallenge(nonce string) (string, error) {
	r, s, err := keys.Sign(v.Key, crypto.SHA256([]byte(nonce)))
	if err != nil {
		return "", err
	}
	return keys.EncodeSignature(r, s), nil
}
