package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/driftnetworks/drift/src/common"
)

// ToPublicKey is a wrapper around elliptic.Unmarshal which calls Curve() to
// determine which elliptic.Curve to use. The argument pub is expected to be
// the uncompressed form of a point on the curve, as returned by
// FromPublicKey. It returns nil if pub does not describe such a point.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey is a wrapper around elliptic.Marshal which calls Curve() to
// determine which elliptic.Curve to use. It outputs the point in uncompressed
// form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyGUID derives a peer GUID from the uncompressed form of a public
// key. There is obviously a risk of collision, but a uint64 is a lot cheaper
// to put in every packet than the 65-byte uncompressed key, and the full key
// is checked during authentication anyway.
func PublicKeyGUID(pubBytes []byte) uint64 {
	return common.Hash64(pubBytes)
}

// PublicKeyHex returns the hexadecimal representation of the uncompressed
// form of the public key
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
