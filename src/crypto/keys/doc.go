// Package keys implements the public key cryptography used throughout Drift.
//
// Every Drift peer owns a cryptographic key-pair that it uses to sign and
// verify messages. The private key is secret but the public key is shared
// with other peers, which use it to verify the challenge signature produced
// during the session handshake. A peer's GUID is derived from its public key,
// so a session is only considered authenticated when the presented key hashes
// to the GUID the peer claims.
//
// Drift uses elliptic curve cryptography (ECDSA) with the secp256k1 curve.
package keys
