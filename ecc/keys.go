// Package ecc is the wallet's elliptic-curve layer: secp256k1 key
// generation, ECDSA signing with Bitcoin's canonical-signature rules,
// and the HASH160/address primitives everything else is built on.
package ecc

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for HASH160
)

// PrivateKey and PublicKey are the curve scalar/point types used
// throughout the wallet. They are aliases of btcec/v2's types so that
// every package that needs to talk to real secp256k1 machinery (signing,
// ECDH-free scalar math, serialisation) shares one representation.
type PrivateKey = btcec.PrivateKey
type PublicKey = btcec.PublicKey

// GenerateKey returns a fresh private key drawn from a cryptographically
// secure random source.
func GenerateKey() (*PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, wrapErr(KindInvalidPrivateKey, "generate", err)
	}
	return priv, nil
}

// PrivKeyFromScalar builds a PrivateKey from a 32-byte big-endian scalar,
// rejecting 0 and any value ≥ the group order as required by the
// design (a private key is a 256-bit integer in [1, n-1]) and by the
// BIP32 child-derivation retry rule.
func PrivKeyFromScalar(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, newErr(KindInvalidPrivateKey, "scalar must be 32 bytes")
	}
	if !scalarInRange(b) {
		return nil, newErr(KindInvalidPrivateKey, "scalar is zero or exceeds curve order")
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// ParsePublicKey decodes a compressed (33-byte) or uncompressed (65-byte)
// SEC1 public key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, wrapErr(KindInvalidPublicKey, "parse", err)
	}
	return pub, nil
}

// Hash160 computes RIPEMD-160(SHA-256(x)), the hash used for address
// payloads and for P2PKH/P2SH script bodies.
func Hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sum[:]) //nolint:errcheck // ripemd160.Write never errors
	return r.Sum(nil)
}

// SerializePubKey returns the public key in compressed or uncompressed
// form. The compression flag is a persistent attribute of a key:
// it changes the address derived from the key and must round-trip
// through serialisation unchanged.
func SerializePubKey(pub *PublicKey, compressed bool) []byte {
	if compressed {
		return pub.SerializeCompressed()
	}
	return pub.SerializeUncompressed()
}
