package ecc

import (
	"crypto/rand"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// curveOrder is the secp256k1 group order n, used to validate BIP32
// scalar arithmetic results independent of how the underlying library
// chooses to reduce overflowing byte strings.
func curveOrder() *big.Int {
	return btcec.S256().N
}

// scalarInRange reports whether the 32-byte big-endian value is in
// [1, n-1].
func scalarInRange(b []byte) bool {
	v := new(big.Int).SetBytes(b)
	if v.Sign() == 0 {
		return false
	}
	return v.Cmp(curveOrder()) < 0
}

// AddModN computes (a + b) mod n for two 32-byte big-endian scalars,
// returning the 32-byte big-endian sum. Used by BIP32 private child
// derivation: child = (I_L + parent) mod n.
func AddModN(a, b []byte) ([]byte, error) {
	if len(a) != 32 || len(b) != 32 {
		return nil, newErr(KindInvalidPrivateKey, "scalar must be 32 bytes")
	}
	sum := new(big.Int).Add(new(big.Int).SetBytes(a), new(big.Int).SetBytes(b))
	sum.Mod(sum, curveOrder())
	if sum.Sign() == 0 {
		return nil, newErr(KindInvalidPrivateKey, "scalar sum is zero")
	}
	out := make([]byte, 32)
	sum.FillBytes(out)
	return out, nil
}

// AddPointScalar computes pub + scalar*G, the BIP32 public child
// derivation child = point(I_L) + parent.
func AddPointScalar(pub *PublicKey, scalar []byte) (*PublicKey, error) {
	if !scalarInRange(scalar) {
		return nil, newErr(KindInvalidPublicKey, "scalar is zero or exceeds curve order")
	}
	curve := btcec.S256()
	ilX, ilY := curve.ScalarBaseMult(scalar)
	x, y := curve.Add(ilX, ilY, pub.X(), pub.Y())
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, newErr(KindInvalidPublicKey, "derived point is the point at infinity")
	}

	var fx, fy btcec.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	return btcec.NewPublicKey(&fx, &fy), nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, wrapErr(KindInvalidPrivateKey, "random", err)
	}
	return b, nil
}
