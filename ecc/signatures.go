package ecc

import (
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// SigHashType is the single trailing byte Bitcoin appends to every DER
// signature embedded in a script, naming which parts of the transaction
// the signature covers.
type SigHashType byte

const (
	SigHashAll          SigHashType = 0x01
	SigHashNone         SigHashType = 0x02
	SigHashSingle       SigHashType = 0x03
	SigHashAnyOneCanPay SigHashType = 0x80
)

// minSigLen/maxSigLen bound the overall length of a signature plus its
// trailing sighash byte, per Bitcoin Core's IsCanonicalSignature.
const (
	minSigLen = 9
	maxSigLen = 73
)

// SignHash produces a low-S-normalised ECDSA signature over a 32-byte
// digest. btcec's ecdsa.Sign already enforces s ≤ n/2, so no separate
// normalisation step is needed here.
func SignHash(priv *PrivateKey, hash []byte) (*ecdsa.Signature, error) {
	if len(hash) != 32 {
		return nil, newErr(KindInvalidSignature, "hash must be 32 bytes")
	}
	return ecdsa.Sign(priv, hash), nil
}

// SerializeSignature DER-encodes sig and appends the sighash type byte,
// producing the exact byte string Bitcoin embeds in a signature script.
func SerializeSignature(sig *ecdsa.Signature, hashType SigHashType) []byte {
	der := sig.Serialize()
	out := make([]byte, len(der)+1)
	copy(out, der)
	out[len(der)] = byte(hashType)
	return out
}

// VerifySignature checks sig (without its trailing sighash byte) against
// hash and pub.
func VerifySignature(sig *ecdsa.Signature, hash []byte, pub *PublicKey) bool {
	return sig.Verify(hash, pub)
}

// CheckCanonicalSignature validates a full signature-script signature
// (DER body plus trailing sighash byte) against Bitcoin Core's
// IsCanonicalSignature rules: overall length, the 0x30 sequence tag, the
// length byte, non-negative integers with no excess padding on R and S,
// and an in-range sighash type byte.
func CheckCanonicalSignature(sig []byte) error {
	if len(sig) < minSigLen || len(sig) > maxSigLen {
		return newErr(KindInvalidSignature, "length out of range")
	}
	if sig[0] != 0x30 {
		return newErr(KindInvalidSignature, "missing DER sequence tag")
	}
	if int(sig[1]) != len(sig)-3 {
		return newErr(KindInvalidSignature, "sequence length mismatch")
	}

	rLen := int(sig[3])
	if 5+rLen >= len(sig) {
		return newErr(KindInvalidSignature, "R length overruns buffer")
	}
	sTypeOffset := 4 + rLen
	if sig[2] != 0x02 {
		return newErr(KindInvalidSignature, "missing R integer tag")
	}
	if err := checkCanonicalInt(sig[4 : 4+rLen]); err != nil {
		return err
	}

	if sig[sTypeOffset] != 0x02 {
		return newErr(KindInvalidSignature, "missing S integer tag")
	}
	sLen := int(sig[sTypeOffset+1])
	sStart := sTypeOffset + 2
	if sStart+sLen != len(sig)-1 {
		return newErr(KindInvalidSignature, "S length mismatch")
	}
	if err := checkCanonicalInt(sig[sStart : sStart+sLen]); err != nil {
		return err
	}

	hashType := sig[len(sig)-1] &^ byte(SigHashAnyOneCanPay)
	switch SigHashType(hashType) {
	case SigHashAll, SigHashNone, SigHashSingle:
	default:
		return newErr(KindInvalidSignature, "sighash type out of range")
	}
	return nil
}

// checkCanonicalInt enforces that a DER integer has no sign bit set
// without a leading 0x00 pad byte, and no redundant leading 0x00 pad
// byte when the sign bit is already clear.
func checkCanonicalInt(b []byte) error {
	if len(b) == 0 {
		return newErr(KindInvalidSignature, "empty integer")
	}
	if b[0]&0x80 != 0 {
		return newErr(KindInvalidSignature, "negative integer")
	}
	if len(b) > 1 && b[0] == 0x00 && b[1]&0x80 == 0 {
		return newErr(KindInvalidSignature, "excess padding")
	}
	return nil
}
