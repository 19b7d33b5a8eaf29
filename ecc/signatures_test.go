package ecc

import (
	"crypto/sha256"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := sha256.Sum256([]byte("shellwallet test message"))

	sig, err := SignHash(priv, hash[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !VerifySignature(sig, hash[:], priv.PubKey()) {
		t.Fatal("signature failed to verify")
	}

	full := SerializeSignature(sig, SigHashAll)
	if err := CheckCanonicalSignature(full); err != nil {
		t.Fatalf("expected canonical signature, got: %v", err)
	}
}

func TestCheckCanonicalSignatureRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x30},
		append([]byte{0x31, 0x00}, 0x01),
		make([]byte, 80),
	}
	for i, c := range cases {
		if err := CheckCanonicalSignature(c); err == nil {
			t.Errorf("case %d: expected rejection", i)
		}
	}
}

func TestHash160Length(t *testing.T) {
	h := Hash160([]byte("arbitrary input"))
	if len(h) != 20 {
		t.Fatalf("Hash160 length = %d, want 20", len(h))
	}
}
