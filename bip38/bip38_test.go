package bip38

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/ecc"
)

func TestDecryptReferenceVectorNoECMultiply(t *testing.T) {
	priv, compressed, err := Decrypt(
		"6PRVWUbkzzsbcVac2qwfssoUJAN1Xhrg6bNk8J7Nzm5H7kxEbn2Nh2ZoGg",
		"TestingOneTwoThree",
		&chaincfg.MainNetParams,
	)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if compressed {
		t.Fatal("reference vector key is uncompressed")
	}
	address, err := addr.FromPublicKey(priv.PubKey(), compressed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	want := "1Jscj8ALrQ342PyfW4ERn5sTHxy8DqQLwJ"
	if got := address.String(); got != want {
		t.Fatalf("address = %s, want %s", got, want)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, compressed := range []bool{true, false} {
		priv, err := ecc.GenerateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		encoded, err := Encrypt(priv, compressed, "correct horse battery staple", &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		got, gotCompressed, err := Decrypt(encoded, "correct horse battery staple", &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if gotCompressed != compressed {
			t.Fatalf("compressed = %v, want %v", gotCompressed, compressed)
		}
		if string(got.Serialize()) != string(priv.Serialize()) {
			t.Fatal("round trip scalar mismatch")
		}
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	priv, err := ecc.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded, err := Encrypt(priv, true, "right passphrase", &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, _, err := Decrypt(encoded, "wrong passphrase", &chaincfg.MainNetParams); err != ErrWrongPassphrase {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	if _, _, err := Decrypt("not-a-valid-bip38-string", "x", &chaincfg.MainNetParams); err != ErrInvalidFormat {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
