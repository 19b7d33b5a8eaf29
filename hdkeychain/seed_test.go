package hdkeychain

import (
	"testing"

	"github.com/toole-brendan/shellwallet/crypter"
)

func TestDeterministicSeedFromEntropyRoundTrip(t *testing.T) {
	entropy := make([]byte, 16)
	for i := range entropy {
		entropy[i] = byte(i)
	}
	seed, err := NewSeedFromEntropy(entropy, "")
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	if len(seed.Mnemonic()) != 12 {
		t.Fatalf("word count = %d, want 12", len(seed.Mnemonic()))
	}
	bin, err := seed.Seed()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(bin) != 64 {
		t.Fatalf("binary seed length = %d, want 64", len(bin))
	}

	restored, err := NewSeedFromMnemonic(seed.Mnemonic(), "")
	if err != nil {
		t.Fatalf("from mnemonic: %v", err)
	}
	restoredBin, _ := restored.Seed()
	if string(restoredBin) != string(bin) {
		t.Fatal("seed derived from mnemonic should match original")
	}
}

func TestDeterministicSeedEncryptDecrypt(t *testing.T) {
	entropy := make([]byte, 32)
	seed, err := NewSeedFromEntropy(entropy, "")
	if err != nil {
		t.Fatalf("new seed: %v", err)
	}
	originalSeed, _ := seed.Seed()
	originalSeedCopy := append([]byte(nil), originalSeed...)
	originalWords := append([]string(nil), seed.Mnemonic()...)

	params, err := crypter.NewParams()
	if err != nil {
		t.Fatalf("new params: %v", err)
	}
	params.N = 1 << 10
	c := crypter.New(params)
	derived, err := c.DeriveKey([]byte("hunter2"))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}

	if err := seed.Encrypt(c, derived); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !seed.IsEncrypted() {
		t.Fatal("seed should report encrypted after Encrypt")
	}
	if _, err := seed.Seed(); err != ErrSeedEncrypted {
		t.Fatalf("expected ErrSeedEncrypted, got %v", err)
	}

	if err := seed.Decrypt(derived); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	gotSeed, err := seed.Seed()
	if err != nil {
		t.Fatalf("seed after decrypt: %v", err)
	}
	if string(gotSeed) != string(originalSeedCopy) {
		t.Fatal("decrypted seed should match original")
	}
	for i, w := range originalWords {
		if seed.Mnemonic()[i] != w {
			t.Fatalf("word %d mismatch after decrypt", i)
		}
	}
}
