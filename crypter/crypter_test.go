package crypter

import "testing"

func testParams(t *testing.T) *Params {
	t.Helper()
	p, err := NewParams()
	if err != nil {
		t.Fatalf("new params: %v", err)
	}
	// Use the weakest acceptable cost in tests so the suite runs fast;
	// production callers keep DefaultScryptN.
	p.N = 1 << 10
	return p
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := New(testParams(t))
	derived, err := c.DeriveKey([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}

	plaintext := []byte("32-byte-private-scalar-goes-here")
	iv, ct, err := Encrypt(plaintext, derived)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := Decrypt(iv, ct, derived)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestWrongPassphraseFails(t *testing.T) {
	c := New(testParams(t))
	derived, _ := c.DeriveKey([]byte("right password"))
	plaintext := []byte("secret scalar bytes")
	iv, ct, err := Encrypt(plaintext, derived)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	wrong, _ := c.DeriveKey([]byte("wrong password"))
	if _, err := Decrypt(iv, ct, wrong); err == nil {
		t.Fatal("expected decrypt failure with wrong passphrase")
	} else if e, ok := err.(*Error); !ok || e.Kind != KindWrongPassphrase {
		t.Fatalf("expected KindWrongPassphrase, got %v", err)
	}
}

func TestSameCrypter(t *testing.T) {
	p := testParams(t)
	a := New(p)
	b := New(p)
	if !SameCrypter(a, b) {
		t.Error("crypters sharing params should compare equal")
	}

	other := New(testParams(t))
	if SameCrypter(a, other) {
		t.Error("crypters with different salts should not compare equal")
	}
}
