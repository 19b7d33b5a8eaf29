package keychain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/hdkeychain"
)

func testSeed(t *testing.T) *hdkeychain.DeterministicSeed {
	t.Helper()
	seed, err := hdkeychain.NewSeedFromEntropy(make([]byte, 16), "")
	if err != nil {
		t.Fatalf("NewSeedFromEntropy: %v", err)
	}
	return seed
}

func TestChainLookaheadPopulatesWithinThreshold(t *testing.T) {
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if got := len(c.precomputed[Receive]); got != DefaultLookaheadSize {
		t.Fatalf("initial precomputed length = %d, want %d", got, DefaultLookaheadSize)
	}
}

func TestChainFreshKeyAdvancesIssuedAndNeverRecomputes(t *testing.T) {
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	first := c.FreshKey(Receive)
	second := c.FreshKey(Receive)
	if first.bufferIndex != 0 || second.bufferIndex != 1 {
		t.Fatalf("expected sequential indices 0,1, got %d,%d", first.bufferIndex, second.bufferIndex)
	}
	if c.issued[Receive] != 2 {
		t.Fatalf("issued = %d, want 2", c.issued[Receive])
	}
	if !first.used || !second.used {
		t.Fatalf("FreshKey must mark its key used")
	}
}

func TestChainMarkUsedNeverLowersIssued(t *testing.T) {
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	c.FreshKey(Receive)
	c.FreshKey(Receive)
	c.FreshKey(Receive) // issued = 3

	early := c.precomputed[Receive][0]
	if !c.MarkPubKeyHashUsed(early.PubKeyHash()) {
		t.Fatalf("expected to find early key by hash")
	}
	if c.issued[Receive] != 3 {
		t.Fatalf("marking an already-issued key used must not lower issued, got %d", c.issued[Receive])
	}

	future := c.precomputed[Receive][10]
	if !c.MarkPubKeyHashUsed(future.PubKeyHash()) {
		t.Fatalf("expected to find lookahead key by hash")
	}
	if c.issued[Receive] != 11 {
		t.Fatalf("issued = %d, want 11 after marking index 10 used", c.issued[Receive])
	}
}

func TestChainGetKeysResolvesOpenQuestion(t *testing.T) {
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	keys := c.GetKeys(Receive, 5)
	if len(keys) != 5 {
		t.Fatalf("GetKeys(5) returned %d keys", len(keys))
	}
	if c.issued[Receive] != 0 {
		t.Fatalf("GetKeys must not advance issued, got %d", c.issued[Receive])
	}

	more := c.GetKeys(Receive, len(c.precomputed[Receive])+3)
	if len(more) != len(c.precomputed[Receive]) {
		t.Fatalf("GetKeys beyond buffer must derive fresh keys to satisfy the count")
	}
}

func TestChainEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	key := c.FreshKey(Receive)
	wantHash := key.PubKeyHash()

	params, err := crypter.NewParams()
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	params.N = 1 << 10
	cr := crypter.New(params)
	derived, err := cr.DeriveKey([]byte("hunter2"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	enc, err := c.Encrypt(cr, derived)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !enc.IsEncrypted() {
		t.Fatalf("encrypted chain must report IsEncrypted")
	}
	if _, err := enc.FindByPubKeyHash(wantHash).PrivateKey(); err == nil {
		t.Fatalf("expected encrypted key to refuse PrivateKey()")
	}

	dec, err := enc.Decrypt(derived)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	priv, err := dec.FindByPubKeyHash(wantHash).PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey after Decrypt: %v", err)
	}
	if priv == nil {
		t.Fatalf("expected non-nil private key after decrypt")
	}
}

func TestChainGetKeysByPath(t *testing.T) {
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	keys := c.GetKeysByPath([]uint32{uint32(Receive)})
	if len(keys) != DefaultLookaheadSize {
		t.Fatalf("GetKeysByPath(Receive) = %d, want %d", len(keys), DefaultLookaheadSize)
	}
	for _, k := range keys {
		if k.purpose != Receive {
			t.Fatalf("GetKeysByPath leaked a key from the wrong branch")
		}
	}
}
