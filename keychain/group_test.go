package keychain

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/ecc"
)

func testGroupWithChain(t *testing.T) *Group {
	t.Helper()
	c, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	g := NewGroup(&chaincfg.MainNetParams)
	g.AddChain(c)
	return g
}

func TestGroupEncryptRefusesWhenEmpty(t *testing.T) {
	g := NewGroup(&chaincfg.MainNetParams)
	params, _ := crypter.NewParams()
	params.N = 1 << 10
	cr := crypter.New(params)
	derived, _ := cr.DeriveKey([]byte("x"))
	if err := g.Encrypt(cr, derived); err == nil {
		t.Fatalf("expected Encrypt on an empty group to be refused")
	}
}

func TestGroupImportKeyDedupsByPubKey(t *testing.T) {
	g := testGroupWithChain(t)
	priv, err := ecc.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := g.ImportKey(priv, true, 0); err != nil {
		t.Fatalf("ImportKey: %v", err)
	}
	if err := g.ImportKey(priv, true, 0); err != nil {
		t.Fatalf("re-importing the same key must be a silent no-op, got %v", err)
	}
	if len(g.basicByPubKey) != 1 {
		t.Fatalf("expected exactly one basic key after dedup, got %d", len(g.basicByPubKey))
	}
}

func TestGroupFindKeyFromPubHashSearchesBasicThenNewestHD(t *testing.T) {
	g := testGroupWithChain(t)
	hdKey := g.ActiveChain().FreshKey(Receive)

	priv, err := ecc.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := g.ImportKey(priv, true, 0); err != nil {
		t.Fatalf("ImportKey: %v", err)
	}
	basicHash := ecc.Hash160(ecc.SerializePubKey(priv.PubKey(), true))

	if found := g.FindKeyFromPubHash(basicHash); found == nil {
		t.Fatalf("expected to find the imported basic key")
	}
	if found := g.FindKeyFromPubHash(hdKey.PubKeyHash()); found == nil {
		t.Fatalf("expected to find the HD-derived key")
	}
	if found := g.FindKeyFromPubHash(make([]byte, 20)); found != nil {
		t.Fatalf("expected a miss for an unrelated hash")
	}
}

func TestGroupEncryptIsAtomicAndCheckPasswordWorks(t *testing.T) {
	g := testGroupWithChain(t)
	priv, err := ecc.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := g.ImportKey(priv, true, 0); err != nil {
		t.Fatalf("ImportKey: %v", err)
	}

	params, err := crypter.NewParams()
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	params.N = 1 << 10
	cr := crypter.New(params)
	derived, err := cr.DeriveKey([]byte("correct horse"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	if err := g.Encrypt(cr, derived); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !g.IsEncrypted() {
		t.Fatalf("group must report encrypted after Encrypt")
	}
	if err := g.Encrypt(cr, derived); err == nil {
		t.Fatalf("expected a second Encrypt call to be refused")
	}

	wrongDerived, err := cr.DeriveKey([]byte("wrong passphrase"))
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if g.CheckPassword(cr, wrongDerived) {
		t.Fatalf("CheckPassword must reject the wrong passphrase")
	}
	if !g.CheckPassword(cr, derived) {
		t.Fatalf("CheckPassword must accept the correct passphrase")
	}

	if err := g.Decrypt(derived); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if g.IsEncrypted() {
		t.Fatalf("group must report not-encrypted after Decrypt")
	}
}

func TestGroupCurrentAndFreshAddress(t *testing.T) {
	g := testGroupWithChain(t)
	first, err := g.CurrentAddress(Receive)
	if err != nil {
		t.Fatalf("CurrentAddress: %v", err)
	}
	second, err := g.CurrentAddress(Receive)
	if err != nil {
		t.Fatalf("CurrentAddress: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("CurrentAddress must be stable until a fresh address is requested")
	}
	fresh, err := g.FreshAddress(Receive)
	if err != nil {
		t.Fatalf("FreshAddress: %v", err)
	}
	if fresh.String() != first.String() {
		t.Fatalf("FreshAddress must return the same address as the prior CurrentAddress before advancing")
	}
	next, err := g.CurrentAddress(Receive)
	if err != nil {
		t.Fatalf("CurrentAddress after FreshAddress: %v", err)
	}
	if next.String() == first.String() {
		t.Fatalf("CurrentAddress must advance once FreshAddress has issued the previous one")
	}
}

func TestGroupMarriedCurrentAddressIsP2SH(t *testing.T) {
	local, cosigners := testMarriedParticipants(t, 1)
	m, err := NewMarriedKeyChain(local, cosigners, 2, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMarriedKeyChain: %v", err)
	}
	g := NewGroup(&chaincfg.MainNetParams)
	g.AddChain(local)
	g.MarryActiveChain(m)

	address, err := g.CurrentAddress(Receive)
	if err != nil {
		t.Fatalf("CurrentAddress: %v", err)
	}
	if address.Type != addr.TypeP2SH {
		t.Fatalf("expected a married group's current address to be P2SH")
	}

	again, err := g.CurrentAddress(Receive)
	if err != nil {
		t.Fatalf("CurrentAddress: %v", err)
	}
	if !bytes.Equal(again.Payload, address.Payload) {
		t.Fatalf("CurrentAddress must be stable across repeated calls, not re-derive a new map-iteration-order address each time")
	}

	g.MarkKeysUsed([][]byte{address.Payload})
	advanced, err := g.CurrentAddress(Receive)
	if err != nil {
		t.Fatalf("CurrentAddress after MarkKeysUsed: %v", err)
	}
	if bytes.Equal(advanced.Payload, address.Payload) {
		t.Fatalf("CurrentAddress must advance once its redeem-script hash has been marked used")
	}
}
