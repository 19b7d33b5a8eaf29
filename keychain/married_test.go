package keychain

import (
	"bytes"
	"sort"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/ecc"
	"github.com/toole-brendan/shellwallet/hdkeychain"
)

func testMarriedParticipants(t *testing.T, n int) (*Chain, []*hdkeychain.ExtendedKey) {
	t.Helper()
	local, err := NewChain(testSeed(t), &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain(local): %v", err)
	}
	var cosigners []*hdkeychain.ExtendedKey
	for i := 0; i < n; i++ {
		entropy := bytes.Repeat([]byte{byte(i + 1)}, 16)
		seed, err := hdkeychain.NewSeedFromEntropy(entropy, "")
		if err != nil {
			t.Fatalf("NewSeedFromEntropy: %v", err)
		}
		binarySeed, err := seed.Seed()
		if err != nil {
			t.Fatalf("Seed: %v", err)
		}
		master, err := hdkeychain.NewMaster(binarySeed, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("NewMaster: %v", err)
		}
		cosigners = append(cosigners, master.Neuter())
	}
	return local, cosigners
}

func TestMarriedKeyChainRejectsBadThreshold(t *testing.T) {
	local, cosigners := testMarriedParticipants(t, 2)
	if _, err := NewMarriedKeyChain(local, cosigners, 0, &chaincfg.MainNetParams); err == nil {
		t.Fatalf("expected threshold=0 to be rejected")
	}
	if _, err := NewMarriedKeyChain(local, cosigners, 4, &chaincfg.MainNetParams); err == nil {
		t.Fatalf("expected threshold exceeding participant count to be rejected")
	}
}

func TestMarriedKeyChainFreshOutputScriptIsP2SH(t *testing.T) {
	local, cosigners := testMarriedParticipants(t, 2)
	m, err := NewMarriedKeyChain(local, cosigners, 2, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMarriedKeyChain: %v", err)
	}
	address, redeem, err := m.FreshOutputScript(Receive)
	if err != nil {
		t.Fatalf("FreshOutputScript: %v", err)
	}
	if address.Type != addr.TypeP2SH {
		t.Fatalf("expected a P2SH address, got type %v", address.Type)
	}
	if got := ecc.Hash160(redeem); string(got) != string(address.Payload) {
		t.Fatalf("address payload must be HASH160 of the redeem script")
	}
}

func TestMarriedKeyChainRedeemScriptPubKeysAreLexicographicallyOrdered(t *testing.T) {
	local, cosigners := testMarriedParticipants(t, 3)
	m, err := NewMarriedKeyChain(local, cosigners, 3, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMarriedKeyChain: %v", err)
	}
	_, redeem, err := m.FreshOutputScript(Receive)
	if err != nil {
		t.Fatalf("FreshOutputScript: %v", err)
	}

	localKey := m.local.precomputed[Receive][0]
	pubKeys := [][]byte{ecc.SerializePubKey(localKey.pub, true)}
	for _, following := range m.following {
		pubKeys = append(pubKeys, ecc.SerializePubKey(following.precomputed[Receive][0].pub, true))
	}
	sort.Slice(pubKeys, func(i, j int) bool { return bytes.Compare(pubKeys[i], pubKeys[j]) < 0 })

	want, err := buildMultisigRedeemScript(3, pubKeys)
	if err != nil {
		t.Fatalf("buildMultisigRedeemScript: %v", err)
	}
	if !bytes.Equal(want, redeem) {
		t.Fatalf("redeem script does not match the deterministically-ordered reconstruction")
	}
}

func TestMarriedKeyChainFindRedeemDataByScriptHash(t *testing.T) {
	local, cosigners := testMarriedParticipants(t, 1)
	m, err := NewMarriedKeyChain(local, cosigners, 2, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMarriedKeyChain: %v", err)
	}
	address, redeem, err := m.FreshOutputScript(Receive)
	if err != nil {
		t.Fatalf("FreshOutputScript: %v", err)
	}

	gotRedeem, signingKey, err := m.FindRedeemDataByScriptHash(address.Payload)
	if err != nil {
		t.Fatalf("FindRedeemDataByScriptHash: %v", err)
	}
	if !bytes.Equal(gotRedeem, redeem) {
		t.Fatalf("returned redeem script does not match the one produced by FreshOutputScript")
	}
	if signingKey == nil {
		t.Fatalf("expected a local signing key for a script this chain produced")
	}

	if _, _, err := m.FindRedeemDataByScriptHash(bytes.Repeat([]byte{0xff}, 20)); err == nil {
		t.Fatalf("expected an unknown script hash to be rejected")
	}
}
