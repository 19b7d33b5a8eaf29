package keychain

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/ecc"
	"github.com/toole-brendan/shellwallet/hdkeychain"
)

// MarriedKeyChain is the multisig-P2SH variant of Chain: the
// local signing chain plus an ordered set of watching-only "following"
// chains, one per remote cosigner, all deriving child keys at the same
// index so every participant can independently reconstruct the same
// redeem script.
type MarriedKeyChain struct {
	local      *Chain
	following  []*Chain // watching-only, NeuteredRoots of remote cosigners
	threshold  int      // m of m-of-n
	params     *chaincfg.Params
	redeemByHash map[string][]byte // P2SH script hash -> redeem script
}

// NewMarriedKeyChain wires local together with the cosigners' already-
// neutered extended public keys, requiring threshold-of-(1+len(cosigners))
// signatures to spend.
func NewMarriedKeyChain(local *Chain, cosigners []*hdkeychain.ExtendedKey, threshold int, params *chaincfg.Params) (*MarriedKeyChain, error) {
	if threshold < 1 || threshold > len(cosigners)+1 {
		return nil, newErr(KindImport, "threshold out of range for participant count")
	}
	m := &MarriedKeyChain{
		local:        local,
		threshold:    threshold,
		params:       params,
		redeemByHash: make(map[string][]byte),
	}
	for _, pub := range cosigners {
		external, err := pub.Child(0)
		if err != nil {
			return nil, wrapErr(KindDerivation, "cosigner external branch", err)
		}
		internal, err := pub.Child(1)
		if err != nil {
			return nil, wrapErr(KindDerivation, "cosigner internal branch", err)
		}
		chain, err := NewWatchingChain(external, internal, params)
		if err != nil {
			return nil, err
		}
		m.following = append(m.following, chain)
	}
	return m, nil
}

// FreshOutputScript derives the next local key and the matching key
// from every following chain at the same index, builds the m-of-n
// redeem script with deterministic lexicographic public-key ordering,
// and returns its P2SH address.
func (m *MarriedKeyChain) FreshOutputScript(p Purpose) (*addr.Address, []byte, error) {
	localKey := m.local.FreshKey(p)
	pubKeys := [][]byte{ecc.SerializePubKey(localKey.pub, true)}
	for _, following := range m.following {
		cosignerKey := following.FreshKey(p)
		pubKeys = append(pubKeys, ecc.SerializePubKey(cosignerKey.pub, true))
	}
	sort.Slice(pubKeys, func(i, j int) bool { return bytes.Compare(pubKeys[i], pubKeys[j]) < 0 })

	redeemScript, err := buildMultisigRedeemScript(m.threshold, pubKeys)
	if err != nil {
		return nil, nil, wrapErr(KindDerivation, "build redeem script", err)
	}
	scriptHash := ecc.Hash160(redeemScript)
	m.redeemByHash[string(scriptHash)] = redeemScript

	address, err := addr.NewP2SH(scriptHash, m.params)
	if err != nil {
		return nil, nil, wrapErr(KindDerivation, "P2SH address", err)
	}
	return address, redeemScript, nil
}

// FindRedeemDataByScriptHash returns the redeem script and the local
// signing key for a precomputed P2SH script hash.
func (m *MarriedKeyChain) FindRedeemDataByScriptHash(scriptHash []byte) ([]byte, *DeterministicKey, error) {
	redeemScript, ok := m.redeemByHash[string(scriptHash)]
	if !ok {
		return nil, nil, newErr(KindKeyNotFound, "no redeem script for this hash")
	}
	// The local signing key is whichever precomputed local key's
	// serialized pubkey appears in the redeem script.
	for p := Purpose(0); p < numPurposes; p++ {
		for _, dk := range m.local.precomputed[p] {
			if bytes.Contains(redeemScript, ecc.SerializePubKey(dk.pub, true)) {
				return redeemScript, dk, nil
			}
		}
	}
	return nil, nil, newErr(KindKeyNotFound, "local signing key not found for redeem script")
}

func buildMultisigRedeemScript(threshold int, pubKeys [][]byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(threshold))
	for _, pk := range pubKeys {
		builder.AddData(pk)
	}
	builder.AddInt64(int64(len(pubKeys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}
