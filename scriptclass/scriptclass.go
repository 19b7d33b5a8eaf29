// Package scriptclass is the pure-function output-script classifier
// (a design note on runtime type-dispatch): every output
// script the wallet core sees — whether building one for an address we
// own or deciding whether a chain block output is ours — is reduced to
// a single tagged Script value the rest of the wallet branches on.
package scriptclass

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"

	"github.com/toole-brendan/shellwallet/ecc"
)

// Class enumerates every script shape the wallet can recognise. Only
// PubKeyHash, ScriptHash and PubKey are ever *issued* by this wallet;
// the witness/taproot/multisig/nulldata classes exist so a
// watched script of one of those forms is never misclassified as
// NonStandard and silently treated as not ours.
type Class int

const (
	NonStandard Class = iota
	PubKeyHash
	ScriptHash
	PubKey
	MultiSig
	NullData
	WitnessV0PubKeyHash
	WitnessV0ScriptHash
	WitnessV1Taproot
)

func (c Class) String() string {
	switch c {
	case PubKeyHash:
		return "pay-to-pubkey-hash"
	case ScriptHash:
		return "pay-to-script-hash"
	case PubKey:
		return "pay-to-pubkey"
	case MultiSig:
		return "multisig"
	case NullData:
		return "null-data"
	case WitnessV0PubKeyHash:
		return "witness-v0-pubkey-hash"
	case WitnessV0ScriptHash:
		return "witness-v0-script-hash"
	case WitnessV1Taproot:
		return "witness-v1-taproot"
	default:
		return "non-standard"
	}
}

// Script is the tagged variant a classified output script reduces to:
// at most one of the payload fields (PubKeyHash, ScriptHash, PubKey) is
// populated, matching Class; MultiSig, NullData, WitnessV1Taproot and
// NonStandard carry none.
type Script struct {
	Class Class

	PubKeyHash     []byte // 20 bytes, PubKeyHash / WitnessV0PubKeyHash
	ScriptHash     []byte // 20 bytes (ScriptHash) or 32 bytes (WitnessV0ScriptHash)
	PubKey         []byte // compressed or uncompressed SEC1 point, PubKey class
	WitnessVersion byte   // valid for the two Witness* classes and Taproot
}

// Classify reduces script to its tagged variant. It never errors: an
// unrecognised or malformed script simply classifies as NonStandard,
// since "I don't recognise this" is a valid, common answer for
// arbitrary chain data.
func Classify(script []byte) Script {
	if hash := ecc.ExtractPubKeyHash(script); hash != nil {
		return Script{Class: PubKeyHash, PubKeyHash: hash}
	}
	if hash := ecc.ExtractScriptHash(script); hash != nil {
		return Script{Class: ScriptHash, ScriptHash: hash}
	}
	if pub := ecc.ExtractPubKey(script); pub != nil {
		return Script{Class: PubKey, PubKey: pub}
	}
	if prog, ver, ok := extractWitnessProgram(script); ok {
		switch {
		case ver == 0 && len(prog) == 20:
			return Script{Class: WitnessV0PubKeyHash, PubKeyHash: prog, WitnessVersion: 0}
		case ver == 0 && len(prog) == 32:
			return Script{Class: WitnessV0ScriptHash, ScriptHash: prog, WitnessVersion: 0}
		case ver == 1 && len(prog) == 32:
			return Script{Class: WitnessV1Taproot, WitnessVersion: 1}
		}
	}
	if isNullData(script) {
		return Script{Class: NullData}
	}
	if isMultiSig(script) {
		return Script{Class: MultiSig}
	}
	return Script{Class: NonStandard}
}

// PayToPubKeyHashScript builds the standard OP_DUP OP_HASH160 <hash>
// OP_EQUALVERIFY OP_CHECKSIG output script for a 20-byte pubkey hash.
func PayToPubKeyHashScript(hash []byte) ([]byte, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("scriptclass: pubkey hash must be 20 bytes, got %d", len(hash))
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// PayToScriptHashScript builds the standard OP_HASH160 <hash> OP_EQUAL
// output script for a 20-byte script hash.
func PayToScriptHashScript(hash []byte) ([]byte, error) {
	if len(hash) != 20 {
		return nil, fmt.Errorf("scriptclass: script hash must be 20 bytes, got %d", len(hash))
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(hash).
		AddOp(txscript.OP_EQUAL).
		Script()
}

// PayToPubKeyScript builds the standard <pubkey> OP_CHECKSIG output
// script.
func PayToPubKeyScript(pub []byte) ([]byte, error) {
	if len(pub) != 33 && len(pub) != 65 {
		return nil, fmt.Errorf("scriptclass: public key must be 33 or 65 bytes, got %d", len(pub))
	}
	return txscript.NewScriptBuilder().
		AddData(pub).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// extractWitnessProgram recognises the fixed "version push ++ data
// push" shape of a native segwit output script: OP_0..OP_16 followed by
// a single data push of 2-40 bytes, with no other opcodes (BIP141).
func extractWitnessProgram(script []byte) (program []byte, version byte, ok bool) {
	if len(script) < 4 || len(script) > 42 {
		return nil, 0, false
	}
	op := script[0]
	switch {
	case op == txscript.OP_0:
		version = 0
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		version = op - txscript.OP_1 + 1
	default:
		return nil, 0, false
	}
	pushLen := int(script[1])
	if pushLen < 2 || pushLen > 40 || len(script) != 2+pushLen {
		return nil, 0, false
	}
	return append([]byte(nil), script[2:]...), version, true
}

func isNullData(script []byte) bool {
	return len(script) >= 1 && script[0] == txscript.OP_RETURN
}

func isMultiSig(script []byte) bool {
	if len(script) < 3 {
		return false
	}
	return script[len(script)-1] == txscript.OP_CHECKMULTISIG
}
