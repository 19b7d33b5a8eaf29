package coinselect

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/ecc"
	"github.com/toole-brendan/shellwallet/scriptclass"
)

// SignInputs signs every input of tx in place, locating each input's
// signing key through keys and its previous output through prevOut.
// aesKey is required whenever keys.IsEncrypted() is true, and ignored
// otherwise.
func SignInputs(tx *wire.MsgTx, keys KeySource, prevOut PrevOutputFinder, aesKey *crypter.DerivedKey) error {
	if keys.IsEncrypted() && aesKey == nil {
		return newErr(KindMissingPassword, "")
	}
	for idx, in := range tx.TxIn {
		pkScript, _, ok := prevOut(in.PreviousOutPoint)
		if !ok {
			return wrapErr(KindMissingSigningKey, "previous output not found", nil)
		}
		classified := scriptclass.Classify(pkScript)
		switch classified.Class {
		case scriptclass.PubKeyHash, scriptclass.WitnessV0PubKeyHash:
			if err := signP2PKHInput(tx, idx, pkScript, classified.PubKeyHash, keys, aesKey); err != nil {
				return err
			}
		case scriptclass.ScriptHash, scriptclass.WitnessV0ScriptHash:
			if err := signP2SHMultisigInput(tx, idx, classified.ScriptHash, keys, aesKey); err != nil {
				return err
			}
		default:
			return newErr(KindUnsupportedScript, classified.Class.String())
		}
	}
	return nil
}

func signingKey(keys KeySource, pubKeyHash []byte, aesKey *crypter.DerivedKey) (*ecc.PrivateKey, error) {
	priv, err := keys.SigningKey(pubKeyHash, aesKey)
	if err != nil {
		return nil, wrapErr(KindMissingSigningKey, "", err)
	}
	return priv, nil
}

func signP2PKHInput(tx *wire.MsgTx, idx int, pkScript, pubKeyHash []byte, keys KeySource, aesKey *crypter.DerivedKey) error {
	priv, err := signingKey(keys, pubKeyHash, aesKey)
	if err != nil {
		return err
	}

	hash, err := txscript.CalcSignatureHash(pkScript, txscript.SigHashAll, tx, idx)
	if err != nil {
		return wrapErr(KindUnsupportedScript, "sighash", err)
	}
	sig, err := ecc.SignHash(priv, hash)
	if err != nil {
		return wrapErr(KindMissingSigningKey, "sign", err)
	}
	sigBytes := ecc.SerializeSignature(sig, ecc.SigHashAll)
	pubBytes := ecc.SerializePubKey(priv.PubKey(), true)

	script, err := txscript.NewScriptBuilder().AddData(sigBytes).AddData(pubBytes).Script()
	if err != nil {
		return wrapErr(KindUnsupportedScript, "build scriptSig", err)
	}
	tx.TxIn[idx].SignatureScript = script
	return nil
}

// signP2SHMultisigInput embeds this wallet's own signature over the
// redeem script found for scriptHash. It produces a partial scriptSig
// (OP_0 placeholder for CHECKMULTISIG's off-by-one bug, this signer's
// signature, and the redeem script); assembling the remaining
// cosigners' signatures into a final scriptSig is outside this
// pipeline's scope (single-wallet signing, not
// cross-cosigner coordination).
func signP2SHMultisigInput(tx *wire.MsgTx, idx int, scriptHash []byte, keys KeySource, aesKey *crypter.DerivedKey) error {
	redeemScript, signingDerivedKey, err := keys.FindRedeemScript(scriptHash)
	if err != nil {
		return wrapErr(KindMissingSigningKey, "redeem script", err)
	}

	priv, err := signingKey(keys, signingDerivedKey.PubKeyHash(), aesKey)
	if err != nil {
		return err
	}

	hash, err := txscript.CalcSignatureHash(redeemScript, txscript.SigHashAll, tx, idx)
	if err != nil {
		return wrapErr(KindUnsupportedScript, "sighash", err)
	}
	sig, err := ecc.SignHash(priv, hash)
	if err != nil {
		return wrapErr(KindMissingSigningKey, "sign", err)
	}
	sigBytes := ecc.SerializeSignature(sig, ecc.SigHashAll)

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(sigBytes).
		AddData(redeemScript).
		Script()
	if err != nil {
		return wrapErr(KindUnsupportedScript, "build scriptSig", err)
	}
	tx.TxIn[idx].SignatureScript = script
	return nil
}
