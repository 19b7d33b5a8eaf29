package coinselect

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/ecc"
	"github.com/toole-brendan/shellwallet/hdkeychain"
	"github.com/toole-brendan/shellwallet/keychain"
	"github.com/toole-brendan/shellwallet/scriptclass"
)

func testGroup(t *testing.T) *keychain.Group {
	t.Helper()
	seed, err := hdkeychain.NewSeedFromEntropy(make([]byte, 16), "")
	if err != nil {
		t.Fatalf("NewSeedFromEntropy: %v", err)
	}
	chain, err := keychain.NewChain(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	g := keychain.NewGroup(&chaincfg.MainNetParams)
	g.AddChain(chain)
	return g
}

func p2pkhScript(t *testing.T, hash []byte) []byte {
	t.Helper()
	script, err := scriptclass.PayToPubKeyHashScript(hash)
	if err != nil {
		t.Fatalf("PayToPubKeyHashScript: %v", err)
	}
	return script
}

func TestDustThresholdMatchesReferenceRate(t *testing.T) {
	if got := DustThreshold(10000); got != 2730 {
		t.Fatalf("DustThreshold(10000) = %d, want 2730", got)
	}
}

func TestDefaultSelectorOrdersByDepthThenValueThenHash(t *testing.T) {
	var lowHash, highHash chainhash.Hash
	lowHash[0] = 1
	highHash[0] = 2

	candidates := []Candidate{
		{OutPoint: wire.OutPoint{Hash: highHash}, Value: 1000, ConfirmationDepth: 1},
		{OutPoint: wire.OutPoint{Hash: lowHash}, Value: 1000, ConfirmationDepth: 1},
		{OutPoint: wire.OutPoint{Hash: lowHash, Index: 1}, Value: 5000, ConfirmationDepth: 1},
		{OutPoint: wire.OutPoint{Hash: lowHash, Index: 2}, Value: 9000, ConfirmationDepth: 3},
	}

	chosen, total, err := DefaultSelector(candidates, 9000)
	if err != nil {
		t.Fatalf("DefaultSelector: %v", err)
	}
	if len(chosen) != 1 || chosen[0].ConfirmationDepth != 3 {
		t.Fatalf("expected the single deepest candidate chosen first, got %+v", chosen)
	}
	if total != 9000 {
		t.Fatalf("total = %d, want 9000", total)
	}

	chosen, total, err = DefaultSelector(candidates, 16000)
	if err != nil {
		t.Fatalf("DefaultSelector: %v", err)
	}
	if len(chosen) != 4 || chosen[0].ConfirmationDepth != 3 || chosen[1].Value != 5000 ||
		chosen[2].OutPoint.Hash != lowHash || chosen[3].OutPoint.Hash != highHash {
		t.Fatalf("expected depth desc, then value desc, then hash asc, got %+v", chosen)
	}
	if total != 16000 {
		t.Fatalf("total = %d, want 16000", total)
	}
}

func TestDefaultSelectorInsufficientFunds(t *testing.T) {
	candidates := []Candidate{{Value: 100, ConfirmationDepth: 1}}
	_, _, err := DefaultSelector(candidates, 1000)
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindInsufficientMoney || cerr.Missing != 900 {
		t.Fatalf("expected InsufficientMoney{900}, got %v", err)
	}
}

func TestCreateTransactionSelectsSignsAndAddsChange(t *testing.T) {
	g := testGroup(t)
	fundingKey := g.ActiveChain().GetKey(keychain.Receive)
	fundingScript := p2pkhScript(t, fundingKey.PubKeyHash())

	var fundingTxHash chainhash.Hash
	fundingTxHash[0] = 0x42
	outpoint := wire.OutPoint{Hash: fundingTxHash, Index: 0}

	destHash := make([]byte, 20)
	destHash[0] = 0x99
	destScript := p2pkhScript(t, destHash)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(50000, destScript))

	req := &Request{Tx: tx, FeePerKB: 10000}
	candidates := []Candidate{{OutPoint: outpoint, PkScript: fundingScript, Value: 100000, ConfirmationDepth: 6}}

	prevOut := func(op wire.OutPoint) ([]byte, int64, bool) {
		if op == outpoint {
			return fundingScript, 100000, true
		}
		return nil, 0, false
	}

	result, err := CreateTransaction(req, candidates, g, prevOut)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if result.ChangeIdx < 0 {
		t.Fatalf("expected a change output given 100000 input vs 50000 destination")
	}
	if len(result.Tx.TxIn) != 1 {
		t.Fatalf("expected exactly one input, got %d", len(result.Tx.TxIn))
	}
	if len(result.Tx.TxIn[0].SignatureScript) == 0 {
		t.Fatalf("expected input to be signed")
	}

	spent := result.Tx.TxOut[0].Value + result.Tx.TxOut[result.ChangeIdx].Value + result.Fee
	if spent != 100000 {
		t.Fatalf("destination + change + fee = %d, want 100000", spent)
	}

	engine, err := txscript.NewEngine(fundingScript, result.Tx, 0, txscript.StandardVerifyFlags, nil, nil, 100000, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.Execute(); err != nil {
		t.Fatalf("script execution failed: %v", err)
	}
}

func TestCreateTransactionInsufficientMoney(t *testing.T) {
	g := testGroup(t)
	fundingKey := g.ActiveChain().GetKey(keychain.Receive)
	fundingScript := p2pkhScript(t, fundingKey.PubKeyHash())

	destScript := p2pkhScript(t, make([]byte, 20))
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(50000, destScript))

	req := &Request{Tx: tx, FeePerKB: 10000}
	candidates := []Candidate{{Value: 1000, PkScript: fundingScript, ConfirmationDepth: 6}}

	_, err := CreateTransaction(req, candidates, g, func(wire.OutPoint) ([]byte, int64, bool) { return nil, 0, false })
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindInsufficientMoney {
		t.Fatalf("expected InsufficientMoney, got %v", err)
	}
}

func TestCreateTransactionRejectsDustDestination(t *testing.T) {
	g := testGroup(t)
	destScript := p2pkhScript(t, make([]byte, 20))
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(100, destScript))

	req := &Request{Tx: tx, FeePerKB: 10000}
	_, err := CreateTransaction(req, nil, g, nil)
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindDustySend {
		t.Fatalf("expected DustySend, got %v", err)
	}
}

func TestCreateTransactionRejectsMultipleOpReturn(t *testing.T) {
	g := testGroup(t)
	opReturn, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData([]byte("a")).Script()
	if err != nil {
		t.Fatalf("build OP_RETURN: %v", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, opReturn))
	tx.AddTxOut(wire.NewTxOut(0, opReturn))

	req := &Request{Tx: tx, FeePerKB: 10000}
	_, err = CreateTransaction(req, nil, g, nil)
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindMultipleOpReturnRequested {
		t.Fatalf("expected MultipleOpReturnRequested, got %v", err)
	}
}

// alwaysEncryptedKeySource wraps a *keychain.Group and reports
// IsEncrypted as always true, to exercise SignInputs' aes-key
// requirement without paying for a real scrypt-backed Encrypt call.
type alwaysEncryptedKeySource struct{ inner *keychain.Group }

func (a *alwaysEncryptedKeySource) FreshAddress(p keychain.Purpose) (*addr.Address, error) {
	return a.inner.FreshAddress(p)
}
func (a *alwaysEncryptedKeySource) IsEncrypted() bool { return true }
func (a *alwaysEncryptedKeySource) SigningKey(h []byte, d *crypter.DerivedKey) (*ecc.PrivateKey, error) {
	return a.inner.SigningKey(h, d)
}
func (a *alwaysEncryptedKeySource) FindRedeemScript(h []byte) ([]byte, *keychain.DeterministicKey, error) {
	return a.inner.FindRedeemScript(h)
}

func TestSignInputsRequiresAESKeyWhenEncrypted(t *testing.T) {
	g := testGroup(t)
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))

	err := SignInputs(tx, &alwaysEncryptedKeySource{inner: g}, func(wire.OutPoint) ([]byte, int64, bool) {
		return p2pkhScript(t, make([]byte, 20)), 1000, true
	}, nil)
	cerr, ok := err.(*Error)
	if !ok || cerr.Kind != KindMissingPassword {
		t.Fatalf("expected MissingPassword, got %v", err)
	}
}
