package txpool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Pool is one of the four mutually-exclusive classifications a wallet
// transaction occupies.
type Pool int

const (
	Pending Pool = iota
	Unspent
	Spent
	Dead
)

func (p Pool) String() string {
	switch p {
	case Pending:
		return "pending"
	case Unspent:
		return "unspent"
	case Spent:
		return "spent"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// ConfidenceType is a transaction's network belief state (glossary).
type ConfidenceType int

const (
	ConfidenceUnknown ConfidenceType = iota
	ConfidenceBuilding
	ConfidencePending
	ConfidenceDead
	ConfidenceInConflict
)

func (c ConfidenceType) String() string {
	switch c {
	case ConfidenceBuilding:
		return "building"
	case ConfidencePending:
		return "pending"
	case ConfidenceDead:
		return "dead"
	case ConfidenceInConflict:
		return "in-conflict"
	default:
		return "unknown"
	}
}

// Source records how a transaction first reached the wallet.
type Source int

const (
	SourceUnknown Source = iota
	SourceNetwork
	SourceSelf
)

// Confidence is the per-transaction belief-state record.
type Confidence struct {
	Type             ConfidenceType
	Source           Source
	AppearedAtHeight int32
	Depth            int32
	BlockHash        chainhash.Hash
	OverridingTx     *chainhash.Hash
}

// TxPurpose tags why a transaction exists, for display purposes only;
// no assurance-contract or fee-bump protocol engine is implemented
// here.
type TxPurpose int

const (
	PurposeUnknown TxPurpose = iota
	PurposeUserPayment
	PurposeKeyRotation
	PurposeAssuranceContractStub
	PurposeAssuranceContractPledge
	PurposeAssuranceContractClaim
	PurposeRaiseFee
)

// WalletTx is one transaction tracked by the pool, together with its
// pool classification, confidence record, and the bookkeeping needed to
// answer "has every output we own in this transaction been spent".
type WalletTx struct {
	Tx         *wire.MsgTx
	Hash       chainhash.Hash
	Pool       Pool
	Confidence Confidence
	Purpose    TxPurpose

	// OwnedOutputs is the set of output indices whose script the Key
	// Chain Group recognised as ours at insertion time.
	OwnedOutputs map[uint32]bool
	// SpentOutputs maps an owned output index to the hash of the
	// transaction that spends it, once known.
	SpentOutputs map[uint32]chainhash.Hash
}

func newWalletTx(tx *wire.MsgTx, hash chainhash.Hash) *WalletTx {
	return &WalletTx{
		Tx:           tx,
		Hash:         hash,
		OwnedOutputs: make(map[uint32]bool),
		SpentOutputs: make(map[uint32]chainhash.Hash),
	}
}

// allOwnedOutputsSpent reports whether every output this transaction
// owns now has a recorded spender.
func (w *WalletTx) allOwnedOutputsSpent() bool {
	if len(w.OwnedOutputs) == 0 {
		return false
	}
	for idx := range w.OwnedOutputs {
		if _, ok := w.SpentOutputs[idx]; !ok {
			return false
		}
	}
	return true
}

// DependencySet bundles the Key Chain Group / pool lookups the pool
// needs but does not own, so txpool never imports keychain or wallet
// directly (a pure-function risk analyser, no global
// singletons).
type DependencySet struct {
	// IsScriptOurs reports whether a Key Chain Group recognises pkScript.
	IsScriptOurs func(pkScript []byte) bool
	// MarkKeysUsed tells the Key Chain Group every recognised output's
	// pubkey-hash (or script-hash) has now been used.
	MarkKeysUsed func(hashes [][]byte)
}

// Context is the minimal view of wallet state a RiskAnalyzer needs. A
// concrete *wallet.Context satisfies this without txpool importing the
// wallet package (which itself imports txpool for pool storage).
type Context interface {
	// TipHeight returns the height of the best known chain block.
	TipHeight() int32
}

// Verdict is the risk analyser's pure-function output: a transaction
// is either accepted or flagged risky with a reason.
type Verdict struct {
	Risky  bool
	Reason string
}

// RiskAnalyzer classifies a not-yet-accepted transaction before it
// enters the Pending pool.
type RiskAnalyzer func(ctx Context, tx *wire.MsgTx, deps DependencySet) Verdict

// DefaultRiskAnalyzer accepts every transaction, matching a wallet run
// with accept_risky effectively always true; callers wanting dust/
// non-final rejection should supply their own analyser.
func DefaultRiskAnalyzer(_ Context, _ *wire.MsgTx, _ DependencySet) Verdict {
	return Verdict{Risky: false}
}
