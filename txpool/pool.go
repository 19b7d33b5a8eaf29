package txpool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/lru"

	"github.com/toole-brendan/shellwallet/scriptclass"
)

// droppedCacheCapacity bounds the dropped-transaction cache at 1000
// entries.
const droppedCacheCapacity = 1000

// Listener receives pool-transition notifications. Set calls each
// listener synchronously, and the wallet facade's AddListener registers
// listeners with Set unchanged — Set itself holds no lock and assumes
// its caller serialises access under wallet_lock.
type Listener interface {
	OnCoinsReceived(tx *WalletTx)
	OnCoinsSent(tx *WalletTx)
}

// Set is the four-pool transaction store for one wallet. It holds no
// lock of its own: the wallet facade guards every call with
// wallet_lock.
type Set struct {
	byHash map[chainhash.Hash]*WalletTx

	pending map[chainhash.Hash]bool
	unspent map[chainhash.Hash]bool
	spent   map[chainhash.Hash]bool
	dead    map[chainhash.Hash]bool

	dropped *lru.Cache

	analyser    RiskAnalyzer
	acceptRisky bool

	tip int32

	listeners []Listener
}

// NewSet constructs an empty pool set. A nil analyser defaults to
// DefaultRiskAnalyzer.
func NewSet(analyser RiskAnalyzer, acceptRisky bool) *Set {
	if analyser == nil {
		analyser = DefaultRiskAnalyzer
	}
	return &Set{
		byHash:      make(map[chainhash.Hash]*WalletTx),
		pending:     make(map[chainhash.Hash]bool),
		unspent:     make(map[chainhash.Hash]bool),
		spent:       make(map[chainhash.Hash]bool),
		dead:        make(map[chainhash.Hash]bool),
		dropped:     lru.NewCache(droppedCacheCapacity),
		analyser:    analyser,
		acceptRisky: acceptRisky,
	}
}

// AddListener registers l to receive future OnCoinsReceived/OnCoinsSent
// notifications.
func (s *Set) AddListener(l Listener) { s.listeners = append(s.listeners, l) }

// TipHeight implements Context for s's own use as the default ctx when
// a caller has no richer wallet context to supply.
func (s *Set) TipHeight() int32 { return s.tip }

// Lookup returns the tracked transaction for hash, or nil.
func (s *Set) Lookup(hash chainhash.Hash) *WalletTx { return s.byHash[hash] }

// IsDropped reports whether hash is in the bounded dropped-as-risky
// cache.
func (s *Set) IsDropped(hash chainhash.Hash) bool { return s.dropped.Contains(hash) }

func recognizedOutputs(tx *wire.MsgTx, deps DependencySet) map[uint32]bool {
	owned := make(map[uint32]bool)
	for i, out := range tx.TxOut {
		if deps.IsScriptOurs != nil && deps.IsScriptOurs(out.PkScript) {
			owned[uint32(i)] = true
		}
	}
	return owned
}

func recognizedHashes(tx *wire.MsgTx, owned map[uint32]bool) [][]byte {
	var hashes [][]byte
	for idx := range owned {
		classified := scriptclass.Classify(tx.TxOut[idx].PkScript)
		switch classified.Class {
		case scriptclass.PubKeyHash, scriptclass.WitnessV0PubKeyHash:
			hashes = append(hashes, classified.PubKeyHash)
		case scriptclass.ScriptHash, scriptclass.WitnessV0ScriptHash:
			hashes = append(hashes, classified.ScriptHash)
		}
	}
	return hashes
}

// ReceivePending implements receive_pending: classify, risk-
// check, detect double spends against the existing Pending pool, and
// insert. Returns accepted=false if the risk analyser flagged tx as
// risky and acceptRisky is false, in which case tx was recorded in the
// dropped cache instead of the pool.
func (s *Set) ReceivePending(ctx Context, tx *wire.MsgTx, deps DependencySet) (accepted bool, err error) {
	return s.receivePending(ctx, tx, deps, SourceNetwork)
}

// CommitOwnPending inserts a transaction this wallet itself created and
// broadcast, stamping it with source=Self instead of source=Network so
// SpendableOutputs can later recognise its change output as our own
// still-unconfirmed money. Unlike ReceivePending it is never subject to
// the risk analyser or the dropped cache — a transaction this wallet
// signed cannot be risky to itself — and it always notifies listeners
// via OnCoinsSent, since every call on this path originates a payment
// rather than receiving one.
func (s *Set) CommitOwnPending(tx *wire.MsgTx, deps DependencySet) {
	hash := tx.TxHash()
	if _, known := s.byHash[hash]; known {
		return
	}
	s.insertPending(tx, hash, deps, SourceSelf)
	if wtx := s.byHash[hash]; wtx != nil {
		for _, l := range s.listeners {
			l.OnCoinsSent(wtx)
		}
	}
}

func (s *Set) receivePending(ctx Context, tx *wire.MsgTx, deps DependencySet, source Source) (accepted bool, err error) {
	hash := tx.TxHash()
	if _, known := s.byHash[hash]; known {
		return true, nil
	}

	if ctx == nil {
		ctx = s
	}
	verdict := s.analyser(ctx, tx, deps)
	if verdict.Risky && !s.acceptRisky {
		s.dropped.Add(hash)
		return false, nil
	}

	wtx := s.insertPending(tx, hash, deps, source)

	for _, l := range s.listeners {
		if len(wtx.OwnedOutputs) > 0 {
			l.OnCoinsReceived(wtx)
		} else {
			l.OnCoinsSent(wtx)
		}
	}
	return true, nil
}

// insertPending builds and records the WalletTx for tx, detecting
// double spends against the existing Pending pool and marking any
// recognised keys used. Shared by receivePending and CommitOwnPending,
// which differ only in risk-checking and which listener callback they
// emit.
func (s *Set) insertPending(tx *wire.MsgTx, hash chainhash.Hash, deps DependencySet, source Source) *WalletTx {
	wtx := newWalletTx(tx, hash)
	wtx.OwnedOutputs = recognizedOutputs(tx, deps)
	wtx.Confidence = Confidence{Type: ConfidencePending, Source: source}
	wtx.Pool = Pending

	conflicted := false
	for _, in := range tx.TxIn {
		for otherHash := range s.pending {
			other := s.byHash[otherHash]
			if other == nil {
				continue
			}
			for _, otherIn := range other.Tx.TxIn {
				if otherIn.PreviousOutPoint == in.PreviousOutPoint {
					conflicted = true
					other.Confidence.Type = ConfidenceInConflict
				}
			}
		}
	}
	if conflicted {
		wtx.Confidence.Type = ConfidenceInConflict
	}

	s.byHash[hash] = wtx
	s.pending[hash] = true

	if deps.MarkKeysUsed != nil {
		if hashes := recognizedHashes(tx, wtx.OwnedOutputs); len(hashes) > 0 {
			deps.MarkKeysUsed(hashes)
		}
	}
	return wtx
}

func (s *Set) movePool(hash chainhash.Hash, to Pool) {
	delete(s.pending, hash)
	delete(s.unspent, hash)
	delete(s.spent, hash)
	delete(s.dead, hash)
	switch to {
	case Pending:
		s.pending[hash] = true
	case Unspent:
		s.unspent[hash] = true
	case Spent:
		s.spent[hash] = true
	case Dead:
		s.dead[hash] = true
	}
	if wtx, ok := s.byHash[hash]; ok {
		wtx.Pool = to
	}
}

// applyConfirmation implements the on-best-chain half of
// notify_transaction_in_block, shared by NotifyTransactionInBlock and
// the reorg replay step.
func (s *Set) applyConfirmation(tx *wire.MsgTx, blockHash chainhash.Hash, height int32, deps DependencySet) {
	hash := tx.TxHash()
	wtx, known := s.byHash[hash]
	if !known {
		wtx = newWalletTx(tx, hash)
		wtx.OwnedOutputs = recognizedOutputs(tx, deps)
		s.byHash[hash] = wtx
	}

	for _, in := range tx.TxIn {
		prev, ok := s.byHash[in.PreviousOutPoint.Hash]
		if !ok {
			continue
		}
		prev.SpentOutputs[in.PreviousOutPoint.Index] = hash
		if prev.Pool == Unspent && prev.allOwnedOutputsSpent() {
			s.movePool(prev.Hash, Spent)
		}
	}

	spendsOurs := false
	for _, in := range tx.TxIn {
		if prev, ok := s.byHash[in.PreviousOutPoint.Hash]; ok && prev.OwnedOutputs[in.PreviousOutPoint.Index] {
			spendsOurs = true
		}
	}

	switch {
	case len(wtx.OwnedOutputs) > 0:
		s.movePool(hash, Unspent)
	case spendsOurs:
		s.movePool(hash, Spent)
	default:
		delete(s.pending, hash)
	}

	wtx.Confidence = Confidence{
		Type:             ConfidenceBuilding,
		Source:           wtx.Confidence.Source,
		AppearedAtHeight: height,
		Depth:            1,
		BlockHash:        blockHash,
	}

	for _, in := range tx.TxIn {
		for otherHash := range s.pending {
			if otherHash == hash {
				continue
			}
			other := s.byHash[otherHash]
			if other == nil {
				continue
			}
			for _, otherIn := range other.Tx.TxIn {
				if otherIn.PreviousOutPoint == in.PreviousOutPoint {
					other.Confidence.Type = ConfidenceDead
					h := hash
					other.Confidence.OverridingTx = &h
					s.movePool(otherHash, Dead)
				}
			}
		}
	}
}

// NotifyTransactionInBlock implements notify_transaction_in_block.
// onBestChain distinguishes a best-chain confirmation from a
// side-chain appearance, which only records metadata.
func (s *Set) NotifyTransactionInBlock(tx *wire.MsgTx, blockHash chainhash.Hash, height int32, onBestChain bool, deps DependencySet) {
	hash := tx.TxHash()
	if !onBestChain {
		if wtx, ok := s.byHash[hash]; ok {
			wtx.Confidence.BlockHash = blockHash
		}
		return
	}
	s.applyConfirmation(tx, blockHash, height, deps)
	if height > s.tip {
		s.tip = height
	}

	for _, l := range s.listeners {
		wtx := s.byHash[hash]
		if wtx == nil {
			continue
		}
		if len(wtx.OwnedOutputs) > 0 {
			l.OnCoinsReceived(wtx)
		} else {
			l.OnCoinsSent(wtx)
		}
	}
}

// SpendableOutput is one owned, not-yet-spent output the send pipeline
// can select as an input: an Unspent-pool output at any depth, or a
// Pending-pool output this wallet itself created (its own unconfirmed
// change), left for the caller to admit via AllowUnconfirmed.
type SpendableOutput struct {
	OutPoint          wire.OutPoint
	PkScript          []byte
	Value             int64
	ConfirmationDepth int32
	IsOwnUnconfirmed  bool
}

// SpendableOutputs lists every output the pool currently considers
// available to spend (the coin selector's candidate set comes
// from the wallet's Unspent pool, plus its own still-Pending change at
// the caller's discretion).
func (s *Set) SpendableOutputs() []SpendableOutput {
	var out []SpendableOutput
	for hash, wtx := range s.byHash {
		ownUnconfirmed := wtx.Pool == Pending && wtx.Confidence.Source == SourceSelf
		if wtx.Pool != Unspent && !ownUnconfirmed {
			continue
		}
		for idx := range wtx.OwnedOutputs {
			if _, spent := wtx.SpentOutputs[idx]; spent {
				continue
			}
			if int(idx) >= len(wtx.Tx.TxOut) {
				continue
			}
			depth := wtx.Confidence.Depth
			if ownUnconfirmed {
				depth = 0
			}
			out = append(out, SpendableOutput{
				OutPoint:          wire.OutPoint{Hash: hash, Index: idx},
				PkScript:          wtx.Tx.TxOut[idx].PkScript,
				Value:             wtx.Tx.TxOut[idx].Value,
				ConfirmationDepth: depth,
				IsOwnUnconfirmed:  ownUnconfirmed,
			})
		}
	}
	return out
}

// PrevOutput resolves an outpoint to its pkScript/value if this pool
// tracks the transaction that created it, regardless of pool — a spend
// can reference an output the pool has already moved to Spent.
func (s *Set) PrevOutput(op wire.OutPoint) (pkScript []byte, value int64, ok bool) {
	wtx, known := s.byHash[op.Hash]
	if !known || int(op.Index) >= len(wtx.Tx.TxOut) {
		return nil, 0, false
	}
	out := wtx.Tx.TxOut[op.Index]
	return out.PkScript, out.Value, true
}

// All returns every transaction currently tracked by the pool, in no
// particular order, for a caller (wallet persistence) that needs to
// flatten the whole set rather than look up individual hashes.
func (s *Set) All() []*WalletTx {
	out := make([]*WalletTx, 0, len(s.byHash))
	for _, wtx := range s.byHash {
		out = append(out, wtx)
	}
	return out
}

// SetTip sets the pool's notion of the best known chain height directly,
// for a caller (wallet persistence) restoring state without replaying
// every NotifyNewBestBlock call that produced it.
func (s *Set) SetTip(height int32) { s.tip = height }

// Restore reinserts a transaction with its pool classification and
// confidence already decided, bypassing ReceivePending's risk check and
// double-spend detection — used only to rebuild a pool from a
// persistence record, where that classification was already settled
// before the wallet was last saved.
func (s *Set) Restore(wtx *WalletTx) {
	s.byHash[wtx.Hash] = wtx
	s.movePool(wtx.Hash, wtx.Pool)
}

// NotifyNewBestBlock implements notify_new_best_block: every
// Building transaction's depth advances by one.
func (s *Set) NotifyNewBestBlock(height int32) {
	s.tip = height
	for _, wtx := range s.byHash {
		if wtx.Confidence.Type == ConfidenceBuilding {
			wtx.Confidence.Depth++
		}
	}
}
