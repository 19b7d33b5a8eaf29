package wallet

import (
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/shellwallet/coinselect"
	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/keychain"
	"github.com/toole-brendan/shellwallet/scriptclass"
	"github.com/toole-brendan/shellwallet/txpool"
)

// log is a logger initialized with no output filters; the package does
// no logging by default until the caller requests it.
var log btclog.Logger

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

func init() {
	DisableLog()
}

// DisableLog disables all library log output. Logging is disabled by
// default until UseLogger is called.
func DisableLog() {
	log = btclog.Disabled
}

// Wallet wires the Key Chain Group, Transaction Pool and Coin Selector
// together into one client-side wallet engine.
//
// walletLock guards every field below it, including the pool (txpool.Set
// holds no lock of its own, per its own doc comment) and the watched-
// script/last-seen-block/rotation bookkeeping. keychain.Group guards
// itself with its own keyChainGroupLock; walletLock may be held while
// calling into Group (the only permitted nesting order).
type Wallet struct {
	walletLock sync.RWMutex

	cfg   Config
	group *keychain.Group
	pool  *txpool.Set
	cr    *crypter.Crypter // nil until Encrypt is called

	watchedScripts map[string]int64 // pkScript -> createdAt

	lastSeenBlockHash   chainhash.Hash
	lastSeenBlockHeight int32
	lastSeenBlockTime   int64

	keyRotationTime int64
	description     string
	version         int32
}

// New constructs a Wallet around an already-populated Key Chain Group.
func New(cfg Config, group *keychain.Group) *Wallet {
	if cfg.DefaultFeePerKB == 0 {
		cfg.DefaultFeePerKB = 10000
	}
	return &Wallet{
		cfg:            cfg,
		group:          group,
		pool:           txpool.NewSet(cfg.RiskAnalyzer, cfg.AcceptRisky),
		watchedScripts: make(map[string]int64),
		version:        1,
	}
}

// Context returns the txpool.Context view of this wallet's chain tip.
func (w *Wallet) Context() *Context { return &Context{pool: w.pool} }

// AddListener registers l to receive future coins-received/coins-sent
// notifications from the transaction pool.
func (w *Wallet) AddListener(l Listener) {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()
	w.pool.AddListener(l)
}

// WatchScript starts tracking pkScript as belonging to the wallet
// without holding its signing key (e.g. a counterparty's half of a
// shared output).
func (w *Wallet) WatchScript(pkScript []byte, createdAt int64) {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()
	w.watchedScripts[string(pkScript)] = createdAt
}

func (w *Wallet) isWatched(pkScript []byte) bool {
	_, ok := w.watchedScripts[string(pkScript)]
	return ok
}

// deps must be called with walletLock held (for isWatched); it reaches
// into keychain.Group, which takes its own lock.
func (w *Wallet) deps() txpool.DependencySet {
	return txpool.DependencySet{
		IsScriptOurs: func(pkScript []byte) bool {
			if w.isWatched(pkScript) {
				return true
			}
			return w.group.IsScriptOurs(scriptclass.Classify(pkScript))
		},
		MarkKeysUsed: w.group.MarkKeysUsed,
	}
}

// CurrentAddress returns the active chain's current receive or change
// address without advancing it.
func (w *Wallet) CurrentAddress(p keychain.Purpose) (string, error) {
	a, err := w.group.CurrentAddress(p)
	if err != nil {
		return "", wrapErr(KindNoActiveChain, "current address", err)
	}
	return a.String(), nil
}

// FreshAddress issues an address through keychain.Group.FreshAddress:
// for a non-married active chain, the address CurrentAddress was
// returning, after which the chain advances past it.
func (w *Wallet) FreshAddress(p keychain.Purpose) (string, error) {
	a, err := w.group.FreshAddress(p)
	if err != nil {
		return "", wrapErr(KindNoActiveChain, "fresh address", err)
	}
	return a.String(), nil
}

// BloomFilterMaterial returns every public key, public-key hash,
// script hash and watched script the wallet currently recognises — raw
// elements a caller's own Bloom filter library inserts.
func (w *Wallet) BloomFilterMaterial() (pubKeys, pubKeyHashes, scriptHashes [][]byte) {
	pubKeys, pubKeyHashes, scriptHashes = w.group.BloomFilterMaterial()

	w.walletLock.RLock()
	defer w.walletLock.RUnlock()
	for script := range w.watchedScripts {
		scriptHashes = append(scriptHashes, []byte(script))
	}
	return pubKeys, pubKeyHashes, scriptHashes
}

// Encrypt wraps every key in the group under a freshly generated
// Crypter derived from passphrase.
func (w *Wallet) Encrypt(passphrase []byte) error {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()

	if w.cr != nil {
		return newErr(KindEncrypted, "wallet is already encrypted")
	}
	params, err := crypter.NewParams()
	if err != nil {
		return wrapErr(KindPersistence, "generate crypter params", err)
	}
	cr := crypter.New(params)
	derived, err := cr.DeriveKey(passphrase)
	if err != nil {
		return wrapErr(KindPersistence, "derive key", err)
	}
	defer derived.Wipe()

	if err := w.group.Encrypt(cr, derived); err != nil {
		return err
	}
	w.cr = cr
	return nil
}

// Decrypt unwraps every key back to cleartext, or returns
// KindWrongPassword if passphrase is incorrect.
func (w *Wallet) Decrypt(passphrase []byte) error {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()

	if w.cr == nil {
		return newErr(KindNotEncrypted, "")
	}
	derived, err := w.cr.DeriveKey(passphrase)
	if err != nil {
		return wrapErr(KindPersistence, "derive key", err)
	}
	defer derived.Wipe()

	if !w.group.CheckPassword(w.cr, derived) {
		return newErr(KindWrongPassword, "")
	}
	if err := w.group.Decrypt(derived); err != nil {
		return wrapErr(KindWrongPassword, "decrypt", err)
	}
	w.cr = nil
	return nil
}

func (w *Wallet) deriveAESKey(passphrase []byte) (*crypter.DerivedKey, error) {
	w.walletLock.RLock()
	cr := w.cr
	w.walletLock.RUnlock()

	if cr == nil {
		return nil, nil
	}
	derived, err := cr.DeriveKey(passphrase)
	if err != nil {
		return nil, wrapErr(KindPersistence, "derive key", err)
	}
	if !w.group.CheckPassword(cr, derived) {
		derived.Wipe()
		return nil, newErr(KindWrongPassword, "")
	}
	return derived, nil
}

// OnTransactionBroadcastFrom accepts a transaction a peer announced as
// pending, the network half of the external interface (receive_pending
// driven by the network rather than our own send pipeline).
func (w *Wallet) OnTransactionBroadcastFrom(tx *wire.MsgTx) (accepted bool, err error) {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()
	return w.pool.ReceivePending(w.Context(), tx, w.deps())
}

// OnTransactionInBlock implements notify_transaction_in_block: a
// chain/peer driver calls this once per transaction as it walks
// a connected block.
func (w *Wallet) OnTransactionInBlock(tx *wire.MsgTx, blockHash chainhash.Hash, height int32, onBestChain bool) {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()
	w.pool.NotifyTransactionInBlock(tx, blockHash, height, onBestChain, w.deps())
	if onBestChain && height > w.lastSeenBlockHeight {
		w.lastSeenBlockHash = blockHash
		w.lastSeenBlockHeight = height
	}
}

// OnNewBestBlock implements notify_new_best_block.
func (w *Wallet) OnNewBestBlock(height int32, hash chainhash.Hash, blockTime int64) {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()
	w.pool.NotifyNewBestBlock(height)
	w.lastSeenBlockHash = hash
	w.lastSeenBlockHeight = height
	w.lastSeenBlockTime = blockTime
}

// ReorgBlock mirrors txpool.ReorgBlock so callers never need to import
// txpool directly to drive a reorg.
type ReorgBlock = txpool.ReorgBlock

// OnReorganize implements reorganize.
func (w *Wallet) OnReorganize(splitHeight int32, oldBlocks, newBlocks []ReorgBlock) {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()
	w.pool.Reorganize(splitHeight, oldBlocks, newBlocks, w.deps())
}

// CreateAndCommitTransaction runs the Coin Selector & Send Pipeline
// against the wallet's own spendable outputs, then inserts the
// signed result into the pool as our own pending send.
func (w *Wallet) CreateAndCommitTransaction(req *SendRequest, passphrase []byte) (*SendResult, error) {
	if req.FeePerKB == 0 {
		req.FeePerKB = w.cfg.DefaultFeePerKB
	}

	aesKey, err := w.deriveAESKey(passphrase)
	if err != nil {
		return nil, err
	}
	if aesKey != nil {
		defer aesKey.Wipe()
		req.AESKey = aesKey
	}

	w.walletLock.Lock()
	defer w.walletLock.Unlock()

	var candidates []coinselect.Candidate
	for _, o := range w.pool.SpendableOutputs() {
		candidates = append(candidates, coinselect.Candidate{
			OutPoint:          o.OutPoint,
			PkScript:          o.PkScript,
			Value:             o.Value,
			ConfirmationDepth: o.ConfirmationDepth,
			IsOwnUnconfirmed:  o.IsOwnUnconfirmed,
		})
	}

	result, err := coinselect.CreateTransaction(req, candidates, w.group, w.pool.PrevOutput)
	if err != nil {
		return nil, err
	}

	w.pool.CommitOwnPending(result.Tx, w.deps())
	return result, nil
}

// Pool exposes the underlying transaction pool for callers that need
// direct lookups (e.g. listing transaction history); every call must
// still be made under the caller's understanding that txpool.Set itself
// holds no lock — use Lookup/CheckConsistency only while reasoning
// about a snapshot, never concurrently with a Wallet method.
func (w *Wallet) Pool() *txpool.Set { return w.pool }
