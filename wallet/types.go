package wallet

import (
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/coinselect"
	"github.com/toole-brendan/shellwallet/txpool"
)

// Config bundles the construction-time parameters a Wallet needs,
// following the same Config-struct-per-component convention this stack
// uses elsewhere (coinselect.Request).
type Config struct {
	Params          *chaincfg.Params
	RiskAnalyzer    txpool.RiskAnalyzer
	AcceptRisky     bool
	DefaultFeePerKB int64
	// PersistPath, when non-empty, is where Save persists the wallet.
	// An empty path leaves Save a no-op, useful for tests that
	// never touch disk.
	PersistPath string
}

// Context gives a RiskAnalyzer the tip height without txpool importing
// this package (txpool.Set already satisfies the same one-method
// interface; Wallet wraps it so a caller reasoning about "wallet state"
// has one name to reach for).
type Context struct {
	pool *txpool.Set
}

// TipHeight implements txpool.Context.
func (c *Context) TipHeight() int32 { return c.pool.TipHeight() }

// Listener receives the same coins-received/coins-sent notifications
// txpool.Listener does; Wallet re-exports the type so callers never
// need to import txpool directly to register one.
type Listener = txpool.Listener

// SendRequest is the facade's entry point for an outbound payment,
// thin sugar over coinselect.Request: Wallet supplies the candidate set
// and KeySource/PrevOutputFinder from its own state so callers only
// specify what they want sent.
type SendRequest = coinselect.Request

// SendResult is returned by Wallet.CreateAndCommitTransaction.
type SendResult = coinselect.Result
