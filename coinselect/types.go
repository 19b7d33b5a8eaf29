package coinselect

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/ecc"
	"github.com/toole-brendan/shellwallet/keychain"
)

// Candidate is one spendable output the selector may choose from: every
// output in our Unspent pool, plus, when a request allows it,
// unconfirmed change whose parent this wallet itself created.
type Candidate struct {
	OutPoint          wire.OutPoint
	PkScript          []byte
	Value             int64
	ConfirmationDepth int32
	IsOwnUnconfirmed  bool
}

// Selector chooses a subset of candidates summing to at least target,
// returning the chosen outputs and their total value. The default
// implementation is DefaultSelector; a Send Request may override it.
type Selector func(candidates []Candidate, target int64) (chosen []Candidate, total int64, err error)

// KeySource is the subset of *keychain.Group the send pipeline needs: a
// fresh change address, whether signing requires an AES key, and the
// per-input signing key lookup. Expressed as an interface so tests can
// supply a fake group instead of a real one.
type KeySource interface {
	FreshAddress(p keychain.Purpose) (*addr.Address, error)
	IsEncrypted() bool
	SigningKey(pubKeyHash []byte, derived *crypter.DerivedKey) (*ecc.PrivateKey, error)
	FindRedeemScript(scriptHash []byte) ([]byte, *keychain.DeterministicKey, error)
}

// Request bundles everything needed to build and sign a spend.
type Request struct {
	// Tx must already carry every destination output; coinselect only
	// ever appends inputs and, at most, one change output.
	Tx *wire.MsgTx

	FeePerKB       int64
	ShuffleOutputs bool
	AESKey         *crypter.DerivedKey

	// Selector overrides DefaultSelector when non-nil.
	Selector Selector
	// ChangeAddress overrides a freshly-derived change address when set.
	ChangeAddress []byte // pkScript, not address string

	AllowUnconfirmed bool
	EmptyWallet      bool
}

// Result is what CreateTransaction hands back on success: the finished,
// signed transaction and the fee it pays.
type Result struct {
	Tx        *wire.MsgTx
	Fee       int64
	ChangeIdx int // -1 if no change output was added
}

// PrevOutputFinder resolves an input's previous output so signing can
// compute the right sighash and scriptSig shape.
type PrevOutputFinder func(outpoint wire.OutPoint) (pkScript []byte, value int64, ok bool)
