package coinselect

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/keychain"
	"github.com/toole-brendan/shellwallet/scriptclass"
)

// maxStandardTransactionSize mirrors Bitcoin's own standardness cap
// (ExceededMaxTransactionSize).
const maxStandardTransactionSize = 100_000

// maxFeeIterations bounds the fee re-estimation loop; the sum always
// monotonically increases as inputs are added, so it converges in a
// handful of passes ("loop until the fee no longer changes").
const maxFeeIterations = 6

// CreateTransaction implements the Coin Selector & Send Pipeline:
// it selects inputs for req.Tx's existing destination outputs,
// adds a change output if needed, re-estimates the fee until it
// stabilises, signs every input, and returns the finished transaction.
// It does not commit the result to any pool; callers do that (e.g. the
// wallet facade inserting it into txpool as Pending/source=Self).
func CreateTransaction(req *Request, candidates []Candidate, keys KeySource, prevOut PrevOutputFinder) (*Result, error) {
	if err := checkSingleOpReturn(req.Tx); err != nil {
		return nil, err
	}

	eligible := filterEligible(candidates, req.AllowUnconfirmed)
	selector := req.Selector
	if selector == nil {
		selector = DefaultSelector
	}
	feeCalc := NewFeeCalculator(req.FeePerKB)

	target := sumOutputs(req.Tx)
	for _, out := range req.Tx.TxOut {
		if IsDust(out.Value, req.FeePerKB) {
			return nil, newErr(KindDustySend, "")
		}
	}

	if req.EmptyWallet {
		result, err := createEmptyWalletTransaction(req, eligible, feeCalc)
		if err != nil {
			return nil, err
		}
		if err := SignInputs(result.Tx, keys, prevOut, req.AESKey); err != nil {
			return nil, err
		}
		return result, nil
	}

	var chosen []Candidate
	var total int64
	fee := feeCalc.EstimateFee(req.Tx)
	for i := 0; i < maxFeeIterations; i++ {
		var err error
		chosen, total, err = selector(eligible, target+fee)
		if err != nil {
			return nil, err
		}
		trial := cloneTx(req.Tx)
		for _, c := range chosen {
			trial.AddTxIn(wire.NewTxIn(&c.OutPoint, nil, nil))
		}
		newFee := feeCalc.EstimateFee(trial)
		if newFee == fee {
			fee = newFee
			break
		}
		fee = newFee
	}

	tx := cloneTx(req.Tx)
	for _, c := range chosen {
		tx.AddTxIn(wire.NewTxIn(&c.OutPoint, nil, nil))
	}

	changeIdx := -1
	surplus := total - target - fee
	if surplus > 0 {
		changeScript, err := changePkScript(req, keys)
		if err != nil {
			return nil, err
		}
		if IsDust(surplus, req.FeePerKB) {
			// Too small to be worth its own output; donate the surplus
			// to the fee instead of creating dust change.
			fee += surplus
		} else {
			tx.AddTxOut(wire.NewTxOut(surplus, changeScript))
			changeIdx = len(tx.TxOut) - 1
			// Adding the change output changed tx size; re-estimate once
			// more and shrink change to absorb the difference.
			newFee := feeCalc.EstimateFee(tx)
			if newFee > fee {
				delta := newFee - fee
				if tx.TxOut[changeIdx].Value-delta < 0 {
					return nil, newErr(KindCouldNotAdjustDownwards, "change cannot absorb fee increase")
				}
				tx.TxOut[changeIdx].Value -= delta
				fee = newFee
			}
		}
	}

	if tx.SerializeSize() > maxStandardTransactionSize {
		return nil, newErr(KindExceededMaxTransactionSize, "")
	}

	if err := SignInputs(tx, keys, prevOut, req.AESKey); err != nil {
		return nil, err
	}

	return &Result{Tx: tx, Fee: fee, ChangeIdx: changeIdx}, nil
}

// createEmptyWalletTransaction spends every eligible candidate into the
// existing destination outputs, shrinking the final output to absorb
// the fee instead of adding a change output (empty_wallet).
func createEmptyWalletTransaction(req *Request, eligible []Candidate, feeCalc *FeeCalculator) (*Result, error) {
	if len(req.Tx.TxOut) == 0 {
		return nil, newErr(KindInsufficientMoney, "empty_wallet requires at least one destination output")
	}
	tx := cloneTx(req.Tx)
	var total int64
	for _, c := range eligible {
		tx.AddTxIn(wire.NewTxIn(&c.OutPoint, nil, nil))
		total += c.Value
	}
	if len(eligible) == 0 {
		return nil, insufficientMoney(1)
	}

	fee := feeCalc.EstimateFee(tx)
	last := len(tx.TxOut) - 1
	destinationsExceptLast := sumOutputs(tx) - tx.TxOut[last].Value
	remaining := total - destinationsExceptLast - fee
	if remaining < 0 {
		return nil, newErr(KindCouldNotAdjustDownwards, "insufficient funds to cover fee after emptying wallet")
	}
	if IsDust(remaining, req.FeePerKB) {
		return nil, newErr(KindDustySend, "")
	}
	tx.TxOut[last].Value = remaining

	if tx.SerializeSize() > maxStandardTransactionSize {
		return nil, newErr(KindExceededMaxTransactionSize, "")
	}
	return &Result{Tx: tx, Fee: fee, ChangeIdx: -1}, nil
}

func filterEligible(candidates []Candidate, allowUnconfirmed bool) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.ConfirmationDepth == 0 && !(allowUnconfirmed && c.IsOwnUnconfirmed) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sumOutputs(tx *wire.MsgTx) int64 {
	var total int64
	for _, out := range tx.TxOut {
		total += out.Value
	}
	return total
}

func cloneTx(tx *wire.MsgTx) *wire.MsgTx {
	cp := wire.NewMsgTx(tx.Version)
	cp.LockTime = tx.LockTime
	for _, out := range tx.TxOut {
		cp.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}
	return cp
}

func changePkScript(req *Request, keys KeySource) ([]byte, error) {
	if req.ChangeAddress != nil {
		return req.ChangeAddress, nil
	}
	address, err := keys.FreshAddress(keychain.Change)
	if err != nil {
		return nil, wrapErr(KindUnsupportedScript, "derive change address", err)
	}
	return scriptForAddress(address)
}

func scriptForAddress(a *addr.Address) ([]byte, error) {
	var script []byte
	var err error
	switch a.Type {
	case addr.TypeP2PKH:
		script, err = scriptclass.PayToPubKeyHashScript(a.Payload)
	case addr.TypeP2SH:
		script, err = scriptclass.PayToScriptHashScript(a.Payload)
	default:
		return nil, newErr(KindUnsupportedScript, "change address type")
	}
	if err != nil {
		return nil, wrapErr(KindUnsupportedScript, "build change script", err)
	}
	return script, nil
}

func checkSingleOpReturn(tx *wire.MsgTx) error {
	count := 0
	for _, out := range tx.TxOut {
		if len(out.PkScript) > 0 && out.PkScript[0] == txscript.OP_RETURN {
			count++
		}
	}
	if count > 1 {
		return newErr(KindMultipleOpReturnRequested, "")
	}
	return nil
}
