package coinselect

import "github.com/btcsuite/btcd/wire"

// FeeCalculator turns a fee-per-kilobyte rate into a concrete fee for a
// given transaction, re-estimated as the transaction's shape changes
// during the selection loop.
//
// A small struct wrapping a rate, constructed once and queried
// repeatedly, rather than a free function recomputing constants on
// every call.
type FeeCalculator struct {
	feePerKB int64
}

// NewFeeCalculator returns a calculator for feePerKB satoshis per
// kilobyte.
func NewFeeCalculator(feePerKB int64) *FeeCalculator {
	return &FeeCalculator{feePerKB: feePerKB}
}

// FeePerKB returns the configured rate.
func (fc *FeeCalculator) FeePerKB() int64 { return fc.feePerKB }

// EstimateFee computes the fee for tx at its current serialized size.
func (fc *FeeCalculator) EstimateFee(tx *wire.MsgTx) int64 {
	return fc.EstimateFeeForSize(tx.SerializeSize())
}

// EstimateFeeForSize computes the fee for a transaction of sizeBytes,
// rounding up to the next whole kilobyte the way Bitcoin Core's
// relay-fee calculation does.
func (fc *FeeCalculator) EstimateFeeForSize(sizeBytes int) int64 {
	kb := (int64(sizeBytes) + 999) / 1000
	if kb == 0 {
		kb = 1
	}
	return kb * fc.feePerKB
}
