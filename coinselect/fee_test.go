package coinselect

import (
	"testing"

	"pgregory.net/rapid"
)

// TestFeeEstimateIsAlwaysAWholeKilobyteMultiple checks the rounding
// rule EstimateFeeForSize documents: the fee is always feePerKB times
// an integer number of kilobytes, never a fractional amount.
func TestFeeEstimateIsAlwaysAWholeKilobyteMultiple(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		feePerKB := rapid.Int64Range(1, 1_000_000).Draw(t, "feePerKB")
		size := rapid.IntRange(0, 10_000_000).Draw(t, "size")
		fc := NewFeeCalculator(feePerKB)
		fee := fc.EstimateFeeForSize(size)
		if fee%feePerKB != 0 {
			t.Fatalf("fee %d is not a multiple of feePerKB %d", fee, feePerKB)
		}
		if fee < feePerKB {
			t.Fatalf("fee %d is below the one-kilobyte floor %d", fee, feePerKB)
		}
	})
}

// TestFeeEstimateIsMonotonicInSize checks that a larger transaction
// never produces a smaller fee at a fixed rate, the property the fee
// re-estimation loop in CreateTransaction depends on to converge
// rather than oscillate.
func TestFeeEstimateIsMonotonicInSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		feePerKB := rapid.Int64Range(1, 1_000_000).Draw(t, "feePerKB")
		a := rapid.IntRange(0, 10_000_000).Draw(t, "sizeA")
		delta := rapid.IntRange(0, 10_000_000).Draw(t, "delta")
		b := a + delta

		fc := NewFeeCalculator(feePerKB)
		feeA := fc.EstimateFeeForSize(a)
		feeB := fc.EstimateFeeForSize(b)
		if feeB < feeA {
			t.Fatalf("EstimateFeeForSize(%d)=%d < EstimateFeeForSize(%d)=%d", b, feeB, a, feeA)
		}
	})
}

// TestFeeEstimateIsMonotonicInRate checks the analogous property
// holding the size fixed and varying the rate.
func TestFeeEstimateIsMonotonicInRate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(0, 10_000_000).Draw(t, "size")
		rateA := rapid.Int64Range(1, 1_000_000).Draw(t, "rateA")
		rateDelta := rapid.Int64Range(0, 1_000_000).Draw(t, "rateDelta")
		rateB := rateA + rateDelta

		feeA := NewFeeCalculator(rateA).EstimateFeeForSize(size)
		feeB := NewFeeCalculator(rateB).EstimateFeeForSize(size)
		if feeB < feeA {
			t.Fatalf("rate %d produced a smaller fee (%d) than rate %d (%d) at the same size", rateB, feeB, rateA, feeA)
		}
	})
}
