package coinselect

import (
	"bytes"
	"sort"
)

// p2pkhSpendBytes estimates the marginal size of spending a P2PKH
// output later (outpoint, sequence, and a minimal signature-script
// budget), used only to size the dust threshold.
const p2pkhSpendBytes = 91

// DustThreshold returns the dust threshold at feePerKB satoshis per
// kilobyte: 3x the cost of later spending a P2PKH output at that rate.
// At a reference rate of 10,000 sat/kB this evaluates to 2,730 satoshis.
func DustThreshold(feePerKB int64) int64 {
	return 3 * feePerKB * p2pkhSpendBytes / 1000
}

// IsDust reports whether value falls below the dust threshold at
// feePerKB.
func IsDust(value, feePerKB int64) bool {
	return value < DustThreshold(feePerKB)
}

// DefaultSelector implements the default selection policy: sort
// candidates by (confirmation depth desc, value desc, hash asc) for
// deterministic tie-breaks, then greedily accumulate until the running
// sum reaches target.
func DefaultSelector(candidates []Candidate, target int64) ([]Candidate, int64, error) {
	sorted := append([]Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ConfirmationDepth != b.ConfirmationDepth {
			return a.ConfirmationDepth > b.ConfirmationDepth
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return bytes.Compare(a.OutPoint.Hash[:], b.OutPoint.Hash[:]) < 0
	})

	var chosen []Candidate
	var total int64
	for _, c := range sorted {
		if total >= target {
			break
		}
		chosen = append(chosen, c)
		total += c.Value
	}
	if total < target {
		return nil, 0, insufficientMoney(target - total)
	}
	return chosen, total, nil
}
