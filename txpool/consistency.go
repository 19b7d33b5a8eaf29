package txpool

import "fmt"

// CheckConsistency verifies that no duplicate hash
// across pools (structurally guaranteed by movePool, checked here
// anyway), every Unspent tx has at least one still-available owned
// output, no Spent tx does, and pool classification agrees with
// confidence type where one implies the other.
func (s *Set) CheckConsistency() error {
	for hash, wtx := range s.byHash {
		count := 0
		if s.pending[hash] {
			count++
		}
		if s.unspent[hash] {
			count++
		}
		if s.spent[hash] {
			count++
		}
		if s.dead[hash] {
			count++
		}
		if count != 1 {
			return newErr(KindInconsistentWallet, fmt.Sprintf("transaction present in %d pools", count))
		}

		switch wtx.Pool {
		case Unspent:
			if !hasAvailableOutput(wtx) {
				return newErr(KindInconsistentWallet, "unspent-pool tx has no available owned output")
			}
			if wtx.Confidence.Type == ConfidenceDead {
				return newErr(KindInconsistentWallet, "unspent-pool tx has dead confidence")
			}
		case Spent:
			if hasAvailableOutput(wtx) {
				return newErr(KindInconsistentWallet, "spent-pool tx still has an available owned output")
			}
		case Dead:
			if wtx.Confidence.Type != ConfidenceDead {
				return newErr(KindInconsistentWallet, "dead-pool tx does not carry dead confidence")
			}
		}
		if wtx.Confidence.Type == ConfidenceBuilding && wtx.Pool != Unspent && wtx.Pool != Spent {
			return newErr(KindInconsistentWallet, "building-confidence tx is neither unspent nor spent")
		}
	}
	return nil
}

func hasAvailableOutput(wtx *WalletTx) bool {
	for idx := range wtx.OwnedOutputs {
		if _, spent := wtx.SpentOutputs[idx]; !spent {
			return true
		}
	}
	return false
}

