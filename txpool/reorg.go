package txpool

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ReorgBlock is one block's worth of wallet-relevant transactions, as
// supplied by the chain/peer driver that calls Reorganize — txpool
// never fetches blocks itself (block-chain callbacks are consumed,
// not produced, by the core).
type ReorgBlock struct {
	Hash   chainhash.Hash
	Height int32
	Txs    []*wire.MsgTx
}

// Reorganize implements reorganize: revert every wallet
// transaction that appeared in oldBlocks back to Pending, replay
// newBlocks as confirmations, then re-examine every Dead transaction in
// case its overriding transaction no longer confirms.
func (s *Set) Reorganize(splitHeight int32, oldBlocks, newBlocks []ReorgBlock, deps DependencySet) {
	for _, block := range oldBlocks {
		for _, tx := range block.Txs {
			s.revertConfirmation(tx.TxHash())
		}
	}

	for _, block := range newBlocks {
		for _, tx := range block.Txs {
			s.applyConfirmation(tx, block.Hash, block.Height, deps)
		}
		if block.Height > s.tip {
			s.tip = block.Height
		}
	}

	s.repromoteResolvedDead()
}

// revertConfirmation undoes applyConfirmation for one transaction: its
// own pool moves back to Pending, and any prior transaction it had
// caused to move into Spent becomes Unspent again once its spend is
// forgotten.
func (s *Set) revertConfirmation(hash chainhash.Hash) {
	wtx, ok := s.byHash[hash]
	if !ok {
		return
	}

	for _, in := range wtx.Tx.TxIn {
		prev, ok := s.byHash[in.PreviousOutPoint.Hash]
		if !ok {
			continue
		}
		if spender, ok := prev.SpentOutputs[in.PreviousOutPoint.Index]; ok && spender == hash {
			delete(prev.SpentOutputs, in.PreviousOutPoint.Index)
			if prev.Pool == Spent {
				s.movePool(prev.Hash, Unspent)
			}
		}
	}

	wtx.Confidence = Confidence{Type: ConfidencePending, Source: wtx.Confidence.Source}
	s.movePool(hash, Pending)
}

// repromoteResolvedDead implements reorg step 3: a Dead transaction
// whose overriding transaction no longer confirms, and which is not
// itself double-spent by anything on the new best chain, returns to
// Pending.
func (s *Set) repromoteResolvedDead() {
	for hash, wtx := range s.byHash {
		if wtx.Pool != Dead {
			continue
		}
		if s.overridingTxStillConfirms(wtx) {
			continue
		}
		if s.doubleSpentOnBestChain(wtx) {
			continue
		}
		wtx.Confidence = Confidence{Type: ConfidencePending, Source: wtx.Confidence.Source}
		s.movePool(hash, Pending)
	}
}

func (s *Set) overridingTxStillConfirms(wtx *WalletTx) bool {
	if wtx.Confidence.OverridingTx == nil {
		return false
	}
	overrider, ok := s.byHash[*wtx.Confidence.OverridingTx]
	if !ok {
		return false
	}
	return overrider.Pool == Unspent || overrider.Pool == Spent
}

func (s *Set) doubleSpentOnBestChain(wtx *WalletTx) bool {
	for _, in := range wtx.Tx.TxIn {
		for hash, other := range s.byHash {
			if hash == wtx.Hash || (other.Pool != Unspent && other.Pool != Spent) {
				continue
			}
			for _, otherIn := range other.Tx.TxIn {
				if otherIn.PreviousOutPoint == in.PreviousOutPoint {
					return true
				}
			}
		}
	}
	return false
}
