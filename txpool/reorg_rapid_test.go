package txpool

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"pgregory.net/rapid"
)

// TestReorgRevertThenReconfirmIsSymmetric generalizes
// TestPoolConsistencyAfterReorg's funding-tx round trip across randomized
// heights and values: losing a transaction's only confirming block must
// always return it to Pending, and regaining a confirmation at the same
// height must always return it to Unspent, leaving the pool consistent
// either way.
func TestReorgRevertThenReconfirmIsSymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSet(nil, true)
		script := ourScript(byte(rapid.IntRange(1, 255).Draw(t, "scriptTag")))
		value := rapid.Int64Range(1, 1_000_000_000).Draw(t, "value")
		height := rapid.Int32Range(1, 1<<20).Draw(t, "height")

		var blockHash chainhash.Hash
		blockHash[0] = byte(rapid.IntRange(1, 255).Draw(t, "blockTag"))

		tx := fundingTx(script, value)
		s.NotifyTransactionInBlock(tx, blockHash, height, true, oursDeps(script))
		if got := s.Lookup(tx.TxHash()).Pool; got != Unspent {
			t.Fatalf("setup: expected funding tx in Unspent, got %v", got)
		}

		oldBlocks := []ReorgBlock{{Hash: blockHash, Height: height, Txs: []*wire.MsgTx{tx}}}
		s.Reorganize(height-1, oldBlocks, nil, noneOursDeps())
		if got := s.Lookup(tx.TxHash()).Pool; got != Pending {
			t.Fatalf("after reverting the only confirmation, pool = %v, want Pending", got)
		}
		if err := s.CheckConsistency(); err != nil {
			t.Fatalf("CheckConsistency after revert: %v", err)
		}

		var newBlockHash chainhash.Hash
		newBlockHash[0] = byte(rapid.IntRange(1, 255).Draw(t, "newBlockTag"))
		newBlocks := []ReorgBlock{{Hash: newBlockHash, Height: height, Txs: []*wire.MsgTx{tx}}}
		s.Reorganize(height-1, nil, newBlocks, oursDeps(script))
		if got := s.Lookup(tx.TxHash()).Pool; got != Unspent {
			t.Fatalf("after re-confirming at the same height, pool = %v, want Unspent", got)
		}
		if err := s.CheckConsistency(); err != nil {
			t.Fatalf("CheckConsistency after re-confirmation: %v", err)
		}
	})
}
