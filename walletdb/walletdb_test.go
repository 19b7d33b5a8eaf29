package walletdb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleWallet() *Wallet {
	return &Wallet{
		Version: 1,
		Network: "mainnet",
		Keys: []KeyRecord{
			{
				PubKey:    []byte{0x02, 0x01, 0x02, 0x03},
				ChainCode: bytes.Repeat([]byte{0x07}, 32),
				Depth:     2,
				ParentFP:  [4]byte{1, 2, 3, 4},
				ChildNum:  5,
				Path:      []uint32{0, 1, 2},
				Purpose:   1,
				CreatedAt: 1700000000,
				Used:      true,
			},
			{
				PubKey:              []byte{0x03, 0x04, 0x05},
				EncryptedPrivateKey: bytes.Repeat([]byte{0xaa}, 48),
				CreatedAt:           1700000001,
			},
		},
		Transactions: []TxRecord{
			{
				RawTx: []byte{0x01, 0x02, 0x03},
				Pool:  1,
				Confidence: ConfidenceRecord{
					Type:             1,
					Source:           2,
					AppearedAtHeight: 100,
					Depth:            6,
					BlockHash:        bytes.Repeat([]byte{0x11}, 32),
				},
				Purpose:           1,
				OwnedOutputs:      []uint32{0, 2},
				SpentOutputIndex:  []uint32{0},
				SpentOutputTxHash: [][]byte{bytes.Repeat([]byte{0x22}, 32)},
			},
		},
		WatchedScripts: []WatchedScript{
			{Script: []byte{0xa9, 0x14}, CreatedAt: 42},
		},
		LastSeenBlockHash:   bytes.Repeat([]byte{0x33}, 32),
		LastSeenBlockHeight: 800000,
		LastSeenBlockTime:   1700000500,
		Encryption: &EncryptionParams{
			Salt: []byte{1, 2, 3, 4, 5, 6, 7, 8},
			N:    1 << 14,
			R:    8,
			P:    1,
		},
		KeyRotationTime: 1700001000,
		Extensions: []ExtensionBlob{
			{ID: "org.example.note", Mandatory: false, Data: []byte("hello")},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	w := sampleWallet()
	got, err := Decode(Encode(w), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Version != w.Version || got.Network != w.Network {
		t.Fatalf("version/network mismatch: %+v", got)
	}
	if len(got.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(got.Keys))
	}
	if !bytes.Equal(got.Keys[0].ChainCode, w.Keys[0].ChainCode) {
		t.Fatalf("chain code mismatch")
	}
	if len(got.Keys[0].Path) != 3 || got.Keys[0].Path[2] != 2 {
		t.Fatalf("path mismatch: %v", got.Keys[0].Path)
	}
	if !got.Keys[0].Used {
		t.Fatalf("expected Used=true preserved")
	}
	if !bytes.Equal(got.Keys[1].EncryptedPrivateKey, w.Keys[1].EncryptedPrivateKey) {
		t.Fatalf("encrypted private key mismatch")
	}

	if len(got.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(got.Transactions))
	}
	tx := got.Transactions[0]
	if tx.Pool != 1 || tx.Purpose != 1 {
		t.Fatalf("tx pool/purpose mismatch: %+v", tx)
	}
	if tx.Confidence.AppearedAtHeight != 100 || tx.Confidence.Depth != 6 {
		t.Fatalf("confidence mismatch: %+v", tx.Confidence)
	}
	if len(tx.OwnedOutputs) != 2 || tx.OwnedOutputs[1] != 2 {
		t.Fatalf("owned outputs mismatch: %v", tx.OwnedOutputs)
	}
	if len(tx.SpentOutputIndex) != 1 || !bytes.Equal(tx.SpentOutputTxHash[0], w.Transactions[0].SpentOutputTxHash[0]) {
		t.Fatalf("spent output mismatch: %+v", tx)
	}

	if len(got.WatchedScripts) != 1 || got.WatchedScripts[0].CreatedAt != 42 {
		t.Fatalf("watched script mismatch: %+v", got.WatchedScripts)
	}

	if !bytes.Equal(got.LastSeenBlockHash, w.LastSeenBlockHash) || got.LastSeenBlockHeight != 800000 {
		t.Fatalf("last seen block mismatch: %+v", got)
	}

	if got.Encryption == nil || got.Encryption.N != (1<<14) || got.Encryption.P != 1 {
		t.Fatalf("encryption params mismatch: %+v", got.Encryption)
	}
	if got.KeyRotationTime != 1700001000 {
		t.Fatalf("key rotation time mismatch: %d", got.KeyRotationTime)
	}

	if len(got.Extensions) != 1 || got.Extensions[0].ID != "org.example.note" || string(got.Extensions[0].Data) != "hello" {
		t.Fatalf("extension mismatch: %+v", got.Extensions)
	}
}

func TestDecodeRejectsUnknownMandatoryExtension(t *testing.T) {
	w := &writer{}
	w.writeInt32(tagVersion, 1)
	w.writeString(tagNetwork, "mainnet")
	// A mandatory field with a tag no decoder version recognises.
	w.writeBytes(999, true, []byte("unknown"))

	if _, err := Decode(w.buf, true); err == nil {
		t.Fatalf("expected unknown mandatory tag to reject decode")
	} else if derr, ok := err.(*Error); !ok || derr.Kind != KindUnknownMandatoryTag {
		t.Fatalf("expected KindUnknownMandatoryTag, got %v", err)
	}

	if _, err := Decode(w.buf, false); err != nil {
		t.Fatalf("expected unknown mandatory tag to be tolerated when requireMandatoryExtensions=false, got %v", err)
	}
}

func TestDecodeSkipsUnknownOptionalField(t *testing.T) {
	w := &writer{}
	w.writeInt32(tagVersion, 1)
	w.writeString(tagNetwork, "mainnet")
	w.writeBytes(999, false, []byte("unknown"))

	got, err := Decode(w.buf, true)
	if err != nil {
		t.Fatalf("unexpected error skipping unknown optional field: %v", err)
	}
	if got.Network != "mainnet" {
		t.Fatalf("decode continued incorrectly: %+v", got)
	}
}

func TestSaveLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.dat")
	w := sampleWallet()

	if err := SaveToFile(path, w); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if got.Network != w.Network || len(got.Keys) != len(w.Keys) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file to be cleaned up, found %d entries", len(entries))
	}
}

func TestSaveToFileRetriesRenameOverExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.dat")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	original := renameFunc
	failedOnce := false
	renameFunc = func(oldpath, newpath string) error {
		if !failedOnce {
			failedOnce = true
			return errors.New("simulated rename-over-existing-file failure")
		}
		return os.Rename(oldpath, newpath)
	}
	defer func() { renameFunc = original }()

	w := sampleWallet()
	if err := SaveToFile(path, w); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	if !failedOnce {
		t.Fatalf("expected the fake rename to be invoked")
	}

	got, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile after retry: %v", err)
	}
	if got.Network != w.Network {
		t.Fatalf("unexpected content after retried save: %+v", got)
	}
}
