package walletdb

import (
	"os"
	"path/filepath"
)

// renameFunc is os.Rename by default; tests substitute a fake to
// exercise the delete-then-rename retry path without depending on a
// particular filesystem's rename-over-existing-file behaviour.
var renameFunc = os.Rename

// SaveToFile writes w to path atomically: it serialises to a temp file
// in the same directory, then renames it over path. On platforms where
// rename cannot replace an existing file, it removes the destination
// first and retries once.
func SaveToFile(path string, w *Wallet) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".wallet-*.tmp")
	if err != nil {
		return wrapErr(KindIO, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(Encode(w)); err != nil {
		tmp.Close()
		return wrapErr(KindIO, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return wrapErr(KindIO, "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return wrapErr(KindIO, "close temp file", err)
	}

	if err := renameFunc(tmpName, path); err != nil {
		if os.Remove(path) == nil {
			if err := renameFunc(tmpName, path); err != nil {
				return wrapErr(KindIO, "rename after removing existing file", err)
			}
			return nil
		}
		return wrapErr(KindIO, "rename temp file into place", err)
	}
	return nil
}

// LoadFromFile reads and decodes the wallet at path. An unknown
// mandatory extension aborts the load; callers that must tolerate a
// newer writer's mandatory extensions should decode with
// requireMandatoryExtensions=false instead of using this helper
// directly.
func LoadFromFile(path string) (*Wallet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(KindIO, "read file", err)
	}
	return Decode(b, true)
}
