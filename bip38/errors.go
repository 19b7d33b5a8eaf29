package bip38

import "errors"

// Sentinel errors for BIP38 encrypted-key handling.
var (
	// ErrWrongPassphrase is returned when the recomputed address hash
	// does not match the one embedded in the encrypted key.
	ErrWrongPassphrase = errors.New("bip38: wrong passphrase")
	// ErrInvalidFormat is returned for a malformed encrypted key: wrong
	// length, unknown prefix, bad checksum, or a set reserved flag bit.
	ErrInvalidFormat = errors.New("bip38: invalid encrypted key format")
)
