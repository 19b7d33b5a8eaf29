package hdkeychain

import "errors"

// Sentinel errors for extended key construction and derivation.
// DerivationExhausted is the one a caller might plausibly want to
// branch on; the rest indicate malformed input.
var (
	ErrInvalidSeedLength    = errors.New("hdkeychain: seed length must be between 9 and 64 bytes")
	ErrDerivationExhausted  = errors.New("hdkeychain: 100 consecutive derivation attempts produced an invalid scalar")
	ErrHardenedFromPublic   = errors.New("hdkeychain: cannot derive a hardened child from a public-only key")
	ErrInvalidExtendedKey   = errors.New("hdkeychain: malformed extended key")
	ErrWrongNetwork         = errors.New("hdkeychain: extended key version does not match requested network")
	ErrNotPrivate           = errors.New("hdkeychain: key has no private scalar")
	ErrInvalidChecksum      = errors.New("hdkeychain: base58check checksum mismatch")
)
