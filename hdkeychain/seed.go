package hdkeychain

import (
	"crypto/rand"
	"errors"

	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/mnemonic"
)

// ErrSeedEncrypted is returned by Seed when only an encrypted form is
// held; callers must Decrypt first.
var ErrSeedEncrypted = errors.New("hdkeychain: seed is encrypted")

// DeterministicSeed is the root of one HD tree: cleartext entropy,
// its mnemonic rendering, and the derived 64-byte binary seed, or (once
// a wallet is password-protected) the encrypted equivalents with the
// cleartext wiped.
type DeterministicSeed struct {
	entropy    []byte
	words      []string
	binarySeed []byte

	encryptedMnemonic []byte // IV‖ciphertext over the space-joined mnemonic
	encryptedSeed     []byte // IV‖ciphertext over binarySeed, optional
}

// NewSeed generates fresh entropy of the given bit length and derives
// its mnemonic and binary seed.
func NewSeed(bits int, passphrase string) (*DeterministicSeed, error) {
	if !mnemonic.ValidEntropyBits[bits] {
		return nil, mnemonic.ErrInvalidEntropyLength
	}
	entropy := make([]byte, bits/8)
	if _, err := rand.Read(entropy); err != nil {
		return nil, err
	}
	return NewSeedFromEntropy(entropy, passphrase)
}

// NewSeedFromEntropy derives the mnemonic and binary seed from caller-
// supplied entropy (used to restore a wallet from recorded entropy
// bytes rather than words).
func NewSeedFromEntropy(entropy []byte, passphrase string) (*DeterministicSeed, error) {
	words, err := mnemonic.EntropyToMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return &DeterministicSeed{
		entropy:    append([]byte(nil), entropy...),
		words:      words,
		binarySeed: mnemonic.SeedFromMnemonic(words, passphrase),
	}, nil
}

// NewSeedFromMnemonic reconstructs a seed from a recorded word list
// (e.g. entered by a user restoring a wallet), validating its checksum.
func NewSeedFromMnemonic(words []string, passphrase string) (*DeterministicSeed, error) {
	entropy, err := mnemonic.MnemonicToEntropy(words)
	if err != nil {
		return nil, err
	}
	return &DeterministicSeed{
		entropy:    entropy,
		words:      words,
		binarySeed: mnemonic.SeedFromMnemonic(words, passphrase),
	}, nil
}

// Mnemonic returns the word list, or nil if only the encrypted form is
// held.
func (s *DeterministicSeed) Mnemonic() []string { return s.words }

// Seed returns the 64-byte binary seed usable with NewMaster, or
// ErrSeedEncrypted if the cleartext has been wiped.
func (s *DeterministicSeed) Seed() ([]byte, error) {
	if s.binarySeed == nil {
		return nil, ErrSeedEncrypted
	}
	return s.binarySeed, nil
}

// IsEncrypted reports whether the cleartext mnemonic/seed have been
// wiped in favour of the encrypted blobs.
func (s *DeterministicSeed) IsEncrypted() bool {
	return s.binarySeed == nil && s.encryptedMnemonic != nil
}

// Encrypt wraps the mnemonic and binary seed under c/derived and wipes
// the cleartext copies, matching Single Key's encrypted-or-cleartext
// invariant applied to the seed as a whole.
func (s *DeterministicSeed) Encrypt(c *crypter.Crypter, derived *crypter.DerivedKey) error {
	if s.binarySeed == nil {
		return nil // already encrypted
	}
	mnemonicBytes := []byte(joinWords(s.words))
	iv, ct, err := crypter.Encrypt(mnemonicBytes, derived)
	if err != nil {
		return err
	}
	seedIV, seedCT, err := crypter.Encrypt(s.binarySeed, derived)
	if err != nil {
		return err
	}

	s.encryptedMnemonic = append(iv, ct...)
	s.encryptedSeed = append(seedIV, seedCT...)

	wipe(s.entropy)
	wipe(s.binarySeed)
	s.entropy = nil
	s.binarySeed = nil
	for i := range s.words {
		s.words[i] = ""
	}
	s.words = nil
	return nil
}

// Decrypt restores the cleartext mnemonic and binary seed from their
// encrypted blobs. Returns crypter's wrong-passphrase error unchanged
// when derived is incorrect.
func (s *DeterministicSeed) Decrypt(derived *crypter.DerivedKey) error {
	if s.encryptedMnemonic == nil {
		return nil // already cleartext
	}
	const ivLen = 16
	mnemonicPlain, err := crypter.Decrypt(s.encryptedMnemonic[:ivLen], s.encryptedMnemonic[ivLen:], derived)
	if err != nil {
		return err
	}
	seedPlain, err := crypter.Decrypt(s.encryptedSeed[:ivLen], s.encryptedSeed[ivLen:], derived)
	if err != nil {
		return err
	}

	words := splitWords(string(mnemonicPlain))
	if entropy, entropyErr := mnemonic.MnemonicToEntropy(words); entropyErr == nil {
		s.entropy = entropy
	}
	s.words = words
	s.binarySeed = seedPlain
	return nil
}

// SnapshotCleartext returns the word list, raw entropy, and binary seed
// without mutating s, for a caller (wallet persistence) that needs to
// serialize a seed while it stays live and usable. ok is false once the
// seed has been encrypted and its cleartext wiped.
func (s *DeterministicSeed) SnapshotCleartext() (words []string, entropy, binarySeed []byte, ok bool) {
	if s.binarySeed == nil {
		return nil, nil, nil, false
	}
	return append([]string(nil), s.words...), append([]byte(nil), s.entropy...), append([]byte(nil), s.binarySeed...), true
}

// RestoreCleartextSeed reconstructs a DeterministicSeed from a previous
// SnapshotCleartext, without recomputing the binary seed from the
// mnemonic (which would require the original BIP-39 passphrase).
func RestoreCleartextSeed(words []string, entropy, binarySeed []byte) *DeterministicSeed {
	return &DeterministicSeed{
		entropy:    append([]byte(nil), entropy...),
		words:      append([]string(nil), words...),
		binarySeed: append([]byte(nil), binarySeed...),
	}
}

// SnapshotEncrypted returns the IV‖ciphertext blobs over the mnemonic
// and binary seed under c/derived, without mutating s (unlike Encrypt,
// which wipes the cleartext copies). Used to write an encrypted
// persistence record for a seed that must remain usable in memory.
func (s *DeterministicSeed) SnapshotEncrypted(c *crypter.Crypter, derived *crypter.DerivedKey) (mnemonicBlob, seedBlob []byte, err error) {
	if s.binarySeed == nil {
		return append([]byte(nil), s.encryptedMnemonic...), append([]byte(nil), s.encryptedSeed...), nil
	}
	iv, ct, err := crypter.Encrypt([]byte(joinWords(s.words)), derived)
	if err != nil {
		return nil, nil, err
	}
	seedIV, seedCT, err := crypter.Encrypt(s.binarySeed, derived)
	if err != nil {
		return nil, nil, err
	}
	return append(iv, ct...), append(seedIV, seedCT...), nil
}

// RestoreEncryptedSeed reconstructs a DeterministicSeed already in its
// encrypted-on-disk form, for loading a persisted wallet before its
// passphrase is known; call Decrypt to recover the cleartext mnemonic.
func RestoreEncryptedSeed(mnemonicBlob, seedBlob []byte) *DeterministicSeed {
	return &DeterministicSeed{
		encryptedMnemonic: mnemonicBlob,
		encryptedSeed:     seedBlob,
	}
}

func joinWords(words []string) string {
	out := words[0]
	for _, w := range words[1:] {
		out += " " + w
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ' ' {
			if i > start {
				words = append(words, s[start:i])
			}
			start = i + 1
		}
	}
	return words
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
