// Package mnemonic implements BIP39: entropy/mnemonic/seed conversion
// over the reference English wordlist. The wordlist itself comes from
// github.com/tyler-smith/go-bip39 (the ecosystem-standard source for
// it); the entropy<->mnemonic packing and the PBKDF2 seed stretch are
// implemented directly here because the wallet's DeterministicSeed
// must support entropy lengths the upstream library does not
// (512 bits), and because the exact bit layout is part of the core
// this module exists to get right.
package mnemonic

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	gobip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

// ValidEntropyBits are the entropy lengths DeterministicSeed accepts.
// 512 is outside the standard BIP39 range but is allowed here as an
// extra-high-entropy seed option.
var ValidEntropyBits = map[int]bool{
	128: true, 160: true, 192: true, 224: true, 256: true, 512: true,
}

// wordList is the canonical 2048-word English list. Its SHA-256 must
// equal the known-good checksum; this is checked once in init and
// panics if the vendored library ever drifts from the reference list
// (at package initialisation, before any caller can use the list).
var wordList = gobip39.GetWordList()

const referenceWordlistSHA256 = "ad90bf3beb7b0eb7e5acd74727dc0da96e0a280a258354e7293fb7e211ac03db"

func init() {
	if got := wordlistChecksum(); got != referenceWordlistSHA256 {
		panic(fmt.Sprintf("mnemonic: wordlist checksum mismatch: got %s want %s", got, referenceWordlistSHA256))
	}
}

func wordlistChecksum() string {
	h := sha256.New()
	for i, w := range wordList {
		if i > 0 {
			h.Write([]byte{'\n'})
		}
		h.Write([]byte(w))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

var (
	// ErrInvalidEntropyLength is returned when entropy isn't one of
	// ValidEntropyBits.
	ErrInvalidEntropyLength = errors.New("mnemonic: invalid entropy length")
	// ErrChecksumMismatch is returned when a mnemonic's embedded
	// checksum doesn't match its recomputed entropy checksum.
	ErrChecksumMismatch = errors.New("mnemonic: checksum mismatch")
	// ErrUnknownWord is returned when a mnemonic word isn't in the
	// reference list.
	ErrUnknownWord = errors.New("mnemonic: word not in wordlist")
)

// EntropyToMnemonic splits entropy into 11-bit groups after appending a
// checksum of ⌊len(entropy)*8/32⌋ bits taken from the high bits of
// SHA-256(entropy), mapping each group to one of the 2048 canonical
// words.
func EntropyToMnemonic(entropy []byte) ([]string, error) {
	bits := len(entropy) * 8
	if !ValidEntropyBits[bits] {
		return nil, ErrInvalidEntropyLength
	}

	checksumBits := bits / 32
	sum := sha256.Sum256(entropy)

	bitstream := newBitWriter(bits + checksumBits)
	bitstream.writeBytes(entropy, bits)
	bitstream.writeBytes(sum[:], checksumBits)

	numWords := (bits + checksumBits) / 11
	words := make([]string, numWords)
	for i := 0; i < numWords; i++ {
		idx := bitstream.read11(i * 11)
		words[i] = wordList[idx]
	}
	return words, nil
}

// MnemonicToEntropy reverses EntropyToMnemonic, validating that every
// word is in the list and that the recomputed checksum matches.
func MnemonicToEntropy(words []string) ([]byte, error) {
	numBits := len(words) * 11
	checksumBits := numBits / 33
	entropyBits := numBits - checksumBits
	if !ValidEntropyBits[entropyBits] {
		return nil, ErrInvalidEntropyLength
	}

	indexOf := wordIndex()
	bitstream := newBitWriter(numBits)
	for i, w := range words {
		idx, ok := indexOf[w]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownWord, w)
		}
		bitstream.write11(i*11, idx)
	}

	entropy := bitstream.bytes(entropyBits)
	sum := sha256.Sum256(entropy)
	wantChecksum := newBitWriter(checksumBits)
	wantChecksum.writeBytes(sum[:], checksumBits)

	gotChecksum := bitstream.sliceBits(entropyBits, checksumBits)
	if gotChecksum != wantChecksum.sliceBits(0, checksumBits) {
		return nil, ErrChecksumMismatch
	}
	return entropy, nil
}

var wordIndexCache map[string]uint32

func wordIndex() map[string]uint32 {
	if wordIndexCache != nil {
		return wordIndexCache
	}
	m := make(map[string]uint32, len(wordList))
	for i, w := range wordList {
		m[w] = uint32(i)
	}
	wordIndexCache = m
	return m
}

// SeedFromMnemonic runs PBKDF2-HMAC-SHA512 with 2048 iterations over the
// space-joined, NFKD-normalised mnemonic as password and
// "mnemonic"+passphrase as salt, producing the 64-byte binary seed.
func SeedFromMnemonic(words []string, passphrase string) []byte {
	joined := joinWords(words)
	password := norm.NFKD.String(joined)
	salt := norm.NFKD.String("mnemonic" + passphrase)
	return pbkdf2.Key([]byte(password), []byte(salt), 2048, 64, sha512.New)
}

func joinWords(words []string) string {
	out := words[0]
	for _, w := range words[1:] {
		out += " " + w
	}
	return out
}
