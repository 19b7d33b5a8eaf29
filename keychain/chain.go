package keychain

import (
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/hdkeychain"
)

// Purpose selects which of a Chain's two independent branches a key
// belongs to: an external receive branch and an internal change
// branch.
type Purpose int

const (
	Receive Purpose = iota
	Change
	numPurposes
)

const (
	// DefaultLookaheadSize is how many keys are kept precomputed beyond
	// issued before the threshold is breached.
	DefaultLookaheadSize = 100
	// DefaultLookaheadThreshold is the gap that triggers extension.
	DefaultLookaheadThreshold = 20
)

// Chain is one HD key tree rooted at a seed (or, for a watching-only
// chain, at a pair of already-neutered branch roots): the lazy,
// gap-limit buffer of derived keys.
type Chain struct {
	seed   *hdkeychain.DeterministicSeed // nil once the chain is watching-only or re-derived from roots alone
	params *chaincfg.Params

	roots [numPurposes]*hdkeychain.ExtendedKey

	issued      [numPurposes]int
	precomputed [numPurposes][]*DeterministicKey

	lookaheadSize      int
	lookaheadThreshold int

	byPubKeyHash map[string]*DeterministicKey
	byPubKey     map[string]*DeterministicKey

	cr *crypter.Crypter // nil unless this chain has been encrypted
}

// deriveBranchRoots computes the external (receive) and internal
// (change) branch roots from seed: master = HMAC-SHA512 root,
// external = master.Child(0), internal = master.Child(1).
func deriveBranchRoots(seed *hdkeychain.DeterministicSeed, params *chaincfg.Params) (external, internal *hdkeychain.ExtendedKey, err error) {
	binarySeed, err := seed.Seed()
	if err != nil {
		return nil, nil, wrapErr(KindDerivation, "seed unavailable", err)
	}
	master, err := hdkeychain.NewMaster(binarySeed, params)
	if err != nil {
		return nil, nil, wrapErr(KindDerivation, "master key", err)
	}
	external, err = master.Child(0)
	if err != nil {
		return nil, nil, wrapErr(KindDerivation, "external branch", err)
	}
	internal, err = master.Child(1)
	if err != nil {
		return nil, nil, wrapErr(KindDerivation, "internal branch", err)
	}
	return external, internal, nil
}

// NewChain derives a fresh HD chain from seed, each branch lazily
// populated per the lookahead algorithm.
func NewChain(seed *hdkeychain.DeterministicSeed, params *chaincfg.Params) (*Chain, error) {
	external, internal, err := deriveBranchRoots(seed, params)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		seed:               seed,
		params:             params,
		lookaheadSize:      DefaultLookaheadSize,
		lookaheadThreshold: DefaultLookaheadThreshold,
		byPubKeyHash:       make(map[string]*DeterministicKey),
		byPubKey:           make(map[string]*DeterministicKey),
	}
	c.roots[Receive] = external
	c.roots[Change] = internal
	c.populateLookahead(Receive)
	c.populateLookahead(Change)
	return c, nil
}

// NewWatchingChain builds a chain from already-neutered branch roots,
// with no seed and therefore no ability to ever recover a private
// scalar — used for audit/cosigner chains (BIP32 "audits" use case).
func NewWatchingChain(externalRoot, internalRoot *hdkeychain.ExtendedKey, params *chaincfg.Params) (*Chain, error) {
	c := &Chain{
		params:             params,
		lookaheadSize:      DefaultLookaheadSize,
		lookaheadThreshold: DefaultLookaheadThreshold,
		byPubKeyHash:       make(map[string]*DeterministicKey),
		byPubKey:           make(map[string]*DeterministicKey),
	}
	c.roots[Receive] = externalRoot.Neuter()
	c.roots[Change] = internalRoot.Neuter()
	c.populateLookahead(Receive)
	c.populateLookahead(Change)
	return c, nil
}

// IsEncrypted reports whether this chain's derived scalars are wrapped.
func (c *Chain) IsEncrypted() bool { return c.cr != nil }

// Crypter returns the encrypter this chain was encrypted with, or nil.
func (c *Chain) Crypter() *crypter.Crypter { return c.cr }

func (c *Chain) wrapLeaf(ext *hdkeychain.ExtendedKey, p Purpose, bufferIndex int) *DeterministicKey {
	dk := &DeterministicKey{
		pub:         ext.PublicKey(),
		chainCode:   ext.ChainCode(),
		depth:       ext.Depth(),
		parentFP:    ext.ParentFingerprint(),
		childNumber: ext.ChildNumber(),
		path:        []uint32{uint32(p), ext.ChildNumber()},
		purpose:     p,
		bufferIndex: bufferIndex,
	}
	if ext.IsPrivate() {
		priv, _ := ext.PrivateKey()
		dk.priv = priv
	}
	return dk
}

func (c *Chain) registerKey(dk *DeterministicKey) {
	c.byPubKeyHash[string(dk.PubKeyHash())] = dk
	c.byPubKey[string(dk.pub.SerializeCompressed())] = dk
}

// populateLookahead extends the precomputed buffer for purpose p until
// precomputed-issued >= lookaheadThreshold, deriving up to
// issued+lookaheadSize. Already-derived positions are
// never recomputed.
func (c *Chain) populateLookahead(p Purpose) {
	gap := len(c.precomputed[p]) - c.issued[p]
	if gap >= c.lookaheadThreshold {
		return
	}
	target := c.issued[p] + c.lookaheadSize
	root := c.roots[p]
	for i := len(c.precomputed[p]); i < target; i++ {
		ext, err := root.Child(uint32(i))
		if err != nil {
			// Derivation exhausted at this index: skip it and
			// keep extending past it rather than stalling the chain.
			continue
		}
		dk := c.wrapLeaf(ext, p, i)
		c.precomputed[p] = append(c.precomputed[p], dk)
		c.registerKey(dk)
	}
}

// GetKey returns the current key for purpose p without advancing
// issued — callers observe the same key until it is marked used.
func (c *Chain) GetKey(p Purpose) *DeterministicKey {
	c.populateLookahead(p)
	return c.precomputed[p][c.issued[p]]
}

// FreshKey returns the key at index issued, then advances issued and
// extends the lookahead buffer if needed (fresh_key).
func (c *Chain) FreshKey(p Purpose) *DeterministicKey {
	key := c.GetKey(p)
	c.issued[p]++
	key.used = true
	c.populateLookahead(p)
	return key
}

// GetKeys returns exactly n keys for purpose p, deriving fresh ones
// beyond the current lookahead buffer if fewer than n exist yet. It
// does not advance issued or mark anything used.
func (c *Chain) GetKeys(p Purpose, n int) []*DeterministicKey {
	root := c.roots[p]
	for len(c.precomputed[p]) < n {
		i := len(c.precomputed[p])
		ext, err := root.Child(uint32(i))
		if err != nil {
			break
		}
		dk := c.wrapLeaf(ext, p, i)
		c.precomputed[p] = append(c.precomputed[p], dk)
		c.registerKey(dk)
	}
	if n > len(c.precomputed[p]) {
		n = len(c.precomputed[p])
	}
	return append([]*DeterministicKey(nil), c.precomputed[p][:n]...)
}

// GetKeysByPath returns every precomputed key whose path has prefix as
// a leading subsequence (get_keys_by_path).
func (c *Chain) GetKeysByPath(prefix []uint32) []*DeterministicKey {
	var out []*DeterministicKey
	for p := Purpose(0); p < numPurposes; p++ {
		for _, dk := range c.precomputed[p] {
			if hasPrefix(dk.path, prefix) {
				out = append(out, dk)
			}
		}
	}
	return out
}

func hasPrefix(path, prefix []uint32) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, v := range prefix {
		if path[i] != v {
			return false
		}
	}
	return true
}

// MarkPubKeyUsed locates pubkey in the precomputed buffer and, if
// found, raises issued to one past it (never lowering it) and triggers
// lookahead extension.
func (c *Chain) MarkPubKeyUsed(pubkey []byte) bool {
	dk, ok := c.byPubKey[string(pubkey)]
	if !ok {
		return false
	}
	return c.markUsed(dk)
}

// MarkPubKeyHashUsed is the HASH160 analogue of MarkPubKeyUsed.
func (c *Chain) MarkPubKeyHashUsed(hash []byte) bool {
	dk, ok := c.byPubKeyHash[string(hash)]
	if !ok {
		return false
	}
	return c.markUsed(dk)
}

func (c *Chain) markUsed(dk *DeterministicKey) bool {
	dk.used = true
	p := dk.purpose
	if dk.bufferIndex+1 > c.issued[p] {
		c.issued[p] = dk.bufferIndex + 1
	}
	c.populateLookahead(p)
	return true
}

// FindByPubKeyHash looks up a precomputed key by its HASH160, or nil.
func (c *Chain) FindByPubKeyHash(hash []byte) *DeterministicKey {
	return c.byPubKeyHash[string(hash)]
}

// FindByPubKey looks up a precomputed key by its compressed public key
// bytes, or nil.
func (c *Chain) FindByPubKey(pub []byte) *DeterministicKey {
	return c.byPubKey[string(pub)]
}

// Encrypt returns a new Chain with every derived scalar wrapped under c
// / derived, leaving the receiver unmodified ("fails if already
// encrypted").
func (c *Chain) Encrypt(cr *crypter.Crypter, derived *crypter.DerivedKey) (*Chain, error) {
	if c.cr != nil {
		return nil, newErr(KindAlreadyEncrypted, "")
	}
	clone := c.shallowCloneEmpty()
	clone.cr = cr
	for p := Purpose(0); p < numPurposes; p++ {
		clone.roots[p] = c.roots[p].Neuter()
		for _, dk := range c.precomputed[p] {
			enc, err := dk.encryptedCopy(derived)
			if err != nil {
				return nil, err
			}
			clone.precomputed[p] = append(clone.precomputed[p], enc)
			clone.registerKey(enc)
		}
		clone.issued[p] = c.issued[p]
	}
	return clone, nil
}

// Decrypt returns a new Chain with every scalar restored to cleartext,
// or the crypter package's WrongPassphrase error if derived cannot
// decrypt the first (canary) key. Branch roots are re-derived from the
// seed rather than carried over from the encrypted receiver, since
// Encrypt neuters them. Carrying the neutered roots over would leave
// future lookahead extension stuck deriving watching-only keys even
// after unlocking.
func (c *Chain) Decrypt(derived *crypter.DerivedKey) (*Chain, error) {
	if c.cr == nil {
		return nil, newErr(KindNotEncrypted, "")
	}
	clone := c.shallowCloneEmpty()
	if c.seed != nil {
		external, internal, err := deriveBranchRoots(c.seed, c.params)
		if err != nil {
			return nil, err
		}
		clone.roots[Receive] = external
		clone.roots[Change] = internal
	} else {
		clone.roots[Receive] = c.roots[Receive]
		clone.roots[Change] = c.roots[Change]
	}
	for p := Purpose(0); p < numPurposes; p++ {
		for _, dk := range c.precomputed[p] {
			dec, err := dk.decryptedCopy(derived)
			if err != nil {
				return nil, err
			}
			clone.precomputed[p] = append(clone.precomputed[p], dec)
			clone.registerKey(dec)
		}
		clone.issued[p] = c.issued[p]
	}
	return clone, nil
}

func (c *Chain) shallowCloneEmpty() *Chain {
	return &Chain{
		seed:               c.seed,
		params:             c.params,
		lookaheadSize:      c.lookaheadSize,
		lookaheadThreshold: c.lookaheadThreshold,
		byPubKeyHash:       make(map[string]*DeterministicKey),
		byPubKey:           make(map[string]*DeterministicKey),
	}
}

// PubKeysAndHashes returns the serialized compressed public key and
// HASH160 of every precomputed key across both branches, lookahead
// included — the material a Bloom filter covering this chain's future
// receives needs (BloomFilterMaterial).
func (c *Chain) PubKeysAndHashes() (pubKeys, pubKeyHashes [][]byte) {
	for p := Purpose(0); p < numPurposes; p++ {
		for _, dk := range c.precomputed[p] {
			pubKeys = append(pubKeys, dk.pub.SerializeCompressed())
			pubKeyHashes = append(pubKeyHashes, dk.PubKeyHash())
		}
	}
	return pubKeys, pubKeyHashes
}

// NeuteredRoots returns the public-only branch roots, suitable for
// constructing a watching-only following chain for the married variant
// or for sharing with an auditor.
func (c *Chain) NeuteredRoots() (external, internal *hdkeychain.ExtendedKey) {
	return c.roots[Receive].Neuter(), c.roots[Change].Neuter()
}

// Seed returns the seed this chain was derived from, or nil for a
// watching-only chain with no recoverable root.
func (c *Chain) Seed() *hdkeychain.DeterministicSeed { return c.seed }

// IssuedCounts returns how many keys have been issued on each branch,
// the bookkeeping a caller needs to rebuild this chain's buffer via
// RestoreChain after a seed-only reload.
func (c *Chain) IssuedCounts() (receive, change int) {
	return c.issued[Receive], c.issued[Change]
}

// RestoreChain rebuilds a chain from its seed and previously-issued
// counts, re-deriving the lookahead buffer and marking every key below
// each branch's issued count as used. This is the seed-plus-counters
// persistence strategy: rather than storing every precomputed key, a
// reload only needs the seed and how far each branch had advanced.
func RestoreChain(seed *hdkeychain.DeterministicSeed, params *chaincfg.Params, issuedReceive, issuedChange int) (*Chain, error) {
	c, err := NewChain(seed, params)
	if err != nil {
		return nil, err
	}
	c.issued[Receive] = issuedReceive
	c.issued[Change] = issuedChange
	c.populateLookahead(Receive)
	c.populateLookahead(Change)
	for p := Purpose(0); p < numPurposes; p++ {
		for i, dk := range c.precomputed[p] {
			if i < c.issued[p] {
				dk.used = true
			}
		}
	}
	return c, nil
}
