package keychain

import (
	"bytes"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/toole-brendan/shellwallet/addr"
	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/ecc"
	"github.com/toole-brendan/shellwallet/scriptclass"
)

// Group aggregates exactly one basic chain (flat multiset of imported
// keys) and a non-empty ordered list of HD chains, the last of which is
// active. Older HD chains are retained only so funds sent to
// their now-rotated-out keys can still be found and spent.
//
// keyChainGroupLock guards every field below it. A caller already
// holding a wallet-level lock (wallet.Wallet's walletLock) may acquire
// this one underneath it — e.g. from MarkKeysUsed during transaction
// processing — but never the reverse; that nesting order is the only
// one this stack permits.
type Group struct {
	keyChainGroupLock sync.RWMutex

	params *chaincfg.Params

	basicByPubKeyHash map[string]*importedKey
	basicByPubKey     map[string]*importedKey

	chains []*Chain

	married *MarriedKeyChain // non-nil when the active chain is the married variant

	marriedAddrByHash map[string]*addr.Address // every P2SH address this group has ever issued, for IsScriptOurs/BloomFilterMaterial lookups
	// marriedCurrent holds, per purpose, the most recently issued married
	// address not yet marked used — an ordered index (by Purpose, not a
	// map range) so CurrentAddress is deterministic. A zero entry means
	// none has been issued yet, or the last one issued was marked used.
	marriedCurrent [numPurposes]*addr.Address
}

// NewGroup returns an empty group. ImportKey and AddChain populate it;
// an empty group refuses Encrypt (no canary exists).
func NewGroup(params *chaincfg.Params) *Group {
	return &Group{
		params:            params,
		basicByPubKeyHash: make(map[string]*importedKey),
		basicByPubKey:     make(map[string]*importedKey),
		marriedAddrByHash: make(map[string]*addr.Address),
	}
}

// AddChain appends chain to the ordered HD chain list, making it the
// new active chain.
func (g *Group) AddChain(chain *Chain) {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()
	g.chains = append(g.chains, chain)
}

// Chains returns a snapshot of the ordered HD chain list, oldest first,
// for a caller (wallet persistence) that needs to walk every chain
// rather than only the active one.
func (g *Group) Chains() []*Chain {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()
	return append([]*Chain(nil), g.chains...)
}

// ActiveChain returns the newest HD chain, or nil if none has been
// added yet.
func (g *Group) ActiveChain() *Chain {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()
	return g.activeChain()
}

func (g *Group) activeChain() *Chain {
	if len(g.chains) == 0 {
		return nil
	}
	return g.chains[len(g.chains)-1]
}

// MarryActiveChain installs the married (multisig-P2SH) variant over
// the current active chain.
func (g *Group) MarryActiveChain(m *MarriedKeyChain) {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()
	g.married = m
}

// IsMarried reports whether the active chain has a married overlay.
func (g *Group) IsMarried() bool {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()
	return g.married != nil
}

// ImportKey adds a raw (non-deterministic) key to the basic chain,
// rejecting an encryption-state mismatch with the rest of the group and
// deduplicating by public key.
func (g *Group) ImportKey(priv *ecc.PrivateKey, compressed bool, createdAt int64) error {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()

	pub := priv.PubKey()
	pubBytes := ecc.SerializePubKey(pub, compressed)
	if _, exists := g.basicByPubKey[string(pubBytes)]; exists {
		return nil // dedup by public key, not an error
	}
	if g.isEncrypted() {
		return newErr(KindImport, "cannot import a cleartext key into an encrypted group")
	}
	k := &importedKey{pub: pub, compressed: compressed, priv: priv, createdAt: createdAt}
	g.basicByPubKeyHash[string(k.PubKeyHash())] = k
	g.basicByPubKey[string(pubBytes)] = k
	return nil
}

// BasicKeyExport is one basic-chain key flattened for persistence:
// KeyMaterial is the raw 32-byte scalar when Encrypted is false, or the
// IV‖ciphertext blob produced by crypter.Encrypt when it is true.
type BasicKeyExport struct {
	PubKey      []byte
	Compressed  bool
	CreatedAt   int64
	Encrypted   bool
	KeyMaterial []byte
}

// ExportBasicKeys flattens every basic-chain key for a caller writing a
// persistence record; it never decrypts an already-encrypted key.
func (g *Group) ExportBasicKeys() []BasicKeyExport {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()

	out := make([]BasicKeyExport, 0, len(g.basicByPubKeyHash))
	for _, k := range g.basicByPubKeyHash {
		e := BasicKeyExport{
			PubKey:     ecc.SerializePubKey(k.pub, k.compressed),
			Compressed: k.compressed,
			CreatedAt:  k.createdAt,
		}
		switch {
		case k.encrypted != nil:
			e.Encrypted = true
			e.KeyMaterial = append([]byte(nil), k.encrypted...)
		case k.priv != nil:
			e.KeyMaterial = k.priv.Serialize()
		}
		out = append(out, e)
	}
	return out
}

// RestoreBasicKey reinserts a basic-chain key from a persisted export,
// bypassing ImportKey's cleartext-only restriction so an encrypted
// wallet can be reloaded without first supplying its passphrase.
func (g *Group) RestoreBasicKey(e BasicKeyExport) error {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()

	pub, err := ecc.ParsePublicKey(e.PubKey)
	if err != nil {
		return wrapErr(KindImport, "parse restored public key", err)
	}
	k := &importedKey{pub: pub, compressed: e.Compressed, createdAt: e.CreatedAt}
	switch {
	case e.Encrypted:
		k.encrypted = e.KeyMaterial
	case e.KeyMaterial != nil:
		priv, err := ecc.PrivKeyFromScalar(e.KeyMaterial)
		if err != nil {
			return wrapErr(KindImport, "reconstruct restored scalar", err)
		}
		k.priv = priv
	}
	g.basicByPubKeyHash[string(k.PubKeyHash())] = k
	g.basicByPubKey[string(e.PubKey)] = k
	return nil
}

// FindKeyFromPubHash consults the basic chain first, then each HD chain
// from newest to oldest.
func (g *Group) FindKeyFromPubHash(hash []byte) Key {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()
	return g.findKeyFromPubHash(hash)
}

func (g *Group) findKeyFromPubHash(hash []byte) Key {
	if k, ok := g.basicByPubKeyHash[string(hash)]; ok {
		return k
	}
	for i := len(g.chains) - 1; i >= 0; i-- {
		if dk := g.chains[i].FindByPubKeyHash(hash); dk != nil {
			return dk
		}
	}
	return nil
}

// FindKeyFromPubKey is the raw-pubkey analogue of FindKeyFromPubHash.
func (g *Group) FindKeyFromPubKey(pub []byte) Key {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()
	return g.findKeyFromPubKey(pub)
}

func (g *Group) findKeyFromPubKey(pub []byte) Key {
	if k, ok := g.basicByPubKey[string(pub)]; ok {
		return k
	}
	for i := len(g.chains) - 1; i >= 0; i-- {
		if dk := g.chains[i].FindByPubKey(pub); dk != nil {
			return dk
		}
	}
	return nil
}

// MarkKeysUsed marks every recognised output script's key as used
// across the basic chain (a no-op there — imported keys have no
// issued/lookahead state) and every HD chain, advancing issued counters
// and extending lookahead as needed. A hash matching the married
// overlay's current redeem-script hash instead clears that purpose's
// current married address, so the next CurrentAddress call issues a
// fresh one.
func (g *Group) MarkKeysUsed(pubKeyHashes [][]byte) {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()
	for _, h := range pubKeyHashes {
		for _, c := range g.chains {
			c.MarkPubKeyHashUsed(h)
		}
		for p, current := range g.marriedCurrent {
			if current != nil && bytes.Equal(current.Payload, h) {
				g.marriedCurrent[p] = nil
			}
		}
	}
}

func (g *Group) isEncrypted() bool {
	for _, k := range g.basicByPubKeyHash {
		if k.IsEncrypted() {
			return true
		}
	}
	for _, c := range g.chains {
		if c.IsEncrypted() {
			return true
		}
	}
	return false
}

// IsEncrypted reports whether the group's keys are currently wrapped.
func (g *Group) IsEncrypted() bool {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()
	return g.isEncrypted()
}

// Encrypt wraps every key in the group under cr/derived. It is
// transactional: on any failure the group is left completely
// unchanged. An empty group (no basic keys and no HD chains) is
// refused since there is no canary key to later verify a passphrase
// against.
func (g *Group) Encrypt(cr *crypter.Crypter, derived *crypter.DerivedKey) error {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()

	if len(g.basicByPubKeyHash) == 0 && len(g.chains) == 0 {
		return newErr(KindEmptyGroup, "")
	}
	if g.isEncrypted() {
		return newErr(KindAlreadyEncrypted, "")
	}

	newBasicByHash := make(map[string]*importedKey, len(g.basicByPubKeyHash))
	newBasicByPub := make(map[string]*importedKey, len(g.basicByPubKey))
	for hash, k := range g.basicByPubKeyHash {
		enc, err := k.encryptedCopy(cr, derived)
		if err != nil {
			return err
		}
		newBasicByHash[hash] = enc
		newBasicByPub[string(enc.pub.SerializeCompressed())] = enc
	}

	newChains := make([]*Chain, len(g.chains))
	for i, c := range g.chains {
		enc, err := c.Encrypt(cr, derived)
		if err != nil {
			return err
		}
		newChains[i] = enc
	}

	// Only commit once every chain/key encrypted without error.
	g.basicByPubKeyHash = newBasicByHash
	g.basicByPubKey = newBasicByPub
	g.chains = newChains
	return nil
}

// Decrypt reverses Encrypt, returning the crypter package's
// WrongPassphrase error unchanged if derived cannot open the canary.
func (g *Group) Decrypt(derived *crypter.DerivedKey) error {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()

	if !g.isEncrypted() {
		return newErr(KindNotEncrypted, "")
	}

	newBasicByHash := make(map[string]*importedKey, len(g.basicByPubKeyHash))
	newBasicByPub := make(map[string]*importedKey, len(g.basicByPubKey))
	for hash, k := range g.basicByPubKeyHash {
		dec, err := k.decryptedCopy(derived)
		if err != nil {
			return err
		}
		newBasicByHash[hash] = dec
		newBasicByPub[string(dec.pub.SerializeCompressed())] = dec
	}

	newChains := make([]*Chain, len(g.chains))
	for i, c := range g.chains {
		dec, err := c.Decrypt(derived)
		if err != nil {
			return err
		}
		newChains[i] = dec
	}

	g.basicByPubKeyHash = newBasicByHash
	g.basicByPubKey = newBasicByPub
	g.chains = newChains
	return nil
}

// CheckPassword decrypts one canary key without mutating the group or
// revealing any scalar, returning whether passphrase was correct.
func (g *Group) CheckPassword(cr *crypter.Crypter, derived *crypter.DerivedKey) bool {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()

	for _, k := range g.basicByPubKeyHash {
		if k.IsEncrypted() {
			_, err := k.decryptedCopy(derived)
			return err == nil
		}
	}
	for _, c := range g.chains {
		if c.IsEncrypted() {
			_, err := c.Decrypt(derived)
			return err == nil
		}
	}
	return false
}

// CurrentAddress returns the address of the active chain's
// GetKey(purpose) for a
// non-married active chain, or the parallel P2SH address for a married
// one.
func (g *Group) CurrentAddress(p Purpose) (*addr.Address, error) {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()

	if g.married != nil {
		return g.currentMarriedAddress(p)
	}
	active := g.activeChain()
	if active == nil {
		return nil, newErr(KindEmptyGroup, "no active chain")
	}
	key := active.GetKey(p)
	return addr.FromPublicKey(key.pub, true, g.params)
}

// FreshAddress issues an address and advances past it. For a non-married
// active chain it returns the address CurrentAddress was returning and
// moves the current position on to the next key; for a married overlay
// it issues a new P2SH address, which CurrentAddress then returns until
// it is marked used.
func (g *Group) FreshAddress(p Purpose) (*addr.Address, error) {
	g.keyChainGroupLock.Lock()
	defer g.keyChainGroupLock.Unlock()

	if g.married != nil {
		return g.freshMarriedAddress(p)
	}
	active := g.activeChain()
	if active == nil {
		return nil, newErr(KindEmptyGroup, "no active chain")
	}
	key := active.FreshKey(p)
	return addr.FromPublicKey(key.pub, true, g.params)
}

// freshMarriedAddress must be called with keyChainGroupLock held.
func (g *Group) freshMarriedAddress(p Purpose) (*addr.Address, error) {
	address, _, err := g.married.FreshOutputScript(p)
	if err != nil {
		return nil, err
	}
	g.marriedAddrByHash[string(address.Payload)] = address
	g.marriedCurrent[p] = address
	return address, nil
}

// currentMarriedAddress must be called with keyChainGroupLock held. It
// returns purpose p's current married address — the most recent one
// issued that has not yet been marked used — issuing a fresh one the
// first time a purpose is asked for.
func (g *Group) currentMarriedAddress(p Purpose) (*addr.Address, error) {
	if current := g.marriedCurrent[p]; current != nil {
		return current, nil
	}
	return g.freshMarriedAddress(p)
}

// FindRedeemScript is used by the send pipeline to embed a married
// output's redeem script when it recognises a P2SH address by
// scripthash.
func (g *Group) FindRedeemScript(scriptHash []byte) ([]byte, *DeterministicKey, error) {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()

	if g.married == nil {
		return nil, nil, newErr(KindKeyNotFound, "group is not married")
	}
	return g.married.FindRedeemDataByScriptHash(scriptHash)
}

// BloomFilterMaterial returns every public key, public-key hash, and
// (for a married group) P2SH script hash the group currently
// recognises, lookahead included — raw elements a caller's own Bloom
// filter library inserts. This module builds no filter itself.
func (g *Group) BloomFilterMaterial() (pubKeys, pubKeyHashes, scriptHashes [][]byte) {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()

	for _, k := range g.basicByPubKeyHash {
		pubKeys = append(pubKeys, ecc.SerializePubKey(k.pub, k.compressed))
		pubKeyHashes = append(pubKeyHashes, k.PubKeyHash())
	}
	for _, c := range g.chains {
		pk, ph := c.PubKeysAndHashes()
		pubKeys = append(pubKeys, pk...)
		pubKeyHashes = append(pubKeyHashes, ph...)
	}
	for hash := range g.marriedAddrByHash {
		scriptHashes = append(scriptHashes, []byte(hash))
	}
	return pubKeys, pubKeyHashes, scriptHashes
}

// IsScriptOurs reports whether an output script pays a key or redeem
// script this group controls, recognising plain pubkey-hash outputs
// against every chain and, when married, script-hash outputs against
// the married overlay's known redeem scripts.
func (g *Group) IsScriptOurs(script scriptclass.Script) bool {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()

	switch script.Class {
	case scriptclass.PubKeyHash, scriptclass.WitnessV0PubKeyHash:
		return g.findKeyFromPubHash(script.PubKeyHash) != nil
	case scriptclass.ScriptHash:
		if g.married == nil {
			return false
		}
		_, _, err := g.married.FindRedeemDataByScriptHash(script.ScriptHash)
		return err == nil
	case scriptclass.PubKey:
		return g.findKeyFromPubKey(script.PubKey) != nil
	default:
		return false
	}
}

// SigningKey locates the private scalar for pubKeyHash, decrypting a
// single key in isolation (without mutating group state) when the
// group is encrypted. derived may be nil when the group is cleartext.
func (g *Group) SigningKey(pubKeyHash []byte, derived *crypter.DerivedKey) (*ecc.PrivateKey, error) {
	g.keyChainGroupLock.RLock()
	defer g.keyChainGroupLock.RUnlock()

	key := g.findKeyFromPubHash(pubKeyHash)
	if key == nil {
		return nil, newErr(KindKeyNotFound, "no key for pubkey hash")
	}
	if !key.IsEncrypted() {
		return key.PrivateKey()
	}
	if derived == nil {
		return nil, newErr(KindEncryptionRequired, "group is encrypted, aes key required")
	}
	switch k := key.(type) {
	case *importedKey:
		dec, err := k.decryptedCopy(derived)
		if err != nil {
			return nil, err
		}
		return dec.PrivateKey()
	case *DeterministicKey:
		dec, err := k.decryptedCopy(derived)
		if err != nil {
			return nil, err
		}
		return dec.PrivateKey()
	default:
		return nil, newErr(KindKeyNotFound, "unrecognised key implementation")
	}
}
