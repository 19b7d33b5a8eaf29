package keychain

import (
	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/ecc"
)

// Key is the common surface both imported (basic-chain) and derived
// (HD-chain) keys satisfy, letting Group search across both uniformly
// (find_key_from_pubhash).
type Key interface {
	PubKey() *ecc.PublicKey
	PubKeyHash() []byte
	IsWatchingOnly() bool
	IsEncrypted() bool
	PrivateKey() (*ecc.PrivateKey, error)
}

const ivLen = 16

// importedKey is a Single Key held in the basic chain: no parent,
// no chain code, no derivation path.
type importedKey struct {
	pub        *ecc.PublicKey
	compressed bool
	priv       *ecc.PrivateKey // nil if watching-only or encrypted
	createdAt  int64
	encrypted  []byte // IV‖ciphertext over the 32-byte scalar
}

func (k *importedKey) PubKey() *ecc.PublicKey { return k.pub }

func (k *importedKey) PubKeyHash() []byte {
	return ecc.Hash160(ecc.SerializePubKey(k.pub, k.compressed))
}

func (k *importedKey) IsWatchingOnly() bool { return k.priv == nil && k.encrypted == nil }
func (k *importedKey) IsEncrypted() bool    { return k.encrypted != nil }

func (k *importedKey) PrivateKey() (*ecc.PrivateKey, error) {
	if k.priv == nil {
		if k.encrypted != nil {
			return nil, newErr(KindEncryptionRequired, "call Group.Decrypt before reading this key's scalar")
		}
		return nil, newErr(KindWatchingOnly, "key has no private scalar")
	}
	return k.priv, nil
}

func (k *importedKey) encryptedCopy(c *crypter.Crypter, derived *crypter.DerivedKey) (*importedKey, error) {
	if k.priv == nil {
		return nil, newErr(KindWatchingOnly, "cannot encrypt a watching-only key")
	}
	scalar := k.priv.Serialize()
	iv, ct, err := crypter.Encrypt(scalar, derived)
	wipeBytes(scalar)
	if err != nil {
		return nil, wrapErr(KindDerivation, "encrypt", err)
	}
	return &importedKey{
		pub:        k.pub,
		compressed: k.compressed,
		createdAt:  k.createdAt,
		encrypted:  append(iv, ct...),
	}, nil
}

func (k *importedKey) decryptedCopy(derived *crypter.DerivedKey) (*importedKey, error) {
	if k.encrypted == nil {
		return k, nil
	}
	scalar, err := crypter.Decrypt(k.encrypted[:ivLen], k.encrypted[ivLen:], derived)
	if err != nil {
		return nil, err // already a *crypter.Error with KindWrongPassphrase
	}
	priv, err := ecc.PrivKeyFromScalar(scalar)
	wipeBytes(scalar)
	if err != nil {
		return nil, wrapErr(KindDerivation, "reconstruct scalar", err)
	}
	return &importedKey{
		pub:        k.pub,
		compressed: k.compressed,
		createdAt:  k.createdAt,
		priv:       priv,
	}, nil
}

// DeterministicKey is one node of an HD chain's precomputed buffer;
// it carries the chain-code/depth/fingerprint/path metadata a
// Single Key lacks, but never a pointer to its parent — the path *is*
// its identity, matching the arena-not-pointers design in DESIGN NOTES.
type DeterministicKey struct {
	pub         *ecc.PublicKey
	priv        *ecc.PrivateKey // nil if watching-only or encrypted
	chainCode   [32]byte
	depth       uint8
	parentFP    [4]byte
	childNumber uint32
	path        []uint32
	purpose     Purpose
	bufferIndex int
	createdAt   int64
	used        bool
	encrypted   []byte
}

func (k *DeterministicKey) PubKey() *ecc.PublicKey { return k.pub }

func (k *DeterministicKey) PubKeyHash() []byte {
	return ecc.Hash160(ecc.SerializePubKey(k.pub, true))
}

func (k *DeterministicKey) IsWatchingOnly() bool { return k.priv == nil && k.encrypted == nil }
func (k *DeterministicKey) IsEncrypted() bool    { return k.encrypted != nil }
func (k *DeterministicKey) IsUsed() bool         { return k.used }
func (k *DeterministicKey) Path() []uint32       { return append([]uint32(nil), k.path...) }

func (k *DeterministicKey) PrivateKey() (*ecc.PrivateKey, error) {
	if k.priv == nil {
		if k.encrypted != nil {
			return nil, newErr(KindEncryptionRequired, "call Chain.Decrypt before reading this key's scalar")
		}
		return nil, newErr(KindWatchingOnly, "key has no private scalar")
	}
	return k.priv, nil
}

func (k *DeterministicKey) encryptedCopy(derived *crypter.DerivedKey) (*DeterministicKey, error) {
	cp := *k
	if k.priv == nil {
		return &cp, nil // already watching-only; nothing to encrypt
	}
	scalar := k.priv.Serialize()
	iv, ct, err := crypter.Encrypt(scalar, derived)
	wipeBytes(scalar)
	if err != nil {
		return nil, wrapErr(KindDerivation, "encrypt", err)
	}
	cp.priv = nil
	cp.encrypted = append(iv, ct...)
	return &cp, nil
}

func (k *DeterministicKey) decryptedCopy(derived *crypter.DerivedKey) (*DeterministicKey, error) {
	cp := *k
	if k.encrypted == nil {
		return &cp, nil
	}
	scalar, err := crypter.Decrypt(k.encrypted[:ivLen], k.encrypted[ivLen:], derived)
	if err != nil {
		return nil, err
	}
	priv, err := ecc.PrivKeyFromScalar(scalar)
	wipeBytes(scalar)
	if err != nil {
		return nil, wrapErr(KindDerivation, "reconstruct scalar", err)
	}
	cp.priv = priv
	cp.encrypted = nil
	return &cp, nil
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
