package wallet

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/toole-brendan/shellwallet/crypter"
	"github.com/toole-brendan/shellwallet/hdkeychain"
	"github.com/toole-brendan/shellwallet/keychain"
	"github.com/toole-brendan/shellwallet/txpool"
	"github.com/toole-brendan/shellwallet/walletdb"
)

const chainExtensionPrefix = "chain/"

func chainExtensionID(idx int) string {
	return chainExtensionPrefix + strconv.Itoa(idx)
}

// chainBlob packs one HD chain's seed and issued counters into an
// ExtensionBlob payload: rather than persisting every precomputed
// lookahead key, a reload only needs enough to re-derive the buffer and
// fast-forward past already-issued keys. blobA/blobB/blobC hold either
// the cleartext entropy/binary-seed/mnemonic or, once encrypted, the
// IV‖ciphertext mnemonic and seed blobs (blobC unused).
type chainBlob struct {
	encrypted           bool
	issuedReceive       int
	issuedChange        int
	blobA, blobB, blobC []byte
}

func putUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readUvarint(buf []byte, pos int) (uint64, int, error) {
	var result uint64
	var shift uint
	for {
		if pos >= len(buf) {
			return 0, pos, newErr(KindPersistence, "truncated chain blob")
		}
		b := buf[pos]
		pos++
		result |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return result, pos, nil
		}
		shift += 7
	}
}

func putChainBytes(buf, b []byte) []byte {
	buf = putUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readChainBytes(buf []byte, pos int) ([]byte, int, error) {
	n, pos, err := readUvarint(buf, pos)
	if err != nil {
		return nil, pos, err
	}
	if pos+int(n) > len(buf) {
		return nil, pos, newErr(KindPersistence, "truncated chain blob")
	}
	return buf[pos : pos+int(n)], pos + int(n), nil
}

func (b chainBlob) encode() []byte {
	var flag byte
	if b.encrypted {
		flag = 1
	}
	out := []byte{flag}
	out = putUvarint(out, uint64(b.issuedReceive))
	out = putUvarint(out, uint64(b.issuedChange))
	out = putChainBytes(out, b.blobA)
	out = putChainBytes(out, b.blobB)
	out = putChainBytes(out, b.blobC)
	return out
}

func decodeChainBlob(data []byte) (chainBlob, error) {
	if len(data) < 1 {
		return chainBlob{}, newErr(KindPersistence, "empty chain blob")
	}
	var b chainBlob
	b.encrypted = data[0] != 0
	pos := 1

	issuedReceive, pos, err := readUvarint(data, pos)
	if err != nil {
		return chainBlob{}, err
	}
	issuedChange, pos, err := readUvarint(data, pos)
	if err != nil {
		return chainBlob{}, err
	}
	b.issuedReceive = int(issuedReceive)
	b.issuedChange = int(issuedChange)

	b.blobA, pos, err = readChainBytes(data, pos)
	if err != nil {
		return chainBlob{}, err
	}
	b.blobB, pos, err = readChainBytes(data, pos)
	if err != nil {
		return chainBlob{}, err
	}
	b.blobC, _, err = readChainBytes(data, pos)
	if err != nil {
		return chainBlob{}, err
	}
	return b, nil
}

func chainBlobFor(c *keychain.Chain, cr *crypter.Crypter, derived *crypter.DerivedKey) (chainBlob, error) {
	issuedReceive, issuedChange := c.IssuedCounts()
	seed := c.Seed()
	if seed == nil {
		return chainBlob{}, newErr(KindPersistence, "watching-only chains cannot be persisted yet")
	}
	if derived != nil {
		mnemonicBlob, seedBlob, err := seed.SnapshotEncrypted(cr, derived)
		if err != nil {
			return chainBlob{}, wrapErr(KindPersistence, "encrypt chain seed", err)
		}
		return chainBlob{
			encrypted:     true,
			issuedReceive: issuedReceive,
			issuedChange:  issuedChange,
			blobA:         mnemonicBlob,
			blobB:         seedBlob,
		}, nil
	}
	words, entropy, binarySeed, ok := seed.SnapshotCleartext()
	if !ok {
		return chainBlob{}, newErr(KindPersistence, "chain seed unavailable")
	}
	return chainBlob{
		issuedReceive: issuedReceive,
		issuedChange:  issuedChange,
		blobA:         entropy,
		blobB:         binarySeed,
		blobC:         []byte(strings.Join(words, " ")),
	}, nil
}

func serializeTx(tx *wire.MsgTx) []byte {
	var buf bytes.Buffer
	// MsgTx.Serialize never fails writing to a bytes.Buffer.
	_ = tx.Serialize(&buf)
	return buf.Bytes()
}

func deserializeTx(b []byte) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}

func txRecordFor(wtx *txpool.WalletTx) walletdb.TxRecord {
	var owned []uint32
	for idx := range wtx.OwnedOutputs {
		owned = append(owned, idx)
	}
	var spentIdx []uint32
	var spentHash [][]byte
	for idx, h := range wtx.SpentOutputs {
		hc := h
		spentIdx = append(spentIdx, idx)
		spentHash = append(spentHash, hc[:])
	}
	var overriding []byte
	if wtx.Confidence.OverridingTx != nil {
		h := *wtx.Confidence.OverridingTx
		overriding = h[:]
	}
	return walletdb.TxRecord{
		RawTx:   serializeTx(wtx.Tx),
		Pool:    int32(wtx.Pool),
		Purpose: int32(wtx.Purpose),
		Confidence: walletdb.ConfidenceRecord{
			Type:             int32(wtx.Confidence.Type),
			Source:           int32(wtx.Confidence.Source),
			AppearedAtHeight: wtx.Confidence.AppearedAtHeight,
			Depth:            wtx.Confidence.Depth,
			BlockHash:        wtx.Confidence.BlockHash[:],
			OverridingTx:     overriding,
		},
		OwnedOutputs:      owned,
		SpentOutputIndex:  spentIdx,
		SpentOutputTxHash: spentHash,
	}
}

func walletTxFromRecord(rec walletdb.TxRecord) (*txpool.WalletTx, error) {
	tx, err := deserializeTx(rec.RawTx)
	if err != nil {
		return nil, wrapErr(KindPersistence, "deserialize transaction", err)
	}
	hash := tx.TxHash()
	wtx := &txpool.WalletTx{
		Tx:           tx,
		Hash:         hash,
		Pool:         txpool.Pool(rec.Pool),
		Purpose:      txpool.TxPurpose(rec.Purpose),
		OwnedOutputs: make(map[uint32]bool),
		SpentOutputs: make(map[uint32]chainhash.Hash),
	}
	for _, idx := range rec.OwnedOutputs {
		wtx.OwnedOutputs[idx] = true
	}
	for i, idx := range rec.SpentOutputIndex {
		var h chainhash.Hash
		copy(h[:], rec.SpentOutputTxHash[i])
		wtx.SpentOutputs[idx] = h
	}
	wtx.Confidence = txpool.Confidence{
		Type:             txpool.ConfidenceType(rec.Confidence.Type),
		Source:           txpool.Source(rec.Confidence.Source),
		AppearedAtHeight: rec.Confidence.AppearedAtHeight,
		Depth:            rec.Confidence.Depth,
	}
	copy(wtx.Confidence.BlockHash[:], rec.Confidence.BlockHash)
	if rec.Confidence.OverridingTx != nil {
		var h chainhash.Hash
		copy(h[:], rec.Confidence.OverridingTx)
		wtx.Confidence.OverridingTx = &h
	}
	return wtx, nil
}

// Save flattens the wallet's live state into a walletdb.Wallet record
// and writes it to cfg.PersistPath (a no-op if that path is empty).
// passphrase is required only when the wallet is currently encrypted,
// to re-wrap each HD chain's seed under the same crypter used for its
// keys; married chains are not yet persisted (no component here rebuilds
// a MarriedKeyChain's cosigner redeem scripts from a flattened record).
func (w *Wallet) Save(passphrase []byte) error {
	w.walletLock.Lock()
	defer w.walletLock.Unlock()

	if w.cfg.PersistPath == "" {
		return nil
	}
	if w.group.IsMarried() {
		return newErr(KindPersistence, "married groups cannot be persisted yet")
	}

	record := &walletdb.Wallet{
		Version: w.version,
		Network: w.cfg.Params.Name,
	}

	var derived *crypter.DerivedKey
	if w.cr != nil {
		if len(passphrase) == 0 {
			return newErr(KindPersistence, "encrypted wallet requires a passphrase to save")
		}
		d, err := w.cr.DeriveKey(passphrase)
		if err != nil {
			return wrapErr(KindPersistence, "derive key", err)
		}
		defer d.Wipe()
		if !w.group.CheckPassword(w.cr, d) {
			return newErr(KindWrongPassword, "")
		}
		derived = d

		p := w.cr.Params()
		record.Encryption = &walletdb.EncryptionParams{
			Salt: p.Salt,
			N:    int32(p.N),
			R:    int32(p.R),
			P:    int32(p.P),
		}
	}

	for _, e := range w.group.ExportBasicKeys() {
		record.Keys = append(record.Keys, walletdb.KeyRecord{
			PubKey:              e.PubKey,
			EncryptedPrivateKey: e.KeyMaterial,
			CreatedAt:           e.CreatedAt,
		})
	}

	for idx, c := range w.group.Chains() {
		blob, err := chainBlobFor(c, w.cr, derived)
		if err != nil {
			return err
		}
		record.Extensions = append(record.Extensions, walletdb.ExtensionBlob{
			ID:        chainExtensionID(idx),
			Mandatory: true,
			Data:      blob.encode(),
		})
	}

	for _, wtx := range w.pool.All() {
		record.Transactions = append(record.Transactions, txRecordFor(wtx))
	}

	for script, createdAt := range w.watchedScripts {
		record.WatchedScripts = append(record.WatchedScripts, walletdb.WatchedScript{
			Script:    []byte(script),
			CreatedAt: createdAt,
		})
	}

	if w.lastSeenBlockHeight != 0 || w.lastSeenBlockHash != (chainhash.Hash{}) {
		h := w.lastSeenBlockHash
		record.LastSeenBlockHash = h[:]
		record.LastSeenBlockHeight = w.lastSeenBlockHeight
		record.LastSeenBlockTime = w.lastSeenBlockTime
	}
	record.KeyRotationTime = w.keyRotationTime

	if err := walletdb.SaveToFile(w.cfg.PersistPath, record); err != nil {
		return wrapErr(KindPersistence, "save to file", err)
	}
	return nil
}

// Load rebuilds a Wallet from cfg.PersistPath: the Key Chain Group's
// basic keys and HD chains are restored from their persisted seed and
// issued counters, and every tracked transaction is replayed back into
// a fresh pool via the same classification it held at save time.
// passphrase is required whenever the record is encrypted, since the
// chain seeds themselves (not just each key's scalar) were wrapped
// under it and must decrypt before the chains can be re-derived; the
// restored wallet ends up in the same encrypted state it was saved in.
func Load(cfg Config, passphrase []byte) (*Wallet, error) {
	record, err := walletdb.LoadFromFile(cfg.PersistPath)
	if err != nil {
		return nil, wrapErr(KindPersistence, "load from file", err)
	}
	if cfg.Params == nil || record.Network != cfg.Params.Name {
		return nil, newErr(KindUnsupportedNetwork, record.Network)
	}

	group := keychain.NewGroup(cfg.Params)

	var cr *crypter.Crypter
	var derived *crypter.DerivedKey
	if record.Encryption != nil {
		cr = crypter.New(&crypter.Params{
			Salt: record.Encryption.Salt,
			N:    int(record.Encryption.N),
			R:    int(record.Encryption.R),
			P:    int(record.Encryption.P),
		})
		if len(passphrase) == 0 {
			return nil, newErr(KindPersistence, "encrypted wallet requires a passphrase to load")
		}
		d, err := cr.DeriveKey(passphrase)
		if err != nil {
			return nil, wrapErr(KindPersistence, "derive key", err)
		}
		defer d.Wipe()
		derived = d
	}

	for _, k := range record.Keys {
		if err := group.RestoreBasicKey(keychain.BasicKeyExport{
			PubKey:      k.PubKey,
			Compressed:  len(k.PubKey) == 33,
			CreatedAt:   k.CreatedAt,
			Encrypted:   cr != nil,
			KeyMaterial: k.EncryptedPrivateKey,
		}); err != nil {
			return nil, wrapErr(KindPersistence, "restore basic key", err)
		}
	}

	for _, ext := range record.Extensions {
		if !strings.HasPrefix(ext.ID, chainExtensionPrefix) {
			continue
		}
		blob, err := decodeChainBlob(ext.Data)
		if err != nil {
			return nil, err
		}
		chain, err := restoreChainFromBlob(blob, cr, cfg.Params, derived)
		if err != nil {
			return nil, err
		}
		group.AddChain(chain)
	}

	pool := txpool.NewSet(cfg.RiskAnalyzer, cfg.AcceptRisky)
	for _, rec := range record.Transactions {
		wtx, err := walletTxFromRecord(rec)
		if err != nil {
			return nil, err
		}
		pool.Restore(wtx)
	}
	pool.SetTip(record.LastSeenBlockHeight)

	w := &Wallet{
		cfg:                 cfg,
		group:               group,
		pool:                pool,
		cr:                  cr,
		watchedScripts:      make(map[string]int64),
		version:             record.Version,
		keyRotationTime:     record.KeyRotationTime,
		lastSeenBlockHeight: record.LastSeenBlockHeight,
		lastSeenBlockTime:   record.LastSeenBlockTime,
	}
	copy(w.lastSeenBlockHash[:], record.LastSeenBlockHash)
	for _, ws := range record.WatchedScripts {
		w.watchedScripts[string(ws.Script)] = ws.CreatedAt
	}
	return w, nil
}

// restoreChainFromBlob reconstructs one chain from its persisted seed
// and issued counters, then re-encrypts it under cr/derived if it was
// encrypted at save time: loading an encrypted wallet always requires
// its passphrase, since the seed itself (not just each key's scalar)
// must decrypt before the chain can even be re-derived.
func restoreChainFromBlob(blob chainBlob, cr *crypter.Crypter, params *chaincfg.Params, derived *crypter.DerivedKey) (*keychain.Chain, error) {
	var seed *hdkeychain.DeterministicSeed
	if blob.encrypted {
		seed = hdkeychain.RestoreEncryptedSeed(blob.blobA, blob.blobB)
		if err := seed.Decrypt(derived); err != nil {
			return nil, wrapErr(KindWrongPassword, "decrypt chain seed", err)
		}
	} else {
		seed = hdkeychain.RestoreCleartextSeed(strings.Fields(string(blob.blobC)), blob.blobA, blob.blobB)
	}

	chain, err := keychain.RestoreChain(seed, params, blob.issuedReceive, blob.issuedChange)
	if err != nil {
		return nil, err
	}
	if blob.encrypted {
		return chain.Encrypt(cr, derived)
	}
	return chain, nil
}
