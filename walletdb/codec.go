package walletdb

// Top-level Wallet field tags.
const (
	tagVersion         = 1
	tagNetwork         = 2
	tagKey             = 3
	tagTransaction     = 4
	tagWatchedScript   = 5
	tagLastBlockHash   = 6
	tagLastBlockHeight = 7
	tagLastBlockTime   = 8
	tagEncryption      = 9
	tagKeyRotation     = 10
	tagExtension       = 11
)

// KeyRecord field tags.
const (
	tagKeyPubKey     = 1
	tagKeyEncPriv    = 2
	tagKeyChainCode  = 3
	tagKeyDepth      = 4
	tagKeyParentFP   = 5
	tagKeyChildNum   = 6
	tagKeyPath       = 7
	tagKeyPurpose    = 8
	tagKeyCreatedAt  = 9
	tagKeyUsed       = 10
)

// TxRecord field tags.
const (
	tagTxRaw          = 1
	tagTxPool         = 2
	tagTxConfidence   = 3
	tagTxPurpose      = 4
	tagTxOwnedOutput  = 5
	tagTxSpentIndex   = 6
	tagTxSpentTxHash  = 7
)

// ConfidenceRecord field tags.
const (
	tagConfType      = 1
	tagConfSource    = 2
	tagConfHeight    = 3
	tagConfDepth     = 4
	tagConfBlockHash = 5
	tagConfOverride  = 6
)

// WatchedScript field tags.
const (
	tagWatchedScriptBytes     = 1
	tagWatchedScriptCreatedAt = 2
)

// EncryptionParams field tags.
const (
	tagEncSalt = 1
	tagEncN    = 2
	tagEncR    = 3
	tagEncP    = 4
)

// ExtensionBlob field tags.
const (
	tagExtID        = 1
	tagExtMandatory = 2
	tagExtData      = 3
)

// Encode serialises a Wallet to its binary on-disk form.
func Encode(w *Wallet) []byte {
	out := &writer{}
	out.writeInt32(tagVersion, w.Version)
	out.writeString(tagNetwork, w.Network)
	for i := range w.Keys {
		out.writeMessage(tagKey, true, encodeKey(&w.Keys[i]))
	}
	for i := range w.Transactions {
		out.writeMessage(tagTransaction, true, encodeTx(&w.Transactions[i]))
	}
	for i := range w.WatchedScripts {
		out.writeMessage(tagWatchedScript, true, encodeWatchedScript(&w.WatchedScripts[i]))
	}
	if w.LastSeenBlockHash != nil {
		out.writeBytes(tagLastBlockHash, true, w.LastSeenBlockHash)
		out.writeInt32(tagLastBlockHeight, w.LastSeenBlockHeight)
		out.writeInt64(tagLastBlockTime, w.LastSeenBlockTime)
	}
	if w.Encryption != nil {
		out.writeMessage(tagEncryption, true, encodeEncryption(w.Encryption))
	}
	if w.KeyRotationTime != 0 {
		out.writeInt64(tagKeyRotation, w.KeyRotationTime)
	}
	for i := range w.Extensions {
		out.writeMessage(tagExtension, w.Extensions[i].Mandatory, encodeExtension(&w.Extensions[i]))
	}
	return out.buf
}

func encodeKey(k *KeyRecord) *writer {
	w := &writer{}
	w.writeBytes(tagKeyPubKey, true, k.PubKey)
	if k.EncryptedPrivateKey != nil {
		w.writeBytes(tagKeyEncPriv, true, k.EncryptedPrivateKey)
	}
	if k.ChainCode != nil {
		w.writeBytes(tagKeyChainCode, true, k.ChainCode)
		w.writeVarint(tagKeyDepth, uint64(k.Depth))
		w.writeBytes(tagKeyParentFP, true, k.ParentFP[:])
		w.writeVarint(tagKeyChildNum, uint64(k.ChildNum))
		pathBuf := &writer{}
		for _, p := range k.Path {
			pathBuf.putUvarint(uint64(p))
		}
		w.writeBytes(tagKeyPath, true, pathBuf.buf)
	}
	w.writeInt32(tagKeyPurpose, k.Purpose)
	w.writeInt64(tagKeyCreatedAt, k.CreatedAt)
	w.writeBool(tagKeyUsed, k.Used)
	return w
}

func encodeTx(t *TxRecord) *writer {
	w := &writer{}
	w.writeBytes(tagTxRaw, true, t.RawTx)
	w.writeInt32(tagTxPool, t.Pool)
	w.writeMessage(tagTxConfidence, true, encodeConfidence(&t.Confidence))
	w.writeInt32(tagTxPurpose, t.Purpose)
	for _, idx := range t.OwnedOutputs {
		w.writeVarint(tagTxOwnedOutput, uint64(idx))
	}
	for i, idx := range t.SpentOutputIndex {
		w.writeVarint(tagTxSpentIndex, uint64(idx))
		w.writeBytes(tagTxSpentTxHash, true, t.SpentOutputTxHash[i])
	}
	return w
}

func encodeConfidence(c *ConfidenceRecord) *writer {
	w := &writer{}
	w.writeInt32(tagConfType, c.Type)
	w.writeInt32(tagConfSource, c.Source)
	w.writeInt32(tagConfHeight, c.AppearedAtHeight)
	w.writeInt32(tagConfDepth, c.Depth)
	if c.BlockHash != nil {
		w.writeBytes(tagConfBlockHash, true, c.BlockHash)
	}
	if c.OverridingTx != nil {
		w.writeBytes(tagConfOverride, true, c.OverridingTx)
	}
	return w
}

func encodeWatchedScript(s *WatchedScript) *writer {
	w := &writer{}
	w.writeBytes(tagWatchedScriptBytes, true, s.Script)
	w.writeInt64(tagWatchedScriptCreatedAt, s.CreatedAt)
	return w
}

func encodeEncryption(p *EncryptionParams) *writer {
	w := &writer{}
	w.writeBytes(tagEncSalt, true, p.Salt)
	w.writeInt32(tagEncN, p.N)
	w.writeInt32(tagEncR, p.R)
	w.writeInt32(tagEncP, p.P)
	return w
}

func encodeExtension(e *ExtensionBlob) *writer {
	w := &writer{}
	w.writeString(tagExtID, e.ID)
	w.writeBytes(tagExtData, true, e.Data)
	return w
}

// Decode parses a Wallet from its binary on-disk form. A field tagged
// mandatory that this version of the codec does not recognise aborts
// the decode with KindUnknownMandatoryTag unless
// requireMandatoryExtensions is false, in which case it is skipped like
// any other unknown field (the forward-compatibility rule). The flag
// covers top-level fields only: an unknown mandatory field inside a
// nested record (key, transaction, confidence, watched script,
// encryption params, extension) aborts the decode either way.
func Decode(b []byte, requireMandatoryExtensions bool) (*Wallet, error) {
	r := &reader{buf: b}
	w := &Wallet{}
	for !r.done() {
		tag, kind, mandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagVersion:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			w.Version = int32(v)
		case tagNetwork:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			w.Network = string(p)
		case tagKey:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			k, err := decodeKey(p)
			if err != nil {
				return nil, err
			}
			w.Keys = append(w.Keys, *k)
		case tagTransaction:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			t, err := decodeTx(p)
			if err != nil {
				return nil, err
			}
			w.Transactions = append(w.Transactions, *t)
		case tagWatchedScript:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			s, err := decodeWatchedScript(p)
			if err != nil {
				return nil, err
			}
			w.WatchedScripts = append(w.WatchedScripts, *s)
		case tagLastBlockHash:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			w.LastSeenBlockHash = p
		case tagLastBlockHeight:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			w.LastSeenBlockHeight = int32(v)
		case tagLastBlockTime:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			w.LastSeenBlockTime = int64(v)
		case tagEncryption:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			enc, err := decodeEncryption(p)
			if err != nil {
				return nil, err
			}
			w.Encryption = enc
		case tagKeyRotation:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			w.KeyRotationTime = int64(v)
		case tagExtension:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			ext, err := decodeExtension(p, mandatory)
			if err != nil {
				return nil, err
			}
			w.Extensions = append(w.Extensions, *ext)
		default:
			if mandatory && requireMandatoryExtensions {
				return nil, newErr(KindUnknownMandatoryTag, "top-level")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}

func decodeKey(b []byte) (*KeyRecord, error) {
	r := &reader{buf: b}
	k := &KeyRecord{}
	for !r.done() {
		tag, kind, mandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagKeyPubKey:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			k.PubKey = p
		case tagKeyEncPriv:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			k.EncryptedPrivateKey = p
		case tagKeyChainCode:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			k.ChainCode = p
		case tagKeyDepth:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			k.Depth = uint8(v)
		case tagKeyParentFP:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			copy(k.ParentFP[:], p)
		case tagKeyChildNum:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			k.ChildNum = uint32(v)
		case tagKeyPath:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			pr := &reader{buf: p}
			for !pr.done() {
				v, err := pr.uvarint()
				if err != nil {
					return nil, err
				}
				k.Path = append(k.Path, uint32(v))
			}
		case tagKeyPurpose:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			k.Purpose = int32(v)
		case tagKeyCreatedAt:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			k.CreatedAt = int64(v)
		case tagKeyUsed:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			k.Used = v != 0
		default:
			if mandatory {
				return nil, newErr(KindUnknownMandatoryTag, "key record")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	return k, nil
}

func decodeTx(b []byte) (*TxRecord, error) {
	r := &reader{buf: b}
	t := &TxRecord{}
	var spentIdx []uint32
	var spentHash [][]byte
	for !r.done() {
		tag, kind, mandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagTxRaw:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			t.RawTx = p
		case tagTxPool:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			t.Pool = int32(v)
		case tagTxConfidence:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			c, err := decodeConfidence(p)
			if err != nil {
				return nil, err
			}
			t.Confidence = *c
		case tagTxPurpose:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			t.Purpose = int32(v)
		case tagTxOwnedOutput:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			t.OwnedOutputs = append(t.OwnedOutputs, uint32(v))
		case tagTxSpentIndex:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			spentIdx = append(spentIdx, uint32(v))
		case tagTxSpentTxHash:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			spentHash = append(spentHash, p)
		default:
			if mandatory {
				return nil, newErr(KindUnknownMandatoryTag, "tx record")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	if len(spentIdx) != len(spentHash) {
		return nil, newErr(KindTruncated, "mismatched spent-output index/hash pairs")
	}
	t.SpentOutputIndex = spentIdx
	t.SpentOutputTxHash = spentHash
	return t, nil
}

func decodeConfidence(b []byte) (*ConfidenceRecord, error) {
	r := &reader{buf: b}
	c := &ConfidenceRecord{}
	for !r.done() {
		tag, kind, mandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagConfType:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			c.Type = int32(v)
		case tagConfSource:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			c.Source = int32(v)
		case tagConfHeight:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			c.AppearedAtHeight = int32(v)
		case tagConfDepth:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			c.Depth = int32(v)
		case tagConfBlockHash:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			c.BlockHash = p
		case tagConfOverride:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			c.OverridingTx = p
		default:
			if mandatory {
				return nil, newErr(KindUnknownMandatoryTag, "confidence record")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func decodeWatchedScript(b []byte) (*WatchedScript, error) {
	r := &reader{buf: b}
	s := &WatchedScript{}
	for !r.done() {
		tag, kind, mandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagWatchedScriptBytes:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			s.Script = p
		case tagWatchedScriptCreatedAt:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			s.CreatedAt = int64(v)
		default:
			if mandatory {
				return nil, newErr(KindUnknownMandatoryTag, "watched script")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func decodeEncryption(b []byte) (*EncryptionParams, error) {
	r := &reader{buf: b}
	p := &EncryptionParams{}
	for !r.done() {
		tag, kind, mandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagEncSalt:
			v, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			p.Salt = v
		case tagEncN:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			p.N = int32(v)
		case tagEncR:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			p.R = int32(v)
		case tagEncP:
			v, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			p.P = int32(v)
		default:
			if mandatory {
				return nil, newErr(KindUnknownMandatoryTag, "encryption params")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func decodeExtension(b []byte, mandatory bool) (*ExtensionBlob, error) {
	r := &reader{buf: b}
	e := &ExtensionBlob{Mandatory: mandatory}
	for !r.done() {
		tag, kind, fieldMandatory, err := r.tag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagExtID:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			e.ID = string(p)
		case tagExtData:
			p, err := r.bytesPayload()
			if err != nil {
				return nil, err
			}
			e.Data = p
		default:
			if fieldMandatory {
				return nil, newErr(KindUnknownMandatoryTag, "extension blob")
			}
			if err := r.skip(kind); err != nil {
				return nil, err
			}
		}
	}
	return e, nil
}
