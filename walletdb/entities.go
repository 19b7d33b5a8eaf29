package walletdb

// The types in this file are plain data records: walletdb never imports
// keychain or txpool directly, so the wallet facade is responsible for
// flattening live state into a Wallet before Encode and rebuilding live
// state from a decoded Wallet after Decode.

// KeyRecord is one entry of the Key Chain Group's basic or HD chains.
type KeyRecord struct {
	// PubKey is the serialized (compressed or uncompressed) public key.
	PubKey []byte
	// EncryptedPrivateKey is IV‖ciphertext over the 32-byte scalar in an
	// encrypted wallet, the 32-byte scalar itself in a cleartext one, or
	// nil for a watching-only key.
	EncryptedPrivateKey []byte
	// ChainCode is set only for HD-derived keys; nil for imported keys.
	ChainCode []byte
	Depth     uint8
	ParentFP  [4]byte
	ChildNum  uint32
	// Path is the full derivation path from the chain's seed, empty for
	// imported keys.
	Path      []uint32
	Purpose   int32
	CreatedAt int64
	Used      bool
}

// ConfidenceRecord mirrors txpool.Confidence.
type ConfidenceRecord struct {
	Type             int32
	Source           int32
	AppearedAtHeight int32
	Depth            int32
	BlockHash        []byte
	// OverridingTx is nil unless Type is dead, when it names the
	// confirmed transaction that double-spent this one.
	OverridingTx []byte
}

// TxRecord is one transaction tracked by the Transaction Pool, together
// with the bookkeeping needed to resume pool classification after load.
type TxRecord struct {
	// RawTx is the full wire-serialized transaction.
	RawTx      []byte
	Pool       int32
	Confidence ConfidenceRecord
	Purpose    int32
	// OwnedOutputs lists the output indices the Key Chain Group
	// recognised as ours.
	OwnedOutputs []uint32
	// SpentOutputIndex/SpentOutputTxHash are parallel slices mapping an
	// owned output index to the hash of the transaction spending it.
	SpentOutputIndex  []uint32
	SpentOutputTxHash [][]byte
}

// WatchedScript is a pkScript the wallet tracks without holding its key
// (e.g. a counterparty's half of a multisig).
type WatchedScript struct {
	Script    []byte
	CreatedAt int64
}

// EncryptionParams mirrors crypter.Params.
type EncryptionParams struct {
	Salt []byte
	N    int32
	R    int32
	P    int32
}

// ExtensionBlob is an opaque, ID-identified chunk a future reader may
// not understand. Decode keeps every extension blob with its Mandatory
// flag as written and does not inspect ID, so an unrecognised mandatory
// extension does not reject the decode.
type ExtensionBlob struct {
	ID        string
	Mandatory bool
	Data      []byte
}

// Wallet is the complete on-disk record.
type Wallet struct {
	Version int32
	Network string

	Keys           []KeyRecord
	Transactions   []TxRecord
	WatchedScripts []WatchedScript

	LastSeenBlockHash   []byte
	LastSeenBlockHeight int32
	LastSeenBlockTime   int64

	// Encryption is nil for a cleartext wallet.
	Encryption *EncryptionParams
	// KeyRotationTime is zero unless a rotation time has been set.
	KeyRotationTime int64

	Extensions []ExtensionBlob
}
