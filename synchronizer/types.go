package synchronizer

import (
	"encoding/hex"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// Status is a hex-encoded fingerprint summarizing the current state of a
// channel (an address's history, or an asset's metadata). Two statuses are
// only ever compared for equality, never decoded.
type Status string

// StatusNone is the sentinel status for a channel with nothing behind it:
// an address with no history, or an asset with no metadata.
const StatusNone Status = "none"

// statusFromAnnounced converts a server-announced status, which may be
// absent (nil, meaning "nothing here yet"), into the same Status space
// produced by the fingerprint functions.
func statusFromAnnounced(announced *string) Status {
	if announced == nil {
		return StatusNone
	}
	return Status(*announced)
}

// ChannelKind distinguishes the two flavors of subscription channel.
type ChannelKind uint8

const (
	// ChannelAddress identifies an address/scripthash channel.
	ChannelAddress ChannelKind = iota

	// ChannelAsset identifies an asset-name channel.
	ChannelAsset
)

// ChannelKey tags a subscription channel as either an address or an asset.
// Exactly one of Addr/Asset is meaningful, selected by Kind.
type ChannelKey struct {
	Kind  ChannelKind
	Addr  string
	Asset string
}

// AddressKey builds a ChannelKey for an address channel.
func AddressKey(addr string) ChannelKey {
	return ChannelKey{Kind: ChannelAddress, Addr: addr}
}

// AssetKey builds a ChannelKey for an asset channel.
func AssetKey(asset string) ChannelKey {
	return ChannelKey{Kind: ChannelAsset, Asset: asset}
}

func (k ChannelKey) String() string {
	if k.Kind == ChannelAsset {
		return "asset:" + k.Asset
	}
	return "addr:" + k.Addr
}

// ScriptHash is the 32-byte digest of an address's output script, used as
// the server-side subscription key for address channels.
type ScriptHash [32]byte

// Hex returns the lowercase hex encoding of the scripthash, the form used
// on the wire.
func (s ScriptHash) Hex() string {
	return hex.EncodeToString(s[:])
}

// HistoryEntry is a single (tx_hash, height) pair in an address's history.
// Height is a chain height, 0 for mempool, negative for unconfirmed with
// unconfirmed parents.
type HistoryEntry struct {
	TxHash chainhash.Hash
	Height int32
}

// HistoryItem is a raw history entry as returned by the server, which may
// also carry an estimated fee for mempool transactions.
type HistoryItem struct {
	TxHash chainhash.Hash
	Height int32
	Fee    *int64
}

// AssetSource identifies the transaction and height that established some
// provenance fact about an asset (its creation, a later reissuance, or an
// IPFS association).
type AssetSource struct {
	TxHash chainhash.Hash
	Height int32
}

// AssetMetadata is the canonical, structured form of an asset's metadata.
// The server may describe this either as a typed record or as a raw
// key-value mapping (see RawAssetMetadata); both are coerced into this one
// shape before fingerprinting, per the design notes around dynamic payload
// typing.
type AssetMetadata struct {
	SatsInCirculation uint64
	Divisions         uint8
	Reissuable        bool

	// IPFSHash is the opaque IPFS identifier associated with the asset,
	// or nil if none is associated. A non-nil, possibly-empty slice
	// still counts as "has IPFS" for fingerprinting purposes; only nil
	// means "no association".
	IPFSHash []byte

	Source            AssetSource
	SourceDivisionsTx *chainhash.Hash
	SourceIPFSTx      *chainhash.Hash
}

// HasIPFS reports whether this metadata carries an IPFS association.
func (m *AssetMetadata) HasIPFS() bool {
	return m != nil && m.IPFSHash != nil
}
