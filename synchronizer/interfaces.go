package synchronizer

import (
	"context"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// StatusNotification is a single (channel-key, announced-status) tuple
// pushed by the server onto one of the two notification queues. Status is
// nil when the server has nothing to report yet for this channel.
type StatusNotification struct {
	// Key is the scripthash hex (for address channels) or the asset
	// name (for asset channels) — whatever the server used to address
	// the notification.
	Key string

	Status *string
}

// ServerClient is the RPC surface the core consumes from the untrusted
// indexing server (spec §6). The transport, connection management, and
// server selection live outside the core; this interface is the entire
// contract. Implementations must deliver notifications onto the channel
// passed to the corresponding Subscribe call — not onto some side channel
// — since the core relies on the caller not to reorder notifications
// across channel keys it hasn't asked about.
type ServerClient interface {
	// SubscribeScripthash subscribes to status updates for the given
	// scripthash. Notifications are delivered on notify until the
	// synchronizer shuts down. Returns an error whose message is exactly
	// "history too large" (see errors.go) if the address's history is
	// too large for the server to serve; the core matches that message
	// by string equality, so an error that merely wraps it is not
	// recognized.
	SubscribeScripthash(ctx context.Context, sh ScriptHash, notify chan<- StatusNotification) error

	// SubscribeAsset subscribes to status updates for the given asset
	// name, delivered the same way as SubscribeScripthash.
	SubscribeAsset(ctx context.Context, asset string, notify chan<- StatusNotification) error

	// GetHistory fetches the full history for a scripthash, in the
	// server's chosen order (which the fingerprint functions are
	// sensitive to).
	GetHistory(ctx context.Context, sh ScriptHash) ([]HistoryItem, error)

	// GetAssetMetadata fetches the raw metadata record for an asset.
	GetAssetMetadata(ctx context.Context, asset string) (*RawAssetMetadata, error)

	// GetTransaction fetches the raw bytes of a transaction by its
	// hash.
	GetTransaction(ctx context.Context, txHash chainhash.Hash) ([]byte, error)
}

// RawAssetMetadata is the wire shape of blockchain.asset.get_meta (spec
// §6): either a typed record or a raw key-value mapping, both of which
// implementations should coerce into this one struct before handing it to
// the core. source_divisions/source_ipfs are optional follow-up
// provenance transactions.
type RawAssetMetadata struct {
	SatsInCirculation uint64
	Divisions         uint8
	Reissuable        bool
	HasIPFS           bool
	IPFSHash          []byte

	SourceTxHash chainhash.Hash
	SourceHeight int32

	SourceDivisionsTx *chainhash.Hash
	SourceIPFSTx      *chainhash.Hash
}

// ToMetadata coerces the wire record into the canonical AssetMetadata
// shape used for fingerprinting and storage, per the design notes on
// dynamic payload typing: both the typed and the mapping-style server
// responses are normalized to this one struct before they ever reach
// assetStatus.
func (r *RawAssetMetadata) ToMetadata() *AssetMetadata {
	if r == nil {
		return nil
	}
	m := &AssetMetadata{
		SatsInCirculation: r.SatsInCirculation,
		Divisions:         r.Divisions,
		Reissuable:        r.Reissuable,
		Source: AssetSource{
			TxHash: r.SourceTxHash,
			Height: r.SourceHeight,
		},
		SourceDivisionsTx: r.SourceDivisionsTx,
		SourceIPFSTx:      r.SourceIPFSTx,
	}
	if r.HasIPFS {
		if r.IPFSHash != nil {
			m.IPFSHash = r.IPFSHash
		} else {
			m.IPFSHash = []byte{}
		}
	}
	return m
}

// AddressBook is the persistent-state collaborator the core delegates to.
// It owns the wallet database; the core only ever reads from it and
// commits through the three receive/add callbacks (spec §6).
type AddressBook interface {
	// GetAddrHistory returns the locally stored history for addr, in
	// the order it should be fingerprinted.
	GetAddrHistory(addr string) []HistoryEntry

	// GetTransaction returns the locally stored transaction for
	// txHash, and whether it is a complete (non-partial) transaction.
	// ok is false if nothing is stored at all.
	GetTransaction(txHash chainhash.Hash) (tx []byte, complete bool, ok bool)

	// GetAssetMetadata returns the locally stored metadata for asset,
	// or nil if none is stored.
	GetAssetMetadata(asset string) *AssetMetadata

	// GetVerifiedAssetMetadataBaseSource returns the source
	// transaction/height of asset's verified base metadata, if any has
	// been confirmed.
	GetVerifiedAssetMetadataBaseSource(asset string) (*AssetSource, bool)

	// ReceiveHistoryCallback commits a freshly fetched, fingerprint-
	// verified history (and its mempool fee estimates) for addr.
	ReceiveHistoryCallback(addr string, hist []HistoryEntry, fees map[chainhash.Hash]int64)

	// ReceiveTxCallback commits a freshly fetched, txid-verified
	// transaction discovered at the given height.
	ReceiveTxCallback(txHash chainhash.Hash, rawTx []byte, height int32)

	// AddUnverifiedOrUnconfirmedAssetMetadata commits freshly fetched,
	// fingerprint-verified asset metadata that has not yet been
	// confirmed against chain proofs.
	AddUnverifiedOrUnconfirmedAssetMetadata(asset string, record *RawAssetMetadata)

	// GetAddresses and GetAssets return the full set of channels the
	// wallet cares about, for bootstrap subscription.
	GetAddresses() []string
	GetAssets() []string

	// GetHistory returns every address the wallet already has some
	// history for, used for the bootstrap gap-fill pass.
	GetHistory() []string

	// IsLegacyPrunedHistory reports whether addr's stored history is the
	// legacy '*' placeholder written by servers too old to report real
	// entries. The bootstrap gap-fill pass skips such addresses rather
	// than treating the placeholder as a real (and malformed) entry.
	IsLegacyPrunedHistory(addr string) bool

	// UpToDateChanged is the edge-triggered notification the main loop
	// fires whenever the up-to-date state flips, or stays true across a
	// tick in which notifications were processed.
	UpToDateChanged()
}

// AddressValidator reports whether addr is a well-formed address on the
// active network. It is supplied by the caller (spec §6); the core never
// hardcodes network rules.
type AddressValidator func(addr string) bool

// AssetNameValidator returns a non-empty error description if name is not a
// valid asset name, or "" if it is valid. Names beginning with '$' are
// restricted assets, '#' are qualifiers; other leading characters are
// regular assets (spec §6) — the validator alone decides what's
// well-formed, the core just surfaces its verdict.
type AssetNameValidator func(name string) string
