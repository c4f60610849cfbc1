package main

import (
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrwsync/synchronizer"
)

// memAddressBook is a throwaway, in-process synchronizer.AddressBook: it
// persists nothing across runs and exists only so the demo binary has
// somewhere to commit what the synchronizer fetches.
type memAddressBook struct {
	mu sync.Mutex

	addrs  map[string]struct{}
	assets map[string]struct{}

	history  map[string][]synchronizer.HistoryEntry
	txs      map[chainhash.Hash][]byte
	metadata map[string]*synchronizer.AssetMetadata

	// sources tracks the source transaction of the latest commit per
	// asset. This demo book has no chain-proof verification step, so it
	// reports every commit back through GetVerifiedAssetMetadataBaseSource
	// — a real AddressBook would only populate this once a separate
	// confirmation pass ran.
	sources map[string]synchronizer.AssetSource
}

func newMemAddressBook() *memAddressBook {
	return &memAddressBook{
		addrs:    make(map[string]struct{}),
		assets:   make(map[string]struct{}),
		history:  make(map[string][]synchronizer.HistoryEntry),
		txs:      make(map[chainhash.Hash][]byte),
		metadata: make(map[string]*synchronizer.AssetMetadata),
		sources:  make(map[string]synchronizer.AssetSource),
	}
}

func (a *memAddressBook) addAddress(addr string) {
	a.mu.Lock()
	a.addrs[addr] = struct{}{}
	a.mu.Unlock()
}

func (a *memAddressBook) addAsset(asset string) {
	a.mu.Lock()
	a.assets[asset] = struct{}{}
	a.mu.Unlock()
}

func (a *memAddressBook) GetAddrHistory(addr string) []synchronizer.HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]synchronizer.HistoryEntry(nil), a.history[addr]...)
}

func (a *memAddressBook) GetTransaction(txHash chainhash.Hash) ([]byte, bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, ok := a.txs[txHash]
	return tx, ok, ok
}

func (a *memAddressBook) GetAssetMetadata(asset string) *synchronizer.AssetMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metadata[asset]
}

func (a *memAddressBook) GetVerifiedAssetMetadataBaseSource(asset string) (*synchronizer.AssetSource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	src, ok := a.sources[asset]
	if !ok {
		return nil, false
	}
	return &src, true
}

func (a *memAddressBook) ReceiveHistoryCallback(addr string, hist []synchronizer.HistoryEntry, fees map[chainhash.Hash]int64) {
	a.mu.Lock()
	a.history[addr] = append([]synchronizer.HistoryEntry(nil), hist...)
	a.mu.Unlock()
	log.Infof("address %s: history updated to %d entries", addr, len(hist))
}

func (a *memAddressBook) ReceiveTxCallback(txHash chainhash.Hash, rawTx []byte, height int32) {
	a.mu.Lock()
	a.txs[txHash] = rawTx
	a.mu.Unlock()
	log.Infof("transaction %s fetched at height %d", txHash, height)
}

func (a *memAddressBook) AddUnverifiedOrUnconfirmedAssetMetadata(asset string, record *synchronizer.RawAssetMetadata) {
	a.mu.Lock()
	a.metadata[asset] = record.ToMetadata()
	a.sources[asset] = synchronizer.AssetSource{TxHash: record.SourceTxHash, Height: record.SourceHeight}
	a.mu.Unlock()
	log.Infof("asset %s: metadata updated", asset)
}

func (a *memAddressBook) GetAddresses() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.addrs))
	for addr := range a.addrs {
		out = append(out, addr)
	}
	return out
}

func (a *memAddressBook) GetAssets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.assets))
	for asset := range a.assets {
		out = append(out, asset)
	}
	return out
}

func (a *memAddressBook) GetHistory() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.history))
	for addr := range a.history {
		out = append(out, addr)
	}
	return out
}

func (a *memAddressBook) IsLegacyPrunedHistory(addr string) bool {
	return false
}

func (a *memAddressBook) UpToDateChanged() {
	log.Info("up-to-date state changed")
}

var _ synchronizer.AddressBook = (*memAddressBook)(nil)
