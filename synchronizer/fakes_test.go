package synchronizer

import (
	"context"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// fakeServer is a ServerClient double whose RPC behavior is configured by
// test cases through plain closures, the way a unit test mocks a remote
// collaborator without dragging in a real websocket connection.
type fakeServer struct {
	mu sync.Mutex

	subscribeScripthashN int
	subscribeAssetN      int
	historyCalls         int
	metaCalls            int
	txCalls              map[chainhash.Hash]int

	subscribeScripthashErr error
	subscribeAssetErr      error

	getHistoryFn     func(sh ScriptHash) ([]HistoryItem, error)
	getAssetMetaFn   func(asset string) (*RawAssetMetadata, error)
	getTransactionFn func(h chainhash.Hash) ([]byte, error)
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		txCalls: make(map[chainhash.Hash]int),
	}
}

func (f *fakeServer) SubscribeScripthash(ctx context.Context, sh ScriptHash, notify chan<- StatusNotification) error {
	f.mu.Lock()
	f.subscribeScripthashN++
	err := f.subscribeScripthashErr
	f.mu.Unlock()
	return err
}

func (f *fakeServer) SubscribeAsset(ctx context.Context, asset string, notify chan<- StatusNotification) error {
	f.mu.Lock()
	f.subscribeAssetN++
	err := f.subscribeAssetErr
	f.mu.Unlock()
	return err
}

func (f *fakeServer) GetHistory(ctx context.Context, sh ScriptHash) ([]HistoryItem, error) {
	f.mu.Lock()
	f.historyCalls++
	fn := f.getHistoryFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(sh)
}

func (f *fakeServer) GetAssetMetadata(ctx context.Context, asset string) (*RawAssetMetadata, error) {
	f.mu.Lock()
	f.metaCalls++
	fn := f.getAssetMetaFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(asset)
}

func (f *fakeServer) GetTransaction(ctx context.Context, txHash chainhash.Hash) ([]byte, error) {
	f.mu.Lock()
	f.txCalls[txHash]++
	fn := f.getTransactionFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(txHash)
}

func (f *fakeServer) callCounts() (historyCalls, metaCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls, f.metaCalls
}

func (f *fakeServer) txCallCount(h chainhash.Hash) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txCalls[h]
}

var _ ServerClient = (*fakeServer)(nil)

// fakeAddressBook is an AddressBook double recording every callback the
// core commits through, so tests can assert on what was (or wasn't)
// persisted without a real wallet database.
type fakeAddressBook struct {
	mu sync.Mutex

	history      map[string][]HistoryEntry
	completeTxs  map[chainhash.Hash][]byte
	partialTxs   map[chainhash.Hash][]byte
	metadata     map[string]*AssetMetadata
	verifiedBase map[string]AssetSource

	addresses    []string
	assets       []string
	historyAddrs []string
	legacyPruned map[string]bool

	receivedHistories []receivedHistory
	receivedTxs       []receivedTx
	addedMetadata     []addedMetadata
	upToDateChangedN  int
}

type receivedHistory struct {
	addr string
	hist []HistoryEntry
	fees map[chainhash.Hash]int64
}

type receivedTx struct {
	hash   chainhash.Hash
	raw    []byte
	height int32
}

type addedMetadata struct {
	asset  string
	record *RawAssetMetadata
}

func newFakeAddressBook() *fakeAddressBook {
	return &fakeAddressBook{
		history:      make(map[string][]HistoryEntry),
		completeTxs:  make(map[chainhash.Hash][]byte),
		partialTxs:   make(map[chainhash.Hash][]byte),
		metadata:     make(map[string]*AssetMetadata),
		verifiedBase: make(map[string]AssetSource),
		legacyPruned: make(map[string]bool),
	}
}

func (a *fakeAddressBook) GetAddrHistory(addr string) []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]HistoryEntry(nil), a.history[addr]...)
}

func (a *fakeAddressBook) GetTransaction(txHash chainhash.Hash) (tx []byte, complete bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if raw, found := a.completeTxs[txHash]; found {
		return raw, true, true
	}
	if raw, found := a.partialTxs[txHash]; found {
		return raw, false, true
	}
	return nil, false, false
}

func (a *fakeAddressBook) GetAssetMetadata(asset string) *AssetMetadata {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metadata[asset]
}

func (a *fakeAddressBook) GetVerifiedAssetMetadataBaseSource(asset string) (*AssetSource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	src, ok := a.verifiedBase[asset]
	if !ok {
		return nil, false
	}
	return &src, true
}

func (a *fakeAddressBook) ReceiveHistoryCallback(addr string, hist []HistoryEntry, fees map[chainhash.Hash]int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history[addr] = append([]HistoryEntry(nil), hist...)
	a.receivedHistories = append(a.receivedHistories, receivedHistory{addr: addr, hist: hist, fees: fees})
}

func (a *fakeAddressBook) ReceiveTxCallback(txHash chainhash.Hash, rawTx []byte, height int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completeTxs[txHash] = rawTx
	a.receivedTxs = append(a.receivedTxs, receivedTx{hash: txHash, raw: rawTx, height: height})
}

func (a *fakeAddressBook) AddUnverifiedOrUnconfirmedAssetMetadata(asset string, record *RawAssetMetadata) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[asset] = record.ToMetadata()
	a.addedMetadata = append(a.addedMetadata, addedMetadata{asset: asset, record: record})
}

func (a *fakeAddressBook) GetAddresses() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.addresses...)
}

func (a *fakeAddressBook) GetAssets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.assets...)
}

func (a *fakeAddressBook) GetHistory() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.historyAddrs...)
}

func (a *fakeAddressBook) IsLegacyPrunedHistory(addr string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.legacyPruned[addr]
}

func (a *fakeAddressBook) UpToDateChanged() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.upToDateChangedN++
}

func (a *fakeAddressBook) setVerifiedBase(asset string, src AssetSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verifiedBase[asset] = src
}

func (a *fakeAddressBook) setCompleteTx(h chainhash.Hash, raw []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completeTxs[h] = raw
}

func (a *fakeAddressBook) receivedTxCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.receivedTxs)
}

func (a *fakeAddressBook) receivedHistoryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.receivedHistories)
}

func (a *fakeAddressBook) addedMetadataCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.addedMetadata)
}

func (a *fakeAddressBook) upToDateChangedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.upToDateChangedN
}

var _ AddressBook = (*fakeAddressBook)(nil)

func alwaysValidAddr(string) bool { return true }

func alwaysValidAsset(string) string { return "" }
