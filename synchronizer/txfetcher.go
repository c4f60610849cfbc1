package synchronizer

import (
	"context"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TxFetcher implements the transaction-fetch component (spec §4.5): given a
// history, it requests every transaction the address book doesn't already
// have a complete copy of, verifying each one's txid against what it asked
// for before committing it. A transaction already in flight for one
// history's fetch is not requested again on behalf of another.
type TxFetcher struct {
	server  ServerClient
	adb     AddressBook
	sem     *semaphore.Weighted
	metrics *Metrics

	mu          sync.Mutex
	requestedTx map[chainhash.Hash]int32
}

func newTxFetcher(server ServerClient, adb AddressBook, sem *semaphore.Weighted, metrics *Metrics) *TxFetcher {
	return &TxFetcher{
		server:      server,
		adb:         adb,
		sem:         sem,
		metrics:     metrics,
		requestedTx: make(map[chainhash.Hash]int32),
	}
}

// Len reports the number of transaction fetches currently in flight, part
// of the up-to-date oracle's input set (spec §5).
func (f *TxFetcher) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requestedTx)
}

// FetchMissing requests every entry in hist the address book doesn't
// already hold a complete transaction for, in parallel, as one supervised
// group: any single fetch's error cancels the rest. allowServerNotFindingTx
// is set during bootstrap gap-fill, where the server may have pruned a
// transaction the wallet already has a partial or historical record of;
// with it set, any error from the GetTransaction RPC drops that entry
// instead of failing the group.
func (f *TxFetcher) FetchMissing(ctx context.Context, hist []HistoryEntry, allowServerNotFindingTx bool) error {
	toFetch := make([]HistoryEntry, 0, len(hist))

	f.mu.Lock()
	for _, entry := range hist {
		if _, inFlight := f.requestedTx[entry.TxHash]; inFlight {
			continue
		}
		if _, complete, ok := f.adb.GetTransaction(entry.TxHash); ok && complete {
			continue
		}
		f.requestedTx[entry.TxHash] = entry.Height
		toFetch = append(toFetch, entry)
	}
	f.mu.Unlock()

	if len(toFetch) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range toFetch {
		entry := entry
		g.Go(func() error {
			return f.fetchOne(gctx, entry.TxHash, entry.Height, allowServerNotFindingTx)
		})
	}
	return g.Wait()
}

func (f *TxFetcher) fetchOne(ctx context.Context, txHash chainhash.Hash, height int32, allowNotFound bool) error {
	defer func() {
		f.mu.Lock()
		delete(f.requestedTx, txHash)
		f.mu.Unlock()
	}()

	f.metrics.requestSent()
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	raw, err := f.server.GetTransaction(ctx, txHash)
	f.sem.Release(1)
	if err != nil {
		if allowNotFound {
			log.Debugf("server could not supply pruned tx %s, ignoring (bootstrap gap-fill)", txHash)
			return nil
		}
		return err
	}
	f.metrics.requestAnswered()

	var msgTx wire.MsgTx
	if err := msgTx.FromBytes(raw); err != nil {
		return NewProtocolViolationError("malformed transaction %s: %v", txHash, err)
	}
	got := msgTx.TxHash()
	if got != txHash {
		return NewProtocolViolationError(
			"received transaction does not match requested txid (got %s, want %s)", got, txHash)
	}

	f.adb.ReceiveTxCallback(txHash, raw, height)
	return nil
}
