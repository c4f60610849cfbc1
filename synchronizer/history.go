package synchronizer

import (
	"context"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// addrStatusKey identifies a specific announced status for a specific
// address, so that a second notification carrying the exact same status
// while the first is still in flight is recognized as redundant (spec §4.3
// step 2, and the "at-most-one in-flight fetch per (addr, status)"
// property in §8).
type addrStatusKey struct {
	Addr   string
	Status Status
}

// onAddressStatus implements HistoryReconciler (spec §4.3). It is invoked
// by SubscriptionBase's dispatch loop for every address status
// notification, already tagged as "handling" for that address.
func (s *Synchronizer) onAddressStatus(ctx context.Context, addr string, announced *string) error {
	status := statusFromAnnounced(announced)
	key := addrStatusKey{Addr: addr, Status: status}

	// Steps 1-3: no-op check, in-flight dedup, watchdog cancel-then-rearm
	// bookkeeping. addr leaves _handling_addr_statuses as soon as this
	// returns, before the network fetch below — not at the end of the
	// whole function — mirroring the original's try/finally placement.
	proceed := func() bool {
		defer s.markAddrStatusHandled(addr)

		local := historyStatus(s.adb.GetAddrHistory(addr))
		if local == status {
			// No-op: our local view already matches what was announced.
			return false
		}

		s.mu.Lock()
		if _, inFlight := s.requestedHistories[key]; inFlight {
			s.mu.Unlock()
			return false
		}
		s.requestedHistories[key] = struct{}{}
		s.mu.Unlock()

		s.cancelStaleHistory(addr)
		return true
	}()
	if !proceed {
		return nil
	}

	defer func() {
		s.mu.Lock()
		delete(s.requestedHistories, key)
		s.mu.Unlock()
	}()

	sh, err := DeriveScriptHash(addr, s.params)
	if err != nil {
		return err
	}

	s.metrics.requestSent()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	items, err := s.server.GetHistory(ctx, sh)
	s.sem.Release(1)
	if err != nil {
		return err
	}
	s.metrics.requestAnswered()

	hist := make([]HistoryEntry, len(items))
	fees := make(map[chainhash.Hash]int64)
	for i, item := range items {
		if err := validateHeight(item.Height); err != nil {
			return err
		}
		hist[i] = HistoryEntry{TxHash: item.TxHash, Height: item.Height}
		if item.Fee != nil {
			fees[item.TxHash] = *item.Fee
		}
	}
	log.Debugf("received history for %s: %d entries", addr, len(hist))

	fetchedStatus := historyStatus(hist)
	if fetchedStatus != status {
		// Benign race: the server announced status but, by the time
		// we fetched it, the history it returned fingerprints to
		// something else. Arm a watchdog; a corrected notification
		// will cancel it (we just did that above, for the *previous*
		// watchdog — this is the new one for this race).
		log.Infof("status mismatch for %s: announced %s, fetched history "+
			"is %s; waiting for a corrected notification", addr, status, fetchedStatus)
		s.armStaleHistoryWatchdog(addr)
		return nil
	}

	s.cancelStaleHistory(addr)
	s.adb.ReceiveHistoryCallback(addr, hist, fees)
	return s.txFetcher.FetchMissing(ctx, hist, false)
}

// validateHeight rejects heights the server has no legitimate reason to
// send: real servers only ever report 0 (mempool), a positive chain
// height, or -1 (unconfirmed with an unconfirmed parent). Anything else
// would silently corrupt the fingerprint rather than fail loudly, so it's
// treated as a protocol violation instead.
func validateHeight(height int32) error {
	if height < -1 {
		return NewProtocolViolationError("history entry has invalid height %d", height)
	}
	return nil
}
