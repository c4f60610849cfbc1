package synchronizer

import (
	"context"
	"math/rand"
	"time"

	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Synchronizer is the top-level reconciliation engine (spec §4.6). It owns
// a SubscriptionBase for the subscribe/dispatch plumbing and adds the
// history/asset/tx reconciliation state SubscriptionBase has no notion of.
type Synchronizer struct {
	*SubscriptionBase

	adb       AddressBook
	txFetcher *TxFetcher
	cfg       *Config
	metrics   *Metrics

	requestedHistories     map[addrStatusKey]struct{}
	staleHistories         map[string]context.CancelFunc
	requestedAssetMetadata map[assetStatusKey]struct{}
	staleAssetMetadatas    map[string]context.CancelFunc

	bootstrapLimiter *rate.Limiter

	initDone bool
}

// NewSynchronizer wires together a Synchronizer ready for Run. params
// selects the network DeriveScriptHash decodes addresses against;
// validateAddr/validateAsset gate what Add/AddAsset will accept.
func NewSynchronizer(cfg *Config, server ServerClient, adb AddressBook, params stdaddr.AddressParams,
	validateAddr AddressValidator, validateAsset AssetNameValidator, metrics *Metrics) *Synchronizer {

	base := newSubscriptionBase(cfg, server, params, validateAddr, validateAsset, metrics)

	s := &Synchronizer{
		SubscriptionBase:       base,
		adb:                    adb,
		cfg:                    cfg,
		metrics:                metrics,
		requestedHistories:     make(map[addrStatusKey]struct{}),
		staleHistories:         make(map[string]context.CancelFunc),
		requestedAssetMetadata: make(map[assetStatusKey]struct{}),
		staleAssetMetadatas:    make(map[string]context.CancelFunc),
		bootstrapLimiter:       rate.NewLimiter(rate.Limit(cfg.BootstrapSubscribeRate), cfg.BootstrapSubscribeBurst),
	}
	s.txFetcher = newTxFetcher(server, adb, base.sem, metrics)
	base.onAddressStatus = s.onAddressStatus
	base.onAssetStatus = s.onAssetStatus
	return s
}

// Run drives the synchronizer until ctx is cancelled or a fatal error
// occurs: the main loop, the subscribe dispatch loops, and every spawned
// reconciler task all share one supervising errgroup, so any one of them
// failing tears down the rest (spec §5, "supervising task group").
func (s *Synchronizer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	s.bindGroup(g, gctx)
	s.run()

	g.Go(func() error { return s.mainLoop(gctx) })

	err := g.Wait()
	s.shutdown()
	return err
}

// mainLoop implements spec §4.6: an immediate not-up-to-date notification,
// bootstrap gap-fill and subscription, then a periodic drain/sample loop.
func (s *Synchronizer) mainLoop(ctx context.Context) error {
	s.adb.UpToDateChanged()

	for _, addr := range shuffledCopy(s.adb.GetHistory()) {
		if s.adb.IsLegacyPrunedHistory(addr) {
			continue
		}
		hist := s.adb.GetAddrHistory(addr)
		if err := s.txFetcher.FetchMissing(ctx, hist, s.cfg.AllowServerNotFindingTxOnBootstrap); err != nil {
			return err
		}
	}

	for _, addr := range shuffledCopy(s.adb.GetAddresses()) {
		addr := addr
		if err := s.bootstrapLimiter.Wait(ctx); err != nil {
			return nil
		}
		s.group.Go(func() error { return s.addAddress(ctx, addr) })
	}
	for _, asset := range shuffledCopy(s.adb.GetAssets()) {
		asset := asset
		if err := s.bootstrapLimiter.Wait(ctx); err != nil {
			return nil
		}
		s.group.Go(func() error { return s.addAsset(ctx, asset) })
	}

	s.mu.Lock()
	s.initDone = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.MainLoopInterval)
	defer ticker.Stop()

	prevUpToDate := false
	for {
		select {
		case <-ticker.C:
			s.drainAdditions(ctx)
			s.reportInFlightGauges()

			upToDate := s.IsUpToDate()
			if upToDate != prevUpToDate || (upToDate && s.processedSince()) {
				s.clearProcessed()
				s.adb.UpToDateChanged()
			}
			prevUpToDate = upToDate
		case <-ctx.Done():
			return nil
		}
	}
}

// IsUpToDate implements the up-to-date oracle of spec §5 invariant 5: true
// only once bootstrap has finished and every in-flight bookkeeping set
// across subscription, reconciliation, and transaction fetching is empty.
func (s *Synchronizer) IsUpToDate() bool {
	s.mu.Lock()
	initDone := s.initDone
	reqHist := len(s.requestedHistories)
	staleHist := len(s.staleHistories)
	reqMeta := len(s.requestedAssetMetadata)
	staleMeta := len(s.staleAssetMetadatas)
	s.mu.Unlock()

	if !initDone || reqHist != 0 || staleHist != 0 || reqMeta != 0 || staleMeta != 0 {
		return false
	}

	addingA, reqA, handlingA := s.addrSetSizes()
	if addingA != 0 || reqA != 0 || handlingA != 0 {
		return false
	}
	addingAs, reqAs, handlingAs := s.assetSetSizes()
	if addingAs != 0 || reqAs != 0 || handlingAs != 0 {
		return false
	}

	return s.txFetcher.Len() == 0 &&
		s.statusQueue.Empty() &&
		s.assetStatusQueue.Empty()
}

// reportInFlightGauges pushes the current size of every in-flight
// bookkeeping set to the prometheus gauges, so an operator can see which
// set is backed up without instrumenting the oracle itself.
func (s *Synchronizer) reportInFlightGauges() {
	addingA, reqA, handlingA := s.addrSetSizes()
	addingAs, reqAs, handlingAs := s.assetSetSizes()

	s.mu.Lock()
	reqHist := len(s.requestedHistories)
	staleHist := len(s.staleHistories)
	reqMeta := len(s.requestedAssetMetadata)
	staleMeta := len(s.staleAssetMetadatas)
	s.mu.Unlock()

	s.metrics.setInFlight("adding_addrs", addingA)
	s.metrics.setInFlight("requested_addrs", reqA)
	s.metrics.setInFlight("handling_addr_statuses", handlingA)
	s.metrics.setInFlight("adding_assets", addingAs)
	s.metrics.setInFlight("requested_assets", reqAs)
	s.metrics.setInFlight("handling_asset_statuses", handlingAs)
	s.metrics.setInFlight("requested_histories", reqHist)
	s.metrics.setInFlight("stale_histories", staleHist)
	s.metrics.setInFlight("requested_asset_metadata", reqMeta)
	s.metrics.setInFlight("stale_asset_metadata", staleMeta)
	s.metrics.setInFlight("requested_tx", s.txFetcher.Len())
}

func (s *Synchronizer) cancelStaleHistory(addr string) {
	s.mu.Lock()
	cancel, ok := s.staleHistories[addr]
	if ok {
		delete(s.staleHistories, addr)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// armStaleHistoryWatchdog starts a timer that, unless cancelled first by a
// corrected notification or by cancelStaleHistory, escalates to a
// GracefulDisconnectError once cfg.GenericNetworkTimeout elapses (spec §4.3
// step 7, §5's stale-status watchdog).
func (s *Synchronizer) armStaleHistoryWatchdog(addr string) {
	ctx, cancel := context.WithCancel(s.groupCtx)
	s.mu.Lock()
	if old, ok := s.staleHistories[addr]; ok {
		old()
	}
	s.staleHistories[addr] = cancel
	s.mu.Unlock()

	s.group.Go(func() error {
		select {
		case <-time.After(s.cfg.GenericNetworkTimeout):
			s.mu.Lock()
			delete(s.staleHistories, addr)
			s.mu.Unlock()
			return NewGracefulDisconnectError(ReasonStaleHistoryTimeout,
				"addr %s: history status never corrected within timeout", addr)
		case <-ctx.Done():
			return nil
		}
	})
}

func (s *Synchronizer) cancelStaleMetadata(asset string) {
	s.mu.Lock()
	cancel, ok := s.staleAssetMetadatas[asset]
	if ok {
		delete(s.staleAssetMetadatas, asset)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Synchronizer) armStaleMetadataWatchdog(asset string) {
	ctx, cancel := context.WithCancel(s.groupCtx)
	s.mu.Lock()
	if old, ok := s.staleAssetMetadatas[asset]; ok {
		old()
	}
	s.staleAssetMetadatas[asset] = cancel
	s.mu.Unlock()

	s.group.Go(func() error {
		select {
		case <-time.After(s.cfg.GenericNetworkTimeout):
			s.mu.Lock()
			delete(s.staleAssetMetadatas, asset)
			s.mu.Unlock()
			return NewGracefulDisconnectError(ReasonStaleMetadataTimeout,
				"asset %s: metadata status never corrected within timeout", asset)
		case <-ctx.Done():
			return nil
		}
	})
}

// shuffledCopy returns a randomly ordered copy of items, so bootstrap
// subscription order doesn't leak address/asset insertion order to the
// server (spec §4.6).
func shuffledCopy(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
