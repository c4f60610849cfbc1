package synchronizer

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrwsync/queue"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// SubscriptionBase owns the two notification queues and the per-channel
// in-flight sets described in spec §4.2: it validates Add/AddAsset input,
// drives the address/asset subscribe RPCs, and dispatches each incoming
// status change onto a supervised task. The reconciliation logic itself
// (onAddressStatus/onAssetStatus) is supplied by the embedding Synchronizer,
// since SubscriptionBase has no notion of history or metadata.
//
// Set mutations happen from whichever goroutine happens to be running —
// Add/AddAsset from the caller, the rest from tasks spawned onto the
// supervising group — so unlike the single-threaded event loop this is
// translated from, every access to the in-flight sets here goes through mu.
type SubscriptionBase struct {
	cfg           *Config
	server        ServerClient
	params        stdaddr.AddressParams
	validateAddr  AddressValidator
	validateAsset AssetNameValidator
	metrics       *Metrics
	sem           *semaphore.Weighted

	onAddressStatus func(ctx context.Context, addr string, status *string) error
	onAssetStatus   func(ctx context.Context, asset string, status *string) error

	mu                    sync.Mutex
	addingAddrs           map[string]struct{}
	requestedAddrs        map[string]struct{}
	handlingAddrStatuses  map[string]struct{}
	scripthashToAddr      map[ScriptHash]string
	addingAssets          map[string]struct{}
	requestedAssets       map[string]struct{}
	handlingAssetStatuses map[string]struct{}

	processedSomeNotifications      bool
	processedSomeAssetNotifications bool

	addrNotifyCh  chan StatusNotification
	assetNotifyCh chan StatusNotification

	statusQueue      *queue.ConcurrentQueue
	assetStatusQueue *queue.ConcurrentQueue

	group    *errgroup.Group
	groupCtx context.Context
}

func newSubscriptionBase(cfg *Config, server ServerClient, params stdaddr.AddressParams,
	validateAddr AddressValidator, validateAsset AssetNameValidator, metrics *Metrics) *SubscriptionBase {

	return &SubscriptionBase{
		cfg:                   cfg,
		server:                server,
		params:                params,
		validateAddr:          validateAddr,
		validateAsset:         validateAsset,
		metrics:               metrics,
		sem:                   semaphore.NewWeighted(cfg.MaxInFlightRequests),
		addingAddrs:           make(map[string]struct{}),
		requestedAddrs:        make(map[string]struct{}),
		handlingAddrStatuses:  make(map[string]struct{}),
		scripthashToAddr:      make(map[ScriptHash]string),
		addingAssets:          make(map[string]struct{}),
		requestedAssets:       make(map[string]struct{}),
		handlingAssetStatuses: make(map[string]struct{}),
		addrNotifyCh:          make(chan StatusNotification, cfg.QueueBufferSize),
		assetNotifyCh:         make(chan StatusNotification, cfg.QueueBufferSize),
		statusQueue:           queue.NewConcurrentQueue(cfg.QueueBufferSize),
		assetStatusQueue:      queue.NewConcurrentQueue(cfg.QueueBufferSize),
	}
}

// Add validates addr and, if well-formed, marks it for subscription. It
// never blocks on the network: the actual subscribe RPC happens later, off
// the main loop's periodic drain.
func (sb *SubscriptionBase) Add(addr string) error {
	if !sb.validateAddr(addr) {
		return NewInvalidInputError("invalid address %q", addr)
	}
	sb.mu.Lock()
	sb.addingAddrs[addr] = struct{}{}
	sb.mu.Unlock()
	return nil
}

// AddAsset validates name and, if well-formed, marks it for subscription.
func (sb *SubscriptionBase) AddAsset(name string) error {
	if errMsg := sb.validateAsset(name); errMsg != "" {
		return NewInvalidInputError("invalid asset %q: %s", name, errMsg)
	}
	sb.mu.Lock()
	sb.addingAssets[name] = struct{}{}
	sb.mu.Unlock()
	return nil
}

// bindGroup attaches the supervising group this SubscriptionBase spawns
// work onto. Must be called once, before run.
func (sb *SubscriptionBase) bindGroup(g *errgroup.Group, ctx context.Context) {
	sb.group = g
	sb.groupCtx = ctx
}

// run starts the notification queues and the two forwarder/dispatch loop
// pairs. It returns immediately; the loops run on the bound group until its
// context is done.
func (sb *SubscriptionBase) run() {
	sb.statusQueue.Start()
	sb.assetStatusQueue.Start()

	sb.group.Go(func() error { return sb.forwardNotifications(sb.addrNotifyCh, sb.statusQueue) })
	sb.group.Go(func() error { return sb.forwardNotifications(sb.assetNotifyCh, sb.assetStatusQueue) })
	sb.group.Go(func() error { return sb.dispatchAddressStatus(sb.groupCtx) })
	sb.group.Go(func() error { return sb.dispatchAssetStatus(sb.groupCtx) })
}

// shutdown stops the notification queues; call once the supervising group
// has finished.
func (sb *SubscriptionBase) shutdown() {
	sb.statusQueue.Stop()
	sb.assetStatusQueue.Stop()
}

// forwardNotifications relays server notifications delivered on a native
// channel onto the matching unbounded ConcurrentQueue, the way
// chainntnfs/dcrdnotify relays RPC client callbacks onto its own
// queue.ConcurrentQueue.
func (sb *SubscriptionBase) forwardNotifications(src chan StatusNotification, dst *queue.ConcurrentQueue) error {
	for {
		select {
		case n := <-src:
			select {
			case dst.ChanIn() <- n:
			case <-sb.groupCtx.Done():
				return nil
			}
		case <-sb.groupCtx.Done():
			return nil
		}
	}
}

// addAddress subscribes to addr unless it is already in requestedAddrs. It
// is idempotent: calling it twice before the first subscribe completes
// results in exactly one subscribe RPC (spec §8, "idempotent add"). addr
// leaves requestedAddrs once a status notification for it is dispatched, so
// a call after that point subscribes again.
func (sb *SubscriptionBase) addAddress(ctx context.Context, addr string) error {
	defer func() {
		sb.mu.Lock()
		delete(sb.addingAddrs, addr)
		sb.mu.Unlock()
	}()

	sb.mu.Lock()
	if _, already := sb.requestedAddrs[addr]; already {
		sb.mu.Unlock()
		return nil
	}
	sb.requestedAddrs[addr] = struct{}{}
	sb.mu.Unlock()

	sh, err := DeriveScriptHash(addr, sb.params)
	if err != nil {
		return err
	}

	sb.mu.Lock()
	sb.scripthashToAddr[sh] = addr
	sb.mu.Unlock()

	sb.metrics.requestSent()
	if err := sb.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	err = sb.server.SubscribeScripthash(ctx, sh, sb.addrNotifyCh)
	sb.sem.Release(1)
	if err != nil {
		return wrapSubscribeError(err)
	}
	sb.metrics.requestAnswered()
	return nil
}

// addAsset is the asset-side analogue of addAddress. All RPC errors
// surface unchanged (spec §4.2: "all RPC errors surface").
func (sb *SubscriptionBase) addAsset(ctx context.Context, name string) error {
	defer func() {
		sb.mu.Lock()
		delete(sb.addingAssets, name)
		sb.mu.Unlock()
	}()

	sb.mu.Lock()
	if _, already := sb.requestedAssets[name]; already {
		sb.mu.Unlock()
		return nil
	}
	sb.requestedAssets[name] = struct{}{}
	sb.mu.Unlock()

	sb.metrics.requestSent()
	if err := sb.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	err := sb.server.SubscribeAsset(ctx, name, sb.assetNotifyCh)
	sb.sem.Release(1)
	if err != nil {
		return err
	}
	sb.metrics.requestAnswered()
	return nil
}

// dispatchAddressStatus is the infinite dispatch loop popping queued
// address notifications and spawning a supervised onAddressStatus task for
// each (spec §4.2, handle_status).
func (sb *SubscriptionBase) dispatchAddressStatus(ctx context.Context) error {
	for {
		select {
		case item, ok := <-sb.statusQueue.ChanOut():
			if !ok {
				return nil
			}
			n := item.(StatusNotification)
			sh, err := scriptHashFromHex(n.Key)
			if err != nil {
				log.Warnf("discarding address notification with malformed scripthash %q: %v", n.Key, err)
				continue
			}

			sb.mu.Lock()
			addr, known := sb.scripthashToAddr[sh]
			if known {
				sb.handlingAddrStatuses[addr] = struct{}{}
				delete(sb.requestedAddrs, addr)
			}
			sb.mu.Unlock()
			if !known {
				log.Warnf("status notification for unsubscribed scripthash %s", n.Key)
				continue
			}

			status := n.Status
			sb.group.Go(func() error { return sb.onAddressStatus(ctx, addr, status) })

			sb.mu.Lock()
			sb.processedSomeNotifications = true
			sb.mu.Unlock()
		case <-ctx.Done():
			return nil
		}
	}
}

// dispatchAssetStatus is the asset-side analogue of dispatchAddressStatus.
func (sb *SubscriptionBase) dispatchAssetStatus(ctx context.Context) error {
	for {
		select {
		case item, ok := <-sb.assetStatusQueue.ChanOut():
			if !ok {
				return nil
			}
			n := item.(StatusNotification)

			sb.mu.Lock()
			sb.handlingAssetStatuses[n.Key] = struct{}{}
			delete(sb.requestedAssets, n.Key)
			sb.mu.Unlock()

			status := n.Status
			asset := n.Key
			sb.group.Go(func() error { return sb.onAssetStatus(ctx, asset, status) })

			sb.mu.Lock()
			sb.processedSomeAssetNotifications = true
			sb.mu.Unlock()
		case <-ctx.Done():
			return nil
		}
	}
}

func scriptHashFromHex(s string) (ScriptHash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ScriptHash{}, err
	}
	if len(b) != 32 {
		return ScriptHash{}, NewProtocolViolationError("scripthash %q is not 32 bytes", s)
	}
	var sh ScriptHash
	copy(sh[:], b)
	return sh, nil
}

// drainAdditions spawns addAddress/addAsset for every channel currently
// waiting in the _adding_* sets, copying the set first so concurrent Add
// calls during the drain don't race the iteration (spec §4.6, step "drain
// any late additions").
func (sb *SubscriptionBase) drainAdditions(ctx context.Context) {
	sb.mu.Lock()
	addrs := make([]string, 0, len(sb.addingAddrs))
	for a := range sb.addingAddrs {
		addrs = append(addrs, a)
	}
	assets := make([]string, 0, len(sb.addingAssets))
	for a := range sb.addingAssets {
		assets = append(assets, a)
	}
	sb.mu.Unlock()

	for _, addr := range addrs {
		addr := addr
		sb.group.Go(func() error { return sb.addAddress(ctx, addr) })
	}
	for _, asset := range assets {
		asset := asset
		sb.group.Go(func() error { return sb.addAsset(ctx, asset) })
	}
}

// addrSetSizes and assetSetSizes back the up-to-date oracle and the
// per-set metrics gauges.
func (sb *SubscriptionBase) addrSetSizes() (adding, requested, handling int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.addingAddrs), len(sb.requestedAddrs), len(sb.handlingAddrStatuses)
}

func (sb *SubscriptionBase) assetSetSizes() (adding, requested, handling int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.addingAssets), len(sb.requestedAssets), len(sb.handlingAssetStatuses)
}

// processedSince reports whether either dispatch loop has handed a
// notification off to a reconciler task since the last clearProcessed.
func (sb *SubscriptionBase) processedSince() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.processedSomeNotifications || sb.processedSomeAssetNotifications
}

// clearProcessed resets both processed-notification flags; called once the
// main loop has emitted an up_to_date_changed edge for them.
func (sb *SubscriptionBase) clearProcessed() {
	sb.mu.Lock()
	sb.processedSomeNotifications = false
	sb.processedSomeAssetNotifications = false
	sb.mu.Unlock()
}

func (sb *SubscriptionBase) markAddrStatusHandled(addr string) {
	sb.mu.Lock()
	delete(sb.handlingAddrStatuses, addr)
	sb.mu.Unlock()
}

func (sb *SubscriptionBase) markAssetStatusHandled(asset string) {
	sb.mu.Lock()
	delete(sb.handlingAssetStatuses, asset)
	sb.mu.Unlock()
}
