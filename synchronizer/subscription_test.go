package synchronizer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/require"
)

func newTestSubscriptionBase(server ServerClient) *SubscriptionBase {
	cfg := DefaultConfig()
	metrics := NewMetrics("test")
	return newSubscriptionBase(cfg, server, testParams(), alwaysValidAddr, alwaysValidAsset, metrics)
}

func TestAddRejectsInvalidAddress(t *testing.T) {
	sb := newSubscriptionBase(DefaultConfig(), newFakeServer(), testParams(),
		func(string) bool { return false }, alwaysValidAsset, NewMetrics("test"))

	err := sb.Add("not-an-address")
	require.Error(t, err)

	var invalid *InvalidInputError
	require.True(t, errors.As(err, &invalid))
}

func TestAddAssetRejectsInvalidName(t *testing.T) {
	sb := newSubscriptionBase(DefaultConfig(), newFakeServer(), testParams(),
		alwaysValidAddr, func(string) string { return "bad name" }, NewMetrics("test"))

	err := sb.AddAsset("nope")
	require.Error(t, err)

	var invalid *InvalidInputError
	require.True(t, errors.As(err, &invalid))
}

// TestIdempotentAddAddress covers the "idempotent add" property of spec §8:
// calling addAddress repeatedly for the same address before the first
// subscribe completes results in exactly one subscribe RPC.
func TestIdempotentAddAddress(t *testing.T) {
	server := newFakeServer()
	sb := newTestSubscriptionBase(server)
	addr := testAddress(t, 1)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sb.addAddress(ctx, addr))
		}()
	}
	wg.Wait()

	require.Equal(t, 1, server.subscribeScripthashN)
}

func TestIdempotentAddAsset(t *testing.T) {
	server := newFakeServer()
	sb := newTestSubscriptionBase(server)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sb.addAsset(ctx, "EXAMPLEASSET"))
		}()
	}
	wg.Wait()

	require.Equal(t, 1, server.subscribeAssetN)
}

// TestDrainAdditionsSubscribesOnce simulates the outer Add() + main-loop
// drain path: several Add calls for the same address queue up in
// addingAddrs, and a single drainAdditions pass must still result in one
// subscribe RPC.
func TestDrainAdditionsSubscribesOnce(t *testing.T) {
	server := newFakeServer()
	sb := newTestSubscriptionBase(server)
	addr := testAddress(t, 2)

	require.NoError(t, sb.Add(addr))
	require.NoError(t, sb.Add(addr))
	require.NoError(t, sb.Add(addr))

	g, gctx := errgroup.WithContext(context.Background())
	sb.bindGroup(g, gctx)

	sb.drainAdditions(gctx)
	require.NoError(t, g.Wait())

	require.Equal(t, 1, server.subscribeScripthashN)

	adding, requested, handling := sb.addrSetSizes()
	require.Equal(t, 0, adding)
	require.Equal(t, 1, requested)
	require.Equal(t, 0, handling)
}

func TestHistoryTooLargeBecomesGracefulDisconnect(t *testing.T) {
	server := newFakeServer()
	server.subscribeScripthashErr = errHistoryTooLargeStub{}
	sb := newTestSubscriptionBase(server)
	addr := testAddress(t, 3)

	err := sb.addAddress(context.Background(), addr)
	require.Error(t, err)

	var disc *GracefulDisconnectError
	require.True(t, errors.As(err, &disc))
	require.Equal(t, ReasonHistoryTooLarge, disc.Reason)
}

type errHistoryTooLargeStub struct{}

func (errHistoryTooLargeStub) Error() string { return errHistoryTooLargeMessage }

func TestDispatchAddressStatusSpawnsReconciler(t *testing.T) {
	server := newFakeServer()
	sb := newTestSubscriptionBase(server)
	addr := testAddress(t, 4)

	sh, err := DeriveScriptHash(addr, testParams())
	require.NoError(t, err)

	sb.scripthashToAddr[sh] = addr
	sb.requestedAddrs[addr] = struct{}{}

	var handled chan string = make(chan string, 1)
	sb.onAddressStatus = func(ctx context.Context, a string, status *string) error {
		handled <- a
		return nil
	}

	g, gctx := errgroup.WithContext(context.Background())
	sb.bindGroup(g, gctx)
	sb.run()
	defer sb.shutdown()

	status := "deadbeef"
	sb.statusQueue.ChanIn() <- StatusNotification{Key: sh.Hex(), Status: &status}

	select {
	case got := <-handled:
		require.Equal(t, addr, got)
	case <-time.After(2 * time.Second):
		t.Fatal("onAddressStatus was never invoked")
	}

	_, _, handling := sb.addrSetSizes()
	require.Equal(t, 1, handling, "handling set is cleared by markAddrStatusHandled, not by the dispatch loop itself")
}
