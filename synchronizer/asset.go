package synchronizer

import "context"

// assetStatusKey is the asset-side analogue of addrStatusKey.
type assetStatusKey struct {
	Asset  string
	Status Status
}

// onAssetStatus implements AssetReconciler (spec §4.4). Structurally a
// mirror of onAddressStatus, with one extra check neither history nor a
// plain key-value store needs: a verified base source, once seen, can only
// move forward. A server offering an older source, or a different source
// transaction at the same height, is either confused or attacking, and
// either way the synchronizer disconnects rather than regress the wallet's
// view of who issued the asset.
func (s *Synchronizer) onAssetStatus(ctx context.Context, asset string, announced *string) error {
	status := statusFromAnnounced(announced)
	key := assetStatusKey{Asset: asset, Status: status}

	// Steps 1-3: no-op check, in-flight dedup, watchdog cancel-then-rearm
	// bookkeeping. asset leaves _handling_asset_statuses as soon as this
	// returns, before the network fetch below — not at the end of the
	// whole function — mirroring the original's try/finally placement.
	proceed := func() bool {
		defer s.markAssetStatusHandled(asset)

		local := assetStatus(s.adb.GetAssetMetadata(asset))
		if local == status {
			return false
		}

		s.mu.Lock()
		if _, inFlight := s.requestedAssetMetadata[key]; inFlight {
			s.mu.Unlock()
			return false
		}
		s.requestedAssetMetadata[key] = struct{}{}
		s.mu.Unlock()

		s.cancelStaleMetadata(asset)
		return true
	}()
	if !proceed {
		return nil
	}

	defer func() {
		s.mu.Lock()
		delete(s.requestedAssetMetadata, key)
		s.mu.Unlock()
	}()

	s.metrics.requestSent()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	raw, err := s.server.GetAssetMetadata(ctx, asset)
	s.sem.Release(1)
	if err != nil {
		return err
	}
	s.metrics.requestAnswered()

	metadata := raw.ToMetadata()
	fetchedStatus := assetStatus(metadata)
	if fetchedStatus != status {
		log.Infof("status mismatch for asset %s: announced %s, fetched metadata "+
			"is %s; waiting for a corrected notification", asset, status, fetchedStatus)
		s.armStaleMetadataWatchdog(asset)
		return nil
	}

	if base, ok := s.adb.GetVerifiedAssetMetadataBaseSource(asset); ok {
		if metadata.Source.Height < base.Height ||
			(metadata.Source.Height == base.Height && metadata.Source.TxHash != base.TxHash) {
			return NewGracefulDisconnectError(ReasonAssetMetadataRegression,
				"asset %s: server offered source at height %d that does not move forward from verified base at height %d",
				asset, metadata.Source.Height, base.Height)
		}
	}

	s.cancelStaleMetadata(asset)
	s.adb.AddUnverifiedOrUnconfirmedAssetMetadata(asset, raw)

	fetchTargets := make([]HistoryEntry, 0, 3)
	fetchTargets = append(fetchTargets, HistoryEntry{TxHash: metadata.Source.TxHash, Height: metadata.Source.Height})
	if metadata.SourceDivisionsTx != nil {
		fetchTargets = append(fetchTargets, HistoryEntry{TxHash: *metadata.SourceDivisionsTx, Height: metadata.Source.Height})
	}
	if metadata.SourceIPFSTx != nil {
		fetchTargets = append(fetchTargets, HistoryEntry{TxHash: *metadata.SourceIPFSTx, Height: metadata.Source.Height})
	}
	return s.txFetcher.FetchMissing(ctx, fetchTargets, false)
}
