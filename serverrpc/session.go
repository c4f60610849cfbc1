// Package serverrpc is a convenience ServerClient implementation speaking
// JSON-RPC over a websocket connection, the way Electrum-style indexing
// servers expose blockchain.scripthash.* and blockchain.asset.* calls. It
// is demo/integration wiring, not part of the reconciliation core: any
// transport satisfying synchronizer.ServerClient works just as well.
package serverrpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrwsync/synchronizer"
	goerrors "github.com/go-errors/errors"
	"github.com/gorilla/websocket"
)

// Session is a single connection to one indexing server, dispatching
// JSON-RPC calls and demultiplexing subscription push notifications back
// onto the channels SubscribeScripthash/SubscribeAsset were given.
type Session struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  uint64

	mu             sync.Mutex
	pending        map[uint64]chan *response
	scripthashSubs map[string]chan<- synchronizer.StatusNotification
	assetSubs      map[string]chan<- synchronizer.StatusNotification

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to an indexing server at url (e.g. "wss://host:port") and
// starts demultiplexing its replies and push notifications.
func Dial(ctx context.Context, url string) (*Session, error) {
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, goerrors.Errorf("dialing indexing server %s: %v", url, err)
	}

	s := &Session{
		conn:           conn,
		pending:        make(map[uint64]chan *response),
		scripthashSubs: make(map[string]chan<- synchronizer.StatusNotification),
		assetSubs:      make(map[string]chan<- synchronizer.StatusNotification),
		done:           make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Close tears down the underlying connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) readLoop() {
	defer func() {
		s.mu.Lock()
		for _, ch := range s.pending {
			close(ch)
		}
		s.pending = nil
		s.mu.Unlock()
	}()

	for {
		var resp response
		if err := s.conn.ReadJSON(&resp); err != nil {
			log.Debugf("server session read loop exiting: %v", err)
			return
		}

		if resp.ID != nil {
			s.mu.Lock()
			ch, ok := s.pending[*resp.ID]
			if ok {
				delete(s.pending, *resp.ID)
			}
			s.mu.Unlock()
			if ok {
				ch <- &resp
			}
			continue
		}

		s.dispatchPush(&resp)
	}
}

func (s *Session) dispatchPush(resp *response) {
	switch resp.Method {
	case "blockchain.scripthash.subscribe":
		var params scripthashStatusParams
		if err := json.Unmarshal(resp.Params, &params); err != nil {
			log.Warnf("malformed scripthash push: %v", err)
			return
		}
		if params[0] == nil {
			return
		}
		s.mu.Lock()
		ch, ok := s.scripthashSubs[*params[0]]
		s.mu.Unlock()
		if ok {
			ch <- synchronizer.StatusNotification{Key: *params[0], Status: params[1]}
		}
	case "blockchain.asset.subscribe":
		var params assetStatusParams
		if err := json.Unmarshal(resp.Params, &params); err != nil {
			log.Warnf("malformed asset push: %v", err)
			return
		}
		if params[0] == nil {
			return
		}
		s.mu.Lock()
		ch, ok := s.assetSubs[*params[0]]
		s.mu.Unlock()
		if ok {
			ch <- synchronizer.StatusNotification{Key: *params[0], Status: params[1]}
		}
	}
}

func (s *Session) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	id := atomic.AddUint64(&s.nextID, 1)
	replyCh := make(chan *response, 1)

	s.mu.Lock()
	s.pending[id] = replyCh
	s.mu.Unlock()

	req := request{ID: id, Method: method, Params: rawParams}

	s.writeMu.Lock()
	err = s.conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-replyCh:
		if !ok {
			return nil, goerrors.Errorf("connection closed while awaiting reply to %s", method)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	case <-s.done:
		return nil, goerrors.Errorf("session closed while awaiting reply to %s", method)
	}
}

// SubscribeScripthash implements synchronizer.ServerClient.
func (s *Session) SubscribeScripthash(ctx context.Context, sh synchronizer.ScriptHash, notify chan<- synchronizer.StatusNotification) error {
	key := sh.Hex()
	s.mu.Lock()
	s.scripthashSubs[key] = notify
	s.mu.Unlock()

	result, err := s.call(ctx, "blockchain.scripthash.subscribe", []string{key})
	if err != nil {
		return err
	}

	var status *string
	if err := json.Unmarshal(result, &status); err != nil {
		return goerrors.Errorf("decoding subscribe result for %s: %v", key, err)
	}
	notify <- synchronizer.StatusNotification{Key: key, Status: status}
	return nil
}

// SubscribeAsset implements synchronizer.ServerClient.
func (s *Session) SubscribeAsset(ctx context.Context, asset string, notify chan<- synchronizer.StatusNotification) error {
	s.mu.Lock()
	s.assetSubs[asset] = notify
	s.mu.Unlock()

	result, err := s.call(ctx, "blockchain.asset.subscribe", []string{asset})
	if err != nil {
		return err
	}

	var status *string
	if err := json.Unmarshal(result, &status); err != nil {
		return goerrors.Errorf("decoding subscribe result for %s: %v", asset, err)
	}
	notify <- synchronizer.StatusNotification{Key: asset, Status: status}
	return nil
}

// GetHistory implements synchronizer.ServerClient.
func (s *Session) GetHistory(ctx context.Context, sh synchronizer.ScriptHash) ([]synchronizer.HistoryItem, error) {
	result, err := s.call(ctx, "blockchain.scripthash.get_history", []string{sh.Hex()})
	if err != nil {
		return nil, err
	}

	var wire []historyItemWire
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, goerrors.Errorf("decoding history: %v", err)
	}

	items := make([]synchronizer.HistoryItem, len(wire))
	for i, w := range wire {
		txHash, err := chainhash.NewHashFromStr(w.TxHash)
		if err != nil {
			return nil, goerrors.Errorf("history entry %d has malformed tx hash: %v", i, err)
		}
		items[i] = synchronizer.HistoryItem{TxHash: *txHash, Height: w.Height, Fee: w.Fee}
	}
	return items, nil
}

// GetAssetMetadata implements synchronizer.ServerClient.
func (s *Session) GetAssetMetadata(ctx context.Context, asset string) (*synchronizer.RawAssetMetadata, error) {
	result, err := s.call(ctx, "blockchain.asset.get_meta", []string{asset})
	if err != nil {
		return nil, err
	}

	var w assetMetadataWire
	if err := json.Unmarshal(result, &w); err != nil {
		return nil, goerrors.Errorf("decoding asset metadata for %s: %v", asset, err)
	}

	sourceTxHash, err := chainhash.NewHashFromStr(w.SourceTxHash)
	if err != nil {
		return nil, goerrors.Errorf("asset %s has malformed source tx hash: %v", asset, err)
	}

	raw := &synchronizer.RawAssetMetadata{
		SatsInCirculation: w.SatsInCirculation,
		Divisions:         w.Divisions,
		Reissuable:        w.Reissuable,
		HasIPFS:           w.HasIPFS,
		SourceTxHash:      *sourceTxHash,
		SourceHeight:      w.SourceHeight,
	}
	if w.IPFSHash != nil {
		decoded, err := hex.DecodeString(*w.IPFSHash)
		if err != nil {
			return nil, goerrors.Errorf("asset %s has malformed ipfs hash: %v", asset, err)
		}
		raw.IPFSHash = decoded
	}
	if w.SourceDivisionsTx != nil {
		h, err := chainhash.NewHashFromStr(*w.SourceDivisionsTx)
		if err != nil {
			return nil, goerrors.Errorf("asset %s has malformed source divisions tx: %v", asset, err)
		}
		raw.SourceDivisionsTx = h
	}
	if w.SourceIPFSTx != nil {
		h, err := chainhash.NewHashFromStr(*w.SourceIPFSTx)
		if err != nil {
			return nil, goerrors.Errorf("asset %s has malformed source ipfs tx: %v", asset, err)
		}
		raw.SourceIPFSTx = h
	}
	return raw, nil
}

// GetTransaction implements synchronizer.ServerClient.
func (s *Session) GetTransaction(ctx context.Context, txHash chainhash.Hash) ([]byte, error) {
	result, err := s.call(ctx, "blockchain.transaction.get", []string{txHash.String()})
	if err != nil {
		return nil, err
	}

	var rawHex string
	if err := json.Unmarshal(result, &rawHex); err != nil {
		return nil, goerrors.Errorf("decoding transaction %s: %v", txHash, err)
	}
	return hex.DecodeString(rawHex)
}

var _ synchronizer.ServerClient = (*Session)(nil)
