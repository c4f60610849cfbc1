package serverrpc

import "encoding/json"

// request is a JSON-RPC 2.0 call, framed the way Electrum-style indexing
// servers expect: a single-line JSON object per call, newline-delimited
// over the websocket connection.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// response covers both RPC replies (keyed by ID) and subscription push
// notifications (keyed by Method, with no ID).
type response struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return e.Message
}

// scripthashStatusParams is the payload of a blockchain.scripthash.subscribe
// push: [scripthash_hex, status_or_null].
type scripthashStatusParams [2]*string

// assetStatusParams is the payload of a blockchain.asset.subscribe push:
// [asset_name, status_or_null].
type assetStatusParams [2]*string

// historyItemWire is the wire shape of one blockchain.scripthash.get_history
// entry.
type historyItemWire struct {
	TxHash string `json:"tx_hash"`
	Height int32  `json:"height"`
	Fee    *int64 `json:"fee,omitempty"`
}

// assetMetadataWire is the wire shape of blockchain.asset.get_meta that this
// package decodes: one flat JSON object whose reissuable and has_ipfs keys
// are JSON booleans, whose IPFS identifier is a hex string under ipfs_hash,
// and whose provenance is read from the top-level source_tx_hash and
// source_height keys. A nested source object or 0/1 integer flags are not
// decoded; unrecognized extra fields are ignored by json.Unmarshal.
type assetMetadataWire struct {
	SatsInCirculation uint64  `json:"sats_in_circulation"`
	Divisions         uint8   `json:"divisions"`
	Reissuable        bool    `json:"reissuable"`
	HasIPFS           bool    `json:"has_ipfs"`
	IPFSHash          *string `json:"ipfs_hash,omitempty"`

	SourceTxHash string `json:"source_tx_hash"`
	SourceHeight int32  `json:"source_height"`

	SourceDivisionsTx *string `json:"source_divisions_tx,omitempty"`
	SourceIPFSTx      *string `json:"source_ipfs_tx,omitempty"`
}
