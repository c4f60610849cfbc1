package synchronizer

import "time"

// Config holds the tunables for a Synchronizer. Field tags follow the
// `long`/`description` convention this codebase's binaries use for
// jessevdk/go-flags option parsing.
type Config struct {
	// GenericNetworkTimeout bounds how long a stale-status watchdog
	// waits for a corrected notification before escalating to a
	// synchronizer failure (spec §4.3/§4.4/§5).
	GenericNetworkTimeout time.Duration `long:"generic-network-timeout" description:"How long to wait for a corrected status notification before failing the synchronizer"`

	// MainLoopInterval is how often the main loop drains late
	// additions and samples the up-to-date oracle (spec §4.6: 100ms).
	MainLoopInterval time.Duration `long:"main-loop-interval" description:"Polling interval of the main loop"`

	// MaxInFlightRequests caps concurrent RPCs to the server via the
	// network-request semaphore (spec §5).
	MaxInFlightRequests int64 `long:"max-in-flight-requests" description:"Maximum number of concurrent RPCs to the indexing server"`

	// QueueBufferSize sizes the internal notification queues' fast
	// path before they fall back to unbounded buffering.
	QueueBufferSize int `long:"queue-buffer-size" description:"Buffered capacity of the notification queues before unbounded growth kicks in"`

	// BootstrapSubscribeRate caps how many subscribe RPCs per second the
	// bootstrap pass starts, independent of MaxInFlightRequests: the
	// semaphore bounds how many are outstanding at once, this bounds how
	// fast new ones begin, so a wallet with thousands of addresses
	// doesn't open them all in the same instant.
	BootstrapSubscribeRate float64 `long:"bootstrap-subscribe-rate" description:"Maximum subscribe RPCs per second during bootstrap"`

	// BootstrapSubscribeBurst is the burst size allowed on top of the
	// steady BootstrapSubscribeRate.
	BootstrapSubscribeBurst int `long:"bootstrap-subscribe-burst" description:"Burst allowance on top of the bootstrap subscribe rate"`

	// AllowServerNotFindingTxOnBootstrap controls whether the bootstrap
	// gap-fill pass (spec §4.6 step 2) tolerates the server not having a
	// transaction a locally stored history entry points at, treating a
	// not-found response as pruned rather than a fetch failure. Steady-
	// state fetches triggered by a fresh status notification never pass
	// this flag regardless of its value.
	AllowServerNotFindingTxOnBootstrap bool `long:"allow-server-not-finding-tx-on-bootstrap" description:"Tolerate the server lacking a transaction during bootstrap gap-fill"`
}

// DefaultConfig returns sensible defaults matching the values named
// explicitly in the spec (100ms main loop tick) and otherwise chosen
// conservatively for a wallet talking to a single untrusted server.
func DefaultConfig() *Config {
	return &Config{
		GenericNetworkTimeout:              10 * time.Second,
		MainLoopInterval:                   100 * time.Millisecond,
		MaxInFlightRequests:                10,
		QueueBufferSize:                    16,
		BootstrapSubscribeRate:             50,
		BootstrapSubscribeBurst:            10,
		AllowServerNotFindingTxOnBootstrap: true,
	}
}
