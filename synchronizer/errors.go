package synchronizer

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// stackError is the go-errors type every error kind below embeds. It is
// embedded through this alias so that the embedded field is not itself named
// Error, which would shadow the promoted Error() method and leave the
// wrapping types unable to satisfy the error interface.
type stackError = goerrors.Error

// Fatal is implemented by every error kind that must tear down the
// synchronizer's supervising group rather than just being logged and
// ignored.
type Fatal interface {
	error
	Fatal() bool
}

// InvalidInputError is returned synchronously from Add/AddAsset when the
// caller passes a malformed address or asset name. It never disconnects the
// synchronizer; the caller simply gets an error back.
type InvalidInputError struct {
	*stackError
}

// NewInvalidInputError builds an InvalidInputError, capturing a stack trace
// the way the rest of this module's error kinds do.
func NewInvalidInputError(format string, args ...interface{}) *InvalidInputError {
	return &InvalidInputError{goerrors.Errorf(format, args...)}
}

// Fatal always returns false: invalid input is a caller mistake, not a
// protocol or connection failure.
func (e *InvalidInputError) Fatal() bool { return false }

// GracefulDisconnectReason enumerates the situations that cause a
// GracefulDisconnectError, so callers can decide how to treat the server
// that triggered it (e.g. whether to avoid reselecting it).
type GracefulDisconnectReason int

const (
	// ReasonHistoryTooLarge is returned when a scripthash subscribe
	// fails with the "history too large" RPC error.
	ReasonHistoryTooLarge GracefulDisconnectReason = iota

	// ReasonAssetMetadataRegression is returned when the server sends
	// asset metadata whose source is older than an already verified base
	// source, or at the same height but from a different transaction.
	ReasonAssetMetadataRegression

	// ReasonStaleHistoryTimeout is returned when a stale-history
	// watchdog fires because no corrected status notification arrived
	// in time.
	ReasonStaleHistoryTimeout

	// ReasonStaleMetadataTimeout is the asset-side analogue of
	// ReasonStaleHistoryTimeout.
	ReasonStaleMetadataTimeout
)

func (r GracefulDisconnectReason) String() string {
	switch r {
	case ReasonHistoryTooLarge:
		return "history too large"
	case ReasonAssetMetadataRegression:
		return "server is trying to send old metadata"
	case ReasonStaleHistoryTimeout:
		return "stale history timeout"
	case ReasonStaleMetadataTimeout:
		return "stale metadata timeout"
	default:
		return "unknown"
	}
}

// GracefulDisconnectError is a fatal-but-expected condition: the
// synchronizer tears down so the outer layer can reselect a server. It is
// not logged as a bug.
type GracefulDisconnectError struct {
	*stackError
	Reason GracefulDisconnectReason
}

// NewGracefulDisconnectError builds a GracefulDisconnectError for the given
// reason.
func NewGracefulDisconnectError(reason GracefulDisconnectReason, format string, args ...interface{}) *GracefulDisconnectError {
	return &GracefulDisconnectError{
		stackError: goerrors.Errorf(format, args...),
		Reason:     reason,
	}
}

// Fatal always returns true.
func (e *GracefulDisconnectError) Fatal() bool { return true }

// ProtocolViolationError indicates the server sent a payload that cannot be
// reconciled with what it promised, beyond the benign-race tolerance the
// stale-status watchdogs allow for — e.g. a fetched transaction whose
// recomputed txid doesn't match the one requested.
type ProtocolViolationError struct {
	*stackError
}

// NewProtocolViolationError builds a ProtocolViolationError.
func NewProtocolViolationError(format string, args ...interface{}) *ProtocolViolationError {
	return &ProtocolViolationError{goerrors.Errorf(format, args...)}
}

// Fatal always returns true.
func (e *ProtocolViolationError) Fatal() bool { return true }

var (
	_ Fatal = (*InvalidInputError)(nil)
	_ Fatal = (*GracefulDisconnectError)(nil)
	_ Fatal = (*ProtocolViolationError)(nil)
)

// errHistoryTooLargeMessage is the RPC error message the server sends back on a
// scripthash subscribe when the address's history exceeds what it's willing
// to serve; it has no dedicated error code so it must be matched by string.
const errHistoryTooLargeMessage = "history too large"

func wrapSubscribeError(err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == errHistoryTooLargeMessage {
		return NewGracefulDisconnectError(
			ReasonHistoryTooLarge,
			fmt.Sprintf("scripthash subscribe failed: %v", err),
		)
	}
	return err
}
