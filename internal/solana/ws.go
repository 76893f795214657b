package solana

import "context"

// WSClient defines the provider WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to log notifications matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// State returns the current connection state.
	State() ConnState

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines the subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these addresses.
	Mentions []string
	// Commitment is the requested finality level. Defaults to "confirmed".
	Commitment string
}

// LogNotification is a lightweight subscription message. It carries only the
// signature; full detail must be fetched out-of-band.
type LogNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
}

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateSubscribed
)

// String returns the state name for logs and status reporting.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "disconnected"
	}
}
