package relay

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one client/upstream pair.
// States only move forward.
type State int32

const (
	StateInit State = iota
	StateClientConnecting
	StateClientOpenUpstreamPending
	StateBridged
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateInit:                      "init",
	StateClientConnecting:          "client_connecting",
	StateClientOpenUpstreamPending: "client_open_upstream_pending",
	StateBridged:                   "bridged",
	StateClosing:                   "closing",
	StateClosed:                    "closed",
}

// String returns the snake_case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event describes a state transition of a relay session.
type Event struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

// EventHandler receives session events. It is called synchronously from the
// session goroutines and must not block.
type EventHandler func(Event)

// Close reasons recorded on the closing transition.
const (
	ReasonClientClosed   = "client_closed"
	ReasonClientError    = "client_error"
	ReasonUpstreamClosed = "upstream_closed"
	ReasonUpstreamError  = "upstream_error"
	ReasonDialFailed     = "dial_failed"
	ReasonIdleTimeout    = "idle_timeout"
)
