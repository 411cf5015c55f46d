package relay

import "encoding/json"

// Control message types injected by the relay. Everything else on the
// client leg originates upstream.
const (
	TypeProxyConnected = "proxy.connected"
	TypeError          = "error"
	TypeInfo           = "info"
)

// Control message texts.
const (
	MsgNotReady       = "Backend socket not ready"
	MsgUpstreamError  = "Error from OpenAI WebSocket"
	MsgUpstreamClosed = "OpenAI WebSocket closed"
	MsgIdleTimeout    = "Relay idle timeout"
)

// ControlMessage is a relay-synthesized lifecycle message sent to the client.
type ControlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Connected is sent once, after the upstream socket opens.
func Connected() ControlMessage {
	return ControlMessage{Type: TypeProxyConnected}
}

// Error builds an error control message.
func Error(msg string) ControlMessage {
	return ControlMessage{Type: TypeError, Message: msg}
}

// Info builds an informational control message.
func Info(msg string) ControlMessage {
	return ControlMessage{Type: TypeInfo, Message: msg}
}

// Bytes returns the JSON encoding.
func (m ControlMessage) Bytes() []byte {
	// Marshal of two strings cannot fail.
	data, _ := json.Marshal(m)
	return data
}
