package whatsapp

import "time"

// ConnectionStatus tracks the lifecycle of the transport session. Exactly one
// value holds at a time; transitions are driven by transport events and
// recovery timers.
type ConnectionStatus string

const (
	StatusDisconnected   ConnectionStatus = "disconnected"
	StatusInitializing   ConnectionStatus = "initializing"
	StatusQRReady        ConnectionStatus = "qr_ready"
	StatusAuthenticated  ConnectionStatus = "authenticated"
	StatusConnected      ConnectionStatus = "connected"
	StatusAuthFailed     ConnectionStatus = "auth_failed"
	StatusConflictFailed ConnectionStatus = "conflict_failed"
	StatusFailed         ConnectionStatus = "failed"
	StatusError          ConnectionStatus = "error"
)

// Ready reports whether the session can service transport calls.
func (s ConnectionStatus) Ready() bool {
	return s == StatusConnected
}

// Terminal reports whether the status requires manual operator action.
func (s ConnectionStatus) Terminal() bool {
	switch s {
	case StatusAuthFailed, StatusConflictFailed, StatusFailed:
		return true
	}
	return false
}

// StatusChange is one entry in the status history ring surfaced to operators.
type StatusChange struct {
	Status    ConnectionStatus `json:"status"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// StatusSnapshot is the on-demand status/metrics view of the service.
type StatusSnapshot struct {
	Status            ConnectionStatus `json:"status"`
	IsReady           bool             `json:"is_ready"`
	GroupsCount       int              `json:"groups_count"`
	PrivateChatsCount int              `json:"private_chats_count"`
	MessagesCount     int              `json:"messages_count"`
	MonitoredKeywords []string         `json:"monitored_keywords"`
	QRAvailable       bool             `json:"qr_available"`
	ReconnectAttempts int              `json:"reconnect_attempts"`
	ProbeFailures     int              `json:"probe_failures"`
	History           []StatusChange   `json:"history,omitempty"`
}
