package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy", "degraded", "idle"
	Connections ConnectionStats `json:"connections"` // Transport binding stats
	Sessions    SessionStats    `json:"sessions"`    // Open session stats
	Bindings    []BindingInfo   `json:"bindings"`    // List of live bindings
	WindowCount map[string]int  `json:"windowCount"` // Count by window state
}

// ConnectionStats holds binding-related statistics
type ConnectionStats struct {
	TotalBindings     int `json:"totalBindings"`     // Bindings in the registry
	TotalConnected    int `json:"totalConnected"`    // Bindings with a live socket
	TotalReconnecting int `json:"totalReconnecting"` // Bindings waiting on backoff
}

// SessionStats holds open-session statistics
type SessionStats struct {
	TotalOpen    int `json:"totalOpen"`
	TotalLoading int `json:"totalLoading"`
	TotalUnread  int `json:"totalUnread"`
	Unbound      int `json:"unbound"` // Sessions with no binding (read-only history)
}

// BindingInfo contains information about a single transport binding
type BindingInfo struct {
	BindingID      string `json:"bindingId"`
	ConversationID string `json:"conversationId"`
	State          string `json:"state"`       // "connected", "reconnecting"
	ConnectedAt    string `json:"connectedAt"` // ISO timestamp
	Reconnects     int    `json:"reconnects"`  // Successful re-dials so far
}
