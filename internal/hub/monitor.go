package hub

import (
	"NiralaChat/internal/model"
	"NiralaChat/internal/service"
	"sort"
	"time"
)

// SessionCounter exposes the open sessions for statistics.
type SessionCounter interface {
	Sessions() []model.Session
}

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub      *Hub
	sessions SessionCounter
}

// NewMonitorService creates a new monitor service. sessions may be nil.
func NewMonitorService(hub *Hub, sessions SessionCounter) *MonitorService {
	return &MonitorService{hub: hub, sessions: sessions}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	bindings := ms.getBindingList()
	connectionStats := ms.getConnectionStats(bindings)
	sessionStats, windowCount := ms.getSessionStats()

	// Determine overall health status
	status := "healthy"
	switch {
	case connectionStats.TotalBindings == 0:
		status = "idle"
	case connectionStats.TotalReconnecting > 0 || sessionStats.Unbound > 0:
		status = "degraded"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Sessions:    sessionStats,
		Bindings:    bindings,
		WindowCount: windowCount,
	}
}

// getBindingList returns all registered bindings ordered by conversation
func (ms *MonitorService) getBindingList() []model.BindingInfo {
	clients := ms.hub.clients()
	bindings := make([]model.BindingInfo, 0, len(clients))

	for _, c := range clients {
		state, connectedAt, reconnects := c.info()
		info := model.BindingInfo{
			BindingID:      c.ID,
			ConversationID: c.ConversationID,
			State:          state,
			Reconnects:     reconnects,
		}
		if !connectedAt.IsZero() {
			info.ConnectedAt = connectedAt.Format(time.RFC3339)
		}
		bindings = append(bindings, info)
	}

	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].ConversationID < bindings[j].ConversationID
	})
	return bindings
}

func (ms *MonitorService) getConnectionStats(bindings []model.BindingInfo) model.ConnectionStats {
	inState := func(state string) func(model.BindingInfo) bool {
		return func(b model.BindingInfo) bool { return b.State == state }
	}
	return model.ConnectionStats{
		TotalBindings:     len(bindings),
		TotalConnected:    service.Count(bindings, inState(StateConnected)),
		TotalReconnecting: service.Count(bindings, inState(StateReconnecting)),
	}
}

// getSessionStats returns open-session statistics and the count by window state
func (ms *MonitorService) getSessionStats() (model.SessionStats, map[string]int) {
	windowCount := map[string]int{
		string(model.WindowMaximized): 0,
		string(model.WindowMinimized): 0,
	}
	if ms.sessions == nil {
		return model.SessionStats{}, windowCount
	}

	sessions := ms.sessions.Sessions()
	stats := model.SessionStats{
		TotalOpen: len(sessions),
		Unbound: service.Count(sessions, func(s model.Session) bool {
			return !ms.hub.Bound(s.ConversationID)
		}),
	}
	for _, s := range sessions {
		stats.TotalUnread += s.UnreadCount
		if s.Loading {
			stats.TotalLoading++
		}
		windowCount[string(s.WindowState)]++
	}
	return stats, windowCount
}
