package popup

import (
	"NiralaChat/internal/model"
	"NiralaChat/internal/service"
	"NiralaChat/internal/window"
	"sync"
)

// Slot is a session placed on screen. Slot 0 sits nearest the screen edge.
type Slot struct {
	Index   int           `json:"slot"`
	Session model.Session `json:"session"`
	View    View          `json:"view"`
}

// Manager keeps one Popup per open session and lays out the visible ones.
type Manager struct {
	ctrl           Controller
	policy         window.Policy
	swipeThreshold int

	mu     sync.Mutex
	popups map[string]*Popup
}

func NewManager(ctrl Controller, policy window.Policy, swipeThreshold int) *Manager {
	return &Manager{
		ctrl:           ctrl,
		policy:         policy,
		swipeThreshold: swipeThreshold,
		popups:         make(map[string]*Popup),
	}
}

// Visible returns the sessions to render, newest first, capped by what the
// viewport allows. Popups of sessions no longer open are dropped.
func (m *Manager) Visible(sessions []model.Session, vp window.Viewport) []Slot {
	m.Sync(sessions)

	limit := m.policy.Capacity(vp)
	slots := make([]Slot, 0, limit)
	for i := len(sessions) - 1; i >= 0 && len(slots) < limit; i-- {
		s := sessions[i]
		slots = append(slots, Slot{
			Index:   len(slots),
			Session: s,
			View:    m.popup(s.ConversationID).View(),
		})
	}
	return slots
}

// Popup returns the popup of an open session.
func (m *Manager) Popup(conversationID string) (*Popup, bool) {
	if _, ok := m.ctrl.Session(conversationID); !ok {
		return nil, false
	}
	return m.popup(conversationID), true
}

// Sync forgets popups whose session is gone.
func (m *Manager) Sync(sessions []model.Session) {
	open := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		open[s.ConversationID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.popups = service.FilterMap(m.popups, func(id string, _ *Popup) bool {
		_, ok := open[id]
		return ok
	})
}

func (m *Manager) popup(conversationID string) *Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.popups[conversationID]
	if !ok {
		p = New(conversationID, m.ctrl, m.swipeThreshold)
		m.popups[conversationID] = p
	}
	return p
}
