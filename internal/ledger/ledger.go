// Package ledger records the emergency meetings already created for each
// button so repeated alerts can be recognised.
package ledger

import (
	"context"
	"sync"
	"time"
)

// Invite is a meeting created in response to a button alert.
type Invite struct {
	ButtonID  string    `json:"button_id" firestore:"button_id"`
	EventID   string    `json:"event_id" firestore:"event_id"`
	Attendees []string  `json:"attendees" firestore:"attendees"`
	SentAt    time.Time `json:"sent_at" firestore:"sent_at"`
}

// Ledger stores the most recent invite per button.
type Ledger interface {
	// Last returns the latest invite for buttonID, or nil if none exists.
	Last(ctx context.Context, buttonID string) (*Invite, error)
	// Put records inv as the latest invite for its button.
	Put(ctx context.Context, inv Invite) error
}

// Memory is a process-local Ledger.
type Memory struct {
	mu      sync.RWMutex
	invites map[string]Invite
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{invites: make(map[string]Invite)}
}

func (m *Memory) Last(_ context.Context, buttonID string) (*Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[buttonID]
	if !ok {
		return nil, nil
	}
	inv.Attendees = append([]string(nil), inv.Attendees...)
	return &inv, nil
}

func (m *Memory) Put(_ context.Context, inv Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.Attendees = append([]string(nil), inv.Attendees...)
	m.invites[inv.ButtonID] = inv
	return nil
}
