// Package credstore persists the identity service's long-lived credentials so a
// session survives process restarts.
package credstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when no credentials are stored
var ErrNotFound = errors.New("credentials not found")

// Credentials is what is needed to restore a session without asking for a password
type Credentials struct {
	RefreshToken string    `json:"refresh_token"`
	Username     string    `json:"username,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Store loads and saves the credentials of the single local session
type Store interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, creds *Credentials) error
	Clear(ctx context.Context) error
}

// Memory is a Store that keeps credentials in process memory
type Memory struct {
	mu    sync.Mutex
	creds *Credentials
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty Memory store
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements Store
func (m *Memory) Load(_ context.Context) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, ErrNotFound
	}
	c := *m.creds
	return &c, nil
}

// Save implements Store
func (m *Memory) Save(_ context.Context, creds *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *creds
	m.creds = &c
	return nil
}

// Clear implements Store
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}
