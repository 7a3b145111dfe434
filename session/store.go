// Package session holds the process-wide answer to "who is signed in right now".
//
// A Store is created once at startup, subscribes to an identity.Provider and is
// handed to every consumer explicitly. Its state changes only when the provider
// reports a session change; the mutators delegate to the provider and leave
// the state to the subscription.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/upb/coursehub/identity"
	"go.uber.org/zap"
)

// Status is the state machine position of a Store
type Status int

const (
	// StatusInitializing is the state before the provider's first event
	StatusInitializing Status = iota
	// StatusAuthenticated means a principal is signed in
	StatusAuthenticated
	// StatusAnonymous means nobody is signed in
	StatusAnonymous
)

// String returns the status label used in logs and JSON views
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its label
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status label
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "initializing":
		*s = StatusInitializing
	case "authenticated":
		*s = StatusAuthenticated
	case "anonymous":
		*s = StatusAnonymous
	default:
		return fmt.Errorf("unknown session status %q", text)
	}
	return nil
}

// State is a snapshot of the Store. Principal is set only when Status is
// StatusAuthenticated.
type State struct {
	Status    Status              `json:"status"`
	Principal *identity.Principal `json:"principal,omitempty"`
}

// Resolved reports whether the state has left StatusInitializing
func (s State) Resolved() bool {
	return s.Status != StatusInitializing
}

// Authenticated reports whether a principal is signed in
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// Store is the single owner of the session state.
type Store struct {
	provider identity.Provider
	logger   *zap.Logger

	mu    sync.RWMutex
	state State

	ready     chan struct{}
	readyOnce sync.Once

	watchMu  sync.Mutex
	watchers map[uint64]func(State)
	nextID   uint64

	unsubscribe func()
	closeOnce   sync.Once
}

// NewStore creates a Store in StatusInitializing and subscribes to provider.
// Close releases the subscription.
func NewStore(provider identity.Provider, logger *zap.Logger) *Store {
	s := &Store{
		provider: provider,
		logger:   logger,
		state:    State{Status: StatusInitializing},
		ready:    make(chan struct{}),
		watchers: make(map[uint64]func(State)),
	}
	s.unsubscribe = provider.Subscribe(s.apply)
	return s
}

// State returns the current snapshot without blocking on the provider.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Status: s.state.Status, Principal: s.state.Principal.Clone()}
}

// Ready is closed once the first provider event has been applied.
// It never closes if the provider never answers.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe calls fn with every state the Store applies, in order. fn runs on the
// provider's delivery goroutine and must not call the Store's mutators synchronously.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
		})
	}
}

// Register delegates to the provider. Errors are returned unchanged.
func (s *Store) Register(ctx context.Context, email, password, displayName string) (*identity.Principal, error) {
	return s.provider.Register(ctx, email, password, displayName)
}

// Login delegates to the provider. Errors are returned unchanged.
func (s *Store) Login(ctx context.Context, email, password string) (*identity.Principal, error) {
	return s.provider.Login(ctx, email, password)
}

// FederatedLogin delegates to the provider. Errors are returned unchanged.
func (s *Store) FederatedLogin(ctx context.Context) (*identity.Principal, error) {
	return s.provider.FederatedLogin(ctx)
}

// Logout delegates to the provider. Errors are returned unchanged.
func (s *Store) Logout(ctx context.Context) error {
	return s.provider.Logout(ctx)
}

// UpdateProfile delegates to the provider. Errors are returned unchanged.
func (s *Store) UpdateProfile(ctx context.Context, patch identity.ProfilePatch) error {
	return s.provider.UpdateProfile(ctx, patch)
}

// Close releases the provider subscription. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// apply is the subscription callback and the only writer of s.state.
func (s *Store) apply(p *identity.Principal) {
	next := State{Status: StatusAnonymous}
	if p != nil {
		next = State{Status: StatusAuthenticated, Principal: p.Clone()}
	}

	s.mu.Lock()
	previous := s.state.Status
	s.state = next
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Debug("session state applied",
		zap.Stringer("from", previous),
		zap.Stringer("to", next.Status),
		zap.String("principal_id", principalID(p)))

	s.watchMu.Lock()
	watchers := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range watchers {
		fn(State{Status: next.Status, Principal: next.Principal.Clone()})
	}
}

func principalID(p *identity.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}
