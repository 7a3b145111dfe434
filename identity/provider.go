package identity

import (
	"context"
	"sync"
)

// Listener receives the current principal, or nil when nobody is signed in.
type Listener func(*Principal)

// Provider is the capability set of an external identity service. Any
// implementation satisfying it is substitutable.
//
// Every operation except Subscribe costs one round trip to the service (Register
// may need more to attach the display name). Subscribe only observes.
type Provider interface {
	// Register creates an account and signs it in. A non-empty displayName is
	// attached before Register returns.
	Register(ctx context.Context, email, password, displayName string) (*Principal, error)

	// Login signs in with email and password
	Login(ctx context.Context, email, password string) (*Principal, error)

	// FederatedLogin runs an interactive third-party consent flow
	FederatedLogin(ctx context.Context) (*Principal, error)

	// Logout ends the session. The next event reports no principal.
	Logout(ctx context.Context) error

	// UpdateProfile changes profile fields of the signed-in principal. It returns
	// nil without contacting the service when nobody is signed in.
	UpdateProfile(ctx context.Context, patch ProfilePatch) error

	// Subscribe registers l. l is called once with the current state as soon as
	// the provider has resolved it, then after every change. The returned
	// function removes the listener and may be called more than once.
	Subscribe(l Listener) (unsubscribe func())
}

// Broadcaster implements the subscription half of a Provider. Deliveries are
// serialized: every listener sees events in publish order and is never called
// concurrently with itself. Listeners must not call Publish or Subscribe
// synchronously.
type Broadcaster struct {
	emitMu sync.Mutex

	mu        sync.Mutex
	resolved  bool
	current   *Principal
	listeners map[uint64]Listener
	nextID    uint64
}

// NewBroadcaster creates an unresolved Broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[uint64]Listener)}
}

// Subscribe registers l and delivers the current state if already resolved.
func (b *Broadcaster) Subscribe(l Listener) func() {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	resolved, current := b.resolved, b.current
	b.mu.Unlock()

	if resolved {
		l(current.Clone())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish records p as the current state and delivers it to every listener.
func (b *Broadcaster) Publish(p *Principal) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	b.resolved = true
	b.current = p.Clone()
	targets := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		targets = append(targets, l)
	}
	b.mu.Unlock()

	for _, l := range targets {
		l(p.Clone())
	}
}

// Current returns the last published principal and whether anything was published.
func (b *Broadcaster) Current() (*Principal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Clone(), b.resolved
}

// Listeners returns the number of registered listeners
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
