package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// minPasswordLength mirrors the weakest password policy the service accepts
const minPasswordLength = 6

type memoryAccount struct {
	id          string
	email       string
	password    string
	displayName string
	avatarURL   string
}

// Memory is an in-process Provider. It backs offline mode and tests: every
// operation that would reach the service increments Calls, and scripted
// failures can be queued per operation.
type Memory struct {
	*Broadcaster

	mu        sync.Mutex
	accounts  map[string]*memoryAccount
	current   *memoryAccount
	failures  map[string][]Kind
	federated *Principal
	calls     atomic.Int64
}

// NewMemory creates an unresolved Memory provider. Call Resolve (or
// ResolveWith) to emit the initial state.
func NewMemory() *Memory {
	return &Memory{
		Broadcaster: NewBroadcaster(),
		accounts:    make(map[string]*memoryAccount),
		failures:    make(map[string][]Kind),
	}
}

// Resolve publishes the initial "nobody signed in" state.
func (m *Memory) Resolve() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.Publish(nil)
}

// ResolveWith publishes p as the restored session, creating its account.
func (m *Memory) ResolveWith(p *Principal) {
	m.mu.Lock()
	acct := m.accountFor(p)
	m.current = acct
	m.mu.Unlock()
	m.Publish(acct.principal())
}

// Emit publishes p as if the service reported a change on its own, such as an
// expired session (p == nil) or a sign-in completed elsewhere.
func (m *Memory) Emit(p *Principal) {
	m.mu.Lock()
	if p == nil {
		m.current = nil
	} else {
		m.current = m.accountFor(p)
	}
	m.mu.Unlock()
	m.Publish(p)
}

// AddAccount seeds an email/password account and returns its principal.
func (m *Memory) AddAccount(email, password, displayName string) *Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct := &memoryAccount{
		id:          uuid.NewString(),
		email:       strings.ToLower(email),
		password:    password,
		displayName: displayName,
	}
	m.accounts[acct.email] = acct
	return acct.principal()
}

// SetFederatedIdentity sets the principal returned by a successful FederatedLogin
func (m *Memory) SetFederatedIdentity(p *Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.federated = p.Clone()
}

// FailNext makes the next call of op fail with kind. Failures queue in order.
func (m *Memory) FailNext(op string, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], kind)
}

// Calls returns the number of simulated round trips so far
func (m *Memory) Calls() int {
	return int(m.calls.Load())
}

// Register implements Provider
func (m *Memory) Register(ctx context.Context, email, password, displayName string) (*Principal, error) {
	m.calls.Add(1)
	if err := m.check(ctx, OpRegister); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewAuthError(OpRegister, KindInvalidEmail, err)
	}
	if len(password) < minPasswordLength {
		return nil, NewAuthError(OpRegister, KindWeakPassword, nil)
	}

	m.mu.Lock()
	if _, exists := m.accounts[email]; exists {
		m.mu.Unlock()
		return nil, NewAuthError(OpRegister, KindEmailInUse, nil)
	}
	acct := &memoryAccount{id: uuid.NewString(), email: email, password: password}
	m.accounts[email] = acct
	m.mu.Unlock()

	if displayName != "" {
		// profile update round trip, finished before the caller sees the principal
		m.calls.Add(1)
		m.mu.Lock()
		acct.displayName = displayName
		m.mu.Unlock()
	}

	return m.signIn(acct), nil
}

// Login implements Provider
func (m *Memory) Login(ctx context.Context, email, password string) (*Principal, error) {
	m.calls.Add(1)
	if err := m.check(ctx, OpLogin); err != nil {
		return nil, err
	}

	m.mu.Lock()
	acct, ok := m.accounts[strings.ToLower(strings.TrimSpace(email))]
	m.mu.Unlock()
	if !ok {
		return nil, NewAuthError(OpLogin, KindUserNotFound, nil)
	}
	if acct.password != password {
		return nil, NewAuthError(OpLogin, KindInvalidCredentials, nil)
	}
	return m.signIn(acct), nil
}

// FederatedLogin implements Provider
func (m *Memory) FederatedLogin(ctx context.Context) (*Principal, error) {
	m.calls.Add(1)
	if err := m.check(ctx, OpFederatedLogin); err != nil {
		return nil, err
	}

	m.mu.Lock()
	federated := m.federated
	m.mu.Unlock()
	if federated == nil {
		return nil, NewAuthError(OpFederatedLogin, KindPopupClosedByUser, errors.New("no federated identity configured"))
	}

	m.mu.Lock()
	acct := m.accountFor(federated)
	m.mu.Unlock()
	return m.signIn(acct), nil
}

// Logout implements Provider
func (m *Memory) Logout(ctx context.Context) error {
	m.calls.Add(1)
	if err := m.check(ctx, OpLogout); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.Publish(nil)
	return nil
}

// UpdateProfile implements Provider
func (m *Memory) UpdateProfile(ctx context.Context, patch ProfilePatch) error {
	m.mu.Lock()
	acct := m.current
	m.mu.Unlock()
	if acct == nil {
		return nil
	}

	m.calls.Add(1)
	if err := m.check(ctx, OpUpdateProfile); err != nil {
		return err
	}

	m.mu.Lock()
	if patch.DisplayName != nil {
		acct.displayName = *patch.DisplayName
	}
	if patch.AvatarURL != nil {
		acct.avatarURL = *patch.AvatarURL
	}
	next := acct.principal()
	m.mu.Unlock()

	m.Publish(next)
	return nil
}

func (m *Memory) signIn(acct *memoryAccount) *Principal {
	m.mu.Lock()
	m.current = acct
	p := acct.principal()
	m.mu.Unlock()
	m.Publish(p)
	return p
}

func (m *Memory) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		if op == OpFederatedLogin {
			return NewAuthError(op, KindPopupClosedByUser, err)
		}
		return NewAuthError(op, KindNetwork, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.failures[op]
	if len(queue) == 0 {
		return nil
	}
	kind := queue[0]
	m.failures[op] = queue[1:]
	return NewAuthError(op, kind, errors.New("scripted failure"))
}

// accountFor returns the account matching p, creating it if needed. m.mu must be held.
func (m *Memory) accountFor(p *Principal) *memoryAccount {
	for _, acct := range m.accounts {
		if acct.id == p.ID {
			return acct
		}
	}
	acct := &memoryAccount{
		id:          p.ID,
		email:       strings.ToLower(p.EmailAddress()),
		displayName: Value(p.DisplayName),
		avatarURL:   Value(p.AvatarURL),
	}
	key := acct.email
	if key == "" {
		key = "id:" + acct.id
	}
	m.accounts[key] = acct
	return acct
}

func (a *memoryAccount) principal() *Principal {
	return &Principal{
		ID:          a.id,
		DisplayName: Optional(a.displayName),
		Email:       Optional(a.email),
		AvatarURL:   Optional(a.avatarURL),
	}
}
