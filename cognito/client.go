package cognito

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/upb/coursehub/credstore"
	"github.com/upb/coursehub/identity"
	"go.uber.org/zap"
)

// tokenSet is the in-memory session issued by the user pool
type tokenSet struct {
	accessToken  string
	idToken      string
	refreshToken string
	username     string
	expiresAt    time.Time
}

// Client is an identity.Provider backed by a Cognito user pool.
//
// The session is restored from the credential store by Start, kept fresh by a
// background refresh loop and published through the embedded Broadcaster.
type Client struct {
	*identity.Broadcaster

	cfg      Config
	api      *apiClient
	verifier TokenVerifier
	consent  Consent
	creds    credstore.Store
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	session *tokenSet
	current *identity.Principal
	// profileGen counts profile writes; refreshes issued before the latest
	// write keep the written profile
	profileGen uint64

	loopMu     sync.Mutex
	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopLoop   context.CancelFunc
	wg         sync.WaitGroup
}

var _ identity.Provider = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithVerifier replaces the JWKS verifier
func WithVerifier(v TokenVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithConsent enables FederatedLogin through consent
func WithConsent(consent Consent) Option {
	return func(c *Client) { c.consent = consent }
}

// WithHTTPClient replaces the HTTP client used for API calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.api.httpClient = hc }
}

// WithClock replaces time.Now; used by tests of the refresh schedule
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an unresolved Client. Call Start to restore the session.
func NewClient(cfg Config, creds credstore.Store, logger *zap.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	baseCtx, baseCancel := context.WithCancel(context.Background())

	c := &Client{
		Broadcaster: identity.NewBroadcaster(),
		cfg:         cfg,
		api: &apiClient{
			endpoint:   cfg.Endpoint,
			httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		},
		creds:      creds,
		logger:     logger,
		now:        time.Now,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	if cfg.SkipVerify {
		c.verifier = UnverifiedParser{}
	} else {
		c.verifier = NewJWKSVerifier(cfg)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start restores the persisted session and publishes the first event.
//
// Without stored credentials the client resolves to "nobody signed in" without
// a round trip. Rejected credentials are cleared and also resolve to nobody.
// When the service cannot be reached Start returns the error and publishes
// nothing, leaving subscribers unresolved.
func (c *Client) Start(ctx context.Context) error {
	c.loopMu.Lock()
	c.baseCancel()
	c.baseCtx, c.baseCancel = context.WithCancel(ctx)
	c.loopMu.Unlock()

	stored, err := c.creds.Load(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		c.logger.Debug("no stored session")
		c.Publish(nil)
		return nil
	}
	if err != nil {
		c.logger.Warn("stored session unreadable, starting signed out", zap.Error(err))
		c.Publish(nil)
		return nil
	}

	session, principal, err := c.refresh(ctx, stored.RefreshToken, stored.Username)
	if err != nil {
		if isAPIError(err, excNotAuthorized) {
			c.logger.Info("stored session rejected, starting signed out", zap.Error(err))
			if clearErr := c.creds.Clear(ctx); clearErr != nil {
				c.logger.Warn("failed to clear stored session", zap.Error(clearErr))
			}
			c.Publish(nil)
			return nil
		}
		c.logger.Error("session restore failed", zap.Error(err))
		return fmt.Errorf("restoring session: %w", mapError(identity.OpLogin, err))
	}

	c.establish(ctx, session, principal, false)
	c.logger.Info("session restored", zap.String("principal_id", principal.ID))
	return nil
}

// Register implements identity.Provider. The pool must auto-confirm new users.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*identity.Principal, error) {
	op := identity.OpRegister

	in := signUpInput{
		ClientID:       c.cfg.ClientID,
		Username:       email,
		Password:       password,
		SecretHash:     c.secretHash(email),
		UserAttributes: []attribute{{Name: "email", Value: email}},
	}
	var out signUpOutput
	if err := c.api.call(ctx, "SignUp", in, &out); err != nil {
		return nil, mapError(op, err)
	}
	if !out.UserConfirmed {
		c.logger.Warn("user pool did not auto-confirm the account", zap.String("user_sub", out.UserSub))
	}

	session, principal, err := c.passwordAuth(ctx, email, password)
	if err != nil {
		return nil, mapError(op, err)
	}

	if displayName != "" {
		patch := identity.ProfilePatch{DisplayName: &displayName}
		if err := c.writeAttributes(ctx, session.accessToken, patch); err != nil {
			return nil, mapError(op, err)
		}
		principal = principal.With(patch)
	}

	c.establish(ctx, session, principal, true)
	return principal.Clone(), nil
}

// Login implements identity.Provider
func (c *Client) Login(ctx context.Context, email, password string) (*identity.Principal, error) {
	session, principal, err := c.passwordAuth(ctx, email, password)
	if err != nil {
		return nil, mapError(identity.OpLogin, err)
	}
	c.establish(ctx, session, principal, true)
	return principal.Clone(), nil
}

// FederatedLogin implements identity.Provider
func (c *Client) FederatedLogin(ctx context.Context) (*identity.Principal, error) {
	op := identity.OpFederatedLogin
	if c.consent == nil {
		return nil, identity.NewAuthError(op, identity.KindUnknown, errors.New("federated sign-in is not configured"))
	}

	token, err := c.consent.Authorize(ctx)
	if err != nil {
		return nil, mapError(op, err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, identity.NewAuthError(op, identity.KindUnknown, errors.New("no id_token in token response"))
	}

	claims, err := c.verify(ctx, rawIDToken)
	if err != nil {
		return nil, mapError(op, err)
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = claims.Expiry()
	}
	session := &tokenSet{
		accessToken:  token.AccessToken,
		idToken:      rawIDToken,
		refreshToken: token.RefreshToken,
		username:     claims.Username(),
		expiresAt:    expiresAt,
	}
	principal := claims.Principal()
	c.establish(ctx, session, principal, true)
	return principal.Clone(), nil
}

// Logout implements identity.Provider. A session the pool already revoked
// counts as signed out.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session != nil {
		err := c.api.call(ctx, "GlobalSignOut", globalSignOutInput{AccessToken: session.accessToken}, nil)
		if err != nil && !isAPIError(err, excNotAuthorized) {
			return mapError(identity.OpLogout, err)
		}
	}

	c.end(ctx)
	return nil
}

// UpdateProfile implements identity.Provider
func (c *Client) UpdateProfile(ctx context.Context, patch identity.ProfilePatch) error {
	c.mu.Lock()
	session, current := c.session, c.current
	c.mu.Unlock()

	if session == nil || current == nil {
		return nil
	}
	if patch.IsEmpty() {
		return nil
	}

	if err := c.writeAttributes(ctx, session.accessToken, patch); err != nil {
		return mapError(identity.OpUpdateProfile, err)
	}

	c.mu.Lock()
	if c.session == nil || c.current == nil || c.session.username != session.username {
		// signed out or replaced while the call was in flight
		c.mu.Unlock()
		return nil
	}
	next := c.current.With(patch)
	c.current = next
	c.profileGen++
	c.mu.Unlock()

	c.Publish(next)
	return nil
}

// IDToken returns the current ID token, or "" when nobody is signed in
func (c *Client) IDToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.idToken
}

// Close stops the refresh loop. The persisted session is kept.
func (c *Client) Close() error {
	c.loopMu.Lock()
	c.baseCancel()
	c.loopMu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *Client) passwordAuth(ctx context.Context, email, password string) (*tokenSet, *identity.Principal, error) {
	params := map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	}
	if hash := c.secretHash(email); hash != "" {
		params["SECRET_HASH"] = hash
	}
	result, err := c.initiateAuth(ctx, "USER_PASSWORD_AUTH", params)
	if err != nil {
		return nil, nil, err
	}
	return c.sessionFrom(ctx, result, "")
}

// refresh exchanges a refresh token for a fresh token set
func (c *Client) refresh(ctx context.Context, refreshToken, username string) (*tokenSet, *identity.Principal, error) {
	params := map[string]string{"REFRESH_TOKEN": refreshToken}
	if hash := c.secretHash(username); hash != "" {
		params["SECRET_HASH"] = hash
	}
	result, err := c.initiateAuth(ctx, "REFRESH_TOKEN_AUTH", params)
	if err != nil {
		return nil, nil, err
	}
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}
	return c.sessionFrom(ctx, result, username)
}

func (c *Client) initiateAuth(ctx context.Context, flow string, params map[string]string) (*authenticationResult, error) {
	in := initiateAuthInput{AuthFlow: flow, ClientID: c.cfg.ClientID, AuthParameters: params}
	var out initiateAuthOutput
	if err := c.api.call(ctx, "InitiateAuth", in, &out); err != nil {
		return nil, err
	}
	if out.AuthenticationResult == nil {
		return nil, fmt.Errorf("unsupported challenge %q", out.ChallengeName)
	}
	return out.AuthenticationResult, nil
}

func (c *Client) sessionFrom(ctx context.Context, result *authenticationResult, username string) (*tokenSet, *identity.Principal, error) {
	claims, err := c.verify(ctx, result.IDToken)
	if err != nil {
		return nil, nil, err
	}
	if username == "" {
		username = claims.Username()
	}
	expiresAt := c.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresIn == 0 {
		expiresAt = claims.Expiry()
	}
	return &tokenSet{
		accessToken:  result.AccessToken,
		idToken:      result.IDToken,
		refreshToken: result.RefreshToken,
		username:     username,
		expiresAt:    expiresAt,
	}, claims.Principal(), nil
}

func (c *Client) verify(ctx context.Context, idToken string) (*Claims, error) {
	claims, err := c.verifier.ValidateToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return nil, fmt.Errorf("verifying id token: %w", err)
	}
	return claims, nil
}

func (c *Client) writeAttributes(ctx context.Context, accessToken string, patch identity.ProfilePatch) error {
	var set []attribute
	var remove []string
	add := func(name string, value *string) {
		switch {
		case value == nil:
		case *value == "":
			remove = append(remove, name)
		default:
			set = append(set, attribute{Name: name, Value: *value})
		}
	}
	add("name", patch.DisplayName)
	add("picture", patch.AvatarURL)

	if len(set) > 0 {
		in := updateUserAttributesInput{AccessToken: accessToken, UserAttributes: set}
		if err := c.api.call(ctx, "UpdateUserAttributes", in, nil); err != nil {
			return err
		}
	}
	if len(remove) > 0 {
		in := deleteUserAttributesInput{AccessToken: accessToken, UserAttributeNames: remove}
		if err := c.api.call(ctx, "DeleteUserAttributes", in, nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) secretHash(username string) string {
	if c.cfg.ClientSecret == "" {
		return ""
	}
	return secretHash(username, c.cfg.ClientID, c.cfg.ClientSecret)
}

// establish installs a new session, persists it when asked, publishes the
// principal and (re)starts the refresh loop.
func (c *Client) establish(ctx context.Context, session *tokenSet, principal *identity.Principal, persist bool) {
	c.mu.Lock()
	c.session = session
	c.current = principal
	c.mu.Unlock()

	if persist && session.refreshToken != "" {
		err := c.creds.Save(context.WithoutCancel(ctx), &credstore.Credentials{
			RefreshToken: session.refreshToken,
			Username:     session.username,
			SavedAt:      c.now().UTC(),
		})
		if err != nil {
			c.logger.Warn("failed to persist session", zap.Error(err))
		}
	}

	c.Publish(principal)
	c.startRefreshLoop(session)
}

// end drops the in-memory and persisted session and publishes "nobody".
func (c *Client) end(ctx context.Context) {
	c.stopRefreshLoop()

	c.mu.Lock()
	c.session = nil
	c.current = nil
	c.mu.Unlock()

	if err := c.creds.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("failed to clear stored session", zap.Error(err))
	}
	c.Publish(nil)
}

func (c *Client) startRefreshLoop(session *tokenSet) {
	if session.refreshToken == "" {
		return
	}

	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
	if c.baseCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.stopLoop = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.refreshLoop(ctx, session)
	}()
}

func (c *Client) stopRefreshLoop() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop = nil
	}
}

// refreshLoop renews the token set before it expires. A revoked session is
// ended; an unreachable service keeps the last known principal and retries.
func (c *Client) refreshLoop(ctx context.Context, session *tokenSet) {
	wait := c.untilRefresh(session)
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		gen := c.profileGen
		c.mu.Unlock()

		next, principal, err := c.refresh(ctx, session.refreshToken, session.username)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if isAPIError(err, excNotAuthorized) {
				c.logger.Info("session revoked or expired", zap.Error(err))
				c.expire(ctx, session)
				return
			}
			c.logger.Warn("session refresh failed, keeping last known principal", zap.Error(err))
			wait = c.cfg.RetryInterval
			continue
		}

		c.mu.Lock()
		if c.session != session {
			c.mu.Unlock()
			return
		}
		previous := c.current
		if c.profileGen != gen {
			principal = previous
		}
		c.session = next
		c.current = principal
		c.mu.Unlock()

		if !principal.Equal(previous) {
			c.Publish(principal)
		}
		c.logger.Debug("session refreshed", zap.Time("expires_at", next.expiresAt))
		session = next
		wait = c.untilRefresh(session)
	}
}

// expire ends session if it is still the current one
func (c *Client) expire(ctx context.Context, session *tokenSet) {
	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.current = nil
	c.mu.Unlock()

	if err := c.creds.Clear(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("failed to clear stored session", zap.Error(err))
	}
	c.Publish(nil)
}

func (c *Client) untilRefresh(session *tokenSet) time.Duration {
	wait := session.expiresAt.Sub(c.now()) - c.cfg.RefreshMargin
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
