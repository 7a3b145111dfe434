package cognito

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/upb/coursehub/identity"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Consent runs the interactive third-party sign-in and returns the token set
// issued by the user pool.
type Consent interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
}

// Opener shows url to the user, normally in a browser window
type Opener func(url string) error

// LoopbackConsent drives the Hosted UI authorization code flow (with PKCE). The
// user's browser is sent to the authorize endpoint and the redirect comes back
// to a short-lived listener on the loopback interface.
type LoopbackConsent struct {
	oauth        oauth2.Config
	provider     string
	callbackAddr string
	timeout      time.Duration
	httpClient   *http.Client
	open         Opener
	logger       *zap.Logger
}

const callbackPath = "/oauth2/callback"

// NewLoopbackConsent creates a consent flow for cfg. When cfg.Domain is empty
// the Hosted UI endpoints are discovered from the pool's OpenID configuration.
func NewLoopbackConsent(ctx context.Context, cfg Config, open Opener, logger *zap.Logger) (*LoopbackConsent, error) {
	cfg = cfg.withDefaults()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var endpoint oauth2.Endpoint
	if cfg.Domain != "" {
		base := strings.TrimSuffix(cfg.Domain, "/")
		endpoint = oauth2.Endpoint{
			AuthURL:  base + "/oauth2/authorize",
			TokenURL: base + "/oauth2/token",
		}
	} else {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discovering hosted UI endpoints: %w", err)
		}
		endpoint = provider.Endpoint()
	}
	if cfg.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	} else {
		endpoint.AuthStyle = oauth2.AuthStyleInHeader
	}

	if open == nil {
		open = OpenBrowser
	}

	return &LoopbackConsent{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		provider:     cfg.FederatedProvider,
		callbackAddr: cfg.CallbackAddr,
		timeout:      cfg.ConsentTimeout,
		httpClient:   httpClient,
		open:         open,
		logger:       logger,
	}, nil
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Consent. Errors are identity.AuthErrors for OpFederatedLogin.
func (l *LoopbackConsent) Authorize(ctx context.Context) (*oauth2.Token, error) {
	op := identity.OpFederatedLogin

	ln, err := net.Listen("tcp", l.callbackAddr)
	if err != nil {
		return nil, identity.NewAuthError(op, identity.KindUnknown, fmt.Errorf("listening for callback: %w", err))
	}

	cfg := l.oauth
	cfg.RedirectURL = redirectURL(l.callbackAddr, ln.Addr())
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("consent denied: %s %s", q.Get("error"), q.Get("error_description"))
		case q.Get("code") == "":
			res.err = errors.New("callback without code")
		default:
			res.code = q.Get("code")
		}
		_, _ = fmt.Fprintln(w, "Sign-in finished. You can close this window.")
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Warn("consent callback listener stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("identity_provider", l.provider))
	if err := l.open(authURL); err != nil {
		return nil, identity.NewAuthError(op, identity.KindPopupBlocked, err)
	}
	l.logger.Info("waiting for federated sign-in", zap.String("provider", l.provider))

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, identity.NewAuthError(op, identity.KindPopupClosedByUser, ctx.Err())
	case <-timer.C:
		return nil, identity.NewAuthError(op, identity.KindPopupClosedByUser, errors.New("consent timed out"))
	case res = <-results:
	}
	if res.err != nil {
		return nil, identity.NewAuthError(op, identity.KindPopupClosedByUser, res.err)
	}

	token, err := cfg.Exchange(context.WithValue(ctx, oauth2.HTTPClient, l.httpClient), res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, identity.NewAuthError(op, identity.KindUnknown, err)
		}
		return nil, identity.NewAuthError(op, identity.KindNetwork, err)
	}
	return token, nil
}

// redirectURL keeps the configured host name, since the pool matches callback
// URLs literally, and takes the port actually bound.
func redirectURL(configured string, bound net.Addr) string {
	host, _, err := net.SplitHostPort(configured)
	if err != nil || host == "" {
		host = "localhost"
	}
	_, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return "http://" + bound.String() + callbackPath
	}
	return "http://" + net.JoinHostPort(host, port) + callbackPath
}

// OpenBrowser opens url with the platform's default handler
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_, err := startReaped(cmd)
	return err
}

// startReaped starts cmd and waits for it in the background. The returned
// channel yields the exit result once the child has been reaped.
func startReaped(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()
	return exited, nil
}
