package cognito

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/coursehub/identity"
	"go.uber.org/zap"
)

// hostedUI fakes the Hosted UI token endpoint
func hostedUI(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			require.NoError(t, r.ParseForm())
			if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "access-1",
				"id_token":      "id-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// browser simulates the user completing (or refusing) consent
func browser(t *testing.T, params func(state string) url.Values) (Opener, chan *url.URL) {
	t.Helper()
	opened := make(chan *url.URL, 1)
	return func(raw string) error {
		authURL, err := url.Parse(raw)
		if err != nil {
			return err
		}
		opened <- authURL
		go func() {
			q := authURL.Query()
			callback := q.Get("redirect_uri") + "?" + params(q.Get("state")).Encode()
			resp, err := http.Get(callback)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}, opened
}

func newTestConsent(t *testing.T, server *httptest.Server, open Opener) *LoopbackConsent {
	t.Helper()
	consent, err := NewLoopbackConsent(context.Background(), Config{
		ClientID:       testClientID,
		Domain:         server.URL,
		CallbackAddr:   "127.0.0.1:0",
		ConsentTimeout: 5 * time.Second,
	}, open, zap.NewNop())
	require.NoError(t, err)
	return consent
}

func TestLoopbackConsent(t *testing.T) {
	server := hostedUI(t)

	t.Run("code is exchanged for the token set", func(t *testing.T) {
		open, opened := browser(t, func(state string) url.Values {
			return url.Values{"code": {"good-code"}, "state": {state}}
		})
		consent := newTestConsent(t, server, open)

		token, err := consent.Authorize(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "access-1", token.AccessToken)
		assert.Equal(t, "refresh-1", token.RefreshToken)
		assert.Equal(t, "id-1", token.Extra("id_token"))

		authURL := <-opened
		assert.Equal(t, "/oauth2/authorize", authURL.Path)
		assert.Equal(t, "Google", authURL.Query().Get("identity_provider"))
		assert.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))
		assert.Contains(t, authURL.Query().Get("scope"), "openid")
	})

	t.Run("denied consent", func(t *testing.T) {
		open, _ := browser(t, func(state string) url.Values {
			return url.Values{"error": {"access_denied"}, "state": {state}}
		})

		_, err := newTestConsent(t, server, open).Authorize(context.Background())
		assert.ErrorIs(t, err, identity.ErrPopupClosedByUser)
	})

	t.Run("browser cannot be opened", func(t *testing.T) {
		open := func(string) error { return errors.New("no display") }

		_, err := newTestConsent(t, server, open).Authorize(context.Background())
		assert.ErrorIs(t, err, identity.ErrPopupBlocked)
	})

	t.Run("abandoned consent", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		open := func(string) error { return nil }

		_, err := newTestConsent(t, server, open).Authorize(ctx)
		assert.ErrorIs(t, err, identity.ErrPopupClosedByUser)
	})

	t.Run("rejected code", func(t *testing.T) {
		open, _ := browser(t, func(state string) url.Values {
			return url.Values{"code": {"bad-code"}, "state": {state}}
		})

		_, err := newTestConsent(t, server, open).Authorize(context.Background())
		assert.ErrorIs(t, err, identity.ErrUnknown)
	})
}

func TestNewLoopbackConsentDiscovery(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                server.URL,
			"authorization_endpoint":                server.URL + "/oauth2/authorize",
			"token_endpoint":                        server.URL + "/oauth2/token",
			"jwks_uri":                              server.URL + "/.well-known/jwks.json",
			"userinfo_endpoint":                     server.URL + "/oauth2/userInfo",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	defer server.Close()

	consent, err := NewLoopbackConsent(context.Background(), Config{
		ClientID: testClientID,
		Issuer:   server.URL,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/oauth2/authorize", consent.oauth.Endpoint.AuthURL)
	assert.Equal(t, server.URL+"/oauth2/token", consent.oauth.Endpoint.TokenURL)
}

func TestRedirectURL(t *testing.T) {
	bound := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 53682}

	assert.Equal(t, "http://localhost:53682/oauth2/callback", redirectURL("localhost:53682", bound))
	assert.Equal(t, "http://127.0.0.1:53682/oauth2/callback", redirectURL("127.0.0.1:0", bound))
	assert.Equal(t, "http://localhost:53682/oauth2/callback", redirectURL(":0", bound))
}

func TestStartReaped(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true binary on this platform")
	}

	exited, err := startReaped(exec.Command(path))
	require.NoError(t, err)

	select {
	case err := <-exited:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("child process was not waited on")
	}

	_, err = startReaped(exec.Command("/nonexistent/browser-opener"))
	assert.Error(t, err)
}
