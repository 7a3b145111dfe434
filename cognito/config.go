// Package cognito implements identity.Provider on top of an AWS Cognito user
// pool: the JSON API for password flows, the Hosted UI for federated sign-in
// and the pool's JWKS for ID token verification.
package cognito

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the user pool settings used by Client, TokenVerifier and LoopbackConsent
type Config struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string

	// Endpoint overrides the regional API endpoint (tests, local emulators)
	Endpoint string
	// Issuer overrides the pool issuer; JWKSURL defaults to <issuer>/.well-known/jwks.json
	Issuer  string
	JWKSURL string

	// Domain is the Hosted UI base URL, e.g. https://app.auth.us-east-1.amazoncognito.com.
	// When empty the authorize and token endpoints are discovered from the issuer.
	Domain            string
	FederatedProvider string
	CallbackAddr      string
	ConsentTimeout    time.Duration

	// SkipVerify trusts ID tokens without checking their signature. Development only.
	SkipVerify bool

	HTTPTimeout   time.Duration
	JWKSCacheTTL  time.Duration
	RefreshMargin time.Duration
	RetryInterval time.Duration
}

// withDefaults fills unset fields
func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/", c.Region)
	}
	if c.Issuer == "" {
		c.Issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
	}
	if c.JWKSURL == "" {
		c.JWKSURL = strings.TrimSuffix(c.Issuer, "/") + "/.well-known/jwks.json"
	}
	if c.FederatedProvider == "" {
		c.FederatedProvider = "Google"
	}
	if c.CallbackAddr == "" {
		c.CallbackAddr = "localhost:53682"
	}
	if c.ConsentTimeout == 0 {
		c.ConsentTimeout = 5 * time.Minute
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.JWKSCacheTTL == 0 {
		c.JWKSCacheTTL = time.Hour
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = 5 * time.Minute
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 30 * time.Second
	}
	return c
}
