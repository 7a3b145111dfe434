package cognito

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "test-client-id"
	testKid      = "test-kid-123"
)

// Test helper to generate RSA key pair
func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func jwksFor(publicKey *rsa.PublicKey, kid string) JWKS {
	return JWKS{Keys: []JWK{{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
	}}}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

type fakeUser struct {
	sub      string
	email    string
	password string
	name     string
	picture  string
}

type fakeFailure struct {
	status int
	exc    string
}

// fakeCognito emulates the parts of the user pool API the client uses
type fakeCognito struct {
	t      *testing.T
	key    *rsa.PrivateKey
	server *httptest.Server
	secret string

	mu        sync.Mutex
	users     map[string]*fakeUser
	refresh   map[string]string
	access    map[string]string
	calls     map[string]int
	failures  map[string][]fakeFailure
	expiresIn int64
}

func newFakeCognito(t *testing.T) *fakeCognito {
	t.Helper()
	key, _ := generateTestKeyPair(t)
	f := &fakeCognito{
		t:         t,
		key:       key,
		users:     make(map[string]*fakeUser),
		refresh:   make(map[string]string),
		access:    make(map[string]string),
		calls:     make(map[string]int),
		failures:  make(map[string][]fakeFailure),
		expiresIn: 3600,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCognito) config() Config {
	return Config{
		Region:       "us-east-1",
		UserPoolID:   "pool",
		ClientID:     testClientID,
		ClientSecret: f.secret,
		Endpoint:     f.server.URL + "/",
		Issuer:       f.server.URL + "/pool",
	}
}

func (f *fakeCognito) addUser(email, password, name string) *fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUser{sub: uuid.NewString(), email: email, password: password, name: name}
	f.users[email] = u
	return u
}

func (f *fakeCognito) failNext(action string, status int, exc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[action] = append(f.failures[action], fakeFailure{status: status, exc: exc})
}

func (f *fakeCognito) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[action]
}

func (f *fakeCognito) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// revokeAll invalidates every issued token, as an administrator would
func (f *fakeCognito) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = make(map[string]string)
	f.access = make(map[string]string)
}

func (f *fakeCognito) user(email string) *fakeUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

func (f *fakeCognito) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/pool/.well-known/jwks.json" {
		_ = json.NewEncoder(w).Encode(jwksFor(&f.key.PublicKey, testKid))
		return
	}

	action := strings.TrimPrefix(r.Header.Get("X-Amz-Target"), targetPrefix)
	var in map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&in)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[action]++

	if queue := f.failures[action]; len(queue) > 0 {
		f.failures[action] = queue[1:]
		f.writeError(w, queue[0].status, queue[0].exc)
		return
	}

	switch action {
	case "SignUp":
		f.signUp(w, in)
	case "InitiateAuth":
		f.initiateAuth(w, in)
	case "UpdateUserAttributes":
		f.updateAttributes(w, in)
	case "DeleteUserAttributes":
		f.deleteAttributes(w, in)
	case "GlobalSignOut":
		f.globalSignOut(w, in)
	default:
		f.writeError(w, http.StatusBadRequest, "UnknownOperationException")
	}
}

func (f *fakeCognito) writeError(w http.ResponseWriter, status int, exc string) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"__type":  "com.amazonaws.cognito.identity.idp.model#" + exc,
		"message": exc + " from fake",
	})
}

func (f *fakeCognito) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeCognito) checkSecret(w http.ResponseWriter, username string, got interface{}) bool {
	if f.secret == "" {
		return true
	}
	if got != secretHash(username, testClientID, f.secret) {
		f.writeError(w, http.StatusBadRequest, excNotAuthorized)
		return false
	}
	return true
}

func (f *fakeCognito) signUp(w http.ResponseWriter, in map[string]interface{}) {
	email, _ := in["Username"].(string)
	password, _ := in["Password"].(string)
	if !f.checkSecret(w, email, in["SecretHash"]) {
		return
	}
	switch {
	case !strings.Contains(email, "@"):
		f.writeError(w, http.StatusBadRequest, excInvalidParameter)
	case len(password) < 8:
		f.writeError(w, http.StatusBadRequest, excInvalidPassword)
	case f.users[email] != nil:
		f.writeError(w, http.StatusBadRequest, excUsernameExists)
	default:
		u := &fakeUser{sub: uuid.NewString(), email: email, password: password}
		f.users[email] = u
		f.writeJSON(w, map[string]interface{}{"UserSub": u.sub, "UserConfirmed": true})
	}
}

func (f *fakeCognito) initiateAuth(w http.ResponseWriter, in map[string]interface{}) {
	params, _ := in["AuthParameters"].(map[string]interface{})
	switch in["AuthFlow"] {
	case "USER_PASSWORD_AUTH":
		email, _ := params["USERNAME"].(string)
		if !f.checkSecret(w, email, params["SECRET_HASH"]) {
			return
		}
		u := f.users[email]
		if u == nil {
			f.writeError(w, http.StatusBadRequest, excUserNotFound)
			return
		}
		if u.password != params["PASSWORD"] {
			f.writeError(w, http.StatusBadRequest, excNotAuthorized)
			return
		}
		refreshToken := "refresh-" + uuid.NewString()
		f.refresh[refreshToken] = email
		f.writeJSON(w, map[string]interface{}{"AuthenticationResult": f.issue(u, refreshToken)})

	case "REFRESH_TOKEN_AUTH":
		refreshToken, _ := params["REFRESH_TOKEN"].(string)
		email, ok := f.refresh[refreshToken]
		if !ok {
			f.writeError(w, http.StatusBadRequest, excNotAuthorized)
			return
		}
		u := f.users[email]
		if !f.checkSecret(w, u.sub, params["SECRET_HASH"]) {
			return
		}
		f.writeJSON(w, map[string]interface{}{"AuthenticationResult": f.issue(u, "")})

	default:
		f.writeError(w, http.StatusBadRequest, excInvalidParameter)
	}
}

// issue mints a token set for u; f.mu must be held
func (f *fakeCognito) issue(u *fakeUser, refreshToken string) map[string]interface{} {
	now := time.Now()
	idToken := signToken(f.t, f.key, testKid, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    f.server.URL + "/pool",
			Subject:   u.sub,
			Audience:  jwt.ClaimStrings{testClientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(f.expiresIn) * time.Second)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email:           u.email,
		Name:            u.name,
		Picture:         u.picture,
		TokenUse:        "id",
		CognitoUsername: u.sub,
	})
	accessToken := "access-" + uuid.NewString()
	f.access[accessToken] = u.email

	result := map[string]interface{}{
		"AccessToken": accessToken,
		"IdToken":     idToken,
		"ExpiresIn":   f.expiresIn,
		"TokenType":   "Bearer",
	}
	if refreshToken != "" {
		result["RefreshToken"] = refreshToken
	}
	return result
}

func (f *fakeCognito) userForAccess(w http.ResponseWriter, in map[string]interface{}) *fakeUser {
	token, _ := in["AccessToken"].(string)
	email, ok := f.access[token]
	if !ok {
		f.writeError(w, http.StatusBadRequest, excNotAuthorized)
		return nil
	}
	return f.users[email]
}

func (f *fakeCognito) updateAttributes(w http.ResponseWriter, in map[string]interface{}) {
	u := f.userForAccess(w, in)
	if u == nil {
		return
	}
	attrs, _ := in["UserAttributes"].([]interface{})
	for _, a := range attrs {
		attr, _ := a.(map[string]interface{})
		value, _ := attr["Value"].(string)
		switch attr["Name"] {
		case "name":
			u.name = value
		case "picture":
			u.picture = value
		}
	}
	f.writeJSON(w, map[string]interface{}{})
}

func (f *fakeCognito) deleteAttributes(w http.ResponseWriter, in map[string]interface{}) {
	u := f.userForAccess(w, in)
	if u == nil {
		return
	}
	names, _ := in["UserAttributeNames"].([]interface{})
	for _, n := range names {
		switch n {
		case "name":
			u.name = ""
		case "picture":
			u.picture = ""
		}
	}
	f.writeJSON(w, map[string]interface{}{})
}

func (f *fakeCognito) globalSignOut(w http.ResponseWriter, in map[string]interface{}) {
	u := f.userForAccess(w, in)
	if u == nil {
		return
	}
	for token, email := range f.refresh {
		if email == u.email {
			delete(f.refresh, token)
		}
	}
	for token, email := range f.access {
		if email == u.email {
			delete(f.access, token)
		}
	}
	f.writeJSON(w, map[string]interface{}{})
}
