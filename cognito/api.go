package cognito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/upb/coursehub/identity"
)

const targetPrefix = "AWSCognitoIdentityProviderService."

// Cognito exception names the client reacts to
const (
	excInvalidPassword  = "InvalidPasswordException"
	excUsernameExists   = "UsernameExistsException"
	excInvalidParameter = "InvalidParameterException"
	excNotAuthorized    = "NotAuthorizedException"
	excUserNotFound     = "UserNotFoundException"
	excTooManyRequests  = "TooManyRequestsException"
	excInternalError    = "InternalErrorException"
)

// ErrNetwork marks failures to reach the service
var ErrNetwork = errors.New("cognito unreachable")

// APIError is an error response from the Cognito API
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("cognito %s (status %d)", e.Type, e.StatusCode)
	}
	return fmt.Sprintf("cognito %s: %s", e.Type, e.Message)
}

// apiClient calls the Cognito Identity Provider JSON 1.1 API
type apiClient struct {
	endpoint   string
	httpClient *http.Client
}

// call posts in as the request for action and decodes the response into out.
func (a *apiClient) call(ctx context.Context, action string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", targetPrefix+action)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", ErrNetwork, action, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", action, err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var payload struct {
		Type    string `json:"__type"`
		Message string `json:"message"`
		Upper   string `json:"Message"`
	}
	_ = json.Unmarshal(data, &payload)

	apiErr := &APIError{StatusCode: status, Type: payload.Type, Message: payload.Message}
	if apiErr.Message == "" {
		apiErr.Message = payload.Upper
	}
	// "__type" may be namespaced: "com.amazonaws.cognito...#NotAuthorizedException"
	if i := strings.LastIndex(apiErr.Type, "#"); i >= 0 {
		apiErr.Type = apiErr.Type[i+1:]
	}
	if apiErr.Type == "" {
		apiErr.Type = http.StatusText(status)
	}
	return apiErr
}

// isAPIError reports whether err is an APIError of type exc
func isAPIError(err error, exc string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == exc
}

// mapError converts a transport or API failure of op into an identity.AuthError.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *identity.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return identity.NewAuthError(op, identity.KindNetwork, err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return identity.NewAuthError(op, identity.KindUnknown, err)
	}

	switch apiErr.Type {
	case excInvalidPassword:
		return identity.NewAuthError(op, identity.KindWeakPassword, err)
	case excUsernameExists:
		return identity.NewAuthError(op, identity.KindEmailInUse, err)
	case excInvalidParameter:
		if op == identity.OpRegister {
			return identity.NewAuthError(op, identity.KindInvalidEmail, err)
		}
	case excNotAuthorized, excUserNotFound:
		// sign-in inside Register has no credential kinds of its own
		if op == identity.OpRegister {
			return identity.NewAuthError(op, identity.KindUnknown, err)
		}
		if apiErr.Type == excNotAuthorized {
			return identity.NewAuthError(op, identity.KindInvalidCredentials, err)
		}
		return identity.NewAuthError(op, identity.KindUserNotFound, err)
	case excTooManyRequests, excInternalError:
		return identity.NewAuthError(op, identity.KindNetwork, err)
	}
	if apiErr.StatusCode >= http.StatusInternalServerError {
		return identity.NewAuthError(op, identity.KindNetwork, err)
	}
	return identity.NewAuthError(op, identity.KindUnknown, err)
}

type attribute struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type signUpInput struct {
	ClientID       string      `json:"ClientId"`
	Username       string      `json:"Username"`
	Password       string      `json:"Password"`
	SecretHash     string      `json:"SecretHash,omitempty"`
	UserAttributes []attribute `json:"UserAttributes,omitempty"`
}

type signUpOutput struct {
	UserSub       string `json:"UserSub"`
	UserConfirmed bool   `json:"UserConfirmed"`
}

type initiateAuthInput struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
}

type authenticationResult struct {
	AccessToken  string `json:"AccessToken"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	ExpiresIn    int64  `json:"ExpiresIn"`
	TokenType    string `json:"TokenType"`
}

type initiateAuthOutput struct {
	AuthenticationResult *authenticationResult `json:"AuthenticationResult"`
	ChallengeName        string                `json:"ChallengeName"`
}

type updateUserAttributesInput struct {
	AccessToken    string      `json:"AccessToken"`
	UserAttributes []attribute `json:"UserAttributes"`
}

type deleteUserAttributesInput struct {
	AccessToken        string   `json:"AccessToken"`
	UserAttributeNames []string `json:"UserAttributeNames"`
}

type globalSignOutInput struct {
	AccessToken string `json:"AccessToken"`
}
