package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/upb/coursehub/guard"
	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/middleware"
	"github.com/upb/coursehub/session"
	"github.com/upb/coursehub/utils"
	"go.uber.org/zap"
)

// SessionManager is the session store as seen by the auth pages
type SessionManager interface {
	State() session.State
	Register(ctx context.Context, email, password, displayName string) (*identity.Principal, error)
	Login(ctx context.Context, email, password string) (*identity.Principal, error)
	FederatedLogin(ctx context.Context) (*identity.Principal, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, patch identity.ProfilePatch) error
}

// LoginRequest represents an email/password sign-in
type LoginRequest struct {
	Email    string `json:"email" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest represents an account registration
type RegisterRequest struct {
	Email       string `json:"email" validate:"notblank"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"displayName" validate:"max=100"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
}

// ProfileRequest represents a profile change; omitted fields are left as they are
type ProfileRequest struct {
	DisplayName *string `json:"displayName,omitempty" validate:"omitempty,max=100"`
	PhotoURL    *string `json:"photoURL,omitempty" validate:"omitempty,url"`
}

// SessionView is the session as shown to pages
type SessionView struct {
	Status    session.Status      `json:"status"`
	Principal *identity.Principal `json:"principal,omitempty"`
	Name      string              `json:"name,omitempty"`
	AvatarURL string              `json:"avatarURL,omitempty"`
}

// LoginView is the login page model
type LoginView struct {
	From      string `json:"from,omitempty"`
	Federated bool   `json:"federated"`
}

// AuthResult is returned after a successful sign-in
type AuthResult struct {
	Redirect  string              `json:"redirect"`
	Principal *identity.Principal `json:"principal"`
}

// NewSessionView builds the page view of st
func NewSessionView(st session.State) SessionView {
	view := SessionView{Status: st.Status}
	if st.Authenticated() {
		view.Principal = st.Principal
		view.Name = st.Principal.Name()
		view.AvatarURL = identity.FallbackAvatarURL(st.Principal)
	}
	return view
}

// AuthHandler serves the sign-in, registration, sign-out and profile pages.
// Only one auth operation runs at a time; a second submission while one is
// outstanding is refused.
type AuthHandler struct {
	sessions SessionManager
	logger   *zap.Logger
	busy     atomic.Bool
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(sessions SessionManager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// HandleSession handles GET /session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, NewSessionView(h.sessions.State()))
}

// HandleLoginPage handles GET /login. Signed-in visitors are sent on to
// their pending destination.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	intent := guard.IntentFromRequest(r)
	if h.sessions.State().Authenticated() {
		http.Redirect(w, r, guard.ResumeTarget(intent), http.StatusSeeOther)
		return
	}
	_ = utils.WriteOK(w, LoginView{From: intent, Federated: true})
}

// HandleRegisterPage handles GET /register
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if h.sessions.State().Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	_ = utils.WriteOK(w, LoginView{From: guard.IntentFromRequest(r), Federated: true})
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.authenticate(w, r, identity.OpLogin, func(ctx context.Context) (*identity.Principal, error) {
		return h.sessions.Login(ctx, strings.TrimSpace(req.Email), req.Password)
	})
}

// HandleFederatedLogin handles POST /login/federated
func (h *AuthHandler) HandleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, identity.OpFederatedLogin, h.sessions.FederatedLogin)
}

// HandleRegister handles POST /register. A photo URL is stored as a profile
// update once the account exists; failing to store it does not fail the
// registration.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	h.authenticate(w, r, identity.OpRegister, func(ctx context.Context) (*identity.Principal, error) {
		p, err := h.sessions.Register(ctx, strings.TrimSpace(req.Email), req.Password, strings.TrimSpace(req.DisplayName))
		if err != nil || req.PhotoURL == "" {
			return p, err
		}
		patch := identity.ProfilePatch{AvatarURL: identity.Optional(req.PhotoURL)}
		if err := h.sessions.UpdateProfile(ctx, patch); err != nil {
			h.logger.Warn("failed to store profile photo after registration",
				zap.String("principal_id", p.ID),
				zap.Error(err))
			return p, nil
		}
		return p.With(patch), nil
	})
}

// HandleLogout handles POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !h.begin(w) {
		return
	}
	defer h.busy.Store(false)

	ctx := context.WithoutCancel(r.Context())
	if err := h.sessions.Logout(ctx); err != nil {
		h.writeAuthError(w, r, identity.OpLogout, err)
		return
	}

	h.logger.Info("signed out", zap.String("request_id", middleware.GetRequestIDFromContext(ctx)))
	_ = utils.WriteSeeOther(w, "/", NewSessionView(h.sessions.State()))
}

// HandleUpdateProfile handles PATCH /profile
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	patch := identity.ProfilePatch{DisplayName: req.DisplayName, AvatarURL: req.PhotoURL}
	if patch.DisplayName != nil {
		trimmed := strings.TrimSpace(*patch.DisplayName)
		patch.DisplayName = &trimmed
	}
	if patch.IsEmpty() {
		_ = utils.WriteOK(w, NewSessionView(h.sessions.State()))
		return
	}

	if !h.begin(w) {
		return
	}
	defer h.busy.Store(false)

	ctx := context.WithoutCancel(r.Context())
	if err := h.sessions.UpdateProfile(ctx, patch); err != nil {
		h.writeAuthError(w, r, identity.OpUpdateProfile, err)
		return
	}
	_ = utils.WriteOK(w, NewSessionView(h.sessions.State()))
}

// authenticate runs a sign-in operation and redirects to the pending
// destination on success.
func (h *AuthHandler) authenticate(w http.ResponseWriter, r *http.Request, op string, run func(ctx context.Context) (*identity.Principal, error)) {
	if !h.begin(w) {
		return
	}
	defer h.busy.Store(false)

	ctx := context.WithoutCancel(r.Context())
	p, err := run(ctx)
	if err != nil {
		h.writeAuthError(w, r, op, err)
		return
	}

	target := guard.ResumeTarget(guard.IntentFromRequest(r))
	h.logger.Info("signed in",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("op", op),
		zap.String("principal_id", p.ID),
		zap.String("redirect", target))
	_ = utils.WriteSeeOther(w, target, AuthResult{Redirect: target, Principal: p})
}

// begin marks an auth operation as in progress, refusing overlapping ones
func (h *AuthHandler) begin(w http.ResponseWriter) bool {
	if h.busy.CompareAndSwap(false, true) {
		return true
	}
	_ = utils.WriteConflict(w, "Another sign-in request is still in progress", nil)
	return false
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := identity.KindOf(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("op", op),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	status := AuthErrorStatus(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("auth operation failed", fields...)
	} else {
		h.logger.Info("auth operation rejected", fields...)
	}

	_ = utils.WriteJSON(w, status, utils.ErrorResponse{
		Error:   string(kind),
		Message: AuthErrorMessage(kind),
	})
}

// AuthErrorStatus maps an AuthError kind to an HTTP status
func AuthErrorStatus(kind identity.Kind) int {
	switch kind {
	case identity.KindInvalidCredentials, identity.KindUserNotFound:
		return http.StatusUnauthorized
	case identity.KindWeakPassword, identity.KindInvalidEmail,
		identity.KindPopupClosedByUser, identity.KindPopupBlocked:
		return http.StatusBadRequest
	case identity.KindEmailInUse:
		return http.StatusConflict
	case identity.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AuthErrorMessage is the notification text for an AuthError kind
func AuthErrorMessage(kind identity.Kind) string {
	switch kind {
	case identity.KindWeakPassword:
		return "Password does not meet the strength requirements"
	case identity.KindEmailInUse:
		return "This email is already registered"
	case identity.KindInvalidEmail:
		return "Please enter a valid email address"
	case identity.KindInvalidCredentials:
		return "Invalid email or password"
	case identity.KindUserNotFound:
		return "No account found with this email"
	case identity.KindPopupClosedByUser:
		return "Sign-in was cancelled"
	case identity.KindPopupBlocked:
		return "The sign-in window could not be opened"
	case identity.KindNetwork:
		return "Could not reach the sign-in service. Please try again"
	default:
		return "Something went wrong. Please try again"
	}
}
