// Package guard decides, per request, whether a route renders, waits for the
// session to resolve or sends the visitor to the login page.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/coursehub/middleware"
	"github.com/upb/coursehub/session"
	"github.com/upb/coursehub/utils"
	"go.uber.org/zap"
)

// Action is the outcome of a guard decision
type Action int

const (
	// ActionLoading means the session is unresolved: show neither content nor a redirect
	ActionLoading Action = iota
	// ActionRedirect sends an anonymous visitor to the login page
	ActionRedirect
	// ActionRender lets the request through
	ActionRender
)

// String returns the action label used in logs
func (a Action) String() string {
	switch a {
	case ActionLoading:
		return "loading"
	case ActionRedirect:
		return "redirect"
	case ActionRender:
		return "render"
	default:
		return "unknown"
	}
}

// Route describes a mounted path and whether it needs a signed-in principal
type Route struct {
	Path         string
	RequiredAuth bool
}

// Decide maps a session state to an action. An unresolved session always
// yields ActionLoading, whatever the route requires.
func Decide(state session.State, requiredAuth bool) Action {
	switch {
	case !state.Resolved():
		return ActionLoading
	case requiredAuth && !state.Authenticated():
		return ActionRedirect
	default:
		return ActionRender
	}
}

// StateReader is the read side of the session store
type StateReader interface {
	State() session.State
}

// DefaultLoginPath is where anonymous visitors are sent
const DefaultLoginPath = "/login"

// IntentParam is the login query parameter carrying the pending navigation target
const IntentParam = "from"

// Guard is HTTP middleware enforcing Decide on every request.
type Guard struct {
	sessions  StateReader
	loginPath string
	logger    *zap.Logger
}

// New creates a Guard. An empty loginPath means DefaultLoginPath.
func New(sessions StateReader, loginPath string, logger *zap.Logger) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Guard{
		sessions:  sessions,
		loginPath: loginPath,
		logger:    logger,
	}
}

// Protect requires a signed-in principal for next
func (g *Guard) Protect(next http.Handler) http.Handler {
	return g.For(Route{RequiredAuth: true})(next)
}

// For returns middleware enforcing route. The session is read on every
// request, so a change such as an expired session takes effect on the next one.
func (g *Guard) For(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := middleware.GetRequestIDFromContext(ctx)
			state := g.sessions.State()

			switch Decide(state, route.RequiredAuth) {
			case ActionLoading:
				g.logger.Debug("session not resolved",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path))
				_ = utils.WriteServiceUnavailable(w, 1, map[string]string{"status": session.StatusInitializing.String()})
				return

			case ActionRedirect:
				target := LoginRedirect(g.loginPath, r.URL)
				g.logger.Debug("redirecting to login",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path))
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					_ = utils.WriteLoginRequired(w, target)
					return
				}
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}

			if state.Principal != nil {
				ctx = middleware.WithPrincipal(ctx, state.Principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoginRedirect builds the login URL carrying the original path and query as
// the pending navigation intent.
func LoginRedirect(loginPath string, original *url.URL) string {
	return loginPath + "?" + url.Values{IntentParam: {original.RequestURI()}}.Encode()
}

// IntentFromRequest returns the navigation intent carried by a login request,
// or "" when there is none.
func IntentFromRequest(r *http.Request) string {
	return r.URL.Query().Get(IntentParam)
}

// ResumeTarget returns where to go after a successful login: the intent when it
// is a same-origin path, otherwise the home page.
func ResumeTarget(intent string) string {
	if !isLocalPath(intent) {
		return "/"
	}
	return intent
}

func isLocalPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	// "//host" and "/\host" are treated as network paths by browsers
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	if strings.ContainsAny(p, "\r\n") {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
