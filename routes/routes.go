package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/coursehub/app"
	"github.com/upb/coursehub/guard"
	"github.com/upb/coursehub/middleware"
)

// defaultRequestTimeout covers a federated sign-in waiting on the browser
const defaultRequestTimeout = 6 * time.Minute

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	timeout := deps.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	origins := deps.Config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(timeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "Location", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// Session snapshot, answered in every state
	r.Get("/session", deps.AuthHandler.HandleSession)

	// Public pages (wait for the session to resolve, then render for anyone)
	r.Group(func(r chi.Router) {
		r.Use(deps.Guard.For(guard.Route{RequiredAuth: false}))

		r.Get("/", deps.CourseHandler.HandleHome)
		r.Get("/courses", deps.CourseHandler.HandleListCourses)

		r.Get("/login", deps.AuthHandler.HandleLoginPage)
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Post("/login/federated", deps.AuthHandler.HandleFederatedLogin)
		r.Get("/register", deps.AuthHandler.HandleRegisterPage)
		r.Post("/register", deps.AuthHandler.HandleRegister)
	})

	// Protected pages
	r.Group(func(r chi.Router) {
		r.Use(deps.Guard.Protect)

		r.Route("/courses/{id}", func(r chi.Router) {
			r.Get("/", deps.CourseHandler.HandleGetCourse)
			r.Post("/enroll", deps.CourseHandler.HandleEnroll)
			r.Post("/reviews", deps.CourseHandler.HandleCreateReview)
		})

		r.Post("/logout", deps.AuthHandler.HandleLogout)
		r.Patch("/profile", deps.AuthHandler.HandleUpdateProfile)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/", deps.DashboardHandler.HandleStats)
			r.Get("/my-courses", deps.DashboardHandler.HandleMyCourses)
			r.Get("/enrolled", deps.DashboardHandler.HandleEnrolled)
			r.Post("/courses", deps.DashboardHandler.HandleCreateCourse)
			r.Put("/courses/{id}", deps.DashboardHandler.HandleUpdateCourse)
			r.Delete("/courses/{id}", deps.DashboardHandler.HandleDeleteCourse)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
