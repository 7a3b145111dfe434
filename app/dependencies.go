package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/upb/coursehub/api"
	"github.com/upb/coursehub/cognito"
	"github.com/upb/coursehub/config"
	"github.com/upb/coursehub/credstore"
	"github.com/upb/coursehub/guard"
	"github.com/upb/coursehub/handlers"
	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/services"
	"github.com/upb/coursehub/session"
	"go.uber.org/zap"
)

// LoginPath is where the route guard sends visitors who must sign in
const LoginPath = guard.DefaultLoginPath

// starter is an identity provider that restores its session in the background
type starter interface {
	Start(ctx context.Context) error
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Identity
	Credentials credstore.Store
	Provider    identity.Provider
	Sessions    *session.Store
	Guard       *guard.Guard

	// Course REST API
	API    *api.Client
	Images *api.ImageHost

	// Services
	Courses     *services.CourseService
	Enrollments *services.EnrollmentService
	Reviews     *services.ReviewService
	Dashboard   *services.DashboardService

	// Handlers
	AuthHandler      *handlers.AuthHandler
	CourseHandler    *handlers.CourseHandler
	DashboardHandler *handlers.DashboardHandler
	HealthHandler    *handlers.HealthHandler

	closers []func() error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDependencies creates and wires up all application dependencies.
// The identity provider restores its session in the background; pages answer
// "initializing" until it has.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize credential storage
	if err := deps.initCredentials(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	// Initialize identity provider and session
	if err := deps.initIdentity(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	// Initialize course API clients and services
	deps.initServices(cfg)

	// Initialize HTTP handlers
	deps.initHandlers()

	deps.start()

	logger.Info("all dependencies initialized successfully",
		zap.Bool("offline", cfg.Offline),
		zap.String("api_url", cfg.API.URL))
	return deps, nil
}

// initCredentials opens the persisted session store. Offline mode keeps it in memory.
func (d *Dependencies) initCredentials(cfg *config.Config) error {
	if cfg.Offline {
		d.Credentials = credstore.NewMemory()
		return nil
	}

	store, err := credstore.OpenBolt(cfg.Credentials.Path)
	if err != nil {
		return err
	}
	d.Credentials = store
	d.closers = append(d.closers, store.Close)

	d.Logger.Info("credential store opened", zap.String("path", cfg.Credentials.Path))
	return nil
}

// initIdentity builds the identity provider, the session store and the route guard
func (d *Dependencies) initIdentity(ctx context.Context, cfg *config.Config) error {
	if cfg.Offline {
		d.Logger.Warn("offline mode, using the in-memory identity provider")
		d.Provider = identity.NewMemory()
	} else {
		client, err := d.newCognitoClient(ctx, cfg)
		if err != nil {
			return err
		}
		d.Provider = client
		d.closers = append(d.closers, client.Close)
	}

	d.Sessions = session.NewStore(d.Provider, d.Logger)
	d.closers = append(d.closers, func() error {
		d.Sessions.Close()
		return nil
	})
	d.Guard = guard.New(d.Sessions, LoginPath, d.Logger)
	return nil
}

func (d *Dependencies) newCognitoClient(ctx context.Context, cfg *config.Config) (*cognito.Client, error) {
	ccfg := cognito.Config{
		Region:            cfg.Cognito.Region,
		UserPoolID:        cfg.Cognito.UserPoolID,
		ClientID:          cfg.Cognito.ClientID,
		ClientSecret:      cfg.Cognito.ClientSecret,
		Domain:            cfg.Cognito.Domain,
		FederatedProvider: cfg.Cognito.FederatedProvider,
		CallbackAddr:      cfg.Cognito.CallbackAddr,
		SkipVerify:        cfg.Cognito.SkipVerify,
	}
	if ccfg.SkipVerify {
		d.Logger.Warn("ID token signatures are not verified")
	}

	var opts []cognito.Option
	consent, err := cognito.NewLoopbackConsent(ctx, ccfg, cognito.OpenBrowser, d.Logger)
	if err != nil {
		// Password sign-in still works; federated sign-in reports an error.
		d.Logger.Warn("federated sign-in disabled", zap.Error(err))
	} else {
		opts = append(opts, cognito.WithConsent(consent))
	}

	client := cognito.NewClient(ccfg, d.Credentials, d.Logger, opts...)
	d.Logger.Info("cognito client initialized",
		zap.String("region", ccfg.Region),
		zap.String("user_pool_id", ccfg.UserPoolID))
	return client, nil
}

// initServices builds the REST API client, the image host and the services
func (d *Dependencies) initServices(cfg *config.Config) {
	var opts []api.Option
	if cfg.API.ForwardIDToken {
		if ts, ok := d.Provider.(api.TokenSource); ok {
			opts = append(opts, api.WithTokenSource(ts))
		} else {
			d.Logger.Warn("identity provider has no ID token to forward")
		}
	}
	d.API = api.NewClient(api.Config{
		BaseURL:   cfg.API.URL,
		Timeout:   cfg.API.Timeout,
		CacheSize: cfg.API.CacheSize,
		CacheTTL:  cfg.API.CacheTTL,
	}, d.Logger, opts...)

	var uploader services.ImageUploader
	if cfg.ImageHost.ImageUploadsEnabled() {
		d.Images = api.NewImageHost(cfg.ImageHost.Endpoint, cfg.ImageHost.APIKey, cfg.ImageHost.Timeout, d.Logger)
		uploader = d.Images
	} else {
		d.Logger.Info("image host not configured, course images must be given as URLs")
	}

	d.Courses = services.NewCourseService(d.API, uploader, d.Logger)
	d.Enrollments = services.NewEnrollmentService(d.API, d.Logger)
	d.Reviews = services.NewReviewService(d.API, d.Logger)
	d.Dashboard = services.NewDashboardService(d.API, d.Logger)
}

// initHandlers builds the page handlers
func (d *Dependencies) initHandlers() {
	d.AuthHandler = handlers.NewAuthHandler(d.Sessions, d.Logger)
	d.CourseHandler = handlers.NewCourseHandler(d.Courses, d.Enrollments, d.Reviews, d.Logger)
	d.DashboardHandler = handlers.NewDashboardHandler(d.Courses, d.Enrollments, d.Dashboard, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.Sessions, d.Logger)
}

// start resolves the initial session. A provider that restores a persisted
// session gets a single attempt; if the identity service cannot be reached the
// session stays initializing.
func (d *Dependencies) start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	switch p := d.Provider.(type) {
	case *identity.Memory:
		p.Resolve()
	case starter:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.restoreSession(ctx, p)
		}()
	}
}

func (d *Dependencies) restoreSession(ctx context.Context, p starter) {
	if err := p.Start(ctx); err != nil {
		d.Logger.Warn("session restore failed, session stays initializing", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	var errs []error
	// Close in reverse order of creation
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
