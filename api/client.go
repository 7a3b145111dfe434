// Package api is the client for the remote course REST service and the image host.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/coursehub/middleware"
	"github.com/upb/coursehub/models"
	"go.uber.org/zap"
)

// ErrUnavailable marks requests that never got an HTTP response
var ErrUnavailable = errors.New("course service unavailable")

// StatusError is a non-2xx response from the course service
type StatusError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("course service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("course service returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the course service
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// TokenSource supplies the bearer token forwarded with requests
type TokenSource interface {
	IDToken() string
}

// Config configures a Client
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Client calls the course REST service. Payloads travel in a {"data": ...} envelope.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *CourseCache
	tokens     TokenSource
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTokenSource forwards ts's ID token as a bearer token on every request
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for cfg.BaseURL
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 128
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      NewCourseCache(cfg.CacheSize, cfg.CacheTTL),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheStats reports course cache usage
func (c *Client) CacheStats() CacheStats {
	return c.cache.Stats()
}

// ListCourses returns every course
func (c *Client) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := c.do(ctx, http.MethodGet, "/courses", nil, nil, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// GetCourse returns one course, served from cache when fresh
func (c *Client) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	if cached := c.cache.Get(id); cached != nil {
		return cached, nil
	}

	var course models.Course
	if err := c.do(ctx, http.MethodGet, "/courses/"+url.PathEscape(id), nil, nil, &course); err != nil {
		return nil, err
	}
	if course.ID == "" {
		course.ID = id
	}
	c.cache.Set(&course)
	return &course, nil
}

// CreateCourse stores a new course and returns it as saved
func (c *Client) CreateCourse(ctx context.Context, course *models.Course) (*models.Course, error) {
	created := *course
	if err := c.do(ctx, http.MethodPost, "/courses", nil, course, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCourse replaces course id
func (c *Client) UpdateCourse(ctx context.Context, id string, course *models.Course) (*models.Course, error) {
	updated := *course
	err := c.do(ctx, http.MethodPut, "/courses/"+url.PathEscape(id), nil, course, &updated)
	c.cache.Invalidate(id)
	if err != nil {
		return nil, err
	}
	if updated.ID == "" {
		updated.ID = id
	}
	return &updated, nil
}

// DeleteCourse removes course id
func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/courses/"+url.PathEscape(id), nil, nil, nil)
	c.cache.Invalidate(id)
	return err
}

// ListEnrollments returns the enrollments recorded for userEmail
func (c *Client) ListEnrollments(ctx context.Context, userEmail string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	query := url.Values{"userEmail": {userEmail}}
	if err := c.do(ctx, http.MethodGet, "/enrollments", query, nil, &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

// Enroll records an enrollment
func (c *Client) Enroll(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	created := *enrollment
	if err := c.do(ctx, http.MethodPost, "/enrollments", nil, enrollment, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListReviews returns the reviews of courseID
func (c *Client) ListReviews(ctx context.Context, courseID string) ([]models.Review, error) {
	var reviews []models.Review
	query := url.Values{"courseId": {courseID}}
	if err := c.do(ctx, http.MethodGet, "/reviews", query, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview stores a review
func (c *Client) CreateReview(ctx context.Context, review *models.Review) (*models.Review, error) {
	created := *review
	if err := c.do(ctx, http.MethodPost, "/reviews", nil, review, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// do sends one request. out is left untouched when the response carries no data.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := middleware.GetRequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	if c.tokens != nil {
		if token := c.tokens.IDToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("course service request failed",
			zap.String("request_id", requestID),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("course service request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	var env envelope
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := env.Message
		if message == "" {
			message = env.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding %s %s data: %w", method, path, err)
	}
	return nil
}
