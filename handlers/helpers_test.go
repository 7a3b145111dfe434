package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/upb/coursehub/api"
	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/middleware"
	"github.com/upb/coursehub/models"
	"github.com/upb/coursehub/services"
	"github.com/upb/coursehub/session"
	"go.uber.org/zap"
)

// fakeCourseAPI is an in-memory course REST API
type fakeCourseAPI struct {
	mu          sync.Mutex
	courses     []models.Course
	enrollments []models.Enrollment
	reviews     []models.Review
	nextID      int
	err         error
	reviewsErr  error
}

func (f *fakeCourseAPI) ListCourses(ctx context.Context) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Course(nil), f.courses...), nil
}

func (f *fakeCourseAPI) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.courses {
		if c.ID == id {
			course := c
			return &course, nil
		}
	}
	return nil, &api.StatusError{StatusCode: http.StatusNotFound, Message: "Course not found"}
}

func (f *fakeCourseAPI) CreateCourse(ctx context.Context, course *models.Course) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	created := *course
	created.ID = fmt.Sprintf("new-%d", f.nextID)
	f.courses = append(f.courses, created)
	return &created, nil
}

func (f *fakeCourseAPI) UpdateCourse(ctx context.Context, id string, course *models.Course) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.courses {
		if f.courses[i].ID == id {
			f.courses[i] = *course
			updated := *course
			return &updated, nil
		}
	}
	return nil, &api.StatusError{StatusCode: http.StatusNotFound}
}

func (f *fakeCourseAPI) DeleteCourse(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i := range f.courses {
		if f.courses[i].ID == id {
			f.courses = append(f.courses[:i], f.courses[i+1:]...)
			return nil
		}
	}
	return &api.StatusError{StatusCode: http.StatusNotFound}
}

func (f *fakeCourseAPI) ListEnrollments(ctx context.Context, userEmail string) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if e.UserEmail == userEmail {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeCourseAPI) Enroll(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.enrollments = append(f.enrollments, *enrollment)
	created := *enrollment
	return &created, nil
}

func (f *fakeCourseAPI) ListReviews(ctx context.Context, courseID string) ([]models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewsErr != nil {
		return nil, f.reviewsErr
	}
	var out []models.Review
	for _, r := range f.reviews {
		if r.CourseID == courseID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCourseAPI) CreateReview(ctx context.Context, review *models.Review) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.reviews = append(f.reviews, *review)
	created := *review
	return &created, nil
}

// fakeUploader records uploads and returns a fixed URL
type fakeUploader struct {
	mu    sync.Mutex
	names []string
	data  [][]byte
}

func (u *fakeUploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, filename)
	u.data = append(u.data, body)
	return "https://i.example.com/" + filename, nil
}

type testEnv struct {
	memory    *identity.Memory
	sessions  *session.Store
	api       *fakeCourseAPI
	uploader  *fakeUploader
	auth      *AuthHandler
	courses   *CourseHandler
	dashboard *DashboardHandler
	health    *HealthHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	memory := identity.NewMemory()
	sessions := session.NewStore(memory, logger)
	t.Cleanup(sessions.Close)

	fake := &fakeCourseAPI{
		courses: []models.Course{
			{ID: "c1", Title: "Go in Practice", Category: models.CategoryBackend, Price: 30, IsFeatured: true,
				Duration: "6 weeks", Description: "Services in Go", InstructorName: "Grace", InstructorEmail: "grace@example.com",
				Image: "https://i.example.com/go.png"},
			{ID: "c2", Title: "CSS Layouts", Category: models.CategoryFrontend, Price: 15,
				Duration: "2 weeks", Description: "Grid and flexbox", InstructorName: "Ada", InstructorEmail: "ada@example.com"},
		},
	}
	uploader := &fakeUploader{}

	courseSvc := services.NewCourseService(fake, uploader, logger)
	enrollmentSvc := services.NewEnrollmentService(fake, logger)
	reviewSvc := services.NewReviewService(fake, logger)
	dashboardSvc := services.NewDashboardService(fake, logger)

	return &testEnv{
		memory:    memory,
		sessions:  sessions,
		api:       fake,
		uploader:  uploader,
		auth:      NewAuthHandler(sessions, logger),
		courses:   NewCourseHandler(courseSvc, enrollmentSvc, reviewSvc, logger),
		dashboard: NewDashboardHandler(courseSvc, enrollmentSvc, dashboardSvc, logger),
		health:    NewHealthHandler(sessions, logger),
	}
}

// signIn seeds and signs in Ada, returning her principal
func (e *testEnv) signIn(t *testing.T) *identity.Principal {
	t.Helper()
	e.memory.Resolve()
	e.memory.AddAccount("ada@example.com", "secret123", "Ada Lovelace")
	p, err := e.sessions.Login(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	return p
}

func jsonRequest(method, target, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, target, nil)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withPrincipal places p in the request the way the route guard does
func withPrincipal(req *http.Request, p *identity.Principal) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), p))
}

// withURLParam sets a chi route parameter on req
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// decodeData decodes the "data" member of a success response into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

type errorBody struct {
	Error    string                 `json:"error"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details"`
	Redirect string                 `json:"redirect"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}
