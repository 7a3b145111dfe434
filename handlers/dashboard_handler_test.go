package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/models"
)

const validCourseJSON = `{
	"title": "Intro to Go",
	"image": "https://i.example.com/intro.png",
	"price": 25,
	"duration": "4 weeks",
	"category": "Backend",
	"description": "Types, interfaces and goroutines"
}`

// multipartCourse builds a course form, optionally with an image file
func multipartCourse(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "cover.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/dashboard/courses", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func courseFields() map[string]string {
	return map[string]string{
		"title":       "Intro to Go",
		"price":       "25.5",
		"duration":    "4 weeks",
		"category":    "Backend",
		"description": "Types, interfaces and goroutines",
		"isFeatured":  "true",
	}
}

func TestDashboardHandler_HandleStats(t *testing.T) {
	env := newTestEnv(t)
	p := env.signIn(t)
	env.api.enrollments = []models.Enrollment{
		{CourseID: "c1", UserEmail: "ada@example.com", Course: &models.Course{Price: 30, Category: models.CategoryBackend}},
		{CourseID: "x", UserEmail: "ada@example.com"},
		{CourseID: "c1", UserEmail: "grace@example.com", Course: &models.Course{Price: 30}},
	}

	w := httptest.NewRecorder()
	env.dashboard.HandleStats(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/dashboard", nil), p))

	require.Equal(t, http.StatusOK, w.Code)
	var stats models.DashboardStats
	decodeData(t, w, &stats)
	assert.Equal(t, 2, stats.TotalEnrolled)
	assert.Equal(t, 1, stats.TotalCreated)
	assert.Equal(t, 30.0, stats.TotalSpent)
	assert.Equal(t, 15.0, stats.TotalEarnings)
	assert.Equal(t, []models.CategoryCount{
		{Name: models.CategoryBackend, Value: 1},
		{Name: models.CategoryOther, Value: 1},
	}, stats.Categories)
}

func TestDashboardHandler_Lists(t *testing.T) {
	t.Run("my courses", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		w := httptest.NewRecorder()
		env.dashboard.HandleMyCourses(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/dashboard/my-courses", nil), p))

		require.Equal(t, http.StatusOK, w.Code)
		var courses []models.Course
		decodeData(t, w, &courses)
		require.Len(t, courses, 1)
		assert.Equal(t, "c2", courses[0].ID)
	})

	t.Run("enrolled is never null", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		w := httptest.NewRecorder()
		env.dashboard.HandleEnrolled(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/dashboard/enrolled", nil), p))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("account without email", func(t *testing.T) {
		env := newTestEnv(t)
		p := &identity.Principal{ID: "anon-federated"}

		w := httptest.NewRecorder()
		env.dashboard.HandleMyCourses(w, withPrincipal(httptest.NewRequest(http.MethodGet, "/dashboard/my-courses", nil), p))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestDashboardHandler_HandleCreateCourse(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		w := httptest.NewRecorder()
		env.dashboard.HandleCreateCourse(w, withPrincipal(jsonRequest(http.MethodPost, "/dashboard/courses", validCourseJSON), p))

		require.Equal(t, http.StatusCreated, w.Code)
		var course models.Course
		decodeData(t, w, &course)
		assert.NotEmpty(t, course.ID)
		assert.Equal(t, "Intro to Go", course.Title)
		assert.Equal(t, "Ada Lovelace", course.InstructorName)
		assert.Equal(t, "ada@example.com", course.InstructorEmail)
		assert.Equal(t, "https://i.example.com/intro.png", course.Image)
		assert.Empty(t, env.uploader.names)
	})

	t.Run("multipart with image upload", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)
		png := []byte("\x89PNG\r\n\x1a\nfake image data")

		w := httptest.NewRecorder()
		env.dashboard.HandleCreateCourse(w, withPrincipal(multipartCourse(t, courseFields(), png), p))

		require.Equal(t, http.StatusCreated, w.Code)
		var course models.Course
		decodeData(t, w, &course)
		assert.Equal(t, 25.5, course.Price)
		assert.True(t, course.IsFeatured)
		assert.Equal(t, "https://i.example.com/cover.png", course.Image)
		require.Len(t, env.uploader.data, 1)
		assert.Equal(t, png, env.uploader.data[0])
	})

	t.Run("multipart without image", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)
		fields := courseFields()
		fields["image_url"] = "https://i.example.com/given.png"

		w := httptest.NewRecorder()
		env.dashboard.HandleCreateCourse(w, withPrincipal(multipartCourse(t, fields, nil), p))

		require.Equal(t, http.StatusCreated, w.Code)
		var course models.Course
		decodeData(t, w, &course)
		assert.Equal(t, "https://i.example.com/given.png", course.Image)
		assert.Empty(t, env.uploader.names)
	})

	t.Run("price is not a number", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)
		fields := courseFields()
		fields["price"] = "cheap"

		w := httptest.NewRecorder()
		env.dashboard.HandleCreateCourse(w, withPrincipal(multipartCourse(t, fields, nil), p))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Details, "price")
	})

	t.Run("unknown category", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)
		fields := courseFields()
		fields["category"] = "Cooking"

		w := httptest.NewRecorder()
		env.dashboard.HandleCreateCourse(w, withPrincipal(multipartCourse(t, fields, nil), p))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Details, "category")
		assert.Len(t, env.api.courses, 2)
	})

	t.Run("body too large", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)
		huge := make([]byte, maxSubmissionSize+1)

		w := httptest.NewRecorder()
		env.dashboard.HandleCreateCourse(w, withPrincipal(multipartCourse(t, courseFields(), huge), p))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Empty(t, env.uploader.names)
	})
}

func TestDashboardHandler_HandleUpdateCourse(t *testing.T) {
	t.Run("instructor updates and keeps the image", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)
		env.api.courses[1].Image = "https://i.example.com/css.png"
		body := `{"title":"CSS Layouts 2","price":20,"duration":"3 weeks","category":"Frontend","description":"Grid"}`

		req := withURLParam(withPrincipal(jsonRequest(http.MethodPut, "/dashboard/courses/c2", body), p), "id", "c2")
		w := httptest.NewRecorder()
		env.dashboard.HandleUpdateCourse(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var course models.Course
		decodeData(t, w, &course)
		assert.Equal(t, "c2", course.ID)
		assert.Equal(t, "CSS Layouts 2", course.Title)
		assert.Equal(t, "https://i.example.com/css.png", course.Image)
	})

	t.Run("only the instructor", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		req := withURLParam(withPrincipal(jsonRequest(http.MethodPut, "/dashboard/courses/c1", validCourseJSON), p), "id", "c1")
		w := httptest.NewRecorder()
		env.dashboard.HandleUpdateCourse(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Go in Practice", env.api.courses[0].Title)
	})
}

func TestDashboardHandler_HandleDeleteCourse(t *testing.T) {
	t.Run("instructor deletes", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		req := withURLParam(withPrincipal(httptest.NewRequest(http.MethodDelete, "/dashboard/courses/c2", nil), p), "id", "c2")
		w := httptest.NewRecorder()
		env.dashboard.HandleDeleteCourse(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Len(t, env.api.courses, 1)
	})

	t.Run("other instructor's course", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		req := withURLParam(withPrincipal(httptest.NewRequest(http.MethodDelete, "/dashboard/courses/c1", nil), p), "id", "c1")
		w := httptest.NewRecorder()
		env.dashboard.HandleDeleteCourse(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Len(t, env.api.courses, 2)
	})

	t.Run("missing course", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.signIn(t)

		req := withURLParam(withPrincipal(httptest.NewRequest(http.MethodDelete, "/dashboard/courses/zz", nil), p), "id", "zz")
		w := httptest.NewRecorder()
		env.dashboard.HandleDeleteCourse(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
