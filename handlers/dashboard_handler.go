package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/upb/coursehub/api"
	"github.com/upb/coursehub/middleware"
	"github.com/upb/coursehub/services"
	"github.com/upb/coursehub/utils"
	"go.uber.org/zap"
)

// maxSubmissionSize bounds a course form including its image
const maxSubmissionSize = api.MaxImageSize + 1<<20

// DashboardHandler serves the signed-in dashboard pages
type DashboardHandler struct {
	courses     *services.CourseService
	enrollments *services.EnrollmentService
	dashboard   *services.DashboardService
	logger      *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(courses *services.CourseService, enrollments *services.EnrollmentService, dashboard *services.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		courses:     courses,
		enrollments: enrollments,
		dashboard:   dashboard,
		logger:      logger,
	}
}

// HandleStats handles GET /dashboard
func (h *DashboardHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.dashboard.Stats(ctx, middleware.GetPrincipalFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stats)
}

// HandleMyCourses handles GET /dashboard/my-courses
func (h *DashboardHandler) HandleMyCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	courses, err := h.courses.Mine(ctx, middleware.GetPrincipalFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, courses)
}

// HandleEnrolled handles GET /dashboard/enrolled
func (h *DashboardHandler) HandleEnrolled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enrollments, err := h.enrollments.Mine(ctx, middleware.GetPrincipalFromContext(ctx))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, enrollments)
}

// HandleCreateCourse handles POST /dashboard/courses
// Accepts a JSON body or a multipart form with an optional "image" file.
func (h *DashboardHandler) HandleCreateCourse(w http.ResponseWriter, r *http.Request) {
	in, image, err := decodeCourseSubmission(w, r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	course, err := h.courses.Create(ctx, middleware.GetPrincipalFromContext(ctx), in, image)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, course)
}

// HandleUpdateCourse handles PUT /dashboard/courses/{id}
func (h *DashboardHandler) HandleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	in, image, err := decodeCourseSubmission(w, r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	course, err := h.courses.Update(ctx, middleware.GetPrincipalFromContext(ctx), chi.URLParam(r, "id"), in, image)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, course)
}

// HandleDeleteCourse handles DELETE /dashboard/courses/{id}
func (h *DashboardHandler) HandleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.courses.Delete(ctx, middleware.GetPrincipalFromContext(ctx), chi.URLParam(r, "id")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// decodeCourseSubmission reads a course form. The image, when present, is
// buffered so the upload can run after the form is closed.
func decodeCourseSubmission(w http.ResponseWriter, r *http.Request) (services.CourseInput, *services.ImageFile, error) {
	var in services.CourseInput
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return in, nil, utils.DecodeJSON(r, &in)
	}

	if err := r.ParseMultipartForm(maxSubmissionSize); err != nil {
		return in, nil, err
	}

	in.Title = r.FormValue("title")
	in.Image = r.FormValue("image_url")
	in.Duration = r.FormValue("duration")
	in.Category = r.FormValue("category")
	in.Description = r.FormValue("description")

	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, nil, utils.NewFieldError("price", "price must be a number")
		}
		in.Price = price
	}
	if raw := r.FormValue("isFeatured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			return in, nil, utils.NewFieldError("isFeatured", "isFeatured must be true or false")
		}
		in.IsFeatured = featured
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return in, nil, fmt.Errorf("reading image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, api.MaxImageSize+1))
	if err != nil {
		return in, nil, fmt.Errorf("reading image: %w", err)
	}
	return in, &services.ImageFile{Name: header.Filename, Content: bytes.NewReader(data)}, nil
}
