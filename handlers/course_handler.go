package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/coursehub/middleware"
	"github.com/upb/coursehub/models"
	"github.com/upb/coursehub/services"
	"github.com/upb/coursehub/utils"
	"go.uber.org/zap"
)

// HomeView is the home page model
type HomeView struct {
	Featured   []models.Course `json:"featured"`
	Categories []string        `json:"categories"`
}

// CourseDetailView is the course details page model
type CourseDetailView struct {
	Course        *models.Course  `json:"course"`
	Reviews       []models.Review `json:"reviews"`
	AverageRating float64         `json:"averageRating"`
	Enrolled      bool            `json:"enrolled"`
	IsInstructor  bool            `json:"isInstructor"`
}

// CourseHandler serves the catalogue and course details pages
type CourseHandler struct {
	courses     *services.CourseService
	enrollments *services.EnrollmentService
	reviews     *services.ReviewService
	logger      *zap.Logger
}

// NewCourseHandler creates a new CourseHandler
func NewCourseHandler(courses *services.CourseService, enrollments *services.EnrollmentService, reviews *services.ReviewService, logger *zap.Logger) *CourseHandler {
	return &CourseHandler{
		courses:     courses,
		enrollments: enrollments,
		reviews:     reviews,
		logger:      logger,
	}
}

// HandleHome handles GET /
func (h *CourseHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	featured, err := h.courses.Featured(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, HomeView{Featured: featured, Categories: models.Categories})
}

// HandleListCourses handles GET /courses
// Optional filter: ?category=
func (h *CourseHandler) HandleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]models.Course, 0, len(courses))
		for _, c := range courses {
			if c.CategoryOrOther() == category {
				filtered = append(filtered, c)
			}
		}
		courses = filtered
	}
	if courses == nil {
		courses = []models.Course{}
	}
	_ = utils.WriteOK(w, courses)
}

// HandleGetCourse handles GET /courses/{id}
// Reviews and enrollment status are best effort; the page renders without them.
func (h *CourseHandler) HandleGetCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	principal := middleware.GetPrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")

	course, err := h.courses.Get(ctx, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	view := CourseDetailView{
		Course:       course,
		Reviews:      []models.Review{},
		IsInstructor: course.OwnedBy(principal.EmailAddress()),
	}

	if reviews, err := h.reviews.List(ctx, id); err != nil {
		h.logger.Warn("failed to load reviews",
			zap.String("request_id", requestID),
			zap.String("course_id", id),
			zap.Error(err))
	} else {
		view.Reviews = reviews
		view.AverageRating = averageRating(reviews)
	}

	if principal != nil {
		enrolled, err := h.enrollments.IsEnrolled(ctx, principal, id)
		if err != nil {
			h.logger.Warn("failed to load enrollment status",
				zap.String("request_id", requestID),
				zap.String("course_id", id),
				zap.Error(err))
		}
		view.Enrolled = enrolled
	}

	_ = utils.WriteOK(w, view)
}

// HandleEnroll handles POST /courses/{id}/enroll
func (h *CourseHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enrollment, err := h.enrollments.Enroll(ctx, middleware.GetPrincipalFromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, enrollment)
}

// HandleCreateReview handles POST /courses/{id}/reviews
func (h *CourseHandler) HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req services.ReviewInput
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	review, err := h.reviews.Create(ctx, middleware.GetPrincipalFromContext(ctx), chi.URLParam(r, "id"), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, review)
}

func averageRating(reviews []models.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	return float64(total) / float64(len(reviews))
}
