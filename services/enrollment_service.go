package services

import (
	"context"
	"time"

	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/models"
	"go.uber.org/zap"
)

// EnrollmentAPI is the slice of the course service used for enrollments
type EnrollmentAPI interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	ListEnrollments(ctx context.Context, userEmail string) ([]models.Enrollment, error)
	Enroll(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error)
}

// EnrollmentService enrolls principals into courses
type EnrollmentService struct {
	api    EnrollmentAPI
	logger *zap.Logger
	now    func() time.Time
}

// NewEnrollmentService creates a new EnrollmentService
func NewEnrollmentService(enrollments EnrollmentAPI, logger *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		api:    enrollments,
		logger: logger,
		now:    time.Now,
	}
}

// Mine returns p's enrollments
func (s *EnrollmentService) Mine(ctx context.Context, p *identity.Principal) ([]models.Enrollment, error) {
	email, err := requireEmail(p)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.api.ListEnrollments(ctx, email)
	if err != nil {
		return nil, FromAPIError(err)
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}
	return enrollments, nil
}

// IsEnrolled reports whether p is enrolled in courseID
func (s *EnrollmentService) IsEnrolled(ctx context.Context, p *identity.Principal, courseID string) (bool, error) {
	enrollments, err := s.Mine(ctx, p)
	if err != nil {
		return false, err
	}
	return containsCourse(enrollments, courseID), nil
}

// Enroll enrolls p into courseID. A second enrollment into the same course is
// a conflict.
func (s *EnrollmentService) Enroll(ctx context.Context, p *identity.Principal, courseID string) (*models.Enrollment, error) {
	email, err := requireEmail(p)
	if err != nil {
		return nil, err
	}

	course, err := s.api.GetCourse(ctx, courseID)
	if err != nil {
		if IsNotFoundError(FromAPIError(err)) {
			return nil, NewDomainError(ErrorTypeNotFound, ErrCourseNotFound.Message, err)
		}
		return nil, FromAPIError(err)
	}

	enrolled, err := s.IsEnrolled(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, ErrAlreadyEnrolled
	}

	enrollment, err := s.api.Enroll(ctx, &models.Enrollment{
		CourseID:   courseID,
		UserEmail:  email,
		Course:     course,
		EnrolledAt: s.now().UTC(),
	})
	if err != nil {
		return nil, FromAPIError(err)
	}

	s.logger.Info("enrolled in course",
		zap.String("course_id", courseID),
		zap.String("user", p.ID))
	return enrollment, nil
}

func containsCourse(enrollments []models.Enrollment, courseID string) bool {
	for _, e := range enrollments {
		if e.CourseID == courseID {
			return true
		}
	}
	return false
}
