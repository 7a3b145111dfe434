package services

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/models"
)

// MockCourseAPI is a mock implementation of every course service slice
type MockCourseAPI struct {
	mock.Mock
}

func (m *MockCourseAPI) ListCourses(ctx context.Context) ([]models.Course, error) {
	args := m.Called(ctx)
	if courses := args.Get(0); courses != nil {
		return courses.([]models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	args := m.Called(ctx, id)
	if course := args.Get(0); course != nil {
		return course.(*models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) CreateCourse(ctx context.Context, course *models.Course) (*models.Course, error) {
	args := m.Called(ctx, course)
	if created := args.Get(0); created != nil {
		return created.(*models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) UpdateCourse(ctx context.Context, id string, course *models.Course) (*models.Course, error) {
	args := m.Called(ctx, id, course)
	if updated := args.Get(0); updated != nil {
		return updated.(*models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) DeleteCourse(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCourseAPI) ListEnrollments(ctx context.Context, userEmail string) ([]models.Enrollment, error) {
	args := m.Called(ctx, userEmail)
	if enrollments := args.Get(0); enrollments != nil {
		return enrollments.([]models.Enrollment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) Enroll(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error) {
	args := m.Called(ctx, enrollment)
	if created := args.Get(0); created != nil {
		return created.(*models.Enrollment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) ListReviews(ctx context.Context, courseID string) ([]models.Review, error) {
	args := m.Called(ctx, courseID)
	if reviews := args.Get(0); reviews != nil {
		return reviews.([]models.Review), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCourseAPI) CreateReview(ctx context.Context, review *models.Review) (*models.Review, error) {
	args := m.Called(ctx, review)
	if created := args.Get(0); created != nil {
		return created.(*models.Review), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockImageUploader is a mock implementation of ImageUploader
type MockImageUploader struct {
	mock.Mock
}

func (m *MockImageUploader) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	args := m.Called(ctx, filename, r)
	return args.String(0), args.Error(1)
}

func testPrincipal() *identity.Principal {
	return &identity.Principal{
		ID:          "u1",
		DisplayName: identity.Optional("Ada Lovelace"),
		Email:       identity.Optional("ada@example.com"),
	}
}
