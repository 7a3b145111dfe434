package services

import (
	"context"
	"io"
	"strings"

	"github.com/upb/coursehub/api"
	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/models"
	"github.com/upb/coursehub/utils"
	"go.uber.org/zap"
)

// CourseAPI is the slice of the course service used for course listings
type CourseAPI interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	CreateCourse(ctx context.Context, course *models.Course) (*models.Course, error)
	UpdateCourse(ctx context.Context, id string, course *models.Course) (*models.Course, error)
	DeleteCourse(ctx context.Context, id string) error
}

// ImageUploader stores a course image and returns its public URL
type ImageUploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// CourseInput is the editable part of a course
type CourseInput struct {
	Title       string  `json:"title" validate:"notblank,max=200"`
	Image       string  `json:"image" validate:"omitempty,url"`
	Price       float64 `json:"price" validate:"gt=0"`
	Duration    string  `json:"duration" validate:"notblank,max=100"`
	Category    string  `json:"category" validate:"required"`
	Description string  `json:"description" validate:"notblank,max=5000"`
	IsFeatured  bool    `json:"isFeatured"`
}

// ImageFile is an image submitted alongside a CourseInput
type ImageFile struct {
	Name    string
	Content io.Reader
}

// CourseService runs the course catalogue and instructor operations
type CourseService struct {
	api    CourseAPI
	images ImageUploader
	logger *zap.Logger
}

// NewCourseService creates a new CourseService. images may be nil, in which
// case submissions carrying an image file are rejected.
func NewCourseService(courses CourseAPI, images ImageUploader, logger *zap.Logger) *CourseService {
	return &CourseService{
		api:    courses,
		images: images,
		logger: logger,
	}
}

// List returns the whole catalogue
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.api.ListCourses(ctx)
	if err != nil {
		return nil, FromAPIError(err)
	}
	return courses, nil
}

// Featured returns the courses flagged for the home page
func (s *CourseService) Featured(ctx context.Context) ([]models.Course, error) {
	courses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	featured := make([]models.Course, 0, len(courses))
	for _, c := range courses {
		if c.IsFeatured {
			featured = append(featured, c)
		}
	}
	return featured, nil
}

// Get returns course id
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrCourseNotFound
	}
	course, err := s.api.GetCourse(ctx, id)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, NewDomainError(ErrorTypeNotFound, ErrCourseNotFound.Message, err)
		}
		return nil, FromAPIError(err)
	}
	return course, nil
}

// Mine returns the courses p teaches
func (s *CourseService) Mine(ctx context.Context, p *identity.Principal) ([]models.Course, error) {
	email, err := requireEmail(p)
	if err != nil {
		return nil, err
	}
	courses, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return filterOwned(courses, email), nil
}

// Create publishes a new course with p as instructor
func (s *CourseService) Create(ctx context.Context, p *identity.Principal, in CourseInput, image *ImageFile) (*models.Course, error) {
	if _, err := requireEmail(p); err != nil {
		return nil, err
	}
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}

	imageURL, err := s.upload(ctx, image, in.Image)
	if err != nil {
		return nil, err
	}

	course := in.course(p, imageURL)
	created, err := s.api.CreateCourse(ctx, course)
	if err != nil {
		return nil, FromAPIError(err)
	}

	s.logger.Info("course created",
		zap.String("course_id", created.ID),
		zap.String("instructor", p.ID))
	return created, nil
}

// Update replaces course id. Only its instructor may update it; the current
// image is kept unless a new one is supplied.
func (s *CourseService) Update(ctx context.Context, p *identity.Principal, id string, in CourseInput, image *ImageFile) (*models.Course, error) {
	current, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}

	keep := in.Image
	if keep == "" {
		keep = current.Image
	}
	imageURL, err := s.upload(ctx, image, keep)
	if err != nil {
		return nil, err
	}

	course := in.course(p, imageURL)
	course.ID = current.ID
	course.CreatedAt = current.CreatedAt
	updated, err := s.api.UpdateCourse(ctx, id, course)
	if err != nil {
		return nil, FromAPIError(err)
	}

	s.logger.Info("course updated", zap.String("course_id", id), zap.String("instructor", p.ID))
	return updated, nil
}

// Delete removes course id. Only its instructor may delete it.
func (s *CourseService) Delete(ctx context.Context, p *identity.Principal, id string) error {
	if _, err := s.owned(ctx, p, id); err != nil {
		return err
	}
	if err := s.api.DeleteCourse(ctx, id); err != nil {
		return FromAPIError(err)
	}
	s.logger.Info("course deleted", zap.String("course_id", id), zap.String("instructor", p.ID))
	return nil
}

// owned loads course id and checks that p is its instructor
func (s *CourseService) owned(ctx context.Context, p *identity.Principal, id string) (*models.Course, error) {
	email, err := requireEmail(p)
	if err != nil {
		return nil, err
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !course.OwnedBy(email) {
		return nil, ErrNotOwner
	}
	return course, nil
}

func (s *CourseService) upload(ctx context.Context, image *ImageFile, fallback string) (string, error) {
	if image == nil || image.Content == nil {
		return fallback, nil
	}
	if s.images == nil {
		return "", NewDomainError(ErrorTypeValidation, "image uploads are not configured", nil)
	}
	url, err := s.images.Upload(ctx, image.Name, image.Content)
	if err != nil {
		s.logger.Warn("course image upload failed", zap.String("filename", image.Name), zap.Error(err))
		return "", FromAPIError(err)
	}
	return url, nil
}

func (in CourseInput) normalized() CourseInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Image = strings.TrimSpace(in.Image)
	in.Duration = strings.TrimSpace(in.Duration)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

func (in CourseInput) validate() error {
	if err := utils.ValidateStruct(in); err != nil {
		return invalid(err)
	}
	if !models.IsCategory(in.Category) {
		return invalid(utils.NewFieldError("category", "category must be one of the listed categories"))
	}
	return nil
}

func (in CourseInput) course(p *identity.Principal, imageURL string) *models.Course {
	return &models.Course{
		Title:           in.Title,
		Image:           imageURL,
		Price:           in.Price,
		Duration:        in.Duration,
		Category:        in.Category,
		Description:     in.Description,
		IsFeatured:      in.IsFeatured,
		InstructorName:  p.Name(),
		InstructorEmail: p.EmailAddress(),
		InstructorPhoto: identity.FallbackAvatarURL(p),
	}
}

func filterOwned(courses []models.Course, email string) []models.Course {
	owned := make([]models.Course, 0)
	for _, c := range courses {
		if c.OwnedBy(email) {
			owned = append(owned, c)
		}
	}
	return owned
}

// requireEmail returns p's email. Anonymous callers and accounts without an
// email cannot own or join courses.
func requireEmail(p *identity.Principal) (string, error) {
	if p == nil {
		return "", ErrUnauthorized
	}
	email := p.EmailAddress()
	if email == "" {
		return "", NewDomainError(ErrorTypeForbidden, "account has no email address", nil)
	}
	return email, nil
}

// invalid converts a utils.ValidationError into a validation DomainError
// carrying the field messages as details.
func invalid(err error) error {
	domainErr := NewDomainError(ErrorTypeValidation, "validation failed", err)
	for field, message := range utils.GetValidationFields(err) {
		domainErr.WithDetail(field, message)
	}
	return domainErr
}
