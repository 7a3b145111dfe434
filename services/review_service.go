package services

import (
	"context"
	"strings"
	"time"

	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/models"
	"github.com/upb/coursehub/utils"
	"go.uber.org/zap"
)

// ReviewAPI is the slice of the course service used for reviews
type ReviewAPI interface {
	ListReviews(ctx context.Context, courseID string) ([]models.Review, error)
	CreateReview(ctx context.Context, review *models.Review) (*models.Review, error)
}

// ReviewInput is a submitted review
type ReviewInput struct {
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"notblank,max=2000"`
}

// ReviewService lists and records course reviews
type ReviewService struct {
	api    ReviewAPI
	logger *zap.Logger
	now    func() time.Time
}

// NewReviewService creates a new ReviewService
func NewReviewService(reviews ReviewAPI, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		api:    reviews,
		logger: logger,
		now:    time.Now,
	}
}

// List returns the reviews of courseID
func (s *ReviewService) List(ctx context.Context, courseID string) ([]models.Review, error) {
	reviews, err := s.api.ListReviews(ctx, courseID)
	if err != nil {
		return nil, FromAPIError(err)
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	return reviews, nil
}

// Create records p's review of courseID
func (s *ReviewService) Create(ctx context.Context, p *identity.Principal, courseID string, in ReviewInput) (*models.Review, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}
	in.Comment = strings.TrimSpace(in.Comment)
	if err := utils.ValidateStruct(in); err != nil {
		return nil, invalid(err)
	}

	review, err := s.api.CreateReview(ctx, &models.Review{
		CourseID:  courseID,
		UserID:    p.ID,
		UserName:  p.Name(),
		UserPhoto: identity.FallbackAvatarURL(p),
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, FromAPIError(err)
	}

	s.logger.Info("review submitted",
		zap.String("course_id", courseID),
		zap.String("user", p.ID),
		zap.Int("rating", in.Rating))
	return review, nil
}
