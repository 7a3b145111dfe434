package services

import (
	"context"

	"github.com/upb/coursehub/identity"
	"github.com/upb/coursehub/models"
	"go.uber.org/zap"
)

// DashboardAPI is the slice of the course service read by the dashboard
type DashboardAPI interface {
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListEnrollments(ctx context.Context, userEmail string) ([]models.Enrollment, error)
}

// DashboardService summarizes a principal's learning and teaching
type DashboardService struct {
	api    DashboardAPI
	logger *zap.Logger
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(dashboard DashboardAPI, logger *zap.Logger) *DashboardService {
	return &DashboardService{api: dashboard, logger: logger}
}

// Stats loads p's enrollments and taught courses and summarizes them
func (s *DashboardService) Stats(ctx context.Context, p *identity.Principal) (*models.DashboardStats, error) {
	email, err := requireEmail(p)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.api.ListEnrollments(ctx, email)
	if err != nil {
		return nil, FromAPIError(err)
	}
	courses, err := s.api.ListCourses(ctx)
	if err != nil {
		return nil, FromAPIError(err)
	}

	stats := ComputeStats(enrollments, filterOwned(courses, email))
	s.logger.Debug("dashboard stats computed",
		zap.String("user", p.ID),
		zap.Int("enrolled", stats.TotalEnrolled),
		zap.Int("created", stats.TotalCreated))
	return &stats, nil
}

// ComputeStats totals enrollments and taught courses. Spending sums the prices
// of enrolled courses and earnings the prices of taught courses. Categories
// count enrollments per category in first-seen order; enrollments without a
// course or category count as "Other".
func ComputeStats(enrollments []models.Enrollment, created []models.Course) models.DashboardStats {
	stats := models.DashboardStats{
		TotalEnrolled: len(enrollments),
		TotalCreated:  len(created),
		Categories:    []models.CategoryCount{},
	}

	index := make(map[string]int)
	for _, e := range enrollments {
		if e.Course != nil {
			stats.TotalSpent += e.Course.Price
		}
		category := e.Course.CategoryOrOther()
		if i, ok := index[category]; ok {
			stats.Categories[i].Value++
			continue
		}
		index[category] = len(stats.Categories)
		stats.Categories = append(stats.Categories, models.CategoryCount{Name: category, Value: 1})
	}

	for _, c := range created {
		stats.TotalEarnings += c.Price
	}
	return stats
}
