package models

import "time"

// Course categories offered by the marketplace
const (
	CategoryWebDevelopment    = "Web Development"
	CategoryFrontend          = "Frontend"
	CategoryBackend           = "Backend"
	CategoryProgramming       = "Programming"
	CategoryDesign            = "Design"
	CategoryDataScience       = "Data Science"
	CategoryMobileDevelopment = "Mobile Development"
	CategoryDevOps            = "DevOps"
	CategoryCybersecurity     = "Cybersecurity"
	CategoryOther             = "Other"
)

// Categories lists the categories in display order
var Categories = []string{
	CategoryWebDevelopment,
	CategoryFrontend,
	CategoryBackend,
	CategoryProgramming,
	CategoryDesign,
	CategoryDataScience,
	CategoryMobileDevelopment,
	CategoryDevOps,
	CategoryCybersecurity,
	CategoryOther,
}

// IsCategory reports whether c is one of Categories
func IsCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Course is a course listing as stored by the course API
type Course struct {
	ID              string    `json:"_id,omitempty"`
	Title           string    `json:"title"`
	Image           string    `json:"image,omitempty"`
	Price           float64   `json:"price"`
	Duration        string    `json:"duration"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	IsFeatured      bool      `json:"isFeatured"`
	InstructorName  string    `json:"instructorName"`
	InstructorEmail string    `json:"instructorEmail"`
	InstructorPhoto string    `json:"instructorPhoto,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
}

// OwnedBy reports whether email is the course's instructor
func (c *Course) OwnedBy(email string) bool {
	return c != nil && email != "" && c.InstructorEmail == email
}

// CategoryOrOther returns the course category, "Other" when unset
func (c *Course) CategoryOrOther() string {
	if c == nil || c.Category == "" {
		return CategoryOther
	}
	return c.Category
}

// Enrollment links a user to a course
type Enrollment struct {
	ID         string    `json:"_id,omitempty"`
	CourseID   string    `json:"courseId"`
	UserEmail  string    `json:"userEmail"`
	Course     *Course   `json:"course,omitempty"`
	EnrolledAt time.Time `json:"enrolledAt,omitzero"`
}

// Review is a rating with comment left on a course
type Review struct {
	ID        string    `json:"_id,omitempty"`
	CourseID  string    `json:"courseId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserPhoto string    `json:"userPhoto,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// CategoryCount is one slice of the enrolled-courses category distribution
type CategoryCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DashboardStats summarizes a user's learning and teaching
type DashboardStats struct {
	TotalEnrolled int             `json:"totalEnrolled"`
	TotalCreated  int             `json:"totalCreated"`
	TotalSpent    float64         `json:"totalSpent"`
	TotalEarnings float64         `json:"totalEarnings"`
	Categories    []CategoryCount `json:"categories"`
}
