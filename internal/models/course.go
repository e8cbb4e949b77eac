package models

import "time"

// CourseInterest is an area a course relates to.
type CourseInterest string

// Supported course interests.
const (
	CourseInterestMarketing       CourseInterest = "Marketing"
	CourseInterestAdministration  CourseInterest = "Administración"
	CourseInterestTechnology      CourseInterest = "Tecnología"
	CourseInterestProgramming     CourseInterest = "Programación"
	CourseInterestLanguages       CourseInterest = "Idiomas"
	CourseInterestDesign          CourseInterest = "Diseño"
	CourseInterestCustomerService CourseInterest = "Atención al cliente"
	CourseInterestLogistics       CourseInterest = "Logística"
	CourseInterestHumanResources  CourseInterest = "Recursos humanos"
)

// CourseInterests lists every supported interest in display order.
var CourseInterests = []CourseInterest{
	CourseInterestMarketing,
	CourseInterestAdministration,
	CourseInterestTechnology,
	CourseInterestProgramming,
	CourseInterestLanguages,
	CourseInterestDesign,
	CourseInterestCustomerService,
	CourseInterestLogistics,
	CourseInterestHumanResources,
}

// Valid reports whether i belongs to the supported set.
func (i CourseInterest) Valid() bool {
	for _, known := range CourseInterests {
		if i == known {
			return true
		}
	}
	return false
}

// Course is a training course offered by the center.
type Course struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Code      string           `json:"code"`
	Interests []CourseInterest `json:"interests"`
	StartDate *time.Time       `json:"startDate"`
	EndDate   *time.Time       `json:"endDate"`
	CreatedAt *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt *time.Time       `json:"updatedAt,omitempty"`
}

// RecordID implements Record.
func (c Course) RecordID() string { return c.ID }

// CreateCourseRequest is the payload for registering a course.
type CreateCourseRequest struct {
	Name      string           `json:"name" validate:"required,min=2"`
	Code      string           `json:"code" validate:"required,min=2"`
	Interests []CourseInterest `json:"interests" validate:"dive,course_interest"`
	StartDate Date             `json:"startDate"`
	EndDate   Date             `json:"endDate"`
}

// UpdateCourseRequest carries a partial course update. Only present fields are written.
type UpdateCourseRequest struct {
	Name      Optional[string]           `json:"name"`
	Code      Optional[string]           `json:"code"`
	Interests Optional[[]CourseInterest] `json:"interests"`
	StartDate Optional[Date]             `json:"startDate"`
	EndDate   Optional[Date]             `json:"endDate"`
}
