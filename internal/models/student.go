package models

import "time"

// EmploymentStatus describes a student's current occupation.
type EmploymentStatus string

// Supported employment statuses.
const (
	EmploymentUnemployed EmploymentStatus = "unemployed"
	EmploymentEmployed   EmploymentStatus = "employed"
	EmploymentStudent    EmploymentStatus = "student"
	EmploymentOther      EmploymentStatus = "other"
)

var employmentLabels = map[EmploymentStatus]string{
	EmploymentUnemployed: "Desempleado/a",
	EmploymentEmployed:   "Trabajando",
	EmploymentStudent:    "Estudiante",
	EmploymentOther:      "Otro",
}

// Label returns the display label, or the raw value when unknown.
func (s EmploymentStatus) Label() string {
	if label, ok := employmentLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether s is a supported status.
func (s EmploymentStatus) Valid() bool {
	_, ok := employmentLabels[s]
	return ok
}

// Student is a person registered at the center.
type Student struct {
	ID               string           `json:"id"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	NationalID       string           `json:"nationalId"`
	Address          string           `json:"address"`
	City             string           `json:"city"`
	Province         string           `json:"province"`
	EmploymentStatus EmploymentStatus `json:"employmentStatus"`
	Interests        []string         `json:"interests"`
	CreatedAt        *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time       `json:"updatedAt,omitempty"`
}

// RecordID implements Record.
func (s Student) RecordID() string { return s.ID }

// FullName joins first and last name.
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	FirstName        string           `json:"firstName" validate:"required,min=2"`
	LastName         string           `json:"lastName" validate:"required,min=2"`
	Email            string           `json:"email" validate:"required,email"`
	Phone            string           `json:"phone" validate:"required,min=9"`
	NationalID       string           `json:"nationalId" validate:"required"`
	Address          string           `json:"address"`
	City             string           `json:"city"`
	Province         string           `json:"province"`
	EmploymentStatus EmploymentStatus `json:"employmentStatus" validate:"required,employment_status"`
	Interests        []string         `json:"interests"`
}

// UpdateStudentRequest carries a partial student update.
type UpdateStudentRequest struct {
	FirstName        Optional[string]           `json:"firstName"`
	LastName         Optional[string]           `json:"lastName"`
	Email            Optional[string]           `json:"email"`
	Phone            Optional[string]           `json:"phone"`
	NationalID       Optional[string]           `json:"nationalId"`
	Address          Optional[string]           `json:"address"`
	City             Optional[string]           `json:"city"`
	Province         Optional[string]           `json:"province"`
	EmploymentStatus Optional[EmploymentStatus] `json:"employmentStatus"`
	Interests        Optional[[]string]         `json:"interests"`
}
