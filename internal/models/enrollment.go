package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentPending    EnrollmentStatus = "pending"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentCancelled  EnrollmentStatus = "cancelled"
)

var enrollmentLabels = map[EnrollmentStatus]string{
	EnrollmentPending:    "Pendiente",
	EnrollmentInProgress: "En curso",
	EnrollmentCompleted:  "Completada",
	EnrollmentCancelled:  "Cancelada",
}

// Label returns the display label, or the raw value when unknown.
func (s EnrollmentStatus) Label() string {
	if label, ok := enrollmentLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether s is a supported status.
func (s EnrollmentStatus) Valid() bool {
	_, ok := enrollmentLabels[s]
	return ok
}

// Enrollment links a student to a course. Student and course display fields
// are copied when the enrollment is written and are not kept in sync.
type Enrollment struct {
	ID           string           `json:"id"`
	StudentID    string           `json:"studentId"`
	CourseID     string           `json:"courseId"`
	StudentName  string           `json:"studentName"`
	StudentEmail string           `json:"studentEmail"`
	CourseName   string           `json:"courseName"`
	CourseCode   string           `json:"courseCode"`
	Status       EnrollmentStatus `json:"status"`
	StartDate    *time.Time       `json:"startDate"`
	EndDate      *time.Time       `json:"endDate"`
	CreatedAt    *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time       `json:"updatedAt,omitempty"`
}

// RecordID implements Record.
func (e Enrollment) RecordID() string { return e.ID }

// EnrollmentDraft is the denormalized payload written for an enrollment.
type EnrollmentDraft struct {
	StudentID    string
	CourseID     string
	StudentName  string
	StudentEmail string
	CourseName   string
	CourseCode   string
	Status       EnrollmentStatus
	StartDate    *time.Time
	EndDate      *time.Time
}

// EnrollmentRequest is the submitted enrollment form. Student and course are
// resolved against the local mirrors when it is handled.
type EnrollmentRequest struct {
	StudentID string           `json:"studentId" validate:"required"`
	CourseID  string           `json:"courseId" validate:"required"`
	Status    EnrollmentStatus `json:"status" validate:"required,enrollment_status"`
	StartDate Date             `json:"startDate"`
	EndDate   Date             `json:"endDate"`
}
