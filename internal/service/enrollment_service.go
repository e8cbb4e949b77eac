package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

// EnrollmentsCollection is the store collection holding enrollments.
const EnrollmentsCollection = "dicampus-enrollments"

var enrollmentMessages = SyncMessages{
	LoadFailed:   "No se pudieron cargar las matrículas",
	Created:      "Matrícula creada con éxito",
	CreateFailed: "No se pudo crear la matrícula",
	Updated:      "Matrícula actualizada",
	UpdateFailed: "Error al actualizar matrícula",
	Deleted:      "Matrícula eliminada",
	DeleteFailed: "Error al eliminar matrícula",
}

type studentLookup interface {
	Find(id string) (models.Student, bool)
}

type courseLookup interface {
	Find(id string) (models.Course, bool)
}

// EnrollmentService mirrors the enrollments collection. Writes resolve the
// referenced student and course against their mirrors at submit time.
type EnrollmentService struct {
	entityReads[models.Enrollment]
	students  studentLookup
	courses   courseLookup
	validator *validator.Validate
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(deps SyncDeps, students studentLookup, courses courseLookup, validate *validator.Validate) *EnrollmentService {
	if validate == nil {
		validate = NewValidator()
	}
	return &EnrollmentService{
		entityReads: entityReads[models.Enrollment]{
			sync:   NewCollectionSync(EnrollmentsCollection, DecodeEnrollment, enrollmentMessages, deps),
			entity: "enrollment",
			matches: func(e models.Enrollment, term string) bool {
				return containsFold(term, e.StudentName, e.StudentEmail, e.CourseName, e.CourseCode)
			},
		},
		students:  students,
		courses:   courses,
		validator: validate,
	}
}

// DecodeEnrollment maps a stored document onto an Enrollment.
func DecodeEnrollment(doc repository.Document) models.Enrollment {
	f := doc.Fields
	created, updated := baseTimestamps(f)
	return models.Enrollment{
		ID:           doc.ID,
		StudentID:    fieldString(f, "studentId"),
		CourseID:     fieldString(f, "courseId"),
		StudentName:  fieldString(f, "studentName"),
		StudentEmail: fieldString(f, "studentEmail"),
		CourseName:   fieldString(f, "courseName"),
		CourseCode:   fieldString(f, "courseCode"),
		Status:       models.EnrollmentStatus(fieldString(f, "status")),
		StartDate:    fieldTime(f, "startDate"),
		EndDate:      fieldTime(f, "endDate"),
		CreatedAt:    created,
		UpdatedAt:    updated,
	}
}

// NewEnrollmentDraft copies the student's and course's display fields as
// they are now. Later changes to either are not reflected in the draft.
func NewEnrollmentDraft(student models.Student, course models.Course, status models.EnrollmentStatus, start, end *time.Time) models.EnrollmentDraft {
	return models.EnrollmentDraft{
		StudentID:    student.ID,
		CourseID:     course.ID,
		StudentName:  student.FirstName + " " + student.LastName,
		StudentEmail: student.Email,
		CourseName:   course.Name,
		CourseCode:   course.Code,
		Status:       status,
		StartDate:    start,
		EndDate:      end,
	}
}

func draftFields(d models.EnrollmentDraft) repository.Fields {
	return repository.Fields{
		"studentId":    d.StudentID,
		"courseId":     d.CourseID,
		"studentName":  d.StudentName,
		"studentEmail": d.StudentEmail,
		"courseName":   d.CourseName,
		"courseCode":   d.CourseCode,
		"status":       d.Status,
		"startDate":    dateValue(d.StartDate),
		"endDate":      dateValue(d.EndDate),
	}
}

// Draft validates req and builds its denormalized draft.
func (s *EnrollmentService) Draft(req models.EnrollmentRequest) (models.EnrollmentDraft, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.EnrollmentDraft{}, validationError(err, "invalid enrollment payload")
	}
	if req.StartDate.Time == nil || req.EndDate.Time == nil {
		return models.EnrollmentDraft{}, validationError(nil, "start and end dates are required")
	}
	student, ok := s.students.Find(req.StudentID)
	if !ok {
		return models.EnrollmentDraft{}, appErrors.Clone(appErrors.ErrValidation, "student "+req.StudentID+" not found")
	}
	course, ok := s.courses.Find(req.CourseID)
	if !ok {
		return models.EnrollmentDraft{}, appErrors.Clone(appErrors.ErrValidation, "course "+req.CourseID+" not found")
	}
	return NewEnrollmentDraft(student, course, req.Status, req.StartDate.Time, req.EndDate.Time), nil
}

// Create writes a new enrollment.
func (s *EnrollmentService) Create(ctx context.Context, req models.EnrollmentRequest) (string, error) {
	draft, err := s.Draft(req)
	if err != nil {
		return "", err
	}
	return s.sync.Create(ctx, draftFields(draft))
}

// Update rewrites an enrollment from the submitted form, copying the
// student and course display fields again.
func (s *EnrollmentService) Update(ctx context.Context, id string, req models.EnrollmentRequest) error {
	draft, err := s.Draft(req)
	if err != nil {
		return err
	}
	return s.sync.Update(ctx, id, draftFields(draft))
}

// Delete removes an enrollment.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	return s.sync.Delete(ctx, id)
}
