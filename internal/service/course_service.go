package service

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
)

// CoursesCollection is the store collection holding courses.
const CoursesCollection = "dicampus-courses"

var courseMessages = SyncMessages{
	LoadFailed:   "No se pudieron cargar los cursos",
	Created:      "Curso creado con éxito",
	CreateFailed: "No se pudo crear el curso",
	Updated:      "Curso actualizado",
	UpdateFailed: "Error al actualizar curso",
	Deleted:      "Curso eliminado",
	DeleteFailed: "Error al eliminar curso",
}

// CourseService mirrors the courses collection and writes course changes.
type CourseService struct {
	entityReads[models.Course]
	validator *validator.Validate
}

// NewCourseService constructs a CourseService.
func NewCourseService(deps SyncDeps, validate *validator.Validate) *CourseService {
	if validate == nil {
		validate = NewValidator()
	}
	return &CourseService{
		entityReads: entityReads[models.Course]{
			sync:    NewCollectionSync(CoursesCollection, DecodeCourse, courseMessages, deps),
			entity:  "course",
			matches: func(c models.Course, term string) bool { return containsFold(term, c.Name, c.Code) },
		},
		validator: validate,
	}
}

// DecodeCourse maps a stored document onto a Course. Missing or wrongly
// typed fields decode to zero values.
func DecodeCourse(doc repository.Document) models.Course {
	f := doc.Fields
	raw := fieldStrings(f, "interests")
	interests := make([]models.CourseInterest, 0, len(raw))
	for _, i := range raw {
		interests = append(interests, models.CourseInterest(i))
	}
	created, updated := baseTimestamps(f)
	return models.Course{
		ID:        doc.ID,
		Name:      fieldString(f, "name"),
		Code:      fieldString(f, "code"),
		Interests: interests,
		StartDate: fieldTime(f, "startDate"),
		EndDate:   fieldTime(f, "endDate"),
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

// Create validates and writes a new course.
func (s *CourseService) Create(ctx context.Context, req models.CreateCourseRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", validationError(err, "invalid course payload")
	}
	if req.StartDate.Time == nil || req.EndDate.Time == nil {
		return "", validationError(nil, "start and end dates are required")
	}
	interests := req.Interests
	if interests == nil {
		interests = []models.CourseInterest{}
	}
	return s.sync.Create(ctx, repository.Fields{
		"name":      req.Name,
		"code":      req.Code,
		"interests": interests,
		"startDate": dateValue(req.StartDate.Time),
		"endDate":   dateValue(req.EndDate.Time),
	})
}

// Update writes the present fields of req.
func (s *CourseService) Update(ctx context.Context, id string, req models.UpdateCourseRequest) error {
	fields := repository.Fields{}
	if req.Name.Set {
		if err := s.validator.Var(req.Name.Value, "required,min=2"); err != nil {
			return validationError(err, "invalid course name")
		}
		fields["name"] = req.Name.Value
	}
	if req.Code.Set {
		if err := s.validator.Var(req.Code.Value, "required,min=2"); err != nil {
			return validationError(err, "invalid course code")
		}
		fields["code"] = req.Code.Value
	}
	if req.Interests.Set {
		if err := s.validator.Var(req.Interests.Value, "dive,course_interest"); err != nil {
			return validationError(err, "invalid course interests")
		}
		interests := req.Interests.Value
		if interests == nil {
			interests = []models.CourseInterest{}
		}
		fields["interests"] = interests
	}
	if req.StartDate.Set {
		fields["startDate"] = dateValue(req.StartDate.Value.Time)
	}
	if req.EndDate.Set {
		fields["endDate"] = dateValue(req.EndDate.Value.Time)
	}
	return s.sync.Update(ctx, id, fields)
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	return s.sync.Delete(ctx, id)
}
