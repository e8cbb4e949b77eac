package service

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
)

// StudentsCollection is the store collection holding students.
const StudentsCollection = "dicampus-students"

var studentMessages = SyncMessages{
	LoadFailed:   "No se pudieron cargar los alumnos",
	Created:      "Alumno añadido con éxito",
	CreateFailed: "No se pudo añadir el alumno",
	Updated:      "Alumno actualizado",
	UpdateFailed: "Error al actualizar alumno",
	Deleted:      "Alumno eliminado",
	DeleteFailed: "Error al eliminar alumno",
}

// StudentService mirrors the students collection and writes student changes.
type StudentService struct {
	entityReads[models.Student]
	validator *validator.Validate
}

// NewStudentService constructs a StudentService.
func NewStudentService(deps SyncDeps, validate *validator.Validate) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	return &StudentService{
		entityReads: entityReads[models.Student]{
			sync:   NewCollectionSync(StudentsCollection, DecodeStudent, studentMessages, deps),
			entity: "student",
			matches: func(s models.Student, term string) bool {
				return containsFold(term, s.FullName(), s.Email, s.NationalID)
			},
		},
		validator: validate,
	}
}

// DecodeStudent maps a stored document onto a Student.
func DecodeStudent(doc repository.Document) models.Student {
	f := doc.Fields
	created, updated := baseTimestamps(f)
	return models.Student{
		ID:               doc.ID,
		FirstName:        fieldString(f, "firstName"),
		LastName:         fieldString(f, "lastName"),
		Email:            fieldString(f, "email"),
		Phone:            fieldString(f, "phone"),
		NationalID:       fieldString(f, "nationalId"),
		Address:          fieldString(f, "address"),
		City:             fieldString(f, "city"),
		Province:         fieldString(f, "province"),
		EmploymentStatus: models.EmploymentStatus(fieldString(f, "employmentStatus")),
		Interests:        fieldStrings(f, "interests"),
		CreatedAt:        created,
		UpdatedAt:        updated,
	}
}

// Create validates and writes a new student.
func (s *StudentService) Create(ctx context.Context, req models.CreateStudentRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", validationError(err, "invalid student payload")
	}
	interests := req.Interests
	if interests == nil {
		interests = []string{}
	}
	return s.sync.Create(ctx, repository.Fields{
		"firstName":        req.FirstName,
		"lastName":         req.LastName,
		"email":            req.Email,
		"phone":            req.Phone,
		"nationalId":       req.NationalID,
		"address":          req.Address,
		"city":             req.City,
		"province":         req.Province,
		"employmentStatus": req.EmploymentStatus,
		"interests":        interests,
	})
}

// Update writes the present fields of req.
func (s *StudentService) Update(ctx context.Context, id string, req models.UpdateStudentRequest) error {
	fields := repository.Fields{}
	checks := []struct {
		key   string
		value models.Optional[string]
		rule  string
	}{
		{"firstName", req.FirstName, "required,min=2"},
		{"lastName", req.LastName, "required,min=2"},
		{"email", req.Email, "required,email"},
		{"phone", req.Phone, "required,min=9"},
		{"nationalId", req.NationalID, "required"},
		{"address", req.Address, ""},
		{"city", req.City, ""},
		{"province", req.Province, ""},
	}
	for _, c := range checks {
		if !c.value.Set {
			continue
		}
		if c.rule != "" {
			if err := s.validator.Var(c.value.Value, c.rule); err != nil {
				return validationError(err, "invalid student "+c.key)
			}
		}
		fields[c.key] = c.value.Value
	}
	if req.EmploymentStatus.Set {
		if !req.EmploymentStatus.Value.Valid() {
			return validationError(nil, "invalid student employmentStatus")
		}
		fields["employmentStatus"] = req.EmploymentStatus.Value
	}
	if req.Interests.Set {
		interests := req.Interests.Value
		if interests == nil {
			interests = []string{}
		}
		fields["interests"] = interests
	}
	return s.sync.Update(ctx, id, fields)
}

// Delete removes a student.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	return s.sync.Delete(ctx, id)
}
