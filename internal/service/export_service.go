package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/pkg/datetime"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/export"
)

// ExportFormat selects the rendering of an export.
type ExportFormat string

// Supported export formats.
const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Export targets addressed by the exports endpoint.
const (
	ExportCourses     = "courses"
	ExportStudents    = "students"
	ExportEnrollments = "enrollments"
)

type mirror[T any] interface {
	List() []T
	Status() SyncStatus
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered export ready to be streamed to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the current collection mirrors as CSV or PDF.
type ExportService struct {
	courses     mirror[models.Course]
	students    mirror[models.Student]
	enrollments mirror[models.Enrollment]
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(courses mirror[models.Course], students mirror[models.Student], enrollments mirror[models.Enrollment], logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(';')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		courses:     courses,
		students:    students,
		enrollments: enrollments,
		csv:         csv,
		pdf:         pdf,
		logger:      logger,
		now:         time.Now,
	}
}

// Generate renders target in format.
func (s *ExportService) Generate(target string, format ExportFormat) (*ExportResult, error) {
	var (
		dataset export.Dataset
		title   string
		err     error
	)
	switch target {
	case ExportCourses:
		dataset, title, err = buildExport(s.courses, "Cursos", courseDataset)
	case ExportStudents:
		dataset, title, err = buildExport(s.students, "Alumnos", studentDataset)
	case ExportEnrollments:
		dataset, title, err = buildExport(s.enrollments, "Matrículas", enrollmentDataset)
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown export %q", target))
	}
	if err != nil {
		return nil, err
	}

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		s.logger.Error("failed to render export", zap.String("target", target), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportResult{
		Filename:    fmt.Sprintf("%s_%s.%s", target, s.now().UTC().Format("20060102_150405"), format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

func buildExport[T any](src mirror[T], title string, build func([]T) export.Dataset) (export.Dataset, string, error) {
	if src == nil {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNotLoaded, "collection not available")
	}
	switch src.Status() {
	case SyncReady:
	case SyncFailed:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrSubscription, "collection subscription failed")
	default:
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrNotLoaded, "collection not loaded yet")
	}
	return build(src.List()), title, nil
}

func courseDataset(courses []models.Course) export.Dataset {
	headers := []string{"Nombre", "Código", "Intereses", "Inicio", "Fin"}
	rows := make([]map[string]string, 0, len(courses))
	for _, c := range courses {
		interests := make([]string, 0, len(c.Interests))
		for _, i := range c.Interests {
			interests = append(interests, string(i))
		}
		rows = append(rows, map[string]string{
			"Nombre":    c.Name,
			"Código":    c.Code,
			"Intereses": strings.Join(interests, ", "),
			"Inicio":    datetime.ShortDisplay(c.StartDate),
			"Fin":       datetime.ShortDisplay(c.EndDate),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func studentDataset(students []models.Student) export.Dataset {
	headers := []string{"Nombre", "Email", "Teléfono", "DNI", "Ciudad", "Situación laboral"}
	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		rows = append(rows, map[string]string{
			"Nombre":            st.FullName(),
			"Email":             st.Email,
			"Teléfono":          st.Phone,
			"DNI":               st.NationalID,
			"Ciudad":            st.City,
			"Situación laboral": st.EmploymentStatus.Label(),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func enrollmentDataset(enrollments []models.Enrollment) export.Dataset {
	headers := []string{"Alumno", "Email", "Curso", "Código", "Estado", "Inicio", "Fin"}
	rows := make([]map[string]string, 0, len(enrollments))
	for _, e := range enrollments {
		rows = append(rows, map[string]string{
			"Alumno": e.StudentName,
			"Email":  e.StudentEmail,
			"Curso":  e.CourseName,
			"Código": e.CourseCode,
			"Estado": e.Status.Label(),
			"Inicio": datetime.ShortDisplay(e.StartDate),
			"Fin":    datetime.ShortDisplay(e.EndDate),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
