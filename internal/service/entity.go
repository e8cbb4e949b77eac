package service

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	"github.com/noah-isme/dicampus-admin/pkg/datetime"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

// NewValidator returns a validator aware of the domain enum tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("course_interest", func(fl validator.FieldLevel) bool {
		return models.CourseInterest(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("employment_status", func(fl validator.FieldLevel) bool {
		return models.EmploymentStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("enrollment_status", func(fl validator.FieldLevel) bool {
		return models.EnrollmentStatus(fl.Field().String()).Valid()
	})
	return v
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

// entityReads serves the read side of an entity from its sync mirror.
type entityReads[T models.Record] struct {
	sync    *CollectionSync[T]
	entity  string
	matches func(rec T, term string) bool
}

// Sync exposes the underlying collection sync.
func (e entityReads[T]) Sync() *CollectionSync[T] { return e.sync }

// List returns the mirror in delivery order.
func (e entityReads[T]) List() []T { return e.sync.Records() }

// Status reports the sync lifecycle state.
func (e entityReads[T]) Status() SyncStatus { return e.sync.Status() }

// Find looks a record up in the mirror.
func (e entityReads[T]) Find(id string) (T, bool) { return e.sync.Find(id) }

// Get returns a record, distinguishing a missing record from a mirror
// that is not available yet.
func (e entityReads[T]) Get(id string) (T, error) {
	if rec, ok := e.sync.Find(id); ok {
		return rec, nil
	}
	var zero T
	if err := e.availability(); err != nil {
		return zero, err
	}
	return zero, appErrors.Clone(appErrors.ErrNotFound, e.entity+" not found")
}

func (e entityReads[T]) availability() error {
	switch e.sync.Status() {
	case SyncFailed:
		return appErrors.Wrap(e.sync.Err(), appErrors.ErrSubscription.Code, appErrors.ErrSubscription.Status, e.entity+" sync failed")
	case SyncIdle, SyncLoading:
		return appErrors.Clone(appErrors.ErrNotLoaded, e.entity+" not loaded yet")
	}
	return nil
}

// Search returns the records whose display fields contain term, ignoring case.
// An empty term returns every record.
func (e entityReads[T]) Search(term string) []T {
	term = strings.ToLower(strings.TrimSpace(term))
	records := e.sync.Records()
	if term == "" {
		return records
	}
	out := make([]T, 0, len(records))
	for _, rec := range records {
		if e.matches(rec, term) {
			out = append(out, rec)
		}
	}
	return out
}

// Selected returns the selected record, if any.
func (e entityReads[T]) Selected() (T, bool) { return e.sync.Selected() }

// SelectByID points the selection at a mirrored record.
func (e entityReads[T]) SelectByID(id string) (T, error) {
	rec, err := e.Get(id)
	if err != nil {
		return rec, err
	}
	e.sync.Select(&rec)
	return rec, nil
}

// ClearSelection drops the selection pointer.
func (e entityReads[T]) ClearSelection() { e.sync.Select(nil) }

func containsFold(term string, values ...string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func fieldString(f repository.Fields, key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

func fieldStrings(f repository.Fields, key string) []string {
	raw, ok := f[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func fieldTime(f repository.Fields, key string) *time.Time {
	return datetime.NormalizeAny(f[key])
}

// dateValue writes a present date as a time and an absent one as an explicit null.
func dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func baseTimestamps(f repository.Fields) (created, updated *time.Time) {
	return fieldTime(f, repository.FieldCreatedAt), fieldTime(f, repository.FieldUpdatedAt)
}
