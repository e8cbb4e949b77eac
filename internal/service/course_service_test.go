package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	"github.com/noah-isme/dicampus-admin/pkg/busy"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

func decodeCreateCourse(t *testing.T, body string) models.CreateCourseRequest {
	t.Helper()
	var req models.CreateCourseRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req
}

func TestCourseServiceCreateSendsNormalizedDates(t *testing.T) {
	h := newHarness()
	svc := NewCourseService(h.deps, nil)

	req := decodeCreateCourse(t, `{"name":"Intro","code":"C1","startDate":"2024-01-10","endDate":"2024-06-01"}`)
	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.store.inserts, 1)
	call := h.store.inserts[0]
	assert.Equal(t, CoursesCollection, call.collection)
	assert.Equal(t, fixedNow, call.fields["createdAt"])
	assert.Equal(t, fixedNow, call.fields["updatedAt"])
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), call.fields["startDate"])
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), call.fields["endDate"])
	assert.Equal(t, []models.CourseInterest{}, call.fields["interests"])
	assert.Equal(t, "Intro", call.fields["name"])
}

func TestCourseServiceCreateValidation(t *testing.T) {
	h := newHarness()
	svc := NewCourseService(h.deps, nil)

	cases := map[string]string{
		"short name":       `{"name":"I","code":"C1","startDate":"2024-01-10","endDate":"2024-06-01"}`,
		"unknown interest": `{"name":"Intro","code":"C1","interests":["Cocina"],"startDate":"2024-01-10","endDate":"2024-06-01"}`,
		"missing dates":    `{"name":"Intro","code":"C1"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), decodeCreateCourse(t, body))
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
		})
	}
	assert.Empty(t, h.store.inserts)
}

func TestCourseServiceUpdateSendsOnlyPresentFields(t *testing.T) {
	h := newHarness()
	svc := NewCourseService(h.deps, nil)

	var req models.UpdateCourseRequest
	require.NoError(t, json.Unmarshal([]byte(`{"code":"C2"}`), &req))
	require.NoError(t, svc.Update(context.Background(), "course-1", req))

	require.Len(t, h.store.updates, 1)
	assert.Equal(t, repository.Fields{"code": "C2", "updatedAt": fixedNow}, h.store.updates[0].fields)
}

func TestCourseServiceUpdateWritesExplicitNullDate(t *testing.T) {
	h := newHarness()
	svc := NewCourseService(h.deps, nil)

	var req models.UpdateCourseRequest
	require.NoError(t, json.Unmarshal([]byte(`{"endDate":null}`), &req))
	require.NoError(t, svc.Update(context.Background(), "course-1", req))

	fields := h.store.updates[0].fields
	require.Contains(t, fields, "endDate")
	assert.Nil(t, fields["endDate"])
	assert.NotContains(t, fields, "startDate")
}

func TestCourseServiceRepeatedUpdateIsIdempotent(t *testing.T) {
	store := repository.NewMemoryDocumentRepository()
	deps := SyncDeps{Store: store, Busy: busy.NewCounter(), Clock: func() time.Time { return fixedNow }}
	svc := NewCourseService(deps, nil)
	ctx := context.Background()

	req := decodeCreateCourse(t, `{"name":"Intro","code":"C1","startDate":"2024-01-10","endDate":"2024-06-01"}`)
	id, err := svc.Create(ctx, req)
	require.NoError(t, err)

	var update models.UpdateCourseRequest
	require.NoError(t, json.Unmarshal([]byte(`{"code":"C2","endDate":null}`), &update))
	require.NoError(t, svc.Update(ctx, id, update))
	once := courseSnapshot(t, store)
	require.NoError(t, svc.Update(ctx, id, update))
	twice := courseSnapshot(t, store)

	assert.Equal(t, once, twice)
	assert.Equal(t, "Intro", twice["name"])
	assert.Equal(t, "C2", twice["code"])
	require.Contains(t, twice, "endDate")
	assert.Nil(t, twice["endDate"])
	assert.NotNil(t, twice["startDate"])
}

func courseSnapshot(t *testing.T, store *repository.MemoryDocumentRepository) repository.Fields {
	t.Helper()
	ch := make(chan []repository.Document, 1)
	sub, err := store.Subscribe(CoursesCollection, func(docs []repository.Document) {
		select {
		case ch <- docs:
		default:
		}
	}, func(error) {})
	require.NoError(t, err)
	defer sub.Cancel()
	select {
	case docs := <-ch:
		require.Len(t, docs, 1)
		return docs[0].Fields
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestDecodeCourseToleratesMalformedFields(t *testing.T) {
	course := DecodeCourse(repository.Document{ID: "c1", Fields: repository.Fields{
		"name":      42,
		"code":      "C1",
		"interests": []any{"Idiomas", 7, "Diseño"},
		"startDate": map[string]any{"seconds": json.Number("1700000000")},
		"endDate":   "not a date",
		"createdAt": "2024-01-10T08:00:00Z",
	}})

	assert.Equal(t, "c1", course.ID)
	assert.Equal(t, "", course.Name)
	assert.Equal(t, []models.CourseInterest{"Idiomas", "Diseño"}, course.Interests)
	require.NotNil(t, course.StartDate)
	assert.Equal(t, int64(1700000000), course.StartDate.Unix())
	assert.Nil(t, course.EndDate)
	require.NotNil(t, course.CreatedAt)
	assert.Nil(t, course.UpdatedAt)
}

func TestCourseServiceReads(t *testing.T) {
	h := newHarness()
	svc := NewCourseService(h.deps, nil)

	_, err := svc.Get("c1")
	assert.True(t, errors.Is(err, appErrors.ErrNotLoaded))

	require.NoError(t, svc.Sync().Start(context.Background()))
	h.store.emit(
		repository.Document{ID: "c1", Fields: repository.Fields{"name": "Inglés B1", "code": "ING-1"}},
		repository.Document{ID: "c2", Fields: repository.Fields{"name": "Excel", "code": "OFI-2"}},
	)

	course, err := svc.Get("c2")
	require.NoError(t, err)
	assert.Equal(t, "Excel", course.Name)

	_, err = svc.Get("missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	found := svc.Search("ing")
	require.Len(t, found, 1)
	assert.Equal(t, "c1", found[0].ID)
	assert.Len(t, svc.Search(""), 2)

	selected, err := svc.SelectByID("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", selected.ID)
	svc.ClearSelection()
	_, ok := svc.Selected()
	assert.False(t, ok)
}

func TestCourseServiceGetAfterSyncFailure(t *testing.T) {
	h := newHarness()
	svc := NewCourseService(h.deps, nil)
	require.NoError(t, svc.Sync().Start(context.Background()))
	h.store.failStream(errors.New("denied"))

	_, err := svc.Get("c1")
	assert.True(t, errors.Is(err, appErrors.ErrSubscription))
	assert.Equal(t, "No se pudieron cargar los cursos", h.sink.last().message)
}
