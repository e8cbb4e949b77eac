package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

func validStudentRequest() models.CreateStudentRequest {
	return models.CreateStudentRequest{
		FirstName:        "Ana",
		LastName:         "Pérez",
		Email:            "ana@example.com",
		Phone:            "600123123",
		NationalID:       "12345678Z",
		City:             "Sevilla",
		EmploymentStatus: models.EmploymentUnemployed,
	}
}

func TestStudentServiceCreate(t *testing.T) {
	h := newHarness()
	svc := NewStudentService(h.deps, nil)

	_, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)

	require.Len(t, h.store.inserts, 1)
	fields := h.store.inserts[0].fields
	assert.Equal(t, StudentsCollection, h.store.inserts[0].collection)
	assert.Equal(t, "Ana", fields["firstName"])
	assert.Equal(t, models.EmploymentUnemployed, fields["employmentStatus"])
	assert.Equal(t, []string{}, fields["interests"])
	assert.Equal(t, "Alumno añadido con éxito", h.sink.last().message)
}

func TestStudentServiceCreateValidation(t *testing.T) {
	h := newHarness()
	svc := NewStudentService(h.deps, nil)

	req := validStudentRequest()
	req.Phone = "600"
	_, err := svc.Create(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = validStudentRequest()
	req.EmploymentStatus = "retired"
	_, err = svc.Create(context.Background(), req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	assert.Empty(t, h.store.inserts)
}

func TestStudentServiceUpdate(t *testing.T) {
	h := newHarness()
	svc := NewStudentService(h.deps, nil)

	var req models.UpdateStudentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"city":"Cádiz","interests":["Idiomas"]}`), &req))
	require.NoError(t, svc.Update(context.Background(), "s1", req))

	require.Len(t, h.store.updates, 1)
	assert.Equal(t, repository.Fields{"city": "Cádiz", "interests": []string{"Idiomas"}, "updatedAt": fixedNow}, h.store.updates[0].fields)

	require.NoError(t, json.Unmarshal([]byte(`{"email":"nope"}`), &req))
	err := svc.Update(context.Background(), "s1", req)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Len(t, h.store.updates, 1)
}

func TestDecodeStudent(t *testing.T) {
	s := DecodeStudent(repository.Document{ID: "s1", Fields: repository.Fields{
		"firstName":        "Ana",
		"lastName":         "Pérez",
		"employmentStatus": "employed",
		"interests":        "Idiomas",
	}})
	assert.Equal(t, "Ana Pérez", s.FullName())
	assert.Equal(t, "Trabajando", s.EmploymentStatus.Label())
	assert.Equal(t, []string{}, s.Interests)
}
