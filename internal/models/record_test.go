package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalTracksKeyPresence(t *testing.T) {
	var req UpdateCourseRequest
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Excel avanzado","endDate":null}`), &req))

	assert.True(t, req.Name.Set)
	assert.Equal(t, "Excel avanzado", req.Name.Value)
	assert.False(t, req.Code.Set)
	assert.False(t, req.StartDate.Set)
	assert.True(t, req.EndDate.Set)
	assert.Nil(t, req.EndDate.Value.Time)
}

func TestDateAcceptsFormInputs(t *testing.T) {
	var req CreateCourseRequest
	body := `{"name":"Excel","code":"EX-1","interests":["Idiomas"],"startDate":"2024-03-01","endDate":"15/04/2024"}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	require.NotNil(t, req.StartDate.Time)
	assert.True(t, req.StartDate.Time.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, req.EndDate.Time)
	assert.Equal(t, 15, req.EndDate.Time.Day())
}

func TestDateRejectsGarbage(t *testing.T) {
	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"not a date"`), &d))
	assert.NoError(t, json.Unmarshal([]byte(`""`), &d))
	assert.Nil(t, d.Time)
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "En curso", EnrollmentInProgress.Label())
	assert.Equal(t, "Desempleado/a", EmploymentUnemployed.Label())
	assert.Equal(t, "archived", EnrollmentStatus("archived").Label())
	assert.False(t, CourseInterest("Cocina").Valid())
	assert.True(t, CourseInterestCustomerService.Valid())
}

func TestStudentFullName(t *testing.T) {
	assert.Equal(t, "Ana Pérez", Student{FirstName: "Ana", LastName: "Pérez"}.FullName())
	assert.Equal(t, "Ana", Student{FirstName: "Ana"}.FullName())
}
