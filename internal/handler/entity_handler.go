package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/service"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/response"
)

type entityService[T models.Record, C any, U any] interface {
	List() []T
	Search(term string) []T
	Status() service.SyncStatus
	Get(id string) (T, error)
	Selected() (T, bool)
	SelectByID(id string) (T, error)
	ClearSelection()
	Create(ctx context.Context, req C) (string, error)
	Update(ctx context.Context, id string, req U) error
	Delete(ctx context.Context, id string) error
}

// SelectRequest picks the record an operator is working on.
type SelectRequest struct {
	ID string `json:"id"`
}

// EntityHandler exposes the mirror, selection and writes of one collection.
// T is the record type, C the create payload and U the update payload.
type EntityHandler[T models.Record, C any, U any] struct {
	svc           entityService[T, C, U]
	clearOnUpdate bool
}

// NewEntityHandler constructs an EntityHandler. When clearOnUpdate is set, a
// successful update also clears the selection, which closes the edit form.
func NewEntityHandler[T models.Record, C any, U any](svc entityService[T, C, U], clearOnUpdate bool) *EntityHandler[T, C, U] {
	return &EntityHandler[T, C, U]{svc: svc, clearOnUpdate: clearOnUpdate}
}

// Register mounts the collection routes on group. When audit is not nil,
// it supplies a middleware per write action.
func (h *EntityHandler[T, C, U]) Register(group *gin.RouterGroup, audit func(action string) gin.HandlerFunc) {
	write := func(action string, fn gin.HandlerFunc) []gin.HandlerFunc {
		if audit == nil {
			return []gin.HandlerFunc{fn}
		}
		return []gin.HandlerFunc{audit(action), fn}
	}
	group.GET("", h.List)
	group.POST("", write("create", h.Create)...)
	group.GET("/selection", h.Selection)
	group.PUT("/selection", h.Select)
	group.DELETE("/selection", h.ClearSelection)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", write("update", h.Update)...)
	group.DELETE("/:id", write("delete", h.Delete)...)
}

// List godoc
// @Summary List the mirrored records of a collection
// @Tags Collections
// @Produce json
// @Param collection path string true "courses, students or enrollments"
// @Param q query string false "Case-insensitive search"
// @Success 200 {object} response.Envelope
// @Router /{collection} [get]
func (h *EntityHandler[T, C, U]) List(c *gin.Context) {
	var records []T
	if term := strings.TrimSpace(c.Query("q")); term != "" {
		records = h.svc.Search(term)
	} else {
		records = h.svc.List()
	}
	if records == nil {
		records = []T{}
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{
		"total":  len(records),
		"status": h.svc.Status(),
	})
}

// Get godoc
// @Summary Get one mirrored record
// @Tags Collections
// @Produce json
// @Param collection path string true "courses, students or enrollments"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /{collection}/{id} [get]
func (h *EntityHandler[T, C, U]) Get(c *gin.Context) {
	record, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// Create godoc
// @Summary Create a record
// @Tags Collections
// @Accept json
// @Produce json
// @Param collection path string true "courses, students or enrollments"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /{collection} [post]
func (h *EntityHandler[T, C, U]) Create(c *gin.Context) {
	var req C
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	id, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"id": id})
}

// Update applies a course or student patch, where only the fields present in
// the payload are written. Enrollments take the full form instead and have
// their student and course display fields copied again.
// @Summary Update a record
// @Description Courses and students: only the fields present in the payload are written. Enrollments: the full form is required and every field is rewritten.
// @Tags Collections
// @Accept json
// @Produce json
// @Param collection path string true "courses, students or enrollments"
// @Param id path string true "Record ID"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /{collection}/{id} [patch]
func (h *EntityHandler[T, C, U]) Update(c *gin.Context) {
	var req U
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.svc.Update(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	if h.clearOnUpdate {
		h.svc.ClearSelection()
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a record
// @Tags Collections
// @Param collection path string true "courses, students or enrollments"
// @Param id path string true "Record ID"
// @Success 204
// @Failure 502 {object} response.Envelope
// @Router /{collection}/{id} [delete]
func (h *EntityHandler[T, C, U]) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Selection godoc
// @Summary Get the selected record
// @Tags Selection
// @Produce json
// @Param collection path string true "courses, students or enrollments"
// @Success 200 {object} response.Envelope
// @Success 204
// @Router /{collection}/selection [get]
func (h *EntityHandler[T, C, U]) Selection(c *gin.Context) {
	record, ok := h.svc.Selected()
	if !ok {
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// Select godoc
// @Summary Select a record
// @Tags Selection
// @Accept json
// @Produce json
// @Param collection path string true "courses, students or enrollments"
// @Param payload body SelectRequest true "Record to select"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /{collection}/selection [put]
func (h *EntityHandler[T, C, U]) Select(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id is required"))
		return
	}
	record, err := h.svc.SelectByID(req.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record)
}

// ClearSelection godoc
// @Summary Clear the selection
// @Tags Selection
// @Param collection path string true "courses, students or enrollments"
// @Success 204
// @Router /{collection}/selection [delete]
func (h *EntityHandler[T, C, U]) ClearSelection(c *gin.Context) {
	h.svc.ClearSelection()
	response.NoContent(c)
}
