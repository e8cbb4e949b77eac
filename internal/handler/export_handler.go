package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dicampus-admin/internal/service"
	"github.com/noah-isme/dicampus-admin/pkg/response"
)

type exporter interface {
	Generate(target string, format service.ExportFormat) (*service.ExportResult, error)
}

// ExportHandler streams CSV and PDF renderings of the mirrors.
type ExportHandler struct {
	exports exporter
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports exporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Download godoc
// @Summary Export a collection
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param collection path string true "courses, students or enrollments"
// @Param format query string false "csv (default) or pdf"
// @Success 200
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /exports/{collection} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	res, err := h.exports.Generate(c.Param("collection"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, res.ContentType, res.Payload)
}
