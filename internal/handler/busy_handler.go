package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dicampus-admin/pkg/response"
)

type busyState interface {
	IsBusy() bool
	Count() int
	Subscribe(fn func(bool)) (unsubscribe func())
}

// BusyState is the payload of the busy endpoints.
type BusyState struct {
	Busy  bool `json:"busy"`
	Count int  `json:"count"`
}

// BusyHandler exposes the global busy indicator.
type BusyHandler struct {
	counter busyState
}

// NewBusyHandler constructs a BusyHandler.
func NewBusyHandler(counter busyState) *BusyHandler {
	return &BusyHandler{counter: counter}
}

// Get godoc
// @Summary Busy indicator
// @Tags Busy
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /busy [get]
func (h *BusyHandler) Get(c *gin.Context) {
	response.JSON(c, http.StatusOK, BusyState{Busy: h.counter.IsBusy(), Count: h.counter.Count()})
}

// Stream godoc
// @Summary Busy indicator changes as server-sent events
// @Tags Busy
// @Produce text/event-stream
// @Success 200
// @Router /busy/stream [get]
func (h *BusyHandler) Stream(c *gin.Context) {
	updates := make(chan bool, 1)
	unsubscribe := h.counter.Subscribe(func(busy bool) {
		// Observers must not block; keep only the latest flag.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- busy:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-store")
	c.SSEvent("busy", BusyState{Busy: h.counter.IsBusy(), Count: h.counter.Count()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case busy := <-updates:
			c.SSEvent("busy", BusyState{Busy: busy, Count: h.counter.Count()})
			return true
		}
	})
}
