package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
	"github.com/noah-isme/dicampus-admin/pkg/response"
)

type notificationFeed interface {
	Since(after uint64) []notify.Notification
}

// NotificationHandler serves recent operator notifications.
type NotificationHandler struct {
	feed notificationFeed
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(feed notificationFeed) *NotificationHandler {
	return &NotificationHandler{feed: feed}
}

// List godoc
// @Summary Recent notifications
// @Description Returns notifications with a sequence number greater than after. meta.last is the cursor for the next poll.
// @Tags Notifications
// @Produce json
// @Param after query int false "Last sequence number already seen"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	var after uint64
	if raw := c.Query("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "after must be a non-negative integer"))
			return
		}
		after = v
	}

	items := h.feed.Since(after)
	last := after
	if len(items) > 0 {
		last = items[len(items)-1].Seq
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items), "last": last})
}
