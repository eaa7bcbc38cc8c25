package controllers

import (
	"io"
	"net/http"

	"go-qris/payment/events"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) Logs(c *gin.Context) {
	logs, err := h.Store.RecentLogs(c.Request.Context(), recentLogLimit)
	if err != nil {
		h.Logger.Error("failed to fetch logs", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
	})
}

// Events streams payment state changes as server-sent events until the
// client goes away.
func (h *Handler) Events(c *gin.Context) {
	ch := h.Broker.Subscribe()
	defer h.Broker.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("", events.Event{
		Type:      "connection",
		Data:      gin.H{"message": "Connected to QRIS events"},
		Timestamp: h.clock(),
	})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("", ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

