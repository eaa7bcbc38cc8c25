package controllers

import (
	"fmt"
	"net/http"

	"go-qris/payment/db"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckPayments runs one reconciliation in the request goroutine. It waits
// for the browser gate like the background monitor does.
func (h *Handler) CheckPayments(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := h.Checker.Run(ctx)
	if err != nil {
		h.Logger.Error("payment check failed", zap.Error(err))
		h.oplog(ctx, "payment_check_error", "Failed: "+err.Error(), db.LevelError)
		fail(c, http.StatusInternalServerError, "Failed to check payments: "+err.Error())
		return
	}

	h.oplog(ctx, "payment_check", fmt.Sprintf("Checked %d orders, updated %d", res.Checked, res.Updated), db.LevelInfo)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    res,
		"message": fmt.Sprintf("Checked %d orders, %d updated", res.Checked, res.Updated),
	})
}

func (h *Handler) PaymentCheckStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"status": "Payment monitor endpoint ready. POST to trigger check."},
	})
}
