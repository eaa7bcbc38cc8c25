package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go-qris/payment/db"
	"go-qris/payment/events"
	"go-qris/payment/order"
	"go-qris/payment/qris"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const imageRoute = "/api/qris/image/"

type uploadedPayment struct {
	db.TrackedPayment
	DetectedAmount *int64  `json:"detectedAmount"`
	MatchedOrderID *string `json:"matchedOrderId"`
}

func displayName(p db.TrackedPayment) string {
	if p.Product != nil && p.Product.Name != "" {
		return p.Product.Name
	}
	return "QRIS"
}

func (h *Handler) ListQris(c *gin.Context) {
	status := db.Status(c.Query("status"))
	withProduct := c.Query("includeProduct") == "true"

	payments, err := h.Store.ListTrackedPayments(c.Request.Context(), status, withProduct)
	if err != nil {
		h.Logger.Error("failed to list payments", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to fetch QRIS list")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payments,
	})
}

func (h *Handler) DeleteQris(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		fail(c, http.StatusBadRequest, "QRIS ID is required")
		return
	}

	err := h.Store.DeleteTrackedPayment(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		fail(c, http.StatusNotFound, "QRIS not found")
		return
	}
	if err != nil {
		h.Logger.Error("failed to delete payment", zap.String("id", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to delete QRIS")
		return
	}

	h.oplog(c.Request.Context(), "delete_qris", "QRIS deleted: "+id, db.LevelInfo)
	h.publish(events.QrisDeleted, gin.H{"id": id})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "QRIS deleted successfully",
	})
}

// UploadQris registers a QR that was issued outside this service. The amount
// comes from the request or the payload, and when no order id is given the
// external payment list is searched for an order with that amount.
func (h *Handler) UploadQris(c *gin.Context) {
	var req struct {
		Payload       string `json:"payload"`
		ImageBase64   string `json:"imageBase64"`
		ProductName   string `json:"productName"`
		Amount        int64  `json:"amount"`
		OrderID       string `json:"orderId"`
		ExpiryMinutes *int   `json:"expiryMinutes"`
		UseAutoExpiry bool   `json:"useAutoExpiry"`
	}
	if c.ShouldBindJSON(&req) != nil {
		fail(c, http.StatusBadRequest, "Failed to read body")
		return
	}
	if req.Payload == "" && req.ImageBase64 == "" {
		fail(c, http.StatusBadRequest, "Payload or image is required")
		return
	}

	ctx := c.Request.Context()
	now := h.clock()

	var decoded qris.Decoded
	if req.Payload != "" {
		decoded = qris.Decode(req.Payload)
	}
	detected, hasDetected := decoded.WholeAmount()

	amount := req.Amount
	if amount == 0 && hasDetected {
		amount = detected
	}

	name := req.ProductName
	if name == "" && decoded.MerchantName != nil {
		name = *decoded.MerchantName
	}
	if name == "" {
		name = "QRIS Upload " + now.Format("2/1/2006")
	}

	orderID := req.OrderID
	var matchedOrderID *string
	var deadline *time.Time
	if orderID == "" && amount > 0 && h.Matcher != nil {
		if match, ok := h.Matcher.FindPendingByAmount(ctx, amount); ok {
			orderID = match.OrderID
			matchedOrderID = &match.OrderID
			deadline = match.Deadline
			h.oplog(ctx, "order_auto_matched",
				fmt.Sprintf("Auto-matched order %s by amount %s", orderID, order.FormatRupiah(amount)), db.LevelInfo)
		}
	}

	var (
		file string
		err  error
	)
	if req.ImageBase64 != "" {
		file, err = h.Images.WriteBase64(req.ImageBase64)
	} else {
		file, err = h.Images.WritePayload(req.Payload)
	}
	if err != nil {
		h.uploadFailed(c, err)
		return
	}

	autoExpiry := req.UseAutoExpiry || (req.ExpiryMinutes != nil && *req.ExpiryMinutes == 0)
	var expiresAt time.Time
	if deadline != nil && autoExpiry {
		expiresAt = *deadline
	} else {
		minutes := h.ExpiryMinutes
		if req.ExpiryMinutes != nil && *req.ExpiryMinutes > 0 {
			minutes = *req.ExpiryMinutes
		}
		if minutes <= 0 {
			minutes = 15
		}
		expiresAt = now.Add(time.Duration(minutes) * time.Minute)
	}

	product, err := h.Store.FindOrCreateProduct(ctx, name, amount)
	if err != nil {
		h.uploadFailed(c, err)
		return
	}

	if orderID == "" && decoded.TransactionRef != nil {
		orderID = *decoded.TransactionRef
	}
	if orderID == "" {
		orderID = fmt.Sprintf("MANUAL-%d", now.UnixMilli())
	}

	payment := db.TrackedPayment{
		ProductID: product.ID,
		Payload:   req.Payload,
		QrisImage: imageRoute + file,
		OrderID:   orderID,
		Amount:    amount,
		Status:    db.StatusPending,
		ExpiresAt: expiresAt,
	}
	if err := h.Store.CreateTrackedPayment(ctx, &payment); err != nil {
		h.uploadFailed(c, err)
		return
	}
	payment.Product = &product

	msg := "QRIS uploaded: " + name
	if amount > 0 {
		msg += " - " + order.FormatRupiah(amount)
	}
	h.oplog(ctx, "upload_qris", msg, db.LevelInfo)
	h.publish(events.QrisCreated, gin.H{
		"id":          payment.ID,
		"productName": name,
		"amount":      amount,
	})

	message := "QRIS uploaded successfully"
	resp := uploadedPayment{TrackedPayment: payment, MatchedOrderID: matchedOrderID}
	if hasDetected && detected > 0 {
		resp.DetectedAmount = &detected
		message = "Detected amount: " + order.FormatRupiah(detected)
	}
	if matchedOrderID != nil {
		message += " | Auto-matched order: " + *matchedOrderID
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
		"message": message,
	})
}

func (h *Handler) uploadFailed(c *gin.Context, err error) {
	h.Logger.Error("failed to upload qris", zap.Error(err))
	h.oplog(c.Request.Context(), "upload_qris_error", "Failed to upload QRIS: "+err.Error(), db.LevelError)
	fail(c, http.StatusInternalServerError, "Failed to upload QRIS: "+err.Error())
}

func (h *Handler) MarkPaid(c *gin.Context) {
	var req struct {
		QrisID string `json:"qrisId"`
	}
	if c.ShouldBindJSON(&req) != nil || req.QrisID == "" {
		fail(c, http.StatusBadRequest, "QRIS ID is required")
		return
	}

	ctx := c.Request.Context()
	payment, err := h.Store.FindTrackedPayment(ctx, req.QrisID)
	if errors.Is(err, db.ErrNotFound) {
		fail(c, http.StatusNotFound, "QRIS not found")
		return
	}
	if err != nil {
		h.markPaidFailed(c, err)
		return
	}
	if payment.Status != db.StatusPending {
		fail(c, http.StatusBadRequest, fmt.Sprintf("QRIS is already %s", payment.Status))
		return
	}

	now := h.clock()
	err = h.Store.UpdateTrackedPaymentStatus(ctx, payment.ID, db.StatusPaid, &now)
	if errors.Is(err, db.ErrNotPending) {
		fail(c, http.StatusBadRequest, "QRIS is no longer pending")
		return
	}
	if err != nil {
		h.markPaidFailed(c, err)
		return
	}
	payment.Status = db.StatusPaid
	payment.PaidAt = &now

	h.oplog(ctx, "mark_paid_manual",
		fmt.Sprintf("QRIS marked as paid: %s - %s", displayName(payment), order.FormatRupiah(payment.Amount)), db.LevelInfo)
	h.publish(events.QrisPaid, payment)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    payment,
		"message": "QRIS marked as paid",
	})
}

func (h *Handler) markPaidFailed(c *gin.Context, err error) {
	h.Logger.Error("failed to mark qris paid", zap.Error(err))
	h.oplog(c.Request.Context(), "mark_paid_error", "Failed to mark QRIS as paid: "+err.Error(), db.LevelError)
	fail(c, http.StatusInternalServerError, "Failed to mark QRIS as paid")
}

func (h *Handler) QrisImage(c *gin.Context) {
	path, err := h.Images.Path(c.Param("filename"))
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid file")
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.String(http.StatusNotFound, "File not found")
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000")
	c.File(path)
}
