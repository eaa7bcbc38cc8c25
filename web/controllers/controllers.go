package controllers

import (
	"context"
	"time"

	"go-qris/payment/browser"
	"go-qris/payment/db"
	"go-qris/payment/events"
	"go-qris/payment/order"
	"go-qris/web/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const recentLogLimit = 100

// Store is the part of db.Store the HTTP surface uses.
type Store interface {
	CreateTrackedPayment(ctx context.Context, p *db.TrackedPayment) error
	FindTrackedPayment(ctx context.Context, id string) (db.TrackedPayment, error)
	ListTrackedPayments(ctx context.Context, status db.Status, withProduct bool) ([]db.TrackedPayment, error)
	UpdateTrackedPaymentStatus(ctx context.Context, id string, status db.Status, paidAt *time.Time) error
	DeleteTrackedPayment(ctx context.Context, id string) error
	AppendLogEntry(ctx context.Context, action, message string, level db.LogLevel) error
	RecentLogs(ctx context.Context, limit int) ([]db.AdminLog, error)
	ListProducts(ctx context.Context) ([]db.Product, error)
	CreateProduct(ctx context.Context, p *db.Product) (bool, error)
	FindOrCreateProduct(ctx context.Context, name string, price int64) (db.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// OrderMatcher finds the external pending order for a freshly uploaded QR.
type OrderMatcher interface {
	FindPendingByAmount(ctx context.Context, amount int64) (*order.PendingOrder, bool)
}

type ImageStorage interface {
	WritePayload(payload string) (string, error)
	WriteBase64(image string) (string, error)
	Path(name string) (string, error)
}

type CookieStore interface {
	Path() string
	Exists() bool
	Save(cookies []browser.Cookie) error
}

type EventStream interface {
	Subscribe() chan events.Event
	Unsubscribe(ch chan events.Event)
	Publish(ev events.Event)
}

type Handler struct {
	Store         Store
	Matcher       OrderMatcher
	Checker       order.Runner
	Images        ImageStorage
	Cookies       CookieStore
	Broker        EventStream
	Gate          *order.Gate
	Auth          *middleware.AdminAuth
	Logins        *middleware.LoginLimiter
	ExpiryMinutes int
	Logger        *zap.Logger

	now func() time.Time
}

func (h *Handler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// Register mounts the API. limiter, when set, applies to every route.
func (h *Handler) Register(r *gin.Engine, limiter gin.HandlerFunc) {
	api := r.Group("/api")
	if limiter != nil {
		api.Use(limiter)
	}
	admin := h.Auth.RequireAdmin

	api.POST("/auth/login", h.Login)
	api.GET("/auth/login", h.LoginStatus)
	api.GET("/auth", admin, h.CookieStatus)
	api.POST("/auth", admin, h.SaveCookies)

	api.GET("/qris", h.ListQris)
	api.DELETE("/qris", admin, h.DeleteQris)
	api.POST("/qris/upload", admin, h.UploadQris)
	api.POST("/qris/mark-paid", admin, h.MarkPaid)
	api.GET("/qris/image/:filename", h.QrisImage)

	api.POST("/payment/check", admin, h.CheckPayments)
	api.GET("/payment/check", h.PaymentCheckStatus)

	api.GET("/logs", admin, h.Logs)
	api.GET("/events", h.Events)

	api.GET("/products", h.ListProducts)
	api.POST("/products", admin, h.CreateProduct)
	api.DELETE("/products", admin, h.DeleteProduct)

	api.GET("/health", h.Health)
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// oplog appends an operator log entry. Failures are only logged, the request
// outcome does not depend on them.
func (h *Handler) oplog(ctx context.Context, action, message string, level db.LogLevel) {
	if err := h.Store.AppendLogEntry(context.WithoutCancel(ctx), action, message, level); err != nil {
		h.Logger.Error("failed to append operator log", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) publish(typ string, data interface{}) {
	if h.Broker != nil {
		h.Broker.Publish(events.Event{Type: typ, Data: data})
	}
}
