// the external store exposes no stable order id on its payment list, so orders
// are correlated with tracked payments by amount (and deadline when both sides have one)

package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-qris/payment/db"
	"go-qris/payment/events"
)

const processedStatus = "Diproses"

// ErrNotAuthenticated means the external session is missing or expired.
// Retrying does not help; the cookies have to be refreshed out of band.
var ErrNotAuthenticated = errors.New("external session not authenticated")

// PendingOrder is an order on the payment list that still waits for payment.
type PendingOrder struct {
	OrderID  string     `json:"order_id"` // synthetic, derived from the amount
	Amount   int64      `json:"amount"`
	Deadline *time.Time `json:"deadline"`
}

// ProcessedOrder is an order that left the payment list and is being fulfilled.
type ProcessedOrder struct {
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func pendingOrderID(amount int64) string {
	return fmt.Sprintf("PENDING-%d", amount)
}

// Page is the rendered text of one page of the external store.
type Page struct {
	URL         string
	Text        string
	MainContent string // text of the main content region, empty when none was found
}

type PageRenderer interface {
	// RenderPage returns ErrNotAuthenticated when the page redirected to a login form.
	RenderPage(ctx context.Context, url string) (Page, error)
}

// Extractor turns page text into order summaries. Implementations must be pure.
type Extractor interface {
	ExtractPending(pageText string) []PendingOrder
	ExtractProcessed(pageText, mainContent string) []ProcessedOrder
}

// OperatorLog is the log stream a human watches.
type OperatorLog interface {
	AppendLogEntry(ctx context.Context, action, message string, level db.LogLevel) error
}

type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type Publisher interface {
	Publish(ev events.Event)
}

// PaymentStore is the part of the record store the reconciler and monitor use.
type PaymentStore interface {
	OperatorLog
	FindPendingTrackedPayments(ctx context.Context) ([]db.TrackedPayment, error)
	UpdateTrackedPaymentStatus(ctx context.Context, id string, status db.Status, paidAt *time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) ([]db.TrackedPayment, error)
	ClearOldLogs(ctx context.Context, before time.Time) (int64, error)
}

// productName is used in operator messages.
func productName(p db.TrackedPayment) string {
	if p.Product != nil && p.Product.Name != "" {
		return p.Product.Name
	}
	return "QRIS"
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
