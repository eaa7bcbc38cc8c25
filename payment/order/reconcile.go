// a tracked payment is paid when its amount left the payment list and showed up
// on the order list as being processed. neither list alone is enough: an order
// missing from the payment list may just have expired

package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-qris/payment/db"
	"go-qris/payment/events"

	"go.uber.org/zap"
)

type ReconcilerConfig struct {
	CheckDelay        time.Duration // between the two list fetches
	DeadlineTolerance time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		CheckDelay:        5 * time.Second,
		DeadlineTolerance: 5 * time.Minute,
	}
}

// OrderSource is implemented by Fetcher.
type OrderSource interface {
	FetchPendingOrders(ctx context.Context) []PendingOrder
	FetchProcessedOrders(ctx context.Context) []ProcessedOrder
}

type Result struct {
	Checked int                 `json:"checked"`
	Updated int                 `json:"updated"`
	Paid    []db.TrackedPayment `json:"-"`
}

type Reconciler struct {
	cfg       ReconcilerConfig
	source    OrderSource
	store     PaymentStore
	publisher Publisher // optional
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciler(cfg ReconcilerConfig, source OrderSource, store PaymentStore, publisher Publisher, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cfg:       cfg,
		source:    source,
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile decides which of the tracked payments are paid. It does not
// persist anything; the returned payments have Status and PaidAt set.
func (r *Reconciler) Reconcile(ctx context.Context, tracked []db.TrackedPayment) Result {
	var candidates []db.TrackedPayment
	for _, p := range tracked {
		if p.Amount > 0 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return Result{}
	}

	pending := PendingSnapshot(r.source.FetchPendingOrders(ctx))
	r.logger.Info("pending amounts on payment list", zap.Int64s("amounts", pending.Amounts()))

	if err := sleep(ctx, r.cfg.CheckDelay); err != nil {
		return Result{}
	}

	processed := ProcessedSnapshot(r.source.FetchProcessedOrders(ctx))
	r.logger.Info("processed amounts on order list", zap.Int64s("amounts", processed.Amounts()))

	var res Result
	now := r.now()
	for _, p := range candidates {
		res.Checked++

		_, stillPending := pending.Find(p.Amount, r.sameDeadline(p))
		entry, inProcess := processed.Find(p.Amount, nil)

		switch {
		case !stillPending && inProcess:
			// one processed order can confirm one tracked payment only
			processed.Remove(entry)
			paidAt := now
			p.Status = db.StatusPaid
			p.PaidAt = &paidAt
			res.Paid = append(res.Paid, p)
			res.Updated++
			r.logger.Info("payment confirmed", zap.String("id", p.ID), zap.Int64("amount", p.Amount))
		case stillPending:
			r.logger.Debug("still on payment list", zap.String("id", p.ID), zap.Int64("amount", p.Amount))
		default:
			r.logger.Debug("not found on either list", zap.String("id", p.ID), zap.Int64("amount", p.Amount))
		}
	}
	return res
}

// sameDeadline accepts an external order when either side has no deadline or
// both deadlines agree within the tolerance.
func (r *Reconciler) sameDeadline(p db.TrackedPayment) func(SnapshotEntry) bool {
	return func(e SnapshotEntry) bool {
		if e.Deadline == nil || p.ExpiresAt.IsZero() {
			return true
		}
		diff := e.Deadline.Sub(p.ExpiresAt)
		if diff < 0 {
			diff = -diff
		}
		return diff <= r.cfg.DeadlineTolerance
	}
}

// Run reconciles every pending payment in the store and persists the paid
// transitions. Only transitions the store accepted are counted and announced.
// The first store error is returned after all transitions were attempted.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	tracked, err := r.store.FindPendingTrackedPayments(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(tracked) == 0 {
		r.logger.Debug("no pending payments to check")
		return Result{}, nil
	}

	res := r.Reconcile(ctx, tracked)

	var firstErr error
	paid := res.Paid[:0]
	for _, p := range res.Paid {
		err := r.store.UpdateTrackedPaymentStatus(ctx, p.ID, db.StatusPaid, p.PaidAt)
		if errors.Is(err, db.ErrNotPending) {
			// expired or marked paid by hand while the lists were read
			r.logger.Info("payment left pending during check", zap.String("id", p.ID))
			continue
		}
		if err != nil {
			r.logger.Error("failed to persist paid payment", zap.String("id", p.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("mark %s paid: %w", p.ID, err)
			}
			continue
		}

		msg := fmt.Sprintf("Payment confirmed: %s - %s", productName(p), FormatRupiah(p.Amount))
		if err := r.store.AppendLogEntry(ctx, "payment_confirmed", msg, db.LevelInfo); err != nil {
			r.logger.Error("failed to append operator log", zap.Error(err))
		}
		if r.publisher != nil {
			r.publisher.Publish(events.Event{Type: events.QrisPaid, Data: p})
		}
		paid = append(paid, p)
	}
	res.Paid = paid
	res.Updated = len(paid)

	r.logger.Info("reconciliation finished", zap.Int("checked", res.Checked), zap.Int("updated", res.Updated))
	return res, firstErr
}
