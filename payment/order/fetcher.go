package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-qris/payment/db"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	listPending   = "payment-list"
	listProcessed = "order-list"
)

type FetcherConfig struct {
	PendingURL   string
	ProcessedURL string

	GateWait    time.Duration // how long to wait for the external session
	MaxRetries  int           // retries after the first attempt
	RetryDelay  time.Duration
	PageTimeout time.Duration // per attempt
	MinInterval time.Duration // between two session starts

	AutoMatchTolerance int64
	AlertInterval      time.Duration // minimum gap between two session alerts
}

func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PendingURL:         "https://www.tokopedia.com/payment/payment-list?nref=pcside",
		ProcessedURL:       "https://www.tokopedia.com/order-list",
		GateWait:           120 * time.Second,
		MaxRetries:         2,
		RetryDelay:         3 * time.Second,
		PageTimeout:        60 * time.Second,
		MinInterval:        3 * time.Second,
		AutoMatchTolerance: 1000,
		AlertInterval:      30 * time.Minute,
	}
}

// Fetcher reads the two order lists of the external store. Failures never
// reach the caller: they end up as an empty list plus an operator log entry.
type Fetcher struct {
	cfg       FetcherConfig
	gate      *Gate
	renderer  PageRenderer
	extractor Extractor
	oplog     OperatorLog
	alerter   Alerter // optional
	logger    *zap.Logger

	pace   *rate.Limiter
	alerts *rate.Limiter
}

func NewFetcher(cfg FetcherConfig, gate *Gate, renderer PageRenderer, extractor Extractor, oplog OperatorLog, alerter Alerter, logger *zap.Logger) *Fetcher {
	pace := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinInterval > 0 {
		pace = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	alerts := rate.NewLimiter(rate.Inf, 1)
	if cfg.AlertInterval > 0 {
		alerts = rate.NewLimiter(rate.Every(cfg.AlertInterval), 1)
	}
	return &Fetcher{
		cfg:       cfg,
		gate:      gate,
		renderer:  renderer,
		extractor: extractor,
		oplog:     oplog,
		alerter:   alerter,
		logger:    logger,
		pace:      pace,
		alerts:    alerts,
	}
}

func (f *Fetcher) FetchPendingOrders(ctx context.Context) []PendingOrder {
	page, ok := f.render(ctx, listPending, f.cfg.PendingURL)
	if !ok {
		return nil
	}
	orders := f.extractor.ExtractPending(page.Text)
	f.logger.Info("fetched pending orders", zap.Int("count", len(orders)))
	return orders
}

func (f *Fetcher) FetchProcessedOrders(ctx context.Context) []ProcessedOrder {
	page, ok := f.render(ctx, listProcessed, f.cfg.ProcessedURL)
	if !ok {
		return nil
	}
	orders := f.extractor.ExtractProcessed(page.Text, page.MainContent)
	f.logger.Info("fetched processed orders", zap.Int("count", len(orders)))
	return orders
}

// FindPendingByAmount looks for an unpaid order within the auto-match
// tolerance of amount. The returned order carries an AMT-<amount> id.
func (f *Fetcher) FindPendingByAmount(ctx context.Context, amount int64) (*PendingOrder, bool) {
	for _, o := range f.FetchPendingOrders(ctx) {
		diff := o.Amount - amount
		if diff < 0 {
			diff = -diff
		}
		if diff > f.cfg.AutoMatchTolerance {
			continue
		}
		o.OrderID = fmt.Sprintf("AMT-%d", amount)
		f.appendLog(ctx, "order_matched", "Matched pending payment "+FormatRupiah(amount), db.LevelInfo)
		return &o, true
	}
	f.logger.Info("no pending order for amount", zap.Int64("amount", amount))
	return nil, false
}

// render holds the gate for the whole retry loop.
func (f *Fetcher) render(ctx context.Context, list, url string) (Page, bool) {
	var (
		page Page
		ok   bool
	)
	acquired, _ := f.gate.Do(ctx, f.cfg.GateWait, func(ctx context.Context) error {
		page, ok = f.renderWithRetry(ctx, list, url)
		return nil
	})
	if !acquired {
		f.logger.Warn("external session busy, skipping fetch", zap.String("list", list), zap.Duration("waited", f.cfg.GateWait))
		return Page{}, false
	}
	return page, ok
}

func (f *Fetcher) renderWithRetry(ctx context.Context, list, url string) (Page, bool) {
	attempts := 1 + max(0, f.cfg.MaxRetries)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, f.cfg.RetryDelay); err != nil {
				return Page{}, false
			}
		}
		if err := f.pace.Wait(ctx); err != nil {
			return Page{}, false
		}

		page, err := f.renderOnce(ctx, url)
		if err == nil {
			return page, true
		}
		if errors.Is(err, ErrNotAuthenticated) {
			f.sessionExpired(ctx, list)
			return Page{}, false
		}
		if ctx.Err() != nil {
			return Page{}, false
		}
		lastErr = err
		f.logger.Warn("fetch attempt failed",
			zap.String("list", list),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}

	f.logger.Error("fetch failed", zap.String("list", list), zap.Error(lastErr))
	f.appendLog(ctx, "fetch_failed",
		fmt.Sprintf("Failed to read %s after %d attempts: %v", list, attempts, lastErr), db.LevelError)
	return Page{}, false
}

func (f *Fetcher) renderOnce(ctx context.Context, url string) (Page, error) {
	if f.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.PageTimeout)
		defer cancel()
	}
	return f.renderer.RenderPage(ctx, url)
}

func (f *Fetcher) sessionExpired(ctx context.Context, list string) {
	msg := fmt.Sprintf("Tokopedia session expired while reading %s, upload fresh cookies", list)
	f.logger.Warn("external session not authenticated", zap.String("list", list))
	f.appendLog(ctx, "session_expired", msg, db.LevelWarning)

	if f.alerter == nil || !f.alerts.Allow() {
		return
	}
	if err := f.alerter.Alert(context.WithoutCancel(ctx), "Tokopedia session expired", msg); err != nil {
		f.logger.Error("failed to send session alert", zap.Error(err))
	}
}

func (f *Fetcher) appendLog(ctx context.Context, action, message string, level db.LogLevel) {
	if f.oplog == nil {
		return
	}
	if err := f.oplog.AppendLogEntry(context.WithoutCancel(ctx), action, message, level); err != nil {
		f.logger.Error("failed to append operator log", zap.String("action", action), zap.Error(err))
	}
}
