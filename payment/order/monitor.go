// background schedule: periodic reconciliation, expiry sweep and operator log retention

package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-qris/payment/db"
	"go-qris/payment/events"

	"go.uber.org/zap"
)

type MonitorConfig struct {
	ReconcileInterval time.Duration // 0 disables the periodic run
	ExpiryInterval    time.Duration
	LogRetention      time.Duration
	RetentionInterval time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ReconcileInterval: 60 * time.Second,
		ExpiryInterval:    20 * time.Second,
		LogRetention:      7 * 24 * time.Hour,
		RetentionInterval: time.Hour,
	}
}

// Runner is implemented by Reconciler.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

type Monitor struct {
	cfg       MonitorConfig
	runner    Runner
	store     PaymentStore
	publisher Publisher // optional
	logger    *zap.Logger
	now       func() time.Time
}

func NewMonitor(cfg MonitorConfig, runner Runner, store PaymentStore, publisher Publisher, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		runner:    runner,
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Run blocks until ctx is done. A slow reconciliation does not hold up the
// expiry sweep.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if m.cfg.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.every(ctx, m.cfg.ReconcileInterval, func() {
				if _, err := m.runner.Run(ctx); err != nil && ctx.Err() == nil {
					m.logger.Error("scheduled reconciliation failed", zap.Error(err))
				}
			})
		}()
	}

	if m.cfg.ExpiryInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.every(ctx, m.cfg.ExpiryInterval, func() {
				if _, err := m.SweepExpired(ctx); err != nil && ctx.Err() == nil {
					m.logger.Error("expiry sweep failed", zap.Error(err))
				}
			})
		}()
	}

	if m.cfg.LogRetention > 0 && m.cfg.RetentionInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.every(ctx, m.cfg.RetentionInterval, func() {
				if _, err := m.ClearOldLogs(ctx); err != nil && ctx.Err() == nil {
					m.logger.Error("log retention failed", zap.Error(err))
				}
			})
		}()
	}

	m.logger.Info("monitor started",
		zap.Duration("reconcile_interval", m.cfg.ReconcileInterval),
		zap.Duration("expiry_interval", m.cfg.ExpiryInterval))
	wg.Wait()
	m.logger.Info("monitor stopped")
}

// every runs fn now and then on every tick until ctx is done.
func (m *Monitor) every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepExpired moves overdue pending payments to expired.
func (m *Monitor) SweepExpired(ctx context.Context) (int, error) {
	expired, err := m.store.ExpireOverdue(ctx, m.now())
	if err != nil {
		return 0, err
	}
	for _, p := range expired {
		msg := fmt.Sprintf("QRIS expired: %s - %s", productName(p), FormatRupiah(p.Amount))
		if err := m.store.AppendLogEntry(ctx, "qris_expired", msg, db.LevelWarning); err != nil {
			m.logger.Error("failed to append operator log", zap.Error(err))
		}
		if m.publisher != nil {
			m.publisher.Publish(events.Event{Type: events.QrisExpired, Data: p})
		}
	}
	if len(expired) > 0 {
		m.logger.Info("expired payments", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

func (m *Monitor) ClearOldLogs(ctx context.Context) (int64, error) {
	n, err := m.store.ClearOldLogs(ctx, m.now().Add(-m.cfg.LogRetention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("cleared old operator logs", zap.Int64("count", n))
	}
	return n, nil
}
