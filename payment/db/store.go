package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-qris/utils"

	"gorm.io/gorm"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotPending = errors.New("payment is no longer pending")
)

type Store struct {
	db *gorm.DB
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

func (s *Store) CreateTrackedPayment(ctx context.Context, p *TrackedPayment) error {
	if p.ID == "" {
		p.ID = utils.GenerateUUID()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create tracked payment: %w", err)
	}
	return nil
}

func (s *Store) FindTrackedPayment(ctx context.Context, id string) (TrackedPayment, error) {
	var p TrackedPayment
	err := s.db.WithContext(ctx).Preload("Product").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("find tracked payment %s: %w", id, err)
	}
	return p, nil
}

// ListTrackedPayments returns newest first; an empty status lists everything.
func (s *Store) ListTrackedPayments(ctx context.Context, status Status, withProduct bool) ([]TrackedPayment, error) {
	var payments []TrackedPayment
	q := s.db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if withProduct {
		q = q.Preload("Product")
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list tracked payments: %w", err)
	}
	return payments, nil
}

// FindPendingTrackedPayments returns pending payments oldest first, which is
// the order the reconciler evaluates them in.
func (s *Store) FindPendingTrackedPayments(ctx context.Context) ([]TrackedPayment, error) {
	var payments []TrackedPayment
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where("status = ?", StatusPending).
		Order("created_at asc").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("find pending tracked payments: %w", err)
	}
	return payments, nil
}

// UpdateTrackedPaymentStatus only moves payments out of pending. It returns
// ErrNotPending when the payment was already moved (or does not exist), so
// repeating a transition changes nothing.
func (s *Store) UpdateTrackedPaymentStatus(ctx context.Context, id string, status Status, paidAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}
	res := s.db.WithContext(ctx).
		Model(&TrackedPayment{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update tracked payment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

func (s *Store) DeleteTrackedPayment(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&TrackedPayment{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete tracked payment %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireOverdue marks every pending payment whose deadline passed as expired
// and returns the payments it changed.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) ([]TrackedPayment, error) {
	var overdue []TrackedPayment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Product").
			Where("status = ? AND expires_at < ?", StatusPending, now).
			Find(&overdue).Error; err != nil {
			return err
		}
		if len(overdue) == 0 {
			return nil
		}
		ids := make([]string, 0, len(overdue))
		for _, p := range overdue {
			ids = append(ids, p.ID)
		}
		return tx.Model(&TrackedPayment{}).
			Where("id IN ? AND status = ?", ids, StatusPending).
			Update("status", StatusExpired).Error
	})
	if err != nil {
		return nil, fmt.Errorf("expire overdue payments: %w", err)
	}
	for i := range overdue {
		overdue[i].Status = StatusExpired
	}
	return overdue, nil
}

func (s *Store) AppendLogEntry(ctx context.Context, action, message string, level LogLevel) error {
	entry := AdminLog{
		ID:      utils.GenerateUUID(),
		Action:  action,
		Message: message,
		Level:   level,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("append log entry %s: %w", action, err)
	}
	return nil
}

func (s *Store) RecentLogs(ctx context.Context, limit int) ([]AdminLog, error) {
	var logs []AdminLog
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	return logs, nil
}

func (s *Store) ClearOldLogs(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&AdminLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear old logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListProducts returns products newest first with their latest payment.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	for i := range products {
		var latest []TrackedPayment
		if err := s.db.WithContext(ctx).
			Where("product_id = ?", products[i].ID).
			Order("created_at desc").
			Limit(1).
			Find(&latest).Error; err != nil {
			return nil, fmt.Errorf("latest payment for product %s: %w", products[i].ID, err)
		}
		products[i].Payments = latest
	}
	return products, nil
}

// CreateProduct returns the existing product when one with the same URL exists.
func (s *Store) CreateProduct(ctx context.Context, p *Product) (created bool, err error) {
	var existing Product
	err = s.db.WithContext(ctx).Where("url = ?", p.URL).First(&existing).Error
	if err == nil {
		*p = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("find product by url: %w", err)
	}

	if p.ID == "" {
		p.ID = utils.GenerateUUID()
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return false, fmt.Errorf("create product: %w", err)
	}
	return true, nil
}

// FindOrCreateProduct looks a product up by name, creating a manual-upload
// product when none exists.
func (s *Store) FindOrCreateProduct(ctx context.Context, name string, price int64) (Product, error) {
	var p Product
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&p).Error
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("find product by name: %w", err)
	}

	p = Product{
		ID:    utils.GenerateUUID(),
		URL:   fmt.Sprintf("manual://upload/%d", time.Now().UnixMilli()),
		Name:  name,
		Price: price,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return p, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&TrackedPayment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}
