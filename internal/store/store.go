// Package store persists per-invoice statistics with gorm.
package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"minprint/pkg/models"
)

// Store saves and lists invoice rows
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection, migrating the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.Invoice{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveInvoices inserts the rows of one run in a single transaction.
func (s *Store) SaveInvoices(ctx context.Context, runID string, invoices []models.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	rows := make([]models.Invoice, len(invoices))
	copy(rows, invoices)
	for i := range rows {
		rows[i].ID = 0
		rows[i].RunID = runID
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 100).Error
	})
}

// Filter narrows ListInvoices. Zero values match everything.
type Filter struct {
	RunID    string
	Carrier  models.Carrier
	UserName string
	Year     int
	Quarter  int
	Limit    int
}

// ListInvoices returns the newest rows first.
func (s *Store) ListInvoices(ctx context.Context, f Filter) ([]models.Invoice, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{})
	if f.RunID != "" {
		q = q.Where("run_id = ?", f.RunID)
	}
	if f.Carrier != "" {
		q = q.Where("carrier = ?", f.Carrier)
	}
	if f.UserName != "" {
		q = q.Where("user_name = ?", f.UserName)
	}
	if f.Year != 0 {
		q = q.Where("year = ?", f.Year)
	}
	if f.Quarter != 0 {
		q = q.Where("quarter = ?", f.Quarter)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var invoices []models.Invoice
	err := q.Order("id desc").Limit(limit).Find(&invoices).Error
	return invoices, err
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
