package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore is the constructible, not-wired-by-default GameStore
// implementation backing the named persistence hook.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore opens dsn and migrates the GameSnapshot table.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: opening postgres: %w", err)
	}
	if err := db.AutoMigrate(&GameSnapshot{}); err != nil {
		return nil, fmt.Errorf("store: migrating schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Save upserts a snapshot keyed by address.
func (s *PostgresStore) Save(ctx context.Context, snapshot GameSnapshot) error {
	return s.db.WithContext(ctx).Save(&snapshot).Error
}

// Load returns every persisted snapshot.
func (s *PostgresStore) Load(ctx context.Context) ([]GameSnapshot, error) {
	var snapshots []GameSnapshot
	if err := s.db.WithContext(ctx).Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("store: loading snapshots: %w", err)
	}
	return snapshots, nil
}

var _ GameStore = (*PostgresStore)(nil)
