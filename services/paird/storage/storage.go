package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("paird storage path must be configured")
	// ErrUnknownDriver is returned for drivers other than sqlite and postgres.
	ErrUnknownDriver = errors.New("paird storage driver must be sqlite or postgres")
	// ErrNotFound is returned when no swap carries the requested receipt ID.
	ErrNotFound = errors.New("swap not found")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SwapRecord is one committed swap. Amounts are decimal strings of raw token
// units so both drivers store them losslessly.
type SwapRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Pair       string    `gorm:"index:idx_swaps_pair_time,priority:1;not null"`
	Sender     string    `gorm:"index;not null"`
	Recipient  string    `gorm:"index;not null"`
	Amount0In  string    `gorm:"not null"`
	Amount1In  string    `gorm:"not null"`
	Amount0Out string    `gorm:"not null"`
	Amount1Out string    `gorm:"not null"`
	Fee0       string    `gorm:"not null"`
	Fee1       string    `gorm:"not null"`
	Price      string    `gorm:"not null"`
	Flash      bool
	Timestamp  int64 `gorm:"index:idx_swaps_pair_time,priority:2;not null"`
	CreatedAt  time.Time
}

// Filter narrows ListSwaps. Account matches either sender or recipient.
type Filter struct {
	Pair    string
	Account string
	Limit   int
}

// Storage wraps the paird swap history.
type Storage struct {
	db *gorm.DB
}

// Open connects to the configured driver and migrates the schema. SQLite
// DSNs may be plain file paths.
func Open(driver, dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if !strings.HasPrefix(trimmed, "file:") {
			fileDSN, err := FileDSN(trimmed)
			if err != nil {
				return nil, err
			}
			trimmed = fileDSN
		}
		dialector = sqlite.Open(trimmed)
	case "postgres":
		dialector = postgres.Open(trimmed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if err := db.AutoMigrate(&SwapRecord{}); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSwap persists a swap, assigning a receipt ID when none is set.
func (s *Storage) RecordSwap(ctx context.Context, rec *SwapRecord) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if rec == nil {
		return fmt.Errorf("swap record required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Pair = normalizeAddress(rec.Pair)
	rec.Sender = normalizeAddress(rec.Sender)
	rec.Recipient = normalizeAddress(rec.Recipient)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// GetSwap loads a swap by receipt ID.
func (s *Storage) GetSwap(ctx context.Context, id uuid.UUID) (*SwapRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	var rec SwapRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("query swap: %w", err)
	}
	return &rec, nil
}

// ListSwaps returns the newest swaps first.
func (s *Storage) ListSwaps(ctx context.Context, filter Filter) ([]SwapRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := s.db.WithContext(ctx).Model(&SwapRecord{})
	if pair := normalizeAddress(filter.Pair); pair != "" {
		query = query.Where("pair = ?", pair)
	}
	if account := normalizeAddress(filter.Account); account != "" {
		query = query.Where("sender = ? OR recipient = ?", account, account)
	}
	var out []SwapRecord
	if err := query.Order("timestamp DESC").Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	return out, nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
