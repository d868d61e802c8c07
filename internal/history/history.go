// Package history keeps a persistent log of completed backtranslations in
// SQLite.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"codeberg.org/snonux/backtrans/internal/translation"
)

// ErrNotFound is returned by Get for an unknown id
var ErrNotFound = errors.New("history record not found")

// DefaultLimit caps listings when the caller passes no limit
const DefaultLimit = 20

// Record is one stored backtranslation
type Record struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Original         string    `gorm:"not null" json:"original"`
	Intermediate     string    `gorm:"not null" json:"intermediate"`
	BackTranslated   string    `gorm:"not null" json:"back_translated"`
	SourceLang       string    `gorm:"size:16;index" json:"source_lang"`
	IntermediateLang string    `gorm:"size:16;index" json:"intermediate_lang"`
	Provider         string    `gorm:"size:32" json:"provider"`
	BLEUScore        float64   `json:"bleu_score"`
	Confidence       string    `gorm:"size:16" json:"confidence"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (Record) TableName() string {
	return "backtranslations"
}

// NewRecord converts a backtranslation result into a Record with a fresh id
func NewRecord(bt *translation.BackTranslation) *Record {
	return &Record{
		ID:               uuid.NewString(),
		Original:         bt.Original,
		Intermediate:     bt.Intermediate,
		BackTranslated:   bt.BackTranslated,
		SourceLang:       bt.SourceLang,
		IntermediateLang: bt.IntermediateLang,
		Provider:         string(bt.Provider),
		BLEUScore:        bt.Quality.BLEUScore,
		Confidence:       string(bt.Quality.Confidence),
		DurationMs:       bt.Duration.Milliseconds(),
	}
}

// Store persists Records
type Store struct {
	db *gorm.DB
}

// Open opens the history database at path and migrates its schema
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite allows one writer; concurrent batch workers share this handle
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add stores bt and returns the created record
func (s *Store) Add(ctx context.Context, bt *translation.BackTranslation) (*Record, error) {
	rec := NewRecord(bt)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to store history record: %w", err)
	}
	return rec, nil
}

// Get returns the record with the given id
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history record: %w", err)
	}
	return &rec, nil
}

// Recent returns the newest records first
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.Search(ctx, "", limit)
}

// Search returns records whose original or back-translated text contains
// query, newest first. An empty query matches everything.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	tx := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + q + "%"
		tx = tx.Where("original LIKE ? OR back_translated LIKE ?", like, like)
	}

	var records []Record
	if err := tx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Count returns the number of stored records
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
