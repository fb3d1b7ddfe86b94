// Package sqlite implements the settings store on SQLite via GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wecom-tools/quarkbot/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Store using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return &Driver{dataDir: cfg.DataDir}, nil
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(d.dataDir, "quarkbot.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(
		&store.Setting{},
		&store.BannedKeyword{},
		&store.RecentFolder{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetSetting returns a setting value.
func (d *Driver) GetSetting(ctx context.Context, key string) (string, error) {
	var s store.Setting
	result := d.db.WithContext(ctx).First(&s, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", store.ErrNotFound
		}
		return "", result.Error
	}
	return s.Value, nil
}

// PutSetting creates or replaces a setting value.
func (d *Driver) PutSetting(ctx context.Context, key, value string) error {
	s := store.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	result := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&s)
	return result.Error
}

// ListBannedKeywords returns all block-list entries.
func (d *Driver) ListBannedKeywords(ctx context.Context) ([]string, error) {
	var rows []store.BannedKeyword
	if err := d.db.WithContext(ctx).Order("word").Find(&rows).Error; err != nil {
		return nil, err
	}
	words := make([]string, 0, len(rows))
	for _, row := range rows {
		words = append(words, row.Word)
	}
	return words, nil
}

// AddBannedKeywords merges words into the block-list.
func (d *Driver) AddBannedKeywords(ctx context.Context, words []string) (int, error) {
	added := 0
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		var row store.BannedKeyword
		result := d.db.WithContext(ctx).
			Where("word = ?", w).
			FirstOrCreate(&row, store.BannedKeyword{Word: w})
		if result.Error != nil {
			return added, result.Error
		}
		if result.RowsAffected > 0 {
			added++
		}
	}
	return added, nil
}

// RecentFolders returns up to limit folder ids, most recent first.
func (d *Driver) RecentFolders(ctx context.Context, limit int) ([]string, error) {
	var rows []store.RecentFolder
	q := d.db.WithContext(ctx).Order("touched_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	fids := make([]string, 0, len(rows))
	for _, row := range rows {
		fids = append(fids, row.FID)
	}
	return fids, nil
}

// TouchRecentFolder marks fid as most recent and trims older entries.
func (d *Driver) TouchRecentFolder(ctx context.Context, fid string, keep int) error {
	row := store.RecentFolder{FID: fid, TouchedAt: time.Now()}
	if err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error; err != nil {
		return err
	}

	if keep <= 0 {
		return nil
	}

	var stale []store.RecentFolder
	if err := d.db.WithContext(ctx).
		Order("touched_at desc").
		Limit(100).
		Offset(keep).
		Find(&stale).Error; err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Delete(&stale).Error
}

var _ store.Store = (*Driver)(nil)
