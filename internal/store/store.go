// Package store persists bot settings behind a driver registry:
// the drive credential, the banned keyword list, and the recent
// transfer folders.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// SettingDriveCookie is the settings key holding the drive credential.
const SettingDriveCookie = "drive_cookie"

// Setting is a single key-value setting row.
type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// BannedKeyword is one entry of the persisted block-list.
type BannedKeyword struct {
	ID        uint   `gorm:"primaryKey"`
	Word      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

// RecentFolder records a folder that recently received a transfer.
type RecentFolder struct {
	FID       string `gorm:"primaryKey"`
	TouchedAt time.Time
}

// Store is the persistence surface used by the bot.
type Store interface {
	// Init opens the backing storage and runs migrations.
	Init(ctx context.Context) error

	// Close releases resources.
	Close() error

	// GetSetting returns a setting value. Returns ErrNotFound when unset.
	GetSetting(ctx context.Context, key string) (string, error)

	// PutSetting creates or replaces a setting value.
	PutSetting(ctx context.Context, key, value string) error

	// ListBannedKeywords returns all block-list entries.
	ListBannedKeywords(ctx context.Context) ([]string, error)

	// AddBannedKeywords merges words into the block-list and returns how
	// many were new.
	AddBannedKeywords(ctx context.Context, words []string) (int, error)

	// RecentFolders returns up to limit folder ids, most recent first.
	RecentFolders(ctx context.Context, limit int) ([]string, error)

	// TouchRecentFolder marks fid as most recent and trims the list to
	// keep entries.
	TouchRecentFolder(ctx context.Context, fid string, keep int) error
}
