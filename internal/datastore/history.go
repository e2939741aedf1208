// Package datastore keeps the playback history in SQLite through GORM.
//
// History implements audiocore.SessionObserver: a row is inserted when a session
// starts and completed when it ends.
package datastore

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

// History stores playback records
type History struct {
	db     *gorm.DB
	path   string
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

var _ audiocore.SessionObserver = (*History)(nil)

// Open opens or creates the history database at path and migrates the schema
func Open(path string, debug bool) (*History, error) {
	logger := logging.ForService("datastore")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Context("operation", "create_db_dir").
				Build()
		}
	}

	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: NewGormLogger(logger, DefaultSlowQueryThreshold, level),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Context("operation", "open").
			Build()
	}

	// SQLite allows one writer; a single connection serialises observers and readers
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&PlaybackRecord{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Context("operation", "auto_migrate").
			Build()
	}

	logger.Info("history database ready", "path", path)
	return &History{db: db, path: path, logger: logger}, nil
}

// Save inserts or replaces the record with the same session id
func (h *History) Save(record *PlaybackRecord) error {
	var existing PlaybackRecord
	err := h.db.Where("session_id = ?", record.SessionID).First(&existing).Error
	switch {
	case err == nil:
		record.ID = existing.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dbError(err, "lookup")
	}

	if err := h.db.Save(record).Error; err != nil {
		return dbError(err, "save")
	}
	return nil
}

// Get returns the record for a session id
func (h *History) Get(sessionID string) (*PlaybackRecord, error) {
	var record PlaybackRecord
	if err := h.db.Where("session_id = ?", sessionID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Context("session_id", sessionID).
				Build()
		}
		return nil, dbError(err, "get")
	}
	return &record, nil
}

// Recent returns up to limit records, newest first
func (h *History) Recent(limit int) ([]PlaybackRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []PlaybackRecord
	if err := h.db.Order("started_at DESC").Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, dbError(err, "recent")
	}
	return records, nil
}

// Count returns the number of stored records
func (h *History) Count() (int64, error) {
	var n int64
	if err := h.db.Model(&PlaybackRecord{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "count")
	}
	return n, nil
}

// SessionStarted implements audiocore.SessionObserver
func (h *History) SessionStarted(info audiocore.SessionInfo) {
	if err := h.Save(recordFromSession(info)); err != nil {
		h.logger.Warn("failed to record session start", "session_id", info.ID, "error", err)
	}
}

// SessionEnded implements audiocore.SessionObserver
func (h *History) SessionEnded(info audiocore.SessionInfo) {
	if err := h.Save(recordFromSession(info)); err != nil {
		h.logger.Warn("failed to record session end", "session_id", info.ID, "error", err)
	}
}

// Close closes the database
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	sqlDB, err := h.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

func recordFromSession(info audiocore.SessionInfo) *PlaybackRecord {
	return &PlaybackRecord{
		SessionID:  info.ID,
		Source:     info.Source,
		Kind:       info.Kind,
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		StartedAt:  info.StartedAt,
		EndedAt:    info.EndedAt,
		Complete:   info.Complete,
		Reason:     info.Reason,
	}
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
