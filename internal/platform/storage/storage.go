// Package storage owns the relational database handle: opening the sqlite
// file behind a DSN and applying schema migrations at bootstrap.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kani-tts-server/internal/platform/errors"
)

// Open connects to the metadata database. DSN accepts a plain file path or
// any sqlite DSN (file:...?mode=memory for tests).
func Open(dsn string) (*gorm.DB, error) {
	const op = "storage.open"

	if dsn == "" {
		return nil, errors.New(errors.KindConfig, op, "metadata dsn is required")
	}

	if !strings.HasPrefix(dsn, "file:") && !strings.HasPrefix(dsn, ":memory:") {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, op, "create database directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "open sqlite database", err)
	}
	return db, nil
}
