// Package storage owns the embedded database handle and its schema.
package storage

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	platformerrors "signage-agent-go/internal/platform/errors"
)

// Open initialises the sqlite database at dsn and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	if dir := filepath.Dir(dsn); dir != "" && dir != "." && !isMemoryDSN(dsn) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, platformerrors.Wrap(
				platformerrors.KindStorage,
				"storage.open",
				"failed to create data directory",
				err,
			)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, platformerrors.Wrap(
			platformerrors.KindStorage,
			"storage.open",
			"failed to open sqlite database",
			err,
		)
	}

	if err := db.AutoMigrate(&AgentState{}); err != nil {
		return nil, platformerrors.Wrap(
			platformerrors.KindStorage,
			"storage.open",
			"failed to migrate schema",
			err,
		)
	}

	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" ||
		filepath.Ext(dsn) == "" && len(dsn) > 5 && dsn[:5] == "file:"
}
