package database

import (
	"fmt"
	"path/filepath"

	"richpres/internal/config"
	"richpres/internal/presence"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// A sqlite database is opened as is; callers check its migrations. A memory
// database is migrated immediately since it starts empty.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, name string, clock presence.Clock) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		db, err := NewSQLiteDatabase(filepath.Join(cfg.DataDir, name+".db"), clock)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating memory database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
