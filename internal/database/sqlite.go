package database

import (
	"fmt"

	"github.com/SistemasTSJavier/MOPER-TS/internal/catalog"
	"github.com/SistemasTSJavier/MOPER-TS/internal/folio"
	"github.com/SistemasTSJavier/MOPER-TS/internal/moper"
	"github.com/SistemasTSJavier/MOPER-TS/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options tunes database initialization.
type Options struct {
	// FolioInitial seeds the shared counter on first startup. The seed runs
	// once through the migration ledger; later changes go through the
	// allocator's Adjust operation, never through re-seeding.
	FolioInitial int64
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, opts Options, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&moper.Registro{},
		&users.Usuario{},
		&folio.Sequence{},
		&catalog.Servicio{},
		&catalog.Puesto{},
		&catalog.Oficial{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, opts, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}
	return db, nil
}
