package database

import (
	"errors"
	"time"

	"github.com/SistemasTSJavier/MOPER-TS/internal/folio"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationSeedFolioSequence = "2026-05-12_seed_folio_sequence"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, opts Options, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedFolioSequence, apply: seedFolioSequence(opts.FolioInitial)},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedFolioSequence inserts the single counter row when none exists yet.
func seedFolioSequence(initial int64) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		var seq folio.Sequence
		err := db.Where("id = ?", 1).Take(&seq).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return db.Create(&folio.Sequence{ID: 1, LastNumber: initial}).Error
	}
}
