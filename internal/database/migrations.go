package database

import (
	"errors"
	"time"

	"github.com/Arturr-H/Quicknote-backend/internal/documents"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillDocumentDefaults = "2026-10-01_backfill_document_defaults"

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

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDocumentDefaults, apply: backfillDocumentDefaults},
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

// backfillDocumentDefaults gives rows imported without metadata the same
// defaults a freshly created document gets.
func backfillDocumentDefaults(db *gorm.DB) error {
	if err := db.Model(&documents.Record{}).
		Where("TRIM(title) = ''").
		Update("title", documents.DefaultTitle).Error; err != nil {
		return err
	}
	return db.Model(&documents.Record{}).
		Where("TRIM(description) = ''").
		Update("description", documents.DefaultDescription).Error
}
