package database

import (
	"errors"
	"time"

	"github.com/tesseralabs/tessera/backend/internal/comments"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClearStalePinAttribution = "2026-08-12_clear_stale_pin_attribution"

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
		{name: migrationClearStalePinAttribution, apply: clearStalePinAttribution},
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

// Rows unpinned before pin attribution was recorded atomically can carry a
// leftover pinned_by. Clear it so replays never show attribution on an
// unpinned comment.
func clearStalePinAttribution(db *gorm.DB) error {
	return db.Model(&comments.Comment{}).
		Where("pinned = ?", false).
		Updates(map[string]any{"pinned_by": "", "pinned_at": nil}).Error
}
