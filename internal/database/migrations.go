package database

import (
	"errors"
	"time"

	"github.com/YO3CODER/yolinkify-sub000/internal/links"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationClampNegativeClickCounts = "2026-10-01_clamp_negative_click_counts"
	migrationPurgeOrphanedLikes       = "2026-10-02_purge_orphaned_likes"
)

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
		{name: migrationClampNegativeClickCounts, apply: clampNegativeClickCounts},
		{name: migrationPurgeOrphanedLikes, apply: purgeOrphanedLikes},
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

// clampNegativeClickCounts resets legacy click counters that went below zero.
func clampNegativeClickCounts(db *gorm.DB) error {
	return db.Model(&links.Link{}).
		Where("click_count < 0").
		Update("click_count", 0).Error
}

// purgeOrphanedLikes removes memberships whose link row no longer exists.
func purgeOrphanedLikes(db *gorm.DB) error {
	return db.Where("link_id NOT IN (?)", db.Model(&links.Link{}).Select("link_id")).
		Delete(&links.LikeMembership{}).Error
}
