package db

import (
	"fmt"

	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/searchindex"
	"gorm.io/gorm"
)

// AllModels returns every GORM model in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Channel{},
		&models.Video{},
		&models.Transcript{},
		&models.Category{},
		&models.Tag{},
		&models.KnowledgeEntry{},
		&models.BiasFlag{},
		&models.OptimizationQueueItem{},
		&models.OptimizationLog{},
		&models.ProcessingLogEntry{},
	}
}

// AutoMigrate creates or updates all tables and the full-text index tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	if err := searchindex.EnsureSchema(db); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
