package db

import (
	"fmt"

	"github.com/ctfleet/instancer/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the GORM models owned by the lifecycle core.
func AllModels() []interface{} {
	return []interface{}{
		&models.Challenge{},
		&models.Instance{},
		&models.Setting{},
	}
}

// AutoMigrate creates or updates all core tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
