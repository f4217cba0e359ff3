package db

import (
	"gorm.io/gorm"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&reports.Report{},
	)
}
