package db

import (
	"fmt"

	"github.com/zulandar/uranai/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.TarotReading{},
		&models.Completion{},
		&models.DiagnosisResult{},
		&models.Questionnaire{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedQuestionnaire records the questionnaire version being served. An
// existing row for the same version is left untouched so stored diagnosis
// results keep pointing at the text their answers were given against.
func SeedQuestionnaire(db *gorm.DB, q *models.Questionnaire) error {
	if q == nil || q.Version == "" {
		return fmt.Errorf("db: seed questionnaire: version is required")
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version"}},
		DoNothing: true,
	}).Create(q)
	if result.Error != nil {
		return fmt.Errorf("db: seed questionnaire %q: %w", q.Version, result.Error)
	}
	return nil
}
