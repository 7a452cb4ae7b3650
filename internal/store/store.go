// Package store persists readings, diagnosis results and completion markers
// through gorm. It backs the eligibility gate, the history reader and both
// session controllers.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/history"
	"github.com/zulandar/uranai/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// New wraps an open, migrated database.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// RecordTarot writes a finalized reading and the user's tarot completion in
// one transaction. period identifies the draw day; a completion already
// stored for the same period is refused, so two sessions racing through the
// same day produce exactly one record.
func (s *Store) RecordTarot(ctx context.Context, rec *models.TarotReading, period string) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("store: record tarot: reading with a user id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Completion
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND kind = ?", rec.UserID, models.CompletionTarot).
			Limit(1).
			Find(&existing)
		if result.Error != nil {
			return fmt.Errorf("store: record tarot: check completion: %w", result.Error)
		}
		if result.RowsAffected > 0 && existing.Period == period {
			return flow.Completed("store.record_tarot", "you have already drawn a card today")
		}

		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("store: record tarot: insert reading: %w", err)
		}
		completion := models.Completion{
			UserID:      rec.UserID,
			Kind:        models.CompletionTarot,
			Period:      period,
			ReadingID:   &rec.ID,
			CompletedAt: rec.CreatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"period", "reading_id", "completed_at"}),
		}).Create(&completion).Error; err != nil {
			return fmt.Errorf("store: record tarot: upsert completion: %w", err)
		}
		return nil
	})
}

// SaveDiagnosis writes a user's diagnosis result and lifetime completion.
// A user who already has a result is refused.
func (s *Store) SaveDiagnosis(ctx context.Context, res *models.DiagnosisResult) error {
	if res == nil || res.UserID == "" {
		return fmt.Errorf("store: save diagnosis: result with a user id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.DiagnosisResult{}).
			Where("user_id = ?", res.UserID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("store: save diagnosis: check existing: %w", err)
		}
		if count > 0 {
			return flow.Completed("store.save_diagnosis", "the diagnosis has already been completed")
		}
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("store: save diagnosis: insert result: %w", err)
		}
		if err := tx.Create(&models.Completion{
			UserID:      res.UserID,
			Kind:        models.CompletionDiagnosis,
			CompletedAt: res.CompletedAt,
		}).Error; err != nil {
			return fmt.Errorf("store: save diagnosis: insert completion: %w", err)
		}
		return nil
	})
}

// TarotCompletion returns the user's last tarot completion, or nil if they
// never drew. A completion whose reading has gone missing is returned
// without one and left for the gate to judge.
func (s *Store) TarotCompletion(ctx context.Context, userID string) (*eligibility.TarotInfo, error) {
	c, err := s.completion(ctx, userID, models.CompletionTarot)
	if err != nil || c == nil {
		return nil, err
	}
	info := &eligibility.TarotInfo{CompletedAt: c.CompletedAt}
	if c.ReadingID == nil {
		return info, nil
	}
	rec, err := s.GetReading(ctx, userID, *c.ReadingID)
	if errors.Is(err, history.ErrNotFound) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	info.Reading = rec
	return info, nil
}

// DiagnosisCompletion returns the user's diagnosis completion, or nil if
// they never completed one.
func (s *Store) DiagnosisCompletion(ctx context.Context, userID string) (*eligibility.DiagnosisInfo, error) {
	c, err := s.completion(ctx, userID, models.CompletionDiagnosis)
	if err != nil || c == nil {
		return nil, err
	}
	info := &eligibility.DiagnosisInfo{CompletedAt: c.CompletedAt}
	res, err := s.DiagnosisResult(ctx, userID)
	if err != nil {
		return nil, err
	}
	info.Result = res
	return info, nil
}

func (s *Store) completion(ctx context.Context, userID, kind string) (*models.Completion, error) {
	var c models.Completion
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Limit(1).
		Find(&c)
	if result.Error != nil {
		return nil, fmt.Errorf("store: get %s completion for %s: %w", kind, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &c, nil
}

// DiagnosisResult returns the stored result for userID, or nil if none.
func (s *Store) DiagnosisResult(ctx context.Context, userID string) (*models.DiagnosisResult, error) {
	var res models.DiagnosisResult
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&res)
	if result.Error != nil {
		return nil, fmt.Errorf("store: get diagnosis for %s: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &res, nil
}

// ListReadings returns one page of the user's readings, newest first, and
// the total count. Ties on creation time fall back to id so paging is
// stable.
func (s *Store) ListReadings(ctx context.Context, userID string, offset, limit int) ([]models.TarotReading, int64, error) {
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.TarotReading{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count readings for %s: %w", userID, err)
	}
	var recs []models.TarotReading
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list readings for %s: %w", userID, err)
	}
	return recs, total, nil
}

// GetReading returns one of the user's readings, or history.ErrNotFound.
func (s *Store) GetReading(ctx context.Context, userID string, id uint) (*models.TarotReading, error) {
	var rec models.TarotReading
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get reading %d: %w", id, err)
	}
	return &rec, nil
}
