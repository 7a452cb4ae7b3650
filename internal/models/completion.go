package models

import "time"

// Completion kinds.
const (
	CompletionTarot     = "tarot"
	CompletionDiagnosis = "diagnosis"
)

// Completion is the per-user "last completion" marker consulted by the
// eligibility gate. There is at most one row per user and kind; tarot rows
// are overwritten by each day's finalize.
type Completion struct {
	UserID      string    `gorm:"primaryKey;size:64"`
	Kind        string    `gorm:"primaryKey;size:16"`
	Period      string    `gorm:"size:32"` // end of the draw day the completion belongs to (tarot only)
	ReadingID   *uint     // tarot only
	CompletedAt time.Time `gorm:"not null"`
}
