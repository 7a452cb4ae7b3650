package models

import "time"

// TarotReading is the immutable history record written when a tarot session
// is finalized. Records are append-only; nothing updates a written row.
type TarotReading struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         string    `gorm:"size:64;not null;index:idx_reading_user_created" json:"user_id"`
	SessionID      string    `gorm:"size:36;uniqueIndex" json:"session_id"`
	Target         string    `gorm:"size:16;not null" json:"target"` // "self" or "other"
	Mood           string    `gorm:"size:16;not null" json:"mood"`   // sunny, cloudy, rainy, very-rainy
	CardID         int       `gorm:"not null" json:"card_id"`
	CardName       string    `gorm:"size:64;not null" json:"card_name"`
	Reversed       bool      `gorm:"default:false" json:"reversed"`
	Interpretation string    `gorm:"type:text;not null" json:"interpretation"`
	Feeling        string    `gorm:"size:8" json:"feeling,omitempty"` // good, soso, bad
	Comment        string    `gorm:"type:text" json:"comment,omitempty"`
	LocalDay       string    `gorm:"size:10;not null" json:"local_day"` // YYYY-MM-DD in the viewer's zone
	CreatedAt      time.Time `gorm:"index:idx_reading_user_created" json:"created_at"`
}
