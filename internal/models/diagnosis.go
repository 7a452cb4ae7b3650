package models

import "time"

// DiagnosisResult is a user's single lifetime instinct diagnosis.
type DiagnosisResult struct {
	UserID               string    `gorm:"primaryKey;size:64" json:"user_id"`
	QuestionnaireVersion string    `gorm:"size:32;not null" json:"questionnaire_version"`
	Gender               string    `gorm:"size:16;not null" json:"gender"`
	Answers              string    `gorm:"type:json" json:"-"` // JSON object of question id -> score
	Craftsmanship        int       `gorm:"not null" json:"craftsmanship"`
	Hunting              int       `gorm:"not null" json:"hunting"`
	Empathy              int       `gorm:"not null" json:"empathy"`
	Defense              int       `gorm:"not null" json:"defense"`
	Leap                 int       `gorm:"not null" json:"leap"`
	CompletedAt          time.Time `gorm:"not null" json:"completed_at"`
}

// Questionnaire records each questionnaire version the service has served,
// so stored diagnosis answers can be traced back to the questions asked.
type Questionnaire struct {
	Version   string `gorm:"primaryKey;size:32"`
	Checksum  string `gorm:"size:64;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}
