// Package eligibility decides whether a new divination session may start,
// based on the user's last completion.
package eligibility

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/uranai/internal/models"
)

// DefaultResetSchedule starts a new draw day at local midnight, which makes
// the tarot check a plain calendar-date comparison.
const DefaultResetSchedule = "0 0 * * *"

// TarotInfo is the stored "last completion" for a user's daily draw.
type TarotInfo struct {
	CompletedAt time.Time
	Reading     *models.TarotReading
}

// DiagnosisInfo is the stored lifetime completion of a user's diagnosis.
type DiagnosisInfo struct {
	CompletedAt time.Time
	Result      *models.DiagnosisResult
}

// Decision is the gate's answer. When Allowed is false the existing result
// is attached for "already done" display.
type Decision struct {
	Allowed       bool                    `json:"allowed"`
	Reading       *models.TarotReading    `json:"reading,omitempty"`
	Diagnosis     *models.DiagnosisResult `json:"diagnosis,omitempty"`
	NextAllowedAt *time.Time              `json:"next_allowed_at,omitempty"`
}

// CompletionReader is the completion store as seen by the gate.
type CompletionReader interface {
	TarotCompletion(ctx context.Context, userID string) (*TarotInfo, error)
	DiagnosisCompletion(ctx context.Context, userID string) (*DiagnosisInfo, error)
}

// ParseSchedule parses a 5-field cron expression marking the start of each
// draw day.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		expr = DefaultResetSchedule
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("eligibility: parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// CheckTarot allows a draw when no day boundary of sched lies between the
// last completion and now, evaluated in the viewer's location. Missing or
// malformed completion info fails open.
func CheckTarot(info *TarotInfo, now time.Time, loc *time.Location, sched cron.Schedule) Decision {
	if info == nil {
		return Decision{Allowed: true}
	}
	if info.CompletedAt.IsZero() || info.Reading == nil {
		log.Printf("eligibility: malformed tarot completion (completed_at=%v, reading=%v), allowing draw",
			info.CompletedAt, info.Reading != nil)
		return Decision{Allowed: true}
	}
	if loc == nil {
		loc = time.Local
	}
	next := sched.Next(info.CompletedAt.In(loc))
	if next.IsZero() || !now.In(loc).Before(next) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Reading: info.Reading, NextAllowedAt: &next}
}

// CheckDiagnosis allows a diagnosis only when none was ever completed.
// Missing or malformed completion info fails open.
func CheckDiagnosis(info *DiagnosisInfo) Decision {
	if info == nil {
		return Decision{Allowed: true}
	}
	if info.CompletedAt.IsZero() || info.Result == nil {
		log.Printf("eligibility: malformed diagnosis completion (completed_at=%v, result=%v), allowing diagnosis",
			info.CompletedAt, info.Result != nil)
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Diagnosis: info.Result}
}

// Gate reads completion info from the store and applies the checks.
type Gate struct {
	store    CompletionReader
	schedule cron.Schedule
	now      func() time.Time
}

// GateOpts holds parameters for creating a Gate.
type GateOpts struct {
	Store         CompletionReader
	ResetSchedule string           // defaults to DefaultResetSchedule
	Now           func() time.Time // defaults to time.Now
}

// NewGate creates a Gate.
func NewGate(opts GateOpts) (*Gate, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("eligibility: store is required")
	}
	sched, err := ParseSchedule(opts.ResetSchedule)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{store: opts.Store, schedule: sched, now: now}, nil
}

// Tarot checks whether userID may draw now in the viewer's location.
func (g *Gate) Tarot(ctx context.Context, userID string, loc *time.Location) Decision {
	info, err := g.store.TarotCompletion(ctx, userID)
	if err != nil {
		log.Printf("eligibility: read tarot completion for %s: %v (allowing draw)", userID, err)
		return Decision{Allowed: true}
	}
	return CheckTarot(info, g.now(), loc, g.schedule)
}

// Diagnosis checks whether userID may start a diagnosis.
func (g *Gate) Diagnosis(ctx context.Context, userID string) Decision {
	info, err := g.store.DiagnosisCompletion(ctx, userID)
	if err != nil {
		log.Printf("eligibility: read diagnosis completion for %s: %v (allowing diagnosis)", userID, err)
		return Decision{Allowed: true}
	}
	return CheckDiagnosis(info)
}

// PeriodKey identifies the draw day containing t: two instants share a key
// exactly when no reset boundary lies between them.
func (g *Gate) PeriodKey(t time.Time, loc *time.Location) string {
	return PeriodKey(g.schedule, t, loc)
}

// PeriodKey is the end of the draw day containing t, in RFC 3339.
func PeriodKey(sched cron.Schedule, t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return sched.Next(t.In(loc)).Format(time.RFC3339)
}

// LocalDay formats t as the calendar date in loc.
func LocalDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}
