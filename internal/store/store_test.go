package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/uranai/internal/config"
	"github.com/zulandar/uranai/internal/db"
	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/history"
	"github.com/zulandar/uranai/internal/models"
	"gorm.io/gorm"
)

func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	gormDB, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	s, err := New(gormDB)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, gormDB
}

func reading(user, session string, at time.Time) *models.TarotReading {
	return &models.TarotReading{
		UserID:         user,
		SessionID:      session,
		Target:         "self",
		Mood:           "sunny",
		CardID:         19,
		CardName:       "The Sun",
		Interpretation: "Joy and success.",
		LocalDay:       at.Format("2006-01-02"),
		CreatedAt:      at,
	}
}

func TestNew_NilDB(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestRecordTarot(t *testing.T) {
	s, gormDB := testStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	rec := reading("u1", "s1", at)
	if err := s.RecordTarot(ctx, rec, "2026-10-17T00:00:00Z"); err != nil {
		t.Fatalf("RecordTarot: %v", err)
	}
	if rec.ID == 0 {
		t.Error("reading ID should be assigned")
	}

	var c models.Completion
	if err := gormDB.Where("user_id = ? AND kind = ?", "u1", models.CompletionTarot).First(&c).Error; err != nil {
		t.Fatalf("load completion: %v", err)
	}
	if c.ReadingID == nil || *c.ReadingID != rec.ID || c.Period != "2026-10-17T00:00:00Z" {
		t.Errorf("completion = %+v, want reading %d", c, rec.ID)
	}
}

func TestRecordTarot_SamePeriodRejected(t *testing.T) {
	s, gormDB := testStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	period := "2026-10-17T00:00:00Z"

	if err := s.RecordTarot(ctx, reading("u1", "s1", at), period); err != nil {
		t.Fatalf("RecordTarot: %v", err)
	}
	err := s.RecordTarot(ctx, reading("u1", "s2", at.Add(time.Hour)), period)
	if !flow.IsKind(err, flow.KindSequence) {
		t.Fatalf("second RecordTarot: err = %v, want sequence", err)
	}

	var count int64
	gormDB.Model(&models.TarotReading{}).Where("user_id = ?", "u1").Count(&count)
	if count != 1 {
		t.Errorf("readings = %d, want 1 (rejected write must roll back)", count)
	}

	// Next day is fine and moves the completion forward.
	next := reading("u1", "s3", at.Add(24*time.Hour))
	if err := s.RecordTarot(ctx, next, "2026-10-18T00:00:00Z"); err != nil {
		t.Fatalf("next-day RecordTarot: %v", err)
	}
	info, err := s.TarotCompletion(ctx, "u1")
	if err != nil {
		t.Fatalf("TarotCompletion: %v", err)
	}
	if info.Reading == nil || info.Reading.ID != next.ID {
		t.Errorf("completion reading = %+v, want %d", info.Reading, next.ID)
	}

	// Another user is independent.
	if err := s.RecordTarot(ctx, reading("u2", "s4", at), period); err != nil {
		t.Errorf("other user RecordTarot: %v", err)
	}
}

func TestRecordTarot_Concurrent(t *testing.T) {
	s, gormDB := testStore(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.RecordTarot(ctx, reading("u1", fmt.Sprintf("s%d", i), at), "p1")
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("successful writes = %d, want 1", ok)
	}
	var count int64
	gormDB.Model(&models.TarotReading{}).Count(&count)
	if count != 1 {
		t.Errorf("readings = %d, want 1", count)
	}
}

func TestRecordTarot_RequiresUser(t *testing.T) {
	s, _ := testStore(t)
	if err := s.RecordTarot(context.Background(), &models.TarotReading{}, "p"); err == nil {
		t.Error("expected error for missing user")
	}
}

func TestTarotCompletion(t *testing.T) {
	s, gormDB := testStore(t)
	ctx := context.Background()

	info, err := s.TarotCompletion(ctx, "nobody")
	if err != nil || info != nil {
		t.Fatalf("TarotCompletion(nobody) = %+v, %v; want nil, nil", info, err)
	}

	// A completion whose reading vanished is returned without a reading.
	missing := uint(999)
	gormDB.Create(&models.Completion{
		UserID: "ghost", Kind: models.CompletionTarot, Period: "p", ReadingID: &missing, CompletedAt: time.Now(),
	})
	info, err = s.TarotCompletion(ctx, "ghost")
	if err != nil {
		t.Fatalf("TarotCompletion(ghost): %v", err)
	}
	if info == nil || info.Reading != nil {
		t.Errorf("info = %+v, want completion without reading", info)
	}
}

// Morning draw blocks a second draw the same day through the real gate.
func TestGate_SameDayWithStore(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	loc := time.UTC
	morning := time.Date(2026, 10, 16, 7, 30, 0, 0, loc)
	evening := time.Date(2026, 10, 16, 21, 0, 0, 0, loc)

	gate, err := eligibility.NewGate(eligibility.GateOpts{Store: s, Now: func() time.Time { return evening }})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	rec := reading("u1", "s1", morning)
	if err := s.RecordTarot(ctx, rec, gate.PeriodKey(morning, loc)); err != nil {
		t.Fatalf("RecordTarot: %v", err)
	}

	d := gate.Tarot(ctx, "u1", loc)
	if d.Allowed {
		t.Fatal("second draw the same day should be blocked")
	}
	if d.Reading == nil || d.Reading.ID != rec.ID {
		t.Errorf("Reading = %+v, want morning reading %d", d.Reading, rec.ID)
	}

	// The evening write would land in the same period and is refused.
	if err := s.RecordTarot(ctx, reading("u1", "s2", evening), gate.PeriodKey(evening, loc)); !flow.IsKind(err, flow.KindSequence) {
		t.Errorf("evening RecordTarot: err = %v, want sequence", err)
	}
}

func TestSaveDiagnosis(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	done := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	res := &models.DiagnosisResult{
		UserID: "u1", QuestionnaireVersion: "v1", Gender: "男性", Answers: `{"1":3}`,
		Craftsmanship: 2, Hunting: 2, Empathy: 3, Defense: 2, Leap: 2, CompletedAt: done,
	}

	info, err := s.DiagnosisCompletion(ctx, "u1")
	if err != nil || info != nil {
		t.Fatalf("DiagnosisCompletion before save = %+v, %v; want nil, nil", info, err)
	}

	if err := s.SaveDiagnosis(ctx, res); err != nil {
		t.Fatalf("SaveDiagnosis: %v", err)
	}
	dup := *res
	dup.Empathy = 1
	if err := s.SaveDiagnosis(ctx, &dup); !flow.IsKind(err, flow.KindSequence) {
		t.Errorf("duplicate SaveDiagnosis: err = %v, want sequence", err)
	}

	info, err = s.DiagnosisCompletion(ctx, "u1")
	if err != nil {
		t.Fatalf("DiagnosisCompletion: %v", err)
	}
	if info == nil || info.Result == nil || info.Result.Empathy != 3 || !info.CompletedAt.Equal(done) {
		t.Errorf("info = %+v, want stored result with empathy 3", info)
	}

	got, err := s.DiagnosisResult(ctx, "u2")
	if err != nil || got != nil {
		t.Errorf("DiagnosisResult(u2) = %+v, %v; want nil, nil", got, err)
	}
}

func TestListReadings(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		at := base.AddDate(0, 0, i)
		if err := s.RecordTarot(ctx, reading("u1", fmt.Sprintf("s%d", i), at), at.Format(time.RFC3339)); err != nil {
			t.Fatalf("RecordTarot %d: %v", i, err)
		}
	}
	if err := s.RecordTarot(ctx, reading("u2", "other", base), "x"); err != nil {
		t.Fatalf("RecordTarot u2: %v", err)
	}

	recs, total, err := s.ListReadings(ctx, "u1", 0, 3)
	if err != nil {
		t.Fatalf("ListReadings: %v", err)
	}
	if total != 7 || len(recs) != 3 {
		t.Fatalf("total=%d len=%d, want 7 and 3", total, len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if !recs[i-1].CreatedAt.After(recs[i].CreatedAt) {
			t.Errorf("records not newest first: %v then %v", recs[i-1].CreatedAt, recs[i].CreatedAt)
		}
	}
	if recs[0].SessionID != "s6" {
		t.Errorf("first = %s, want s6", recs[0].SessionID)
	}

	again, _, _ := s.ListReadings(ctx, "u1", 0, 3)
	for i := range recs {
		if recs[i].ID != again[i].ID {
			t.Errorf("refetch differs at %d: %d vs %d", i, recs[i].ID, again[i].ID)
		}
	}

	last, _, err := s.ListReadings(ctx, "u1", 6, 3)
	if err != nil {
		t.Fatalf("ListReadings last page: %v", err)
	}
	if len(last) != 1 || last[0].SessionID != "s0" {
		t.Errorf("last page = %+v, want s0 only", last)
	}
}

func TestGetReading(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	rec := reading("u1", "s1", time.Now())
	if err := s.RecordTarot(ctx, rec, "p"); err != nil {
		t.Fatalf("RecordTarot: %v", err)
	}

	got, err := s.GetReading(ctx, "u1", rec.ID)
	if err != nil {
		t.Fatalf("GetReading: %v", err)
	}
	if got.CardName != "The Sun" {
		t.Errorf("CardName = %q, want %q", got.CardName, "The Sun")
	}

	if _, err := s.GetReading(ctx, "u1", rec.ID+100); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("GetReading(missing): err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetReading(ctx, "u2", rec.ID); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("GetReading(other user): err = %v, want ErrNotFound", err)
	}
}

// The store satisfies the history reader end to end.
func TestHistoryReaderOverStore(t *testing.T) {
	s, _ := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.AddDate(0, 0, i)
		if err := s.RecordTarot(ctx, reading("u1", fmt.Sprintf("s%d", i), at), at.Format(time.RFC3339)); err != nil {
			t.Fatalf("RecordTarot: %v", err)
		}
	}
	r, err := history.NewReader(history.ReaderOpts{Store: s})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	page, err := r.List(ctx, "u1", 2, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.TotalPages != 2 || page.CurrentPage != 2 || len(page.Records) != 1 {
		t.Errorf("page = %+v", page)
	}
	if _, err := r.Get(ctx, "u1", 12345); !flow.IsKind(err, flow.KindNotFound) {
		t.Errorf("Get(missing): err = %v, want not found", err)
	}
}
