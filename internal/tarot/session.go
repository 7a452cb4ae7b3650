// Package tarot implements the once-a-day tarot reading: the fixed deck,
// the draw engine, and the session controller that walks a reader from
// choosing a target to saving a reflection.
package tarot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/history"
	"github.com/zulandar/uranai/internal/models"
)

// DefaultRevealDelay is how long the reveal step is shown before the result.
const DefaultRevealDelay = 3 * time.Second

// Step is a tarot session step.
type Step string

const (
	StepTargetSelect  Step = "target-select"
	StepMentalCheck   Step = "mental-check"
	StepShuffle       Step = "shuffle"
	StepCardSelect    Step = "card-select"
	StepReveal        Step = "reveal"
	StepResult        Step = "result"
	StepComment       Step = "comment"
	StepHistory       Step = "history"
	StepHistoryDetail Step = "history-detail"
)

// Target is who the reading is about.
type Target string

const (
	TargetSelf  Target = "self"
	TargetOther Target = "other"
)

// Mood is the reader's self-reported state before the draw. It is recorded
// with the reading and never influences the draw.
type Mood string

const (
	MoodSunny     Mood = "sunny"
	MoodCloudy    Mood = "cloudy"
	MoodRainy     Mood = "rainy"
	MoodVeryRainy Mood = "very-rainy"
)

// Feeling is the reader's reaction to the result.
type Feeling string

const (
	FeelingGood Feeling = "good"
	FeelingSoso Feeling = "soso"
	FeelingBad  Feeling = "bad"
)

func (t Target) valid() bool { return t == TargetSelf || t == TargetOther }

func (m Mood) valid() bool {
	switch m {
	case MoodSunny, MoodCloudy, MoodRainy, MoodVeryRainy:
		return true
	}
	return false
}

func (f Feeling) valid() bool {
	return f == FeelingGood || f == FeelingSoso || f == FeelingBad
}

// Input carries the data a step needs to advance. Only the field for the
// current step is read.
type Input struct {
	Target    Target `json:"target,omitempty"`
	Mood      Mood   `json:"mood,omitempty"`
	CardIndex *int   `json:"card_index,omitempty"`
}

// Recorder persists a finalized reading. The history record and the day's
// completion marker must be written together or not at all.
type Recorder interface {
	RecordTarot(ctx context.Context, rec *models.TarotReading, period string) error
}

// HistoryReader is the paginated history view used by the history steps.
type HistoryReader interface {
	List(ctx context.Context, userID string, page, perPage int) (*history.Page, error)
	Get(ctx context.Context, userID string, id uint) (*models.TarotReading, error)
}

// Sharer publishes a finalized reading to a team feed.
type Sharer interface {
	Share(ctx context.Context, rec *models.TarotReading) error
}

// Gate is the eligibility check consulted before a session starts.
type Gate interface {
	Tarot(ctx context.Context, userID string, loc *time.Location) eligibility.Decision
	PeriodKey(t time.Time, loc *time.Location) string
}

// Timer is a pending auto-advance.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Opts holds parameters for creating a Session.
type Opts struct {
	ID          string
	UserID      string
	Recorder    Recorder
	History     HistoryReader
	Gate        Gate
	Sharer      Sharer           // optional
	Deck        Deck             // defaults to MajorArcana
	Rand        *rand.Rand       // defaults to NewRand()
	Location    *time.Location   // viewer's zone; defaults to time.Local
	RevealDelay time.Duration    // defaults to DefaultRevealDelay
	PerPage     int              // history page size; 0 lets the reader decide
	AfterFunc   AfterFunc        // defaults to time.AfterFunc
	Now         func() time.Time // defaults to time.Now
	OnStep      flow.Listener    // optional step-change notification
}

// Session is one pass through the tarot flow. All methods are safe for
// concurrent use; calls are serialized so a transition never interleaves
// with another on the same session.
type Session struct {
	mu sync.Mutex

	id          string
	userID      string
	recorder    Recorder
	history     HistoryReader
	gate        Gate
	sharer      Sharer
	deck        Deck
	rng         *rand.Rand
	loc         *time.Location
	revealDelay time.Duration
	perPage     int
	afterFunc   AfterFunc
	now         func() time.Time
	onStep      flow.Listener

	step     Step
	origin   Step // step to return to when history is closed
	target   Target
	mood     Mood
	pool     *Pool
	selected *int
	drawn    *DrawnCard

	finalized bool
	record    *models.TarotReading

	// drawnElsewhere is set when another session saved today's reading
	// first. The session can no longer be finished.
	drawnElsewhere bool
	existing       *models.TarotReading

	page   *history.Page
	detail *models.TarotReading

	revealTimer Timer
	revealGen   int
	closed      bool

	lastErr    string
	lastActive time.Time
}

// Start consults the gate and, when allowed, returns a new session at
// target-select. When the user already drew in the current draw day no
// session is created and the decision carries the stored reading.
func Start(ctx context.Context, opts Opts) (*Session, eligibility.Decision, error) {
	if opts.Gate == nil {
		return nil, eligibility.Decision{}, fmt.Errorf("tarot: gate is required")
	}
	decision := opts.Gate.Tarot(ctx, opts.UserID, opts.Location)
	if !decision.Allowed {
		return nil, decision, nil
	}
	s, err := New(opts)
	if err != nil {
		return nil, decision, err
	}
	return s, decision, nil
}

// New creates a session at target-select without consulting the gate.
func New(opts Opts) (*Session, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("tarot: session id is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("tarot: user id is required")
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("tarot: recorder is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("tarot: history reader is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("tarot: gate is required")
	}
	deck := opts.Deck
	if deck == nil {
		deck = MajorArcana
	}
	if len(deck) < PoolSize {
		return nil, fmt.Errorf("tarot: deck has %d cards, need at least %d", len(deck), PoolSize)
	}
	s := &Session{
		id:          opts.ID,
		userID:      opts.UserID,
		recorder:    opts.Recorder,
		history:     opts.History,
		gate:        opts.Gate,
		sharer:      opts.Sharer,
		deck:        deck,
		rng:         opts.Rand,
		loc:         opts.Location,
		revealDelay: opts.RevealDelay,
		perPage:     opts.PerPage,
		afterFunc:   opts.AfterFunc,
		now:         opts.Now,
		onStep:      opts.OnStep,
		step:        StepTargetSelect,
	}
	if s.rng == nil {
		s.rng = NewRand()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.revealDelay <= 0 {
		s.revealDelay = DefaultRevealDelay
	}
	if s.afterFunc == nil {
		s.afterFunc = realAfterFunc
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.lastActive = s.now()
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// LastActive returns the time of the last call into the session.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// lock acquires the session and returns the current step so unlock can
// detect a change.
func (s *Session) lock() Step {
	s.mu.Lock()
	s.lastActive = s.now()
	return s.step
}

// unlock releases the session and notifies the listener, outside the lock,
// if the step changed.
func (s *Session) unlock(before Step) {
	after := s.step
	s.mu.Unlock()
	if after != before && s.onStep != nil {
		s.onStep(s.id, string(after))
	}
}

// fail records err as the session's current error message and returns it.
// Sequence errors are logged since they indicate a caller bug.
func (s *Session) fail(err *flow.Error) error {
	s.lastErr = err.Msg
	if err.Kind == flow.KindSequence {
		log.Printf("tarot: session %s: %v (step=%s)", s.id, err, s.step)
	}
	return err
}

func (s *Session) ok() error {
	s.lastErr = ""
	return nil
}

// Advance moves the session forward from the current step, validating the
// input that step requires.
func (s *Session) Advance(ctx context.Context, in Input) error {
	defer s.unlock(s.lock())
	const op = "tarot.advance"

	if s.closed {
		return s.fail(flow.Sequence(op, "session is closed"))
	}

	switch s.step {
	case StepTargetSelect:
		if !in.Target.valid() {
			return s.fail(flow.Validation(op, "choose who the reading is for"))
		}
		s.target = in.Target
		s.step = StepMentalCheck

	case StepMentalCheck:
		if !in.Mood.valid() {
			return s.fail(flow.Validation(op, "choose how you are feeling"))
		}
		pool, err := Shuffle(s.rng, s.deck)
		if err != nil {
			return s.fail(flow.IO(op, "could not shuffle the deck", err))
		}
		s.mood = in.Mood
		s.pool = &pool
		s.step = StepShuffle

	case StepShuffle:
		s.step = StepCardSelect

	case StepCardSelect:
		if in.CardIndex == nil {
			return s.fail(flow.Validation(op, "choose a card"))
		}
		idx := *in.CardIndex
		if idx < 0 || idx >= PoolSize {
			return s.fail(flow.Validation(op, "card index %d is out of range [0,%d]", idx, PoolSize-1))
		}
		drawn, err := Draw(s.rng, *s.pool, idx)
		if err != nil {
			return s.fail(flow.Validation(op, "%v", err))
		}
		s.selected = &idx
		s.drawn = &drawn
		s.step = StepReveal
		s.scheduleReveal()

	case StepResult:
		s.step = StepComment

	case StepReveal:
		return s.fail(flow.Sequence(op, "the card is still being revealed"))
	case StepComment:
		return s.fail(flow.Sequence(op, "save your reflection to finish"))
	default:
		return s.fail(flow.Sequence(op, "cannot advance from %s", s.step))
	}
	return s.ok()
}

// scheduleReveal arms the reveal auto-advance. Caller holds the lock.
func (s *Session) scheduleReveal() {
	s.revealGen++
	gen := s.revealGen
	s.revealTimer = s.afterFunc(s.revealDelay, func() { s.finishReveal(gen) })
}

// finishReveal moves reveal to result unless the session was closed or the
// timer is stale.
func (s *Session) finishReveal(gen int) {
	s.mu.Lock()
	before := s.step
	if s.closed || s.step != StepReveal || gen != s.revealGen {
		s.mu.Unlock()
		return
	}
	s.revealTimer = nil
	s.step = StepResult
	s.unlock(before)
}

// Retreat steps back from mental-check to target-select. Every other step
// is not re-enterable and the call is rejected without changing state.
func (s *Session) Retreat() error {
	defer s.unlock(s.lock())
	const op = "tarot.retreat"

	if s.closed {
		return s.fail(flow.Sequence(op, "session is closed"))
	}
	if s.step != StepMentalCheck {
		return s.fail(flow.Sequence(op, "cannot go back from %s", s.step))
	}
	s.step = StepTargetSelect
	return s.ok()
}

// Finalize saves the reader's reflection and writes the history record.
// feeling must be good, soso or bad and comment must not be blank. If the
// write fails the session stays unfinalized on the comment step. If another
// session already saved today's reading, that reading is exposed on the
// view and every later finish is refused.
func (s *Session) Finalize(ctx context.Context, feeling Feeling, comment string) error {
	defer s.unlock(s.lock())
	const op = "tarot.finalize"

	if err := s.checkFinalizable(op, StepComment); err != nil {
		return err
	}
	if !feeling.valid() {
		return s.fail(flow.Validation(op, "choose how the reading made you feel"))
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return s.fail(flow.Validation(op, "write a comment before saving"))
	}
	return s.commit(ctx, op, feeling, comment)
}

// Complete finishes the session without a reflection. It is allowed from
// result or comment.
func (s *Session) Complete(ctx context.Context) error {
	defer s.unlock(s.lock())
	const op = "tarot.complete"

	if err := s.checkFinalizable(op, StepResult, StepComment); err != nil {
		return err
	}
	return s.commit(ctx, op, "", "")
}

func (s *Session) checkFinalizable(op string, steps ...Step) error {
	if s.closed {
		return s.fail(flow.Sequence(op, "session is closed"))
	}
	if s.finalized {
		return s.fail(flow.Sequence(op, "this reading has already been saved"))
	}
	if s.drawnElsewhere {
		return s.fail(flow.Sequence(op, "you have already drawn a card today"))
	}
	for _, st := range steps {
		if s.step == st {
			return nil
		}
	}
	return s.fail(flow.Sequence(op, "cannot finish from %s", s.step))
}

// commit writes the record. Caller holds the lock and has validated input.
func (s *Session) commit(ctx context.Context, op string, feeling Feeling, comment string) error {
	now := s.now()
	rec := &models.TarotReading{
		UserID:         s.userID,
		SessionID:      s.id,
		Target:         string(s.target),
		Mood:           string(s.mood),
		CardID:         s.drawn.Card.ID,
		CardName:       s.drawn.Card.Name,
		Reversed:       s.drawn.Reversed,
		Interpretation: s.drawn.Interpretation(),
		Feeling:        string(feeling),
		Comment:        comment,
		LocalDay:       eligibility.LocalDay(now, s.loc),
		CreatedAt:      now,
	}
	if err := s.recorder.RecordTarot(ctx, rec, s.gate.PeriodKey(now, s.loc)); err != nil {
		if errors.Is(err, flow.ErrCompleted) {
			s.drawnElsewhere = true
			s.existing = s.gate.Tarot(ctx, s.userID, s.loc).Reading
			log.Printf("tarot: session %s: %s already drew today in another session", s.id, s.userID)
		}
		var fe *flow.Error
		if errors.As(err, &fe) {
			return s.fail(fe)
		}
		return s.fail(flow.IO(op, "could not save your reading, please try again", err))
	}
	s.finalized = true
	s.record = rec
	log.Printf("tarot: session %s finalized reading %d for %s (%s, reversed=%v)",
		s.id, rec.ID, s.userID, rec.CardName, rec.Reversed)

	if s.sharer != nil {
		shared := *rec
		go func() {
			shareCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.sharer.Share(shareCtx, &shared); err != nil {
				log.Printf("tarot: session %s: share reading %d: %v", s.id, shared.ID, err)
			}
		}()
	}
	return s.ok()
}

// OpenHistory shows a page of past readings. It is reachable from result
// and comment and pages within history. The page fetch completes before the
// step changes; on failure the session stays where it was.
func (s *Session) OpenHistory(ctx context.Context, page int) error {
	defer s.unlock(s.lock())
	const op = "tarot.history"

	if s.closed {
		return s.fail(flow.Sequence(op, "session is closed"))
	}
	switch s.step {
	case StepResult, StepComment, StepHistory:
	default:
		return s.fail(flow.Sequence(op, "history is not available from %s", s.step))
	}

	p, err := s.history.List(ctx, s.userID, page, s.perPage)
	if err != nil {
		return s.failFrom(op, "could not load history", err)
	}
	p = history.Merge(p, s.record)

	if s.step != StepHistory {
		s.origin = s.step
	}
	s.page = p
	s.step = StepHistory
	return s.ok()
}

// OpenDetail shows a single past reading. Unknown ids leave the session on
// the history list with a not-found error.
func (s *Session) OpenDetail(ctx context.Context, id uint) error {
	defer s.unlock(s.lock())
	const op = "tarot.history_detail"

	if s.closed {
		return s.fail(flow.Sequence(op, "session is closed"))
	}
	if s.step != StepHistory {
		return s.fail(flow.Sequence(op, "open history first"))
	}

	var rec *models.TarotReading
	if s.record != nil && s.record.ID == id {
		cp := *s.record
		rec = &cp
	} else {
		got, err := s.history.Get(ctx, s.userID, id)
		if err != nil {
			return s.failFrom(op, "could not load reading", err)
		}
		rec = got
	}
	s.detail = rec
	s.step = StepHistoryDetail
	return s.ok()
}

// CloseDetail returns from a single reading to the history list.
func (s *Session) CloseDetail() error {
	defer s.unlock(s.lock())
	if s.step != StepHistoryDetail {
		return s.fail(flow.Sequence("tarot.close_detail", "no reading is open"))
	}
	s.detail = nil
	s.step = StepHistory
	return s.ok()
}

// CloseHistory returns to the step history was opened from.
func (s *Session) CloseHistory() error {
	defer s.unlock(s.lock())
	if s.step != StepHistory {
		return s.fail(flow.Sequence("tarot.close_history", "history is not open"))
	}
	s.page = nil
	s.step = s.origin
	return s.ok()
}

func (s *Session) failFrom(op, msg string, err error) error {
	var fe *flow.Error
	if errors.As(err, &fe) {
		return s.fail(fe)
	}
	return s.fail(flow.IO(op, msg, err))
}

// Close tears the session down and cancels a pending reveal. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.revealTimer != nil {
		s.revealTimer.Stop()
		s.revealTimer = nil
	}
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// View is what the presentation layer needs to render the current step.
type View struct {
	ID             string               `json:"id"`
	Step           Step                 `json:"step"`
	Target         Target               `json:"target,omitempty"`
	Mood           Mood                 `json:"mood,omitempty"`
	FaceDown       int                  `json:"face_down,omitempty"`
	SelectedIndex  *int                 `json:"selected_index,omitempty"`
	Drawn          *DrawnCard           `json:"drawn,omitempty"`
	Interpretation string               `json:"interpretation,omitempty"`
	Finalized      bool                 `json:"finalized"`
	Record         *models.TarotReading `json:"record,omitempty"`
	DrawnElsewhere bool                 `json:"drawn_elsewhere,omitempty"`
	Existing       *models.TarotReading `json:"existing,omitempty"` // the reading saved by the other session
	History        *history.Page        `json:"history,omitempty"`
	Detail         *models.TarotReading `json:"detail,omitempty"`
	Error          string               `json:"error,omitempty"`
	Closed         bool                 `json:"closed,omitempty"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.id,
		Step:      s.step,
		Target:    s.target,
		Mood:      s.mood,
		Finalized: s.finalized,
		Error:     s.lastErr,
		Closed:    s.closed,
	}
	if s.step == StepCardSelect {
		v.FaceDown = PoolSize
	}
	if s.selected != nil {
		idx := *s.selected
		v.SelectedIndex = &idx
	}
	if s.drawn != nil {
		d := *s.drawn
		v.Drawn = &d
		if s.step != StepReveal {
			v.Interpretation = d.Interpretation()
		}
	}
	if s.record != nil {
		rec := *s.record
		v.Record = &rec
	}
	v.DrawnElsewhere = s.drawnElsewhere
	if s.existing != nil {
		rec := *s.existing
		v.Existing = &rec
	}
	if s.step == StepHistory || s.step == StepHistoryDetail {
		v.History = s.page
	}
	if s.step == StepHistoryDetail && s.detail != nil {
		d := *s.detail
		v.Detail = &d
	}
	return v
}
