package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/uranai/internal/eligibility"
	"github.com/zulandar/uranai/internal/flow"
	"github.com/zulandar/uranai/internal/models"
)

// Step is a diagnosis session step.
type Step string

const (
	StepLanding  Step = "landing"
	StepQuestion Step = "question"
	StepGender   Step = "gender"
	StepResult   Step = "result"
)

// Store persists a completed diagnosis. The result and the lifetime
// completion marker are written together, and a second result for the same
// user is rejected with an error wrapping flow.ErrCompleted.
type Store interface {
	SaveDiagnosis(ctx context.Context, res *models.DiagnosisResult) error
	DiagnosisResult(ctx context.Context, userID string) (*models.DiagnosisResult, error)
}

// Gate is the eligibility check consulted when a session starts.
type Gate interface {
	Diagnosis(ctx context.Context, userID string) eligibility.Decision
}

// Opts holds parameters for creating a Session.
type Opts struct {
	ID            string
	UserID        string
	Questionnaire *Questionnaire
	Store         Store
	Gate          Gate             // consulted by Start only
	Now           func() time.Time // defaults to time.Now
	OnStep        flow.Listener
}

// Session is one pass through the diagnosis. A completed session is
// read-only: answers, gender and levels never change again.
type Session struct {
	mu sync.Mutex

	id     string
	userID string
	q      *Questionnaire
	store  Store
	now    func() time.Time
	onStep flow.Listener

	step     Step
	question int // current question id while on StepQuestion
	answers  Answers
	gender   string

	completed bool
	levels    *Levels
	result    *models.DiagnosisResult

	closed     bool
	lastErr    string
	lastActive time.Time
}

// Start consults the gate. A user who already completed the diagnosis gets
// a read-only session parked on result with the stored levels; everyone
// else gets a fresh session on the landing step.
func Start(ctx context.Context, opts Opts) (*Session, error) {
	if opts.Gate == nil {
		return nil, fmt.Errorf("diagnosis: gate is required")
	}
	decision := opts.Gate.Diagnosis(ctx, opts.UserID)
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed && decision.Diagnosis != nil {
		s.restore(decision.Diagnosis)
	}
	return s, nil
}

// New creates a session on the landing step without consulting the gate.
func New(opts Opts) (*Session, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("diagnosis: session id is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("diagnosis: user id is required")
	}
	if opts.Questionnaire == nil {
		return nil, fmt.Errorf("diagnosis: questionnaire is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("diagnosis: store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		id:         opts.ID,
		userID:     opts.UserID,
		q:          opts.Questionnaire,
		store:      opts.Store,
		now:        now,
		onStep:     opts.OnStep,
		step:       StepLanding,
		answers:    make(Answers, QuestionCount),
		lastActive: now(),
	}, nil
}

// restore parks the session on a stored result.
func (s *Session) restore(res *models.DiagnosisResult) {
	lv := LevelsOf(res)
	s.completed = true
	s.levels = &lv
	s.result = res
	s.gender = res.Gender
	if res.Answers != "" {
		var stored Answers
		if err := json.Unmarshal([]byte(res.Answers), &stored); err != nil {
			log.Printf("diagnosis: session %s: stored answers for %s unreadable: %v", s.id, s.userID, err)
		} else {
			s.answers = stored
		}
	}
	s.step = StepResult
}

// LevelsOf extracts the levels from a stored result.
func LevelsOf(res *models.DiagnosisResult) Levels {
	return Levels{
		Craftsmanship: res.Craftsmanship,
		Hunting:       res.Hunting,
		Empathy:       res.Empathy,
		Defense:       res.Defense,
		Leap:          res.Leap,
	}
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

type mark struct {
	step     Step
	question int
}

func (s *Session) lock() mark {
	s.mu.Lock()
	s.lastActive = s.now()
	return mark{s.step, s.question}
}

// unlock releases the session and notifies the listener if the step or
// question moved.
func (s *Session) unlock(before mark) {
	after := mark{s.step, s.question}
	s.mu.Unlock()
	if after != before && s.onStep != nil {
		s.onStep(s.id, after.String())
	}
}

func (m mark) String() string {
	if m.step == StepQuestion {
		return fmt.Sprintf("%s-%d", m.step, m.question)
	}
	return string(m.step)
}

func (s *Session) fail(err *flow.Error) error {
	s.lastErr = err.Msg
	if err.Kind == flow.KindSequence {
		log.Printf("diagnosis: session %s: %v (step=%s)", s.id, err, mark{s.step, s.question})
	}
	return err
}

func (s *Session) ok() error {
	s.lastErr = ""
	return nil
}

// guard rejects calls on a closed or completed session.
func (s *Session) guard(op string) error {
	if s.closed {
		return s.fail(flow.Sequence(op, "session is closed"))
	}
	if s.completed {
		return s.fail(flow.Sequence(op, "the diagnosis is already complete"))
	}
	return nil
}

// Begin leaves the landing step for the first question.
func (s *Session) Begin() error {
	defer s.unlock(s.lock())
	const op = "diagnosis.begin"
	if err := s.guard(op); err != nil {
		return err
	}
	if s.step != StepLanding {
		return s.fail(flow.Sequence(op, "the diagnosis has already begun"))
	}
	s.step = StepQuestion
	s.question = 1
	return s.ok()
}

// Answer stores or overwrites the score for question id. It does not move
// the session.
func (s *Session) Answer(id, score int) error {
	defer s.unlock(s.lock())
	const op = "diagnosis.answer"
	if err := s.guard(op); err != nil {
		return err
	}
	if s.step != StepQuestion && s.step != StepGender {
		return s.fail(flow.Sequence(op, "cannot answer from %s", s.step))
	}
	if _, ok := s.q.Question(id); !ok {
		return s.fail(flow.Validation(op, "unknown question %d", id))
	}
	if score < MinScore || score > MaxScore {
		return s.fail(flow.Validation(op, "choose a score between %d and %d", MinScore, MaxScore))
	}
	s.answers[id] = score
	return s.ok()
}

// SetGender records the gender asked on the final step.
func (s *Session) SetGender(gender string) error {
	defer s.unlock(s.lock())
	const op = "diagnosis.gender"
	if err := s.guard(op); err != nil {
		return err
	}
	if s.step != StepGender {
		return s.fail(flow.Sequence(op, "gender is asked after the last question"))
	}
	if !s.q.ValidGender(gender) {
		return s.fail(flow.Validation(op, "choose one of the listed options"))
	}
	s.gender = gender
	return s.ok()
}

// Next moves forward. A question must be answered before moving past it.
// On the gender step Next scores the answers and saves the result; if the
// save fails the session stays on gender, uncompleted. If another session
// completed the diagnosis first, the stored result is loaded and the session
// becomes read-only on result, and the refusal is still returned.
func (s *Session) Next(ctx context.Context) error {
	defer s.unlock(s.lock())
	const op = "diagnosis.next"
	if err := s.guard(op); err != nil {
		return err
	}

	switch s.step {
	case StepLanding:
		s.step = StepQuestion
		s.question = 1
	case StepQuestion:
		if _, ok := s.answers[s.question]; !ok {
			return s.fail(flow.Validation(op, "answer question %d to continue", s.question))
		}
		if s.question < QuestionCount {
			s.question++
		} else {
			s.step = StepGender
			s.question = 0
		}
	case StepGender:
		if s.gender == "" {
			return s.fail(flow.Validation(op, "choose a gender to see your result"))
		}
		return s.complete(ctx, op)
	default:
		return s.fail(flow.Sequence(op, "cannot advance from %s", s.step))
	}
	return s.ok()
}

// complete scores and persists. Caller holds the lock.
func (s *Session) complete(ctx context.Context, op string) error {
	lv, err := Score(s.q, s.answers, s.gender)
	if err != nil {
		var fe *flow.Error
		if errors.As(err, &fe) {
			return s.fail(fe)
		}
		return s.fail(flow.Validation(op, "%v", err))
	}
	answers, err := json.Marshal(s.answers)
	if err != nil {
		return s.fail(flow.IO(op, "could not save your result, please try again", err))
	}
	res := &models.DiagnosisResult{
		UserID:               s.userID,
		QuestionnaireVersion: s.q.Version,
		Gender:               s.gender,
		Answers:              string(answers),
		Craftsmanship:        lv.Craftsmanship,
		Hunting:              lv.Hunting,
		Empathy:              lv.Empathy,
		Defense:              lv.Defense,
		Leap:                 lv.Leap,
		CompletedAt:          s.now(),
	}
	if err := s.store.SaveDiagnosis(ctx, res); err != nil {
		if errors.Is(err, flow.ErrCompleted) {
			s.adoptStored(ctx)
		}
		var fe *flow.Error
		if errors.As(err, &fe) {
			return s.fail(fe)
		}
		return s.fail(flow.IO(op, "could not save your result, please try again", err))
	}
	s.completed = true
	s.levels = &lv
	s.result = res
	s.step = StepResult
	log.Printf("diagnosis: session %s completed for %s (%+v)", s.id, s.userID, lv)
	return s.ok()
}

// adoptStored parks the session on the result another session saved. If the
// result cannot be read the session is left as it was, so a retry of Next
// tries again. Caller holds the lock.
func (s *Session) adoptStored(ctx context.Context) {
	stored, err := s.store.DiagnosisResult(ctx, s.userID)
	if err != nil || stored == nil {
		log.Printf("diagnosis: session %s: load completed result for %s: %v", s.id, s.userID, err)
		return
	}
	s.restore(stored)
	log.Printf("diagnosis: session %s: %s completed elsewhere, showing stored result", s.id, s.userID)
}

// Back moves one step backward. From the first question it returns to the
// landing step.
func (s *Session) Back() error {
	defer s.unlock(s.lock())
	const op = "diagnosis.back"
	if err := s.guard(op); err != nil {
		return err
	}
	switch s.step {
	case StepQuestion:
		if s.question > 1 {
			s.question--
		} else {
			s.step = StepLanding
			s.question = 0
		}
	case StepGender:
		s.step = StepQuestion
		s.question = QuestionCount
	default:
		return s.fail(flow.Sequence(op, "cannot go back from %s", s.step))
	}
	return s.ok()
}

// Close marks the session closed. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// View is what the presentation layer needs to render the current step.
type View struct {
	ID         string    `json:"id"`
	Step       Step      `json:"step"`
	Question   *Question `json:"question,omitempty"`
	Number     int       `json:"number,omitempty"` // 1-based position among the 13 input steps
	Total      int       `json:"total"`
	Answer     int       `json:"answer,omitempty"` // current answer to Question, if any
	Answered   int       `json:"answered"`
	Genders    []string  `json:"genders,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	Levels     *Levels   `json:"levels,omitempty"`
	Completed  bool      `json:"completed"`
	ReadOnly   bool      `json:"read_only"`
	Error      string    `json:"error,omitempty"`
	Closed     bool      `json:"closed,omitempty"`
	Version    string    `json:"version"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:        s.id,
		Step:      s.step,
		Total:     QuestionCount + 1,
		Answered:  len(s.answers),
		Gender:    s.gender,
		Completed: s.completed,
		ReadOnly:  s.completed,
		Error:     s.lastErr,
		Closed:    s.closed,
		Version:   s.q.Version,
	}
	switch s.step {
	case StepQuestion:
		if qu, ok := s.q.Question(s.question); ok {
			v.Question = &qu
		}
		v.Number = s.question
		v.Answer = s.answers[s.question]
	case StepGender:
		v.Number = QuestionCount + 1
		v.Genders = append([]string(nil), s.q.Genders...)
	}
	if s.levels != nil {
		lv := *s.levels
		v.Levels = &lv
	}
	if s.result != nil {
		v.FinishedAt = s.result.CompletedAt
		if s.result.QuestionnaireVersion != "" {
			v.Version = s.result.QuestionnaireVersion
		}
	}
	return v
}
