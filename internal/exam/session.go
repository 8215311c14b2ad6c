// Package exam holds the state of a mock exam being taken: the three-step
// wizard (setup, taking, review), the countdown with pause and resume, and
// the answer grid.
package exam

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/preupac/simulador/internal/model"
)

// Phase is the wizard step an exam session is in.
type Phase string

const (
	PhaseSetup  Phase = "setup"
	PhaseTaking Phase = "taking"
	PhaseReview Phase = "review"
)

// MaxQuestions bounds the size of an answer sheet.
const MaxQuestions = 100

// Duration bounds for the countdown.
const (
	MinDuration = time.Minute
	MaxDuration = 5 * time.Hour
)

var (
	ErrWrongPhase    = errors.New("not allowed in this phase")
	ErrPaused        = errors.New("exam is paused")
	ErrQuestionRange = errors.New("question number out of range")
	ErrInvalidOption = errors.New("option not available")
)

// Preset is the default length of an ensayo for a subject.
type Preset struct {
	Questions int
	Duration  time.Duration
}

// Presets mirror the admission test each ensayo simulates.
var Presets = map[model.Subject]Preset{
	model.SubjectMath:     {Questions: 65, Duration: 140 * time.Minute},
	model.SubjectLanguage: {Questions: 65, Duration: 150 * time.Minute},
	model.SubjectScience:  {Questions: 80, Duration: 160 * time.Minute},
}

// Clock is the time source of a session.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Setup configures a session before it starts.
type Setup struct {
	Subject  model.Subject
	Mode     model.ExamMode
	Count    int // number of questions on an answer sheet
	Duration time.Duration
	// Key is an optional answer key for an answer sheet; empty or one
	// letter per question.
	Key []model.Option
	// Bank is the ordered list of questions for a bank exam.
	Bank []model.Question
}

// Session is one student's ensayo. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id    string
	owner string
	clock Clock

	phase   Phase
	setup   Setup
	total   int
	options []model.Option
	answers map[int]model.Option

	startedAt  time.Time
	paused     bool
	pausedAt   time.Time
	pausedFor  time.Duration
	finishedAt time.Time
	lastSeen   time.Time
	saved      bool
}

func newSession(id, owner string, clock Clock) *Session {
	now := clock.Now()
	return &Session{
		id:       id,
		owner:    owner,
		clock:    clock,
		phase:    PhaseSetup,
		answers:  make(map[int]model.Option),
		lastSeen: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Owner returns the username that created the session.
func (s *Session) Owner() string { return s.owner }

// Configure validates and applies the setup. Only allowed before Start.
func (s *Session) Configure(cfg Setup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseSetup {
		return fmt.Errorf("configure: %w", ErrWrongPhase)
	}
	if _, ok := Presets[cfg.Subject]; !ok {
		return fmt.Errorf("unknown subject %q", cfg.Subject)
	}
	cfg.Duration = cfg.Duration.Truncate(time.Second)
	if cfg.Duration < MinDuration || cfg.Duration > MaxDuration {
		return fmt.Errorf("duration must be between %s and %s", MinDuration, MaxDuration)
	}

	switch cfg.Mode {
	case model.ModeSheet:
		if cfg.Count < 1 || cfg.Count > MaxQuestions {
			return fmt.Errorf("question count must be between 1 and %d", MaxQuestions)
		}
		if len(cfg.Key) != 0 && len(cfg.Key) != cfg.Count {
			return fmt.Errorf("answer key has %d letters for %d questions", len(cfg.Key), cfg.Count)
		}
		for _, k := range cfg.Key {
			if !contains(model.SheetOptions, k) {
				return fmt.Errorf("answer key: %w: %q", ErrInvalidOption, k)
			}
		}
		cfg.Bank = nil
		s.total = cfg.Count
		s.options = model.SheetOptions
	case model.ModeBank:
		if len(cfg.Bank) == 0 {
			return errors.New("no questions available")
		}
		cfg.Key = nil
		cfg.Count = len(cfg.Bank)
		s.total = len(cfg.Bank)
		s.options = model.QuestionOptions
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	s.setup = cfg
	s.lastSeen = s.clock.Now()
	return nil
}

// Start begins the countdown.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseSetup || s.total == 0 {
		return fmt.Errorf("start: %w", ErrWrongPhase)
	}
	now := s.clock.Now()
	s.phase = PhaseTaking
	s.startedAt = now
	s.lastSeen = now
	return nil
}

// Pause stops the countdown. Pausing twice is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tickLocked()
	if s.phase != PhaseTaking {
		return fmt.Errorf("pause: %w", ErrWrongPhase)
	}
	if !s.paused {
		s.paused = true
		s.pausedAt = now
	}
	return nil
}

// Resume restarts the countdown. Resuming a running exam is a no-op.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tickLocked()
	if s.phase != PhaseTaking {
		return fmt.Errorf("resume: %w", ErrWrongPhase)
	}
	if s.paused {
		s.pausedFor += now.Sub(s.pausedAt)
		s.paused = false
	}
	return nil
}

// Answer records the chosen option for question n (1-based), replacing any
// earlier choice.
func (s *Session) Answer(n int, o model.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(n); err != nil {
		return err
	}
	if !contains(s.options, o) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, o)
	}
	s.answers[n] = o
	return nil
}

// Clear removes the choice for question n.
func (s *Session) Clear(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(n); err != nil {
		return err
	}
	delete(s.answers, n)
	return nil
}

func (s *Session) editableLocked(n int) error {
	s.tickLocked()
	if s.phase != PhaseTaking {
		return fmt.Errorf("answer: %w", ErrWrongPhase)
	}
	if s.paused {
		return ErrPaused
	}
	if n < 1 || n > s.total {
		return fmt.Errorf("%w: %d", ErrQuestionRange, n)
	}
	return nil
}

// Finish stops the exam and moves it to review.
func (s *Session) Finish() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tickLocked()
	switch s.phase {
	case PhaseTaking:
		s.finishLocked(now)
	case PhaseReview:
	default:
		return Summary{}, fmt.Errorf("finish: %w", ErrWrongPhase)
	}
	return s.summaryLocked(), nil
}

// Summary returns the review of a finished exam.
func (s *Session) Summary() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickLocked()
	if s.phase != PhaseReview {
		return Summary{}, fmt.Errorf("summary: %w", ErrWrongPhase)
	}
	return s.summaryLocked(), nil
}

// MarkSaved records that the result was persisted; it reports false if it
// already was, so a result is stored once.
func (s *Session) MarkSaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved {
		return false
	}
	s.saved = true
	return true
}

// Saved reports whether the result was persisted.
func (s *Session) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// UnmarkSaved undoes MarkSaved after a failed write.
func (s *Session) UnmarkSaved() {
	s.mu.Lock()
	s.saved = false
	s.mu.Unlock()
}

// Remaining returns the time left on the countdown.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked(s.tickLocked())
}

// Phase returns the current wizard step.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickLocked()
	return s.phase
}

// Answered returns the question numbers with a recorded option, ascending.
func (s *Session) Answered() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answeredLocked()
}

// State is a snapshot of the session for the exam widget.
type State struct {
	ID               string                  `json:"id"`
	Phase            Phase                   `json:"phase"`
	Subject          model.Subject           `json:"subject"`
	Mode             model.ExamMode          `json:"mode"`
	Total            int                     `json:"total"`
	Options          []model.Option          `json:"options"`
	Questions        []model.PublicQuestion  `json:"questions,omitempty"`
	Answers          map[string]model.Option `json:"answers"`
	Answered         []int                   `json:"answered"`
	Paused           bool                    `json:"paused"`
	DurationSeconds  int                     `json:"duration_seconds"`
	RemainingSeconds int                     `json:"remaining_seconds"`
}

// State returns a snapshot. The answer key is never included.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.tickLocked()
	st := State{
		ID:               s.id,
		Phase:            s.phase,
		Subject:          s.setup.Subject,
		Mode:             s.setup.Mode,
		Total:            s.total,
		Options:          s.options,
		Answers:          make(map[string]model.Option, len(s.answers)),
		Answered:         s.answeredLocked(),
		Paused:           s.paused,
		DurationSeconds:  int(s.setup.Duration / time.Second),
		RemainingSeconds: int(s.remainingLocked(now) / time.Second),
	}
	for n, o := range s.answers {
		st.Answers[fmt.Sprint(n)] = o
	}
	for _, q := range s.setup.Bank {
		st.Questions = append(st.Questions, q.Public())
	}
	return st
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.clock.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// tickLocked finishes an exam whose countdown ran out and returns now.
func (s *Session) tickLocked() time.Time {
	now := s.clock.Now()
	if s.phase == PhaseTaking && !s.paused && s.elapsedLocked(now) >= s.setup.Duration {
		s.finishLocked(s.startedAt.Add(s.pausedFor + s.setup.Duration))
	}
	return now
}

func (s *Session) finishLocked(at time.Time) {
	if s.paused {
		s.pausedFor += at.Sub(s.pausedAt)
		s.paused = false
	}
	s.phase = PhaseReview
	s.finishedAt = at
}

// elapsedLocked is the running (unpaused) time of the exam.
func (s *Session) elapsedLocked(now time.Time) time.Duration {
	switch s.phase {
	case PhaseTaking:
		end := now
		if s.paused {
			end = s.pausedAt
		}
		return end.Sub(s.startedAt) - s.pausedFor
	case PhaseReview:
		return s.finishedAt.Sub(s.startedAt) - s.pausedFor
	}
	return 0
}

// remainingLocked counts down in whole seconds.
func (s *Session) remainingLocked(now time.Time) time.Duration {
	left := s.setup.Duration - s.elapsedLocked(now).Truncate(time.Second)
	if left < 0 {
		return 0
	}
	return left
}

func (s *Session) answeredLocked() []int {
	out := make([]int, 0, len(s.answers))
	for n := range s.answers {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ParseKey reads an answer key such as "ABCDE" or "a, b, c". Spaces, commas
// and dashes between letters are ignored.
func ParseKey(s string) ([]model.Option, error) {
	var key []model.Option
	for _, r := range strings.ToUpper(s) {
		switch r {
		case ' ', ',', '-', ';', '\t', '\n', '\r':
			continue
		}
		o, err := model.ParseOption(string(r), model.SheetOptions)
		if err != nil {
			return nil, fmt.Errorf("answer key: %w", err)
		}
		key = append(key, o)
	}
	return key, nil
}

func contains(opts []model.Option, o model.Option) bool {
	for _, v := range opts {
		if v == o {
			return true
		}
	}
	return false
}
