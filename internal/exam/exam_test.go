package exam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/preupac/simulador/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sheetSession(t *testing.T, clock *fakeClock, count int, d time.Duration, key string) *Session {
	t.Helper()
	s := newSession("s1", "ana", clock)
	k, err := ParseKey(key)
	require.NoError(t, err)
	require.NoError(t, s.Configure(Setup{
		Subject:  model.SubjectMath,
		Mode:     model.ModeSheet,
		Count:    count,
		Duration: d,
		Key:      k,
	}))
	return s
}

func TestWizardPhases(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, 5, 10*time.Minute, "")

	assert.Equal(t, PhaseSetup, s.Phase())
	assert.ErrorIs(t, s.Answer(1, model.OptionA), ErrWrongPhase)
	_, err := s.Finish()
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = s.Summary()
	assert.ErrorIs(t, err, ErrWrongPhase)

	require.NoError(t, s.Start())
	assert.Equal(t, PhaseTaking, s.Phase())
	assert.ErrorIs(t, s.Start(), ErrWrongPhase)
	assert.ErrorIs(t, s.Configure(Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 3, Duration: time.Hour}), ErrWrongPhase)

	_, err = s.Finish()
	require.NoError(t, err)
	assert.Equal(t, PhaseReview, s.Phase())
	assert.ErrorIs(t, s.Answer(1, model.OptionA), ErrWrongPhase)
	assert.ErrorIs(t, s.Pause(), ErrWrongPhase)

	// Finishing twice returns the same summary.
	_, err = s.Finish()
	assert.NoError(t, err)
}

func TestStartRequiresConfiguration(t *testing.T) {
	s := newSession("x", "ana", newFakeClock())
	assert.ErrorIs(t, s.Start(), ErrWrongPhase)
}

func TestConfigureValidation(t *testing.T) {
	bank := []model.Question{{ID: 1, Text: "q", OptionA: "a", OptionB: "b", OptionC: "c", Correct: model.OptionA}}
	tests := []struct {
		name  string
		setup Setup
		ok    bool
	}{
		{"sheet ok", Setup{Subject: model.SubjectScience, Mode: model.ModeSheet, Count: 80, Duration: 160 * time.Minute}, true},
		{"unknown subject", Setup{Subject: "history", Mode: model.ModeSheet, Count: 10, Duration: time.Hour}, false},
		{"zero questions", Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 0, Duration: time.Hour}, false},
		{"too many questions", Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: MaxQuestions + 1, Duration: time.Hour}, false},
		{"too short", Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 5, Duration: 30 * time.Second}, false},
		{"too long", Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 5, Duration: 6 * time.Hour}, false},
		{"key length mismatch", Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 3, Duration: time.Hour, Key: []model.Option{"A"}}, false},
		{"key bad letter", Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 1, Duration: time.Hour, Key: []model.Option{"F"}}, false},
		{"bank ok", Setup{Subject: model.SubjectMath, Mode: model.ModeBank, Duration: time.Minute, Bank: bank}, true},
		{"bank empty", Setup{Subject: model.SubjectMath, Mode: model.ModeBank, Duration: time.Minute}, false},
		{"unknown mode", Setup{Subject: model.SubjectMath, Mode: "oral", Count: 1, Duration: time.Hour}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession("x", "ana", newFakeClock())
			err := s.Configure(tt.setup)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCountdownTicksOncePerSecond(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, 5, 2*time.Minute, "")

	assert.Equal(t, 2*time.Minute, s.Remaining(), "setup shows the full duration")
	clock.Advance(time.Minute)
	assert.Equal(t, 2*time.Minute, s.Remaining(), "clock does not run before start")

	require.NoError(t, s.Start())
	clock.Advance(time.Second)
	assert.Equal(t, 119*time.Second, s.Remaining())
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 119*time.Second, s.Remaining(), "partial seconds do not count")
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 118*time.Second, s.Remaining())
}

func TestPauseStopsCountdown(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, 5, 2*time.Minute, "")
	require.NoError(t, s.Start())

	clock.Advance(10 * time.Second)
	require.NoError(t, s.Pause())
	require.NoError(t, s.Pause(), "pause is idempotent")

	clock.Advance(time.Hour)
	assert.Equal(t, 110*time.Second, s.Remaining())
	assert.Equal(t, PhaseTaking, s.Phase(), "a paused exam never expires")
	assert.ErrorIs(t, s.Answer(1, model.OptionB), ErrPaused)
	assert.True(t, s.State().Paused)

	require.NoError(t, s.Resume())
	require.NoError(t, s.Resume(), "resume is idempotent")
	clock.Advance(5 * time.Second)
	assert.Equal(t, 105*time.Second, s.Remaining())
	assert.NoError(t, s.Answer(1, model.OptionB))
}

func TestExpiryFinishesExam(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, 3, time.Minute, "ABC")
	require.NoError(t, s.Start())
	require.NoError(t, s.Answer(1, model.OptionA))

	clock.Advance(20 * time.Second)
	require.NoError(t, s.Pause())
	clock.Advance(time.Minute)
	require.NoError(t, s.Resume())

	clock.Advance(39 * time.Second)
	assert.Equal(t, time.Second, s.Remaining())
	require.NoError(t, s.Answer(2, model.OptionC))

	clock.Advance(2 * time.Second)
	assert.Equal(t, time.Duration(0), s.Remaining())
	assert.Equal(t, PhaseReview, s.Phase())
	assert.ErrorIs(t, s.Answer(3, model.OptionC), ErrWrongPhase)

	sum, err := s.Summary()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, sum.Elapsed, "elapsed stops at the deadline")
	assert.Equal(t, 2, sum.Answered)
	assert.Equal(t, 1, sum.Correct)
	assert.True(t, sum.Graded)
	assert.InDelta(t, 33.3, sum.Score, 0.001)
}

func TestAnsweredSet(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, 10, time.Hour, "")
	require.NoError(t, s.Start())

	assert.Empty(t, s.Answered())
	require.NoError(t, s.Answer(7, model.OptionE))
	require.NoError(t, s.Answer(2, model.OptionA))
	require.NoError(t, s.Answer(7, model.OptionD))
	assert.Equal(t, []int{2, 7}, s.Answered())

	require.NoError(t, s.Clear(2))
	require.NoError(t, s.Clear(3), "clearing an unanswered question is fine")
	assert.Equal(t, []int{7}, s.Answered())

	assert.ErrorIs(t, s.Answer(0, model.OptionA), ErrQuestionRange)
	assert.ErrorIs(t, s.Answer(11, model.OptionA), ErrQuestionRange)
	assert.ErrorIs(t, s.Answer(1, "F"), ErrInvalidOption)

	st := s.State()
	assert.Equal(t, map[string]model.Option{"7": model.OptionD}, st.Answers)
	assert.Equal(t, []int{7}, st.Answered)
	assert.Equal(t, model.SheetOptions, st.Options)
	assert.Empty(t, st.Questions)
}

func TestUngradedAnswerSheet(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, 4, time.Hour, "")
	require.NoError(t, s.Start())
	require.NoError(t, s.Answer(1, model.OptionA))
	clock.Advance(90 * time.Second)

	sum, err := s.Finish()
	require.NoError(t, err)
	assert.False(t, sum.Graded)
	assert.Zero(t, sum.Score)
	assert.Equal(t, 1, sum.Answered)
	assert.Equal(t, 90*time.Second, sum.Elapsed)
	require.Len(t, sum.Items, 4)
	assert.False(t, sum.Items[0].IsCorrect())
}

func TestBankExam(t *testing.T) {
	bank := []model.Question{
		{ID: 10, Text: "2+2", OptionA: "3", OptionB: "4", OptionC: "5", Correct: model.OptionB},
		{ID: 11, Text: "3*3", OptionA: "9", OptionB: "6", OptionC: "12", Correct: model.OptionA},
	}
	clock := newFakeClock()
	s := newSession("b", "ana", clock)
	require.NoError(t, s.Configure(Setup{Subject: model.SubjectMath, Mode: model.ModeBank, Count: 99, Duration: 2 * time.Minute, Bank: bank}))
	require.NoError(t, s.Start())

	st := s.State()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, model.QuestionOptions, st.Options)
	require.Len(t, st.Questions, 2)
	assert.Equal(t, "2+2", st.Questions[0].Text)

	assert.ErrorIs(t, s.Answer(1, model.OptionD), ErrInvalidOption, "bank questions have three options")
	require.NoError(t, s.Answer(1, model.OptionB))
	require.NoError(t, s.Answer(2, model.OptionC))

	sum, err := s.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Correct)
	assert.Equal(t, 50.0, sum.Score)
	require.NotNil(t, sum.Items[0].Question)
	assert.Equal(t, int64(10), sum.Items[0].Question.ID)
	assert.True(t, sum.Items[0].IsCorrect())
	assert.Equal(t, model.OptionA, sum.Items[1].Correct)

	res := sum.Result("r1", "ana", clock.Now())
	assert.Equal(t, model.ModeBank, res.Mode)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 50.0, res.Score)
}

func TestMarkSaved(t *testing.T) {
	s := newSession("x", "ana", newFakeClock())
	assert.True(t, s.MarkSaved())
	assert.False(t, s.MarkSaved())
	s.UnmarkSaved()
	assert.True(t, s.MarkSaved())
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("ab, c-d e")
	require.NoError(t, err)
	assert.Equal(t, []model.Option{"A", "B", "C", "D", "E"}, k)

	k, err = ParseKey("")
	require.NoError(t, err)
	assert.Empty(t, k)

	_, err = ParseKey("ABX")
	assert.Error(t, err)
}

func TestPickBank(t *testing.T) {
	var qs []model.Question
	for i := 1; i <= 10; i++ {
		qs = append(qs, model.Question{ID: int64(i)})
	}
	assert.Len(t, PickBank(qs, 0, false), 10)
	assert.Len(t, PickBank(qs, 20, true), 10)

	got := PickBank(qs, 3, false)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})

	shuffled := PickBank(qs, 0, true)
	assert.ElementsMatch(t, qs, shuffled)
	assert.Equal(t, int64(1), qs[0].ID, "input untouched")
}

func TestRegistry(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(time.Hour, clock)

	s := r.Create("ana")
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID(), "ana")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get(s.ID(), "luis")
	assert.ErrorIs(t, err, ErrNotFound, "sessions are private to their owner")
	_, err = r.Get("missing", "ana")
	assert.ErrorIs(t, err, ErrNotFound)

	other := r.Create("luis")
	clock.Advance(50 * time.Minute)
	_, _ = r.Get(s.ID(), "ana") // keeps ana's session alive
	clock.Advance(20 * time.Minute)

	assert.Equal(t, 1, r.Sweep(context.Background()))
	_, err = r.Get(other.ID(), "luis")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(s.ID(), "ana")
	assert.NoError(t, err)

	r.Remove(s.ID())
	assert.Zero(t, r.Len())
}

func finishedSession(t *testing.T, r *Registry, owner string) *Session {
	t.Helper()
	s := r.Create(owner)
	require.NoError(t, s.Configure(Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 3, Duration: time.Hour}))
	require.NoError(t, s.Start())
	_, err := s.Finish()
	require.NoError(t, err)
	return s
}

func TestSweepFlushesUnsavedResults(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(time.Hour, clock)

	unsaved := finishedSession(t, r, "ana")
	saved := finishedSession(t, r, "luis")
	require.True(t, saved.MarkSaved())
	failing := finishedSession(t, r, "eva")

	// the countdown of this one runs out while nobody is watching
	timedOut := r.Create("pedro")
	require.NoError(t, timedOut.Configure(Setup{Subject: model.SubjectScience, Mode: model.ModeSheet, Count: 2, Duration: 10 * time.Minute}))
	require.NoError(t, timedOut.Start())

	var flushed []string
	r.OnExpire(func(_ context.Context, s *Session) error {
		if s == failing {
			return errors.New("spreadsheet unavailable")
		}
		flushed = append(flushed, s.Owner())
		s.MarkSaved()
		return nil
	})

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 3, r.Sweep(context.Background()))
	assert.ElementsMatch(t, []string{"ana", "pedro"}, flushed)
	assert.True(t, unsaved.Saved())

	_, err := r.Get(failing.ID(), "eva")
	assert.NoError(t, err, "kept until its result is saved")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRunStops(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAnswers(t *testing.T) {
	clock := newFakeClock()
	s := sheetSession(t, clock, MaxQuestions, time.Hour, "")
	require.NoError(t, s.Start())

	var wg sync.WaitGroup
	for n := 1; n <= MaxQuestions; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Answer(n, model.SheetOptions[n%len(model.SheetOptions)])
			_ = s.State()
		}(n)
	}
	wg.Wait()
	assert.Len(t, s.Answered(), MaxQuestions)
}
