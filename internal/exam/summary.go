package exam

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/preupac/simulador/internal/model"
)

// Item is one line of the review.
type Item struct {
	Number   int
	Question *model.Question // bank exams only
	Chosen   model.Option    // empty when unanswered
	Correct  model.Option    // empty when there is no key
}

// IsCorrect reports whether the chosen option matches the key.
func (it Item) IsCorrect() bool {
	return it.Correct != "" && it.Chosen == it.Correct
}

// Summary is the review screen of a finished exam.
type Summary struct {
	Subject  model.Subject
	Mode     model.ExamMode
	Total    int
	Answered int
	Correct  int
	Graded   bool    // false for an answer sheet without key
	Score    float64 // percentage of correct answers, one decimal
	Elapsed  time.Duration
	Items    []Item
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{
		Subject:  s.setup.Subject,
		Mode:     s.setup.Mode,
		Total:    s.total,
		Answered: len(s.answers),
		Elapsed:  s.elapsedLocked(s.finishedAt).Truncate(time.Second),
		Graded:   s.setup.Mode == model.ModeBank || len(s.setup.Key) > 0,
	}
	for n := 1; n <= s.total; n++ {
		it := Item{Number: n, Chosen: s.answers[n]}
		switch {
		case s.setup.Mode == model.ModeBank:
			q := s.setup.Bank[n-1]
			it.Question = &q
			it.Correct = q.Correct
		case len(s.setup.Key) > 0:
			it.Correct = s.setup.Key[n-1]
		}
		if it.IsCorrect() {
			sum.Correct++
		}
		sum.Items = append(sum.Items, it)
	}
	if sum.Graded && sum.Total > 0 {
		sum.Score = math.Round(float64(sum.Correct)/float64(sum.Total)*1000) / 10
	}
	return sum
}

// Result converts a summary into a stored result row.
func (sum Summary) Result(id, username string, at time.Time) model.Result {
	return model.Result{
		ID:          id,
		Username:    username,
		Subject:     sum.Subject,
		Mode:        sum.Mode,
		Total:       sum.Total,
		Answered:    sum.Answered,
		Correct:     sum.Correct,
		Graded:      sum.Graded,
		Score:       sum.Score,
		Duration:    sum.Elapsed,
		SubmittedAt: at,
	}
}

// PickBank chooses up to n questions from the bank, shuffled when asked.
// n <= 0 takes them all. The input slice is not modified.
func PickBank(questions []model.Question, n int, shuffle bool) []model.Question {
	picked := append([]model.Question(nil), questions...)
	if shuffle {
		rand.Shuffle(len(picked), func(i, j int) {
			picked[i], picked[j] = picked[j], picked[i]
		})
	}
	if n > 0 && n < len(picked) {
		picked = picked[:n]
	}
	return picked
}
