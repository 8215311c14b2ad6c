package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for input that cannot be stored.
	ErrInvalid = errors.New("invalid input")
)

type Store struct {
	sheet sheet.Backend
	now   func() time.Time

	// serialises id allocation for appended questions
	mu sync.Mutex
}

func New(b sheet.Backend) *Store {
	return &Store{sheet: b, now: time.Now}
}

func (s *Store) Close() error {
	return s.sheet.Close()
}

// read loads a worksheet and checks it has the columns the caller needs.
func (s *Store) read(ctx context.Context, worksheet string) ([]sheet.Record, error) {
	tbl, err := s.sheet.Read(ctx, worksheet)
	if err != nil {
		return nil, err
	}
	if err := tbl.Require(worksheet, sheet.Columns[worksheet]...); err != nil {
		return nil, err
	}
	return tbl.Records, nil
}

// InsertQuestion validates and appends a question. The id is the current
// Unix time, bumped past the largest existing id so ids stay unique.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	if err := validateQuestion(&q); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextQuestionID(ctx)
	if err != nil {
		return 0, err
	}
	q.ID = id
	if err := s.sheet.AppendRow(ctx, sheet.Questions, questionRow(q)); err != nil {
		return 0, fmt.Errorf("append question: %w", err)
	}
	slog.Info("saved question", "id", q.ID)
	return q.ID, nil
}

// nextQuestionID reads the questions worksheet once and returns the first
// free id at or after the current Unix time. Callers hold s.mu.
func (s *Store) nextQuestionID(ctx context.Context) (int64, error) {
	existing, err := s.ListQuestions(ctx)
	if err != nil {
		return 0, err
	}
	id := s.now().Unix()
	for _, e := range existing {
		if e.ID >= id {
			id = e.ID + 1
		}
	}
	return id, nil
}

func questionRow(q model.Question) []string {
	return []string{strconv.FormatInt(q.ID, 10), q.Text, q.OptionA, q.OptionB, q.OptionC, string(q.Correct)}
}

func validateQuestion(q *model.Question) error {
	q.Text = strings.TrimSpace(q.Text)
	q.OptionA = strings.TrimSpace(q.OptionA)
	q.OptionB = strings.TrimSpace(q.OptionB)
	q.OptionC = strings.TrimSpace(q.OptionC)
	if q.Text == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalid)
	}
	if q.OptionA == "" || q.OptionB == "" || q.OptionC == "" {
		return fmt.Errorf("%w: all three options are required", ErrInvalid)
	}
	c, err := model.ParseOption(string(q.Correct), model.QuestionOptions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	q.Correct = c
	return nil
}

// ImportQuestions appends questions loaded from a JSON file. Every entry is
// validated before anything is written, the worksheet is read once for id
// allocation and the rows go out in a single append. It returns how many
// were appended.
func (s *Store) ImportQuestions(ctx context.Context, in []model.QuestionImport) (int, error) {
	questions := make([]model.Question, len(in))
	for i, qi := range in {
		q := model.Question{
			Text:    qi.Text,
			OptionA: qi.OptionA,
			OptionB: qi.OptionB,
			OptionC: qi.OptionC,
			Correct: model.Option(qi.Correct),
		}
		if err := validateQuestion(&q); err != nil {
			return 0, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions[i] = q
	}
	if len(questions) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first, err := s.nextQuestionID(ctx)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, len(questions))
	for i := range questions {
		questions[i].ID = first + int64(i)
		rows[i] = questionRow(questions[i])
	}
	if err := s.sheet.AppendRows(ctx, sheet.Questions, rows); err != nil {
		return 0, fmt.Errorf("append questions: %w", err)
	}
	slog.Info("imported questions", "count", len(rows), "first_id", first)
	return len(rows), nil
}

// ListQuestions returns all questions in worksheet order. Rows with a
// malformed id or answer letter are skipped.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	records, err := s.read(ctx, sheet.Questions)
	if err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(records))
	for i, r := range records {
		q, err := questionFromRecord(r)
		if err != nil {
			slog.Warn("skipping malformed question row", "row", i+2, "error", err)
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func questionFromRecord(r sheet.Record) (model.Question, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r["id"]), 10, 64)
	if err != nil {
		return model.Question{}, fmt.Errorf("id %q: %w", r["id"], err)
	}
	correct, err := model.ParseOption(r["correcta"], model.QuestionOptions)
	if err != nil {
		return model.Question{}, err
	}
	return model.Question{
		ID:      id,
		Text:    r["texto"],
		OptionA: r["op_a"],
		OptionB: r["op_b"],
		OptionC: r["op_c"],
		Correct: correct,
	}, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	questions, err := s.ListQuestions(ctx)
	if err != nil {
		return model.Question{}, err
	}
	for _, q := range questions {
		if q.ID == id {
			return q, nil
		}
	}
	return model.Question{}, fmt.Errorf("question %d: %w", id, ErrNotFound)
}

// QuestionCount returns the number of well-formed questions.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	questions, err := s.ListQuestions(ctx)
	return len(questions), err
}

// InsertResult appends a finished ensayo to the results worksheet.
func (s *Store) InsertResult(ctx context.Context, r model.Result) error {
	if r.ID == "" {
		return errors.New("result id is required")
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = s.now()
	}
	correct := ""
	score := ""
	if r.Graded {
		correct = strconv.Itoa(r.Correct)
		score = strconv.FormatFloat(r.Score, 'f', 1, 64)
	}
	row := []string{
		r.ID,
		r.Username,
		string(r.Subject),
		string(r.Mode),
		strconv.Itoa(r.Total),
		strconv.Itoa(r.Answered),
		correct,
		score,
		strconv.Itoa(int(r.Duration / time.Second)),
		r.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if err := s.sheet.AppendRow(ctx, sheet.Results, row); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	slog.Info("saved result", "id", r.ID, "usuario", r.Username, "materia", r.Subject)
	return nil
}

// ListResults returns the results of one user, newest first. An empty
// username returns everyone's.
func (s *Store) ListResults(ctx context.Context, username string) ([]model.Result, error) {
	records, err := s.read(ctx, sheet.Results)
	if err != nil {
		return nil, err
	}
	var results []model.Result
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if username != "" && r["usuario"] != username {
			continue
		}
		res, err := resultFromRecord(r)
		if err != nil {
			slog.Warn("skipping malformed result row", "row", i+2, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func resultFromRecord(r sheet.Record) (model.Result, error) {
	res := model.Result{
		ID:       r["id"],
		Username: r["usuario"],
		Subject:  model.Subject(r["materia"]),
		Mode:     model.ExamMode(r["modo"]),
	}
	var err error
	if res.Total, err = atoi(r["total"]); err != nil {
		return res, fmt.Errorf("total: %w", err)
	}
	if res.Answered, err = atoi(r["respondidas"]); err != nil {
		return res, fmt.Errorf("respondidas: %w", err)
	}
	if strings.TrimSpace(r["puntaje"]) != "" {
		res.Graded = true
		if res.Correct, err = atoi(r["correctas"]); err != nil {
			return res, fmt.Errorf("correctas: %w", err)
		}
		if res.Score, err = strconv.ParseFloat(strings.TrimSpace(r["puntaje"]), 64); err != nil {
			return res, fmt.Errorf("puntaje: %w", err)
		}
	}
	secs, err := atoi(r["duracion_seg"])
	if err != nil {
		return res, fmt.Errorf("duracion_seg: %w", err)
	}
	res.Duration = time.Duration(secs) * time.Second
	if res.SubmittedAt, err = time.Parse(time.RFC3339, strings.TrimSpace(r["fecha"])); err != nil {
		return res, fmt.Errorf("fecha: %w", err)
	}
	return res, nil
}

func atoi(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
