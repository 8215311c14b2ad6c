package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
)

func newTestStore(t *testing.T) (*Store, sheet.Backend) {
	t.Helper()
	b, err := sheet.NewSQL(context.Background(), sheet.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	s := New(b)
	t.Cleanup(func() { s.Close() })
	return s, b
}

func insertTestQuestion(t *testing.T, s *Store, text string, correct model.Option) int64 {
	t.Helper()
	id, err := s.InsertQuestion(context.Background(), model.Question{
		Text:    text,
		OptionA: "a of " + text,
		OptionB: "b of " + text,
		OptionC: "c of " + text,
		Correct: correct,
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func TestQuestionCRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	count, err := s.QuestionCount(ctx)
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	id := insertTestQuestion(t, s, "¿Cuánto es 2+2?", model.OptionB)
	if id != 1700000000 {
		t.Errorf("expected id from clock, got %d", id)
	}
	q, err := s.GetQuestion(ctx, id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Text != "¿Cuánto es 2+2?" {
		t.Errorf("unexpected text %q", q.Text)
	}
	if q.Correct != model.OptionB {
		t.Errorf("expected correct B, got %q", q.Correct)
	}

	// Same second: id must still be unique.
	id2 := insertTestQuestion(t, s, "¿Capital de Chile?", model.OptionA)
	if id2 != id+1 {
		t.Errorf("expected bumped id %d, got %d", id+1, id2)
	}

	_, err = s.GetQuestion(ctx, 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(list))
	}
}

func TestInsertQuestionValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    model.Question
	}{
		{"empty text", model.Question{Text: "  ", OptionA: "a", OptionB: "b", OptionC: "c", Correct: "A"}},
		{"missing option", model.Question{Text: "q", OptionA: "a", OptionC: "c", Correct: "A"}},
		{"bad letter", model.Question{Text: "q", OptionA: "a", OptionB: "b", OptionC: "c", Correct: "D"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.InsertQuestion(ctx, tt.q); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	// Lower-case letters are normalised.
	id, err := s.InsertQuestion(ctx, model.Question{Text: "q", OptionA: "a", OptionB: "b", OptionC: "c", Correct: "c"})
	if err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	q, _ := s.GetQuestion(ctx, id)
	if q.Correct != model.OptionC {
		t.Errorf("expected C, got %q", q.Correct)
	}
}

func TestImportQuestions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	in := []model.QuestionImport{
		{Text: "¿1+1?", OptionA: "1", OptionB: "2", OptionC: "3", Correct: "b"},
		{Text: "¿2+1?", OptionA: "1", OptionB: "2", OptionC: "3", Correct: "C"},
	}
	n, err := s.ImportQuestions(ctx, in)
	if err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}

	bad := append(in, model.QuestionImport{Text: "sin opciones", Correct: "A"})
	n, err = s.ImportQuestions(ctx, bad)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if n != 0 {
		t.Errorf("imported %d from an invalid file", n)
	}
	if count, _ := s.QuestionCount(ctx); count != 2 {
		t.Errorf("expected nothing appended from invalid file, have %d questions", count)
	}
}

// countingBackend records how often each worksheet is read and written.
type countingBackend struct {
	sheet.Backend
	reads, appends int
}

func (c *countingBackend) Read(ctx context.Context, worksheet string) (sheet.Table, error) {
	c.reads++
	return c.Backend.Read(ctx, worksheet)
}

func (c *countingBackend) AppendRow(ctx context.Context, worksheet string, row []string) error {
	c.appends++
	return c.Backend.AppendRow(ctx, worksheet, row)
}

func (c *countingBackend) AppendRows(ctx context.Context, worksheet string, rows [][]string) error {
	c.appends++
	return c.Backend.AppendRows(ctx, worksheet, rows)
}

func TestImportQuestionsSingleReadAndAppend(t *testing.T) {
	_, b := newTestStore(t)
	ctx := context.Background()
	cb := &countingBackend{Backend: b}
	s := New(cb)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	if _, err := s.InsertQuestion(ctx, model.Question{Text: "previa", OptionA: "a", OptionB: "b", OptionC: "c", Correct: model.OptionA}); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}
	cb.reads, cb.appends = 0, 0

	in := make([]model.QuestionImport, 80)
	for i := range in {
		in[i] = model.QuestionImport{Text: "pregunta", OptionA: "a", OptionB: "b", OptionC: "c", Correct: "A"}
	}
	n, err := s.ImportQuestions(ctx, in)
	if err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	if n != 80 {
		t.Errorf("imported %d, want 80", n)
	}
	if cb.reads != 1 || cb.appends != 1 {
		t.Errorf("worksheet reads=%d appends=%d, want 1 and 1", cb.reads, cb.appends)
	}

	questions, err := s.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 81 {
		t.Fatalf("have %d questions, want 81", len(questions))
	}
	for i, q := range questions[1:] {
		if want := int64(1700000001 + i); q.ID != want {
			t.Fatalf("question %d has id %d, want %d", i+1, q.ID, want)
		}
	}
}

func TestListQuestionsSkipsMalformedRows(t *testing.T) {
	s, b := newTestStore(t)
	ctx := context.Background()

	rows := [][]string{
		{"100", "ok", "a", "b", "c", "A"},
		{"abc", "bad id", "a", "b", "c", "A"},
		{"101", "bad letter", "a", "b", "c", "Z"},
	}
	for _, r := range rows {
		if err := b.AppendRow(ctx, sheet.Questions, r); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	list, err := s.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 1 || list[0].ID != 100 {
		t.Errorf("expected only question 100, got %+v", list)
	}
}

func TestUsers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.GetUserByUsername(ctx, "ana")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil user, got %+v", u)
	}

	if err := s.CreateUser(ctx, model.User{Username: "ana", Password: "1234", Name: "Ana Pérez", Role: model.RoleStudent}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, model.User{Username: "profe", Password: "x", Role: model.RoleTutor}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err = s.CreateUser(ctx, model.User{Username: "ana", Password: "other"})
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
	if err := s.CreateUser(ctx, model.User{Username: "", Password: "x"}); err == nil {
		t.Error("expected error for empty username")
	}

	u, err = s.GetUserByUsername(ctx, "ana")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v %v", u, err)
	}
	if u.Name != "Ana Pérez" || u.Role != model.RoleStudent || u.Password != "1234" {
		t.Errorf("unexpected user %+v", u)
	}

	// Username lookup is exact.
	if u, _ := s.GetUserByUsername(ctx, "Ana"); u != nil {
		t.Errorf("lookup should be case-sensitive, got %+v", u)
	}

	p, _ := s.GetUserByUsername(ctx, "profe")
	if p.Name != "profe" {
		t.Errorf("name should default to username, got %q", p.Name)
	}
	if !p.IsTutor() {
		t.Error("profe should be a tutor")
	}

	n, err := s.UserCount(ctx)
	if err != nil || n != 2 {
		t.Errorf("UserCount = %d, %v", n, err)
	}
}

func TestMissingColumn(t *testing.T) {
	b := &headerOnly{header: []string{"usuario", "nombre"}}
	s := New(b)

	_, err := s.GetUserByUsername(context.Background(), "ana")
	var mce *sheet.MissingColumnError
	if !errors.As(err, &mce) {
		t.Fatalf("expected MissingColumnError, got %v", err)
	}
	if mce.Column != "password" {
		t.Errorf("expected missing password column, got %q", mce.Column)
	}
}

func TestResults(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	inputs := []model.Result{
		{ID: "r1", Username: "ana", Subject: model.SubjectMath, Mode: model.ModeBank, Total: 10, Answered: 9, Correct: 7, Graded: true, Score: 70, Duration: 95 * time.Second, SubmittedAt: at},
		{ID: "r2", Username: "luis", Subject: model.SubjectScience, Mode: model.ModeSheet, Total: 80, Answered: 80, Duration: time.Hour, SubmittedAt: at.Add(time.Hour)},
		{ID: "r3", Username: "ana", Subject: model.SubjectLanguage, Mode: model.ModeSheet, Total: 5, Answered: 5, Correct: 4, Graded: true, Score: 80, SubmittedAt: at.Add(2 * time.Hour)},
	}
	for _, r := range inputs {
		if err := s.InsertResult(ctx, r); err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
	}
	if err := s.InsertResult(ctx, model.Result{}); err == nil {
		t.Error("expected error for result without id")
	}

	ana, err := s.ListResults(ctx, "ana")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(ana) != 2 {
		t.Fatalf("expected 2 results for ana, got %d", len(ana))
	}
	if ana[0].ID != "r3" {
		t.Errorf("expected newest first, got %s", ana[0].ID)
	}
	first := ana[1]
	if !first.Graded || first.Correct != 7 || first.Score != 70 || first.Duration != 95*time.Second {
		t.Errorf("unexpected round trip %+v", first)
	}
	if !first.SubmittedAt.Equal(at) {
		t.Errorf("SubmittedAt = %v, want %v", first.SubmittedAt, at)
	}

	all, _ := s.ListResults(ctx, "")
	if len(all) != 3 {
		t.Errorf("expected 3 results, got %d", len(all))
	}
	if all[1].Graded {
		t.Error("answer sheet without key must stay ungraded")
	}
}

func TestExportResults(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.CreateUser(ctx, model.User{Username: "ana", Password: "1", Name: "Ana", Role: model.RoleStudent})
	for i, score := range []float64{50, 90} {
		err := s.InsertResult(ctx, model.Result{
			ID: string(rune('a' + i)), Username: "ana", Subject: model.SubjectMath, Mode: model.ModeBank,
			Total: 10, Answered: 10, Graded: true, Score: score,
		})
		if err != nil {
			t.Fatalf("InsertResult: %v", err)
		}
	}
	_ = s.InsertResult(ctx, model.Result{ID: "z", Username: "ghost", Subject: model.SubjectMath, Mode: model.ModeSheet, Total: 3})

	reports, err := s.ExportResults(ctx)
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	var ana model.StudentReport
	for _, r := range reports {
		if r.Username == "ana" {
			ana = r
		}
	}
	if ana.Name != "Ana" || ana.Attempts != 2 || ana.AverageScore != 70 || ana.BestScore != 90 {
		t.Errorf("unexpected report %+v", ana)
	}
}

// headerOnly is a Backend whose worksheets all share one header and no rows.
type headerOnly struct{ header []string }

func (h *headerOnly) Read(context.Context, string) (sheet.Table, error) {
	return sheet.Table{Header: h.header}, nil
}
func (h *headerOnly) AppendRow(context.Context, string, []string) error { return nil }
func (h *headerOnly) AppendRows(context.Context, string, [][]string) error {
	return nil
}
func (h *headerOnly) Close() error { return nil }
