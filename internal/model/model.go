package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role is the access level stored in the "rol" column of the users worksheet.
type Role string

const (
	// RoleTutor can author questions and manage users.
	RoleTutor Role = "Tutor"
	// RoleStudent can take mock exams.
	RoleStudent Role = "Estudiante"
)

// ParseRole accepts the worksheet spelling of a role, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tutor":
		return RoleTutor, nil
	case "estudiante":
		return RoleStudent, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User is one row of the users worksheet.
type User struct {
	Username string `json:"usuario"`
	Password string `json:"-"`
	Name     string `json:"nombre"`
	Role     Role   `json:"rol"`
}

// IsTutor reports whether the user has question-authoring rights.
func (u User) IsTutor() bool { return u.Role == RoleTutor }

type userCtxKey struct{}

// ContextWithUser stores the logged-in user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the logged-in user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// Option is an answer letter.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
	OptionE Option = "E"
)

var (
	// SheetOptions are the choices on a printed answer sheet.
	SheetOptions = []Option{OptionA, OptionB, OptionC, OptionD, OptionE}
	// QuestionOptions are the choices of an authored question.
	QuestionOptions = []Option{OptionA, OptionB, OptionC}
)

// ParseOption parses a letter and checks it belongs to allowed.
func ParseOption(s string, allowed []Option) (Option, error) {
	o := Option(strings.ToUpper(strings.TrimSpace(s)))
	for _, a := range allowed {
		if o == a {
			return o, nil
		}
	}
	return "", fmt.Errorf("invalid option %q", s)
}

// Subject is the kind of mock exam.
type Subject string

const (
	SubjectMath     Subject = "math"
	SubjectLanguage Subject = "language"
	SubjectScience  Subject = "science"
)

// Subjects lists the supported subjects in display order.
var Subjects = []Subject{SubjectMath, SubjectLanguage, SubjectScience}

// ParseSubject validates a subject name.
func ParseSubject(s string) (Subject, error) {
	sub := Subject(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Subjects {
		if sub == v {
			return sub, nil
		}
	}
	return "", fmt.Errorf("unknown subject %q", s)
}

// Question is one row of the questions worksheet.
type Question struct {
	ID      int64  `json:"id"`
	Text    string `json:"texto"`
	OptionA string `json:"op_a"`
	OptionB string `json:"op_b"`
	OptionC string `json:"op_c"`
	Correct Option `json:"correcta"`
}

// Choices returns the option texts keyed by letter, in order.
func (q Question) Choices() []Choice {
	return []Choice{
		{Letter: OptionA, Text: q.OptionA},
		{Letter: OptionB, Text: q.OptionB},
		{Letter: OptionC, Text: q.OptionC},
	}
}

// Public strips the correct answer before the question reaches the browser.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Text: q.Text, Choices: q.Choices()}
}

// Choice is a lettered option text.
type Choice struct {
	Letter Option `json:"letter"`
	Text   string `json:"text"`
}

// PublicQuestion is a question without its answer.
type PublicQuestion struct {
	ID      int64    `json:"id"`
	Text    string   `json:"text"`
	Choices []Choice `json:"choices"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Text    string `json:"texto"`
	OptionA string `json:"op_a"`
	OptionB string `json:"op_b"`
	OptionC string `json:"op_c"`
	Correct string `json:"correcta"`
}

// ExamMode selects between a blank answer sheet and questions from the bank.
type ExamMode string

const (
	ModeSheet ExamMode = "sheet"
	ModeBank  ExamMode = "bank"
)

// Result is one finished ensayo, stored in the results worksheet.
type Result struct {
	ID          string        `json:"id"`
	Username    string        `json:"usuario"`
	Subject     Subject       `json:"materia"`
	Mode        ExamMode      `json:"modo"`
	Total       int           `json:"total"`
	Answered    int           `json:"respondidas"`
	Correct     int           `json:"correctas"`
	Graded      bool          `json:"graded"`
	Score       float64       `json:"puntaje"`
	Duration    time.Duration `json:"duracion"`
	SubmittedAt time.Time     `json:"fecha"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath        string // URL prefix for sub-path deployments
	SecureCookies   bool
	DefaultLang     string
	ShuffleBank     bool
	DraftingEnabled bool
}
