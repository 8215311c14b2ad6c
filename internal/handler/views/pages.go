package views

import (
	"strconv"

	"github.com/a-h/templ"

	"github.com/preupac/simulador/internal/exam"
	"github.com/preupac/simulador/internal/model"
)

// LoginPage renders the login form with an optional inline error.
func LoginPage(username, errMsg string) templ.Component {
	return loginPage(Page{Title: "LoginTitle", Error: errMsg}, username)
}

// HomeData feeds the landing page.
type HomeData struct {
	QuestionCount int
	Attempts      int
	Average       float64
	Best          float64
	Recent        []model.Result
}

func HomePage(d HomeData, errMsg string) templ.Component {
	return homePage(Page{Title: "NavHome", Active: NavHome, Error: errMsg}, d)
}

// PresetView is a subject with its default length, for the setup form.
type PresetView struct {
	Subject   model.Subject
	Questions int
	Minutes   int
}

// SetupData feeds the exam setup form. The fields echo the last submission.
type SetupData struct {
	Presets      []PresetView
	Subject      model.Subject
	Mode         model.ExamMode
	Count        int
	Minutes      int
	Key          string
	BankSize     int
	MaxQuestions int
}

func ExamSetupPage(d SetupData, errMsg string) templ.Component {
	return examSetupPage(Page{Title: "NavExam", Active: NavExam, Error: errMsg}, d)
}

// Row is one line of the answer grid.
type Row struct {
	Number   int
	Question *model.PublicQuestion
	Chosen   model.Option
}

// ExamData feeds the taking page and the widget.
type ExamData struct {
	State exam.State
	Rows  []Row
}

// NewExamData lays out the answer grid from a session snapshot.
func NewExamData(st exam.State) ExamData {
	d := ExamData{State: st, Rows: make([]Row, 0, st.Total)}
	for n := 1; n <= st.Total; n++ {
		r := Row{Number: n}
		if len(st.Questions) >= n {
			q := st.Questions[n-1]
			r.Question = &q
		}
		r.Chosen = st.Answers[strconv.Itoa(n)]
		d.Rows = append(d.Rows, r)
	}
	return d
}

func ExamPage(d ExamData) templ.Component {
	return examPage(Page{Title: "NavExam", Active: NavExam}, d)
}

// ReviewData feeds the review page.
type ReviewData struct {
	ID      string
	Summary exam.Summary
	Saved   bool
}

// ReviewPage shows the finished exam; saveErr reports a result that could
// not be written to the spreadsheet.
func ReviewPage(d ReviewData, saveErr string) templ.Component {
	return reviewPage(Page{Title: "ReviewTitle", Active: NavExam, Error: saveErr}, d)
}

// ResultsData feeds My Results; tutors see every student.
type ResultsData struct {
	All     bool
	Results []model.Result
	Names   map[string]string
	Average float64
	Best    float64
}

// studentName shows the display name of a username when known.
func (d ResultsData) studentName(username string) string {
	if n := d.Names[username]; n != "" {
		return n
	}
	return username
}

func ResultsPage(d ResultsData, errMsg string) templ.Component {
	return resultsPage(Page{Title: "NavResults", Active: NavResults, Error: errMsg}, d)
}

// SettingsData feeds the settings page.
type SettingsData struct {
	Languages []string
	Current   string
}

func SettingsPage(d SettingsData, flash string) templ.Component {
	return settingsPage(Page{Title: "NavSettings", Active: NavSettings, Flash: flash}, d)
}

// QuestionForm echoes the question form, also used for LLM drafts.
type QuestionForm struct {
	Text    string
	OptionA string
	OptionB string
	OptionC string
	Correct model.Option
}

// QuestionsData feeds the tutor question page.
type QuestionsData struct {
	Questions    []model.Question
	Form         QuestionForm
	Subjects     []model.Subject
	Difficulties []string
	Options      []model.Option
	Drafting     bool
}

func QuestionsPage(d QuestionsData, flash, errMsg string) templ.Component {
	if d.Options == nil {
		d.Options = model.QuestionOptions
	}
	return questionsPage(Page{Title: "NavQuestions", Active: NavQuestions, Flash: flash, Error: errMsg}, d)
}

// UsersData feeds the tutor user page.
type UsersData struct {
	Users []model.User
	Roles []model.Role
}

func UsersPage(d UsersData, flash, errMsg string) templ.Component {
	return usersPage(Page{Title: "NavUsers", Active: NavUsers, Flash: flash, Error: errMsg}, d)
}
