package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preupac/simulador/internal/auth"
	"github.com/preupac/simulador/internal/exam"
	appI18n "github.com/preupac/simulador/internal/i18n"
	"github.com/preupac/simulador/internal/llm"
	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
	"github.com/preupac/simulador/internal/store"
)

// es localizes expected messages the way a default request would.
var es context.Context

func TestMain(m *testing.M) {
	if err := appI18n.Init("es"); err != nil {
		panic(err)
	}
	es = appI18n.WithLanguage(context.Background(), "es")
	os.Exit(m.Run())
}

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	store  *store.Store
}

// dropColumn hides one column of one worksheet, as if a tutor had renamed
// it in the spreadsheet.
type dropColumn struct {
	sheet.Backend
	worksheet, column string
}

func (d dropColumn) Read(ctx context.Context, worksheet string) (sheet.Table, error) {
	tbl, err := d.Backend.Read(ctx, worksheet)
	if err != nil || worksheet != d.worksheet {
		return tbl, err
	}
	tbl.Header = slices.DeleteFunc(slices.Clone(tbl.Header), func(h string) bool { return h == d.column })
	return tbl, nil
}

// failResults refuses every write to the results worksheet.
type failResults struct {
	sheet.Backend
}

func (f failResults) AppendRow(ctx context.Context, worksheet string, row []string) error {
	if worksheet == sheet.Results {
		return errors.Join(sheet.ErrUnavailable, errors.New("quota exceeded"))
	}
	return f.Backend.AppendRow(ctx, worksheet, row)
}

type fakeDrafter struct {
	q   model.Question
	err error
	got llm.DraftRequest
}

func (f *fakeDrafter) DraftQuestion(_ context.Context, req llm.DraftRequest) (model.Question, error) {
	f.got = req
	return f.q, f.err
}

type serverOption func(*serverConfig)

type serverConfig struct {
	wrap    func(sheet.Backend) sheet.Backend
	drafter Drafter
	cfg     model.AppConfig
}

func withBackend(wrap func(sheet.Backend) sheet.Backend) serverOption {
	return func(c *serverConfig) { c.wrap = wrap }
}

func withDrafter(d Drafter) serverOption {
	return func(c *serverConfig) { c.drafter = d }
}

func withBasePath(p string) serverOption {
	return func(c *serverConfig) { c.cfg.BasePath = p }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	var sc serverConfig
	for _, o := range opts {
		o(&sc)
	}

	ctx := context.Background()
	b, err := sheet.NewSQL(ctx, sheet.DriverSQLite, ":memory:")
	require.NoError(t, err)
	seed := store.New(b)
	hash, err := auth.HashPassword("s3creto")
	require.NoError(t, err)
	require.NoError(t, seed.CreateUser(ctx, model.User{Username: "ana", Password: "1234", Name: "Ana Pérez", Role: model.RoleStudent}))
	require.NoError(t, seed.CreateUser(ctx, model.User{Username: "profe", Password: hash, Name: "Profesora", Role: model.RoleTutor}))

	var backend sheet.Backend = b
	if sc.wrap != nil {
		backend = sc.wrap(b)
	}
	s := store.New(backend)
	t.Cleanup(func() { s.Close() })

	sessions, err := auth.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)
	h, err := New(s, exam.NewRegistry(time.Hour, nil), sessions, sc.drafter, sc.cfg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	r.Use(appI18n.Middleware)
	if sc.cfg.BasePath != "" {
		r.Route(sc.cfg.BasePath, func(r chi.Router) { h.Routes(r, nil) })
	} else {
		h.Routes(r, nil)
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testServer{t: t, srv: srv, client: client, store: s}
}

func (ts *testServer) cookie(name string) string {
	u, _ := url.Parse(ts.srv.URL)
	for _, c := range ts.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// csrf makes sure the jar holds a CSRF cookie and returns it.
func (ts *testServer) csrf() string {
	if tok := ts.cookie(csrfCookieName); tok != "" {
		return tok
	}
	ts.get("/login")
	tok := ts.cookie(csrfCookieName)
	require.NotEmpty(ts.t, tok)
	return tok
}

func (ts *testServer) do(req *http.Request) (*http.Response, string) {
	ts.t.Helper()
	resp, err := ts.client.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp, html.UnescapeString(string(body))
}

func (ts *testServer) get(path string) (*http.Response, string) {
	ts.t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	require.NoError(ts.t, err)
	return ts.do(req)
}

func (ts *testServer) postForm(path string, form url.Values) (*http.Response, string) {
	ts.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set(csrfFieldName, ts.csrf())
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func (ts *testServer) postJSON(path string, v any) (*http.Response, string) {
	ts.t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(ts.t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, body)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(csrfHeaderName, ts.csrf())
	return ts.do(req)
}

func (ts *testServer) login(username, password string) {
	ts.t.Helper()
	resp, body := ts.postForm("/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(ts.t, http.StatusSeeOther, resp.StatusCode, body)
	require.Equal(ts.t, "/", resp.Header.Get("Location"))
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		status   int
		message  string
	}{
		{"unknown user", "nadie", "1234", http.StatusUnauthorized, "LoginUserNotFound"},
		{"wrong password", "ana", "12345", http.StatusUnauthorized, "LoginWrongPassword"},
		{"password is case sensitive", "profe", "S3CRETO", http.StatusUnauthorized, "LoginWrongPassword"},
		{"missing password", "ana", "", http.StatusBadRequest, "LoginMissingFields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			resp, body := ts.postForm("/login", url.Values{"username": {tt.username}, "password": {tt.password}})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body, appI18n.T(es, tt.message))
			assert.Empty(t, ts.cookie(sessionCookieName))
		})
	}

	t.Run("plain and hashed passwords", func(t *testing.T) {
		ts := newTestServer(t)
		ts.login("ana", "1234")
		assert.NotEmpty(t, ts.cookie(sessionCookieName))

		ts = newTestServer(t)
		ts.login("profe", "s3creto")
		_, body := ts.get("/")
		assert.Contains(t, body, "Profesora")
		assert.Contains(t, body, appI18n.T(es, "NavQuestions"))
	})
}

func TestLoginUsesUsernameAsTyped(t *testing.T) {
	var raw sheet.Backend
	ts := newTestServer(t, withBackend(func(b sheet.Backend) sheet.Backend {
		raw = b
		return b
	}))
	require.NoError(t, raw.AppendRow(context.Background(), sheet.Users, []string{"luis ", "abc", "Luis", "Estudiante"}))

	resp, body := ts.postForm("/login", url.Values{"username": {"ana "}, "password": {"1234"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "LoginUserNotFound"))

	ts.login("luis ", "abc")
	_, body = ts.get("/")
	assert.Contains(t, body, "Luis")
}

func TestLoginRotatesCSRFToken(t *testing.T) {
	ts := newTestServer(t)
	before := ts.csrf()
	ts.login("ana", "1234")
	after := ts.cookie(csrfCookieName)
	assert.NotEmpty(t, after)
	assert.NotEqual(t, before, after)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")

	resp, _ := ts.postForm("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Empty(t, ts.cookie(sessionCookieName))

	resp, _ = ts.get("/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestCSRF(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/login", strings.NewReader("username=ana&password=1234"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ := ts.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "no cookie")

	ts.csrf()
	req, err = http.NewRequest(http.MethodPost, ts.srv.URL+"/login", strings.NewReader("username=ana&password=1234&csrf_token=forged"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, _ = ts.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "wrong token")

	resp, _ = ts.get("/login")
	assert.Equal(t, ts.cookie(csrfCookieName), resp.Header.Get(csrfHeaderName), "token reused across requests")
}

func TestRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	for _, p := range []string{"/", "/exam", "/results", "/settings", "/tutor/questions"} {
		resp, _ := ts.get(p)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, p)
		assert.Equal(t, "/login", resp.Header.Get("Location"), p)
	}

	resp, body := ts.get("/api/exam/abc/")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unauthorized"}`, body)
}

func TestTutorOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")
	for _, p := range []string{"/tutor/questions", "/tutor/users"} {
		resp, _ := ts.get(p)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, p)
	}
	_, body := ts.get("/")
	assert.NotContains(t, body, appI18n.T(es, "NavQuestions"))

	ts = newTestServer(t)
	ts.login("profe", "s3creto")
	for _, p := range []string{"/tutor/questions", "/tutor/users"} {
		resp, _ := ts.get(p)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
	}
}

func startExam(t *testing.T, ts *testServer, form url.Values) string {
	t.Helper()
	resp, body := ts.postForm("/exam/start", form)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode, body)
	loc := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/exam/"), loc)
	return strings.TrimPrefix(loc, "/exam/")
}

func decodeState(t *testing.T, body string) exam.State {
	t.Helper()
	var st exam.State
	require.NoError(t, json.Unmarshal([]byte(body), &st), body)
	return st
}

func TestAnswerSheetExam(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")

	resp, body := ts.get("/exam")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "StartExam"))

	id := startExam(t, ts, url.Values{
		"subject": {"math"},
		"mode":    {"sheet"},
		"count":   {"3"},
		"minutes": {"10"},
		"key":     {"abc"},
	})
	api := "/api/exam/" + id

	resp, body = ts.get("/exam/" + id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `data-total="3"`)

	resp, body = ts.postJSON(api+"/answer", answerRequest{Question: 1, Option: model.OptionA})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	st := decodeState(t, body)
	assert.Equal(t, model.OptionA, st.Answers["1"])
	assert.Equal(t, []int{1}, st.Answered)
	assert.Equal(t, 600, st.DurationSeconds)

	resp, body = ts.postJSON(api+"/answer", answerRequest{Question: 2, Option: model.OptionE})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = ts.postJSON(api+"/clear", answerRequest{Question: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, []int{1}, decodeState(t, body).Answered)

	resp, body = ts.postJSON(api+"/answer", answerRequest{Question: 4, Option: model.OptionA})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)

	resp, body = ts.postJSON(api+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.True(t, decodeState(t, body).Paused)

	resp, body = ts.postJSON(api+"/answer", answerRequest{Question: 3, Option: model.OptionC})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var apiErr apiError
	require.NoError(t, json.Unmarshal([]byte(body), &apiErr))
	require.NotNil(t, apiErr.State)
	assert.True(t, apiErr.State.Paused)

	resp, body = ts.postJSON(api+"/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.False(t, decodeState(t, body).Paused)

	resp, body = ts.postJSON(api+"/answer", answerRequest{Question: 3, Option: model.OptionC})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = ts.postJSON(api+"/finish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, exam.PhaseReview, decodeState(t, body).Phase)

	results, err := ts.store.ListResults(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Answered)
	assert.Equal(t, 2, results[0].Correct)
	assert.True(t, results[0].Graded)

	// the review page does not store the result a second time
	resp, body = ts.get("/exam/" + id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "ReviewTitle"))
	results, err = ts.store.ListResults(context.Background(), "ana")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	resp, _ = ts.postJSON(api+"/answer", answerRequest{Question: 2, Option: model.OptionB})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, body = ts.get("/results")
	assert.Contains(t, body, "66.7%")
}

func TestFinishReportsUnsavedResult(t *testing.T) {
	ts := newTestServer(t, withBackend(func(b sheet.Backend) sheet.Backend { return failResults{b} }))
	ts.login("ana", "1234")
	id := startExam(t, ts, url.Values{"subject": {"math"}, "mode": {"sheet"}, "count": {"2"}, "minutes": {"5"}})

	resp, body := ts.postJSON("/api/exam/"+id+"/finish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var got stateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got), body)
	assert.Equal(t, exam.PhaseReview, got.Phase)
	assert.Contains(t, got.Warning, appI18n.T(es, "ErrResultNotSaved"))

	_, body = ts.get("/exam/" + id)
	assert.Contains(t, body, appI18n.T(es, "ErrResultNotSaved"))

	results, err := ts.store.ListResults(context.Background(), "ana")
	require.NoError(t, err)
	assert.Empty(t, results)
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestSweepSavesAbandonedResult(t *testing.T) {
	ctx := context.Background()
	b, err := sheet.NewSQL(ctx, sheet.DriverSQLite, ":memory:")
	require.NoError(t, err)
	s := store.New(b)
	t.Cleanup(func() { s.Close() })
	sessions, err := auth.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	clock := &stepClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	exams := exam.NewRegistry(time.Hour, clock)
	_, err = New(s, exams, sessions, nil, model.AppConfig{})
	require.NoError(t, err)

	sess := exams.Create("ana")
	require.NoError(t, sess.Configure(exam.Setup{Subject: model.SubjectMath, Mode: model.ModeSheet, Count: 2, Duration: 30 * time.Minute}))
	require.NoError(t, sess.Start())
	require.NoError(t, sess.Answer(1, model.OptionB))

	// the student leaves; the countdown runs out and the session goes idle
	clock.now = clock.now.Add(3 * time.Hour)
	assert.Equal(t, 1, exams.Sweep(ctx))

	results, err := s.ListResults(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Answered)
	assert.Equal(t, model.SubjectMath, results[0].Subject)
}

func TestFinishFromPage(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")
	id := startExam(t, ts, url.Values{"subject": {"science"}, "mode": {"sheet"}, "count": {"5"}, "minutes": {"30"}})

	resp, _ := ts.postForm("/exam/"+id+"/finish", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body := ts.get("/exam/" + id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "NotGraded"))

	results, err := ts.store.ListResults(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Graded)
	assert.Equal(t, 5, results[0].Total)
}

func TestExamOwnership(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")
	id := startExam(t, ts, url.Values{"subject": {"math"}, "mode": {"sheet"}, "count": {"2"}, "minutes": {"5"}})

	other := &testServer{t: t, srv: ts.srv, store: ts.store}
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other.client = &http.Client{Jar: jar, CheckRedirect: ts.client.CheckRedirect}
	other.login("profe", "s3creto")

	resp, _ := other.get("/exam/" + id)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = other.postJSON("/api/exam/"+id+"/answer", answerRequest{Question: 1, Option: model.OptionA})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartExamValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"unknown subject", url.Values{"subject": {"history"}, "mode": {"sheet"}, "count": {"5"}, "minutes": {"10"}}, "history"},
		{"too many questions", url.Values{"subject": {"math"}, "mode": {"sheet"}, "count": {"101"}, "minutes": {"10"}}, "100"},
		{"zero minutes", url.Values{"subject": {"math"}, "mode": {"sheet"}, "count": {"5"}, "minutes": {"0"}}, "duration"},
		{"key too short", url.Values{"subject": {"math"}, "mode": {"sheet"}, "count": {"5"}, "minutes": {"10"}, "key": {"AB"}}, "answer key"},
		{"empty bank", url.Values{"subject": {"math"}, "mode": {"bank"}, "count": {"5"}, "minutes": {"10"}}, appI18n.T(es, "ErrNoBankQuestions")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.postForm("/exam/start", tt.form)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, body, tt.want)
		})
	}
}

func TestBankExam(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for _, text := range []string{"¿2+2?", "¿3+3?"} {
		_, err := ts.store.InsertQuestion(ctx, model.Question{Text: text, OptionA: "4", OptionB: "6", OptionC: "8", Correct: model.OptionA})
		require.NoError(t, err)
	}
	ts.login("ana", "1234")

	id := startExam(t, ts, url.Values{"subject": {"math"}, "mode": {"bank"}, "count": {"10"}, "minutes": {"10"}})
	resp, body := ts.get("/api/exam/" + id + "/")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	st := decodeState(t, body)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, model.QuestionOptions, st.Options)
	require.Len(t, st.Questions, 2)
	assert.NotContains(t, body, "correcta")

	resp, _ = ts.postJSON("/api/exam/"+id+"/answer", answerRequest{Question: 1, Option: model.OptionD})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = ts.get("/exam/" + id)
	assert.Contains(t, body, "¿2+2?")
}

func TestSettingsLanguage(t *testing.T) {
	ts := newTestServer(t)
	ts.login("ana", "1234")

	_, body := ts.get("/")
	assert.Contains(t, body, "Inicio")

	resp, body := ts.postForm("/settings", url.Values{"lang": {"en"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "en", ts.cookie(appI18n.CookieName))
	assert.Contains(t, body, "Home")

	_, body = ts.get("/")
	assert.Contains(t, body, "Home")

	resp, _ = ts.postForm("/settings", url.Values{"lang": {"fr"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateQuestion(t *testing.T) {
	ts := newTestServer(t)
	ts.login("profe", "s3creto")

	resp, body := ts.postForm("/tutor/questions", url.Values{
		"texto":    {"¿Capital de Chile?"},
		"op_a":     {"Lima"},
		"op_b":     {"Santiago"},
		"op_c":     {"Quito"},
		"correcta": {"B"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, appI18n.T(es, "QuestionSaved"))
	assert.Contains(t, body, "¿Capital de Chile?")

	questions, err := ts.store.ListQuestions(context.Background())
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, model.OptionB, questions[0].Correct)

	resp, body = ts.postForm("/tutor/questions", url.Values{
		"texto":    {"Sin opciones"},
		"correcta": {"A"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Sin opciones", "form is echoed back")

	resp, _ = ts.postForm("/tutor/questions", url.Values{
		"texto": {"x"}, "op_a": {"1"}, "op_b": {"2"}, "op_c": {"3"}, "correcta": {"D"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadQuestions(t *testing.T) {
	ts := newTestServer(t)
	ts.login("profe", "s3creto")

	upload := func(content string) (*http.Response, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField(csrfFieldName, ts.csrf()))
		fw, err := mw.CreateFormFile("questions_file", "preguntas.json")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/tutor/questions/upload", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return ts.do(req)
	}

	resp, body := upload(`[
		{"texto":"¿1+1?","op_a":"1","op_b":"2","op_c":"3","correcta":"B"},
		{"texto":"¿2+1?","op_a":"1","op_b":"2","op_c":"3","correcta":"C"}
	]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, appI18n.Tp(es, "UploadDone", 2))

	n, err := ts.store.QuestionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resp, body = upload(`not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "ErrUploadInvalid"))
}

func TestDraftQuestion(t *testing.T) {
	ts := newTestServer(t)
	ts.login("profe", "s3creto")
	resp, _ := ts.postForm("/tutor/questions/draft", url.Values{"subject": {"math"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "disabled without a drafter")

	d := &fakeDrafter{q: model.Question{Text: "¿Raíz de 9?", OptionA: "3", OptionB: "9", OptionC: "81", Correct: model.OptionA}}
	ts = newTestServer(t, withDrafter(d))
	ts.login("profe", "s3creto")

	resp, body := ts.postForm("/tutor/questions/draft", url.Values{"subject": {"math"}, "topic": {"raíces"}, "difficulty": {"hard"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, "¿Raíz de 9?")
	assert.Contains(t, body, appI18n.T(es, "DraftReady"))
	assert.Equal(t, model.SubjectMath, d.got.Subject)
	assert.Equal(t, "raíces", d.got.Topic)
	assert.Equal(t, "es", d.got.Lang)

	n, err := ts.store.QuestionCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "drafts are not stored until saved")

	d.err = errors.New("model unavailable")
	resp, body = ts.postForm("/tutor/questions/draft", url.Values{"subject": {"math"}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "DraftFailed"))
}

func TestCreateUser(t *testing.T) {
	ts := newTestServer(t)
	ts.login("profe", "s3creto")

	resp, body := ts.postForm("/tutor/users", url.Values{
		"usuario": {"beto"}, "nombre": {"Beto"}, "password": {"clave"}, "rol": {"Estudiante"}, "hash": {"on"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, appI18n.T(es, "UserCreated"))

	u, err := ts.store.GetUserByUsername(context.Background(), "beto")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, auth.IsHash(u.Password))

	resp, body = ts.postForm("/tutor/users", url.Values{
		"usuario": {"beto"}, "nombre": {"Otro"}, "password": {"x"}, "rol": {"Tutor"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, appI18n.T(es, "ErrUserExists"))

	resp, _ = ts.postForm("/tutor/users", url.Values{
		"usuario": {"carla"}, "password": {"x"}, "rol": {"admin"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMissingColumn(t *testing.T) {
	ts := newTestServer(t, withBackend(func(b sheet.Backend) sheet.Backend {
		return dropColumn{Backend: b, worksheet: sheet.Questions, column: "correcta"}
	}))
	ts.login("ana", "1234")

	want := appI18n.Td(es, "ErrColumnMissing", map[string]any{"Worksheet": sheet.Questions, "Column": "correcta"})
	resp, body := ts.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, want)

	resp, body = ts.postForm("/exam/start", url.Values{"subject": {"math"}, "mode": {"bank"}, "count": {"5"}, "minutes": {"10"}})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, want)
}

func TestMissingUsersColumnOnLogin(t *testing.T) {
	ts := newTestServer(t, withBackend(func(b sheet.Backend) sheet.Backend {
		return dropColumn{Backend: b, worksheet: sheet.Users, column: "password"}
	}))
	resp, body := ts.postForm("/login", url.Values{"username": {"ana"}, "password": {"1234"}})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, appI18n.Td(es, "ErrColumnMissing", map[string]any{"Worksheet": sheet.Users, "Column": "password"}))
}

func TestBasePath(t *testing.T) {
	ts := newTestServer(t, withBasePath("/preu"))

	resp, _ := ts.get("/preu/")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/preu/login", resp.Header.Get("Location"))

	resp, body := ts.get("/preu/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/preu/login"`)

	resp, _ = ts.get("/preu/static/widget.js")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
