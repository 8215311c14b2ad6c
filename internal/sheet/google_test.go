package sheet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const fakeSpreadsheetID = "sheet123"

// fakeGoogleAPI answers the Drive files.list call and the Sheets calls the
// Google backend makes, for one spreadsheet.
type fakeGoogleAPI struct {
	t *testing.T

	mu           sync.Mutex
	requests     []string
	driveQueries []string
	worksheets   []string
	values       map[string][][]any
	appendQuery  string
	failStatus   int
}

func newFakeGoogleAPI(t *testing.T) (*fakeGoogleAPI, *httptest.Server) {
	f := &fakeGoogleAPI{
		t:          t,
		worksheets: []string{Users, Questions},
		values: map[string][][]any{
			Users: {
				{"usuario", "password", "nombre", "rol"},
				{"ana", 1234, "Ana Pérez", "Estudiante"},
				{},
				{"profe", "s3creto", "Profesora"},
			},
			Questions: {
				{"id", "texto", "op_a", "op_b", "op_c", "correcta"},
			},
		},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGoogleAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if f.failStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.failStatus)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"fake failure"}}`, f.failStatus)
		return
	}

	valuesPrefix := "/v4/spreadsheets/" + fakeSpreadsheetID + "/values/"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/files":
		q := r.URL.Query().Get("q")
		f.driveQueries = append(f.driveQueries, q)
		files := []map[string]string{}
		if strings.Contains(q, "name = 'BaseDatos_Preu'") || strings.Contains(q, `name = 'O\'Higgins'`) {
			files = append(files, map[string]string{"id": fakeSpreadsheetID, "name": "BaseDatos_Preu"})
		}
		f.writeJSON(w, map[string]any{"files": files})

	case r.Method == http.MethodGet && r.URL.Path == "/v4/spreadsheets/"+fakeSpreadsheetID:
		var sheets []map[string]any
		for _, ws := range f.worksheets {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": ws}})
		}
		f.writeJSON(w, map[string]any{"sheets": sheets})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, valuesPrefix):
		ws := worksheetFromRange(strings.TrimPrefix(r.URL.Path, valuesPrefix))
		f.writeJSON(w, map[string]any{"range": ws + "!A1:Z100", "majorDimension": "ROWS", "values": f.values[ws]})

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, valuesPrefix) && strings.HasSuffix(r.URL.Path, ":append"):
		ws := worksheetFromRange(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, valuesPrefix), ":append"))
		f.appendQuery = r.URL.RawQuery
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.values[ws] = append(f.values[ws], body.Values...)
		f.writeJSON(w, map[string]any{"spreadsheetId": fakeSpreadsheetID, "tableRange": ws + "!A1:F1"})

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGoogleAPI) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeGoogleAPI) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == method+" "+path {
			n++
		}
	}
	return n
}

// worksheetFromRange undoes a1.
func worksheetFromRange(rng string) string {
	rng = strings.TrimSuffix(strings.TrimPrefix(rng, "'"), "'")
	return strings.ReplaceAll(rng, "''", "'")
}

func newTestGoogle(t *testing.T, srv *httptest.Server, cfg GoogleConfig) *Google {
	t.Helper()
	g, err := newGoogle(context.Background(), cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return g
}

func TestGoogleReadByName(t *testing.T) {
	f, srv := newFakeGoogleAPI(t)
	g := newTestGoogle(t, srv, GoogleConfig{SpreadsheetName: "BaseDatos_Preu"})
	ctx := context.Background()

	tbl, err := g.Read(ctx, Users)
	require.NoError(t, err)
	assert.Equal(t, Columns[Users], tbl.Header)
	require.Len(t, tbl.Records, 2, "blank rows are dropped")
	assert.Equal(t, Record{"usuario": "ana", "password": "1234", "nombre": "Ana Pérez", "rol": "Estudiante"}, tbl.Records[0])
	assert.Equal(t, "", tbl.Records[1]["rol"], "short rows are padded")

	_, err = g.Read(ctx, Questions)
	require.NoError(t, err)

	assert.Equal(t, 1, f.count(http.MethodGet, "/files"), "the name is resolved once")
	require.Len(t, f.driveQueries, 1)
	assert.Contains(t, f.driveQueries[0], "mimeType = 'application/vnd.google-apps.spreadsheet'")
	assert.Contains(t, f.driveQueries[0], "trashed = false")
	assert.Equal(t, 2, f.count(http.MethodGet, "/v4/spreadsheets/"+fakeSpreadsheetID))
	assert.Equal(t, 1, f.count(http.MethodGet, "/v4/spreadsheets/"+fakeSpreadsheetID+"/values/'usuarios'"))
}

func TestGoogleNameIsQuoted(t *testing.T) {
	f, srv := newFakeGoogleAPI(t)
	g := newTestGoogle(t, srv, GoogleConfig{SpreadsheetName: "O'Higgins"})

	_, err := g.Read(context.Background(), Users)
	require.NoError(t, err)
	require.Len(t, f.driveQueries, 1)
	assert.Contains(t, f.driveQueries[0], `name = 'O\'Higgins'`)
}

func TestGoogleUnknownName(t *testing.T) {
	_, srv := newFakeGoogleAPI(t)
	g := newTestGoogle(t, srv, GoogleConfig{SpreadsheetName: "Otra"})

	_, err := g.Read(context.Background(), Users)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGoogleMissingWorksheet(t *testing.T) {
	f, srv := newFakeGoogleAPI(t)
	g := newTestGoogle(t, srv, GoogleConfig{SpreadsheetID: fakeSpreadsheetID})
	ctx := context.Background()

	_, err := g.Read(ctx, Results)
	require.ErrorIs(t, err, ErrWorksheetNotFound)
	var wse *WorksheetError
	require.ErrorAs(t, err, &wse)
	assert.Equal(t, Results, wse.Worksheet)

	assert.ErrorIs(t, g.AppendRow(ctx, Results, []string{"x"}), ErrWorksheetNotFound)
	assert.Zero(t, f.count(http.MethodGet, "/files"), "an id needs no Drive lookup")
}

func TestGoogleAppendRows(t *testing.T) {
	f, srv := newFakeGoogleAPI(t)
	g := newTestGoogle(t, srv, GoogleConfig{SpreadsheetID: fakeSpreadsheetID})
	ctx := context.Background()

	require.NoError(t, g.AppendRows(ctx, Questions, [][]string{
		{"1700000000", "¿2+2?", "3", "4", "5", "B"},
		{"1700000001", "¿3*3?", "6", "9", "12", "B"},
	}))
	require.NoError(t, g.AppendRows(ctx, Questions, nil))

	path := "/v4/spreadsheets/" + fakeSpreadsheetID + "/values/'preguntas':append"
	assert.Equal(t, 1, f.count(http.MethodPost, path), "one append call for all rows")
	assert.Contains(t, f.appendQuery, "valueInputOption=RAW")
	assert.Contains(t, f.appendQuery, "insertDataOption=INSERT_ROWS")

	require.NoError(t, g.AppendRow(ctx, Questions, []string{"1700000002", "¿1+1?", "1", "2", "3", "B"}))

	tbl, err := g.Read(ctx, Questions)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 3)
	assert.Equal(t, "¿2+2?", tbl.Records[0]["texto"])
	assert.Equal(t, "9", tbl.Records[1]["op_b"])
	assert.Equal(t, "1700000002", tbl.Records[2]["id"])
}

func TestGoogleErrorsAreUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f, srv := newFakeGoogleAPI(t)
			f.failStatus = status
			ctx := context.Background()

			g := newTestGoogle(t, srv, GoogleConfig{SpreadsheetID: fakeSpreadsheetID})
			_, err := g.Read(ctx, Users)
			assert.ErrorIs(t, err, ErrUnavailable)
			assert.NotErrorIs(t, err, ErrWorksheetNotFound)
			assert.ErrorIs(t, g.AppendRow(ctx, Users, []string{"x"}), ErrUnavailable)

			byName := newTestGoogle(t, srv, GoogleConfig{SpreadsheetName: "BaseDatos_Preu"})
			_, err = byName.Read(ctx, Users)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}
