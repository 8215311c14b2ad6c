package sheet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableFromRows(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		tbl := tableFromRows(nil)
		assert.Empty(t, tbl.Header)
		assert.Empty(t, tbl.Records)
	})

	t.Run("header only", func(t *testing.T) {
		tbl := tableFromRows([][]string{{"usuario", "password"}})
		assert.Equal(t, []string{"usuario", "password"}, tbl.Header)
		assert.Empty(t, tbl.Records)
	})

	t.Run("pads short rows and skips blank ones", func(t *testing.T) {
		tbl := tableFromRows([][]string{
			{" usuario ", "password", "nombre"},
			{"ana", "1234"},
			{"", "  ", ""},
			{},
			{"luis", "abc", "Luis", "extra"},
		})
		require.Len(t, tbl.Records, 2)
		assert.Equal(t, Record{"usuario": "ana", "password": "1234", "nombre": ""}, tbl.Records[0])
		assert.Equal(t, Record{"usuario": "luis", "password": "abc", "nombre": "Luis"}, tbl.Records[1])
	})
}

func TestTableRequire(t *testing.T) {
	tbl := Table{Header: []string{"usuario", "password"}}
	assert.NoError(t, tbl.Require(Users, "usuario", "password"))

	err := tbl.Require(Users, "usuario", "rol")
	var mce *MissingColumnError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, "rol", mce.Column)
	assert.Equal(t, Users, mce.Worksheet)
	assert.Contains(t, err.Error(), `"rol"`)
}

func TestSQLBackend(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQL(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tbl, err := s.Read(ctx, Users)
	require.NoError(t, err)
	assert.Equal(t, Columns[Users], tbl.Header)
	assert.Empty(t, tbl.Records)

	require.NoError(t, s.AppendRow(ctx, Users, []string{"ana", "1234", "Ana", "Estudiante"}))
	require.NoError(t, s.AppendRow(ctx, Users, []string{"profe", "x"}))

	tbl, err = s.Read(ctx, Users)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "ana", tbl.Records[0]["usuario"])
	assert.Equal(t, "Estudiante", tbl.Records[0]["rol"])
	assert.Equal(t, "profe", tbl.Records[1]["usuario"])
	assert.Equal(t, "", tbl.Records[1]["rol"])

	require.NoError(t, s.AppendRows(ctx, Users, [][]string{
		{"luis", "a", "Luis", "Estudiante"},
		{"eva", "b", "Eva", "Tutor"},
	}))
	tbl, err = s.Read(ctx, Users)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 4)
	assert.Equal(t, "luis", tbl.Records[2]["usuario"])
	assert.Equal(t, "eva", tbl.Records[3]["usuario"])

	_, err = s.Read(ctx, "hojas")
	assert.ErrorIs(t, err, ErrWorksheetNotFound)
	assert.ErrorIs(t, s.AppendRow(ctx, "hojas", []string{"x"}), ErrWorksheetNotFound)
	assert.ErrorIs(t, s.AppendRows(ctx, "hojas", [][]string{{"x"}}), ErrWorksheetNotFound)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "simulador.db?_pragma=busy_timeout(5000)", sqliteDSN("simulador.db"))
	assert.Equal(t, "file:x.db?mode=ro&_pragma=busy_timeout(5000)", sqliteDSN("file:x.db?mode=ro"))
}

func TestSQLBackendDSNWithQuery(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQL(ctx, DriverSQLite, "file:"+filepath.Join(t.TempDir(), "x.db")+"?mode=rwc")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.AppendRow(ctx, Users, []string{"ana", "1234", "Ana", "Estudiante"}))
	tbl, err := s.Read(ctx, Users)
	require.NoError(t, err)
	assert.Len(t, tbl.Records, 1)
}

func TestSQLBackendUnsupportedDriver(t *testing.T) {
	_, err := NewSQL(context.Background(), Driver("mysql"), "")
	assert.Error(t, err)
}

func TestWorkbook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "BaseDatos_Preu.xlsx")

	require.NoError(t, CreateWorkbook(path))
	assert.Error(t, CreateWorkbook(path), "must not overwrite")

	wb, err := NewWorkbook(path)
	require.NoError(t, err)

	tbl, err := wb.Read(ctx, Questions)
	require.NoError(t, err)
	assert.Equal(t, Columns[Questions], tbl.Header)
	assert.Empty(t, tbl.Records)

	require.NoError(t, wb.AppendRow(ctx, Questions, []string{"1700000000", "2+2", "3", "4", "5", "B"}))
	require.NoError(t, wb.AppendRow(ctx, Questions, []string{"1700000001", "3*3", "6", "9", "12", "B"}))

	require.NoError(t, wb.AppendRows(ctx, Questions, [][]string{
		{"1700000002", "1+1", "1", "2", "3", "B"},
		{"1700000003", "5-5", "0", "5", "10", "A"},
	}))

	tbl, err = wb.Read(ctx, Questions)
	require.NoError(t, err)
	require.Len(t, tbl.Records, 4)
	assert.Equal(t, "2+2", tbl.Records[0]["texto"])
	assert.Equal(t, "9", tbl.Records[1]["op_b"])
	assert.Equal(t, "1+1", tbl.Records[2]["texto"])
	assert.Equal(t, "5-5", tbl.Records[3]["texto"])

	_, err = wb.Read(ctx, "hojas")
	assert.True(t, errors.Is(err, ErrWorksheetNotFound))
}

func TestNewWorkbookMissingFile(t *testing.T) {
	_, err := NewWorkbook(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), Config{Kind: "csv"})
	assert.Error(t, err)
}

func TestNewGoogleValidation(t *testing.T) {
	_, err := NewGoogle(context.Background(), GoogleConfig{SpreadsheetName: "BaseDatos_Preu"})
	assert.Error(t, err, "credential required")

	_, err = NewGoogle(context.Background(), GoogleConfig{CredentialsFile: "key.json"})
	assert.Error(t, err, "id or name required")
}

func TestA1(t *testing.T) {
	assert.Equal(t, "'usuarios'", a1("usuarios"))
	assert.Equal(t, "'it''s'", a1("it's"))
}
