package sqlsandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNew_RegistersTablesFromFilenames(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "Sales Report.csv", "month,amount\nJan,100\nFeb,120\n")

	s, err := New(dir, 1000)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, []string{"sales_report"}, s.Tables())
}

func TestRun_RejectsForbiddenKeyword(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "t.csv", "n\n1\n")
	s, err := New(dir, 1000)
	require.NoError(t, err)
	defer s.Close()

	_, _, _, err = s.Run(context.Background(), "INSERT INTO t VALUES (1)")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Only SELECT queries are allowed")
}

func TestRun_RejectsNonTrailingSemicolon(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "t.csv", "n\n1\n")
	s, err := New(dir, 1000)
	require.NoError(t, err)
	defer s.Close()

	_, _, _, err = s.Run(context.Background(), "SELECT 1; DROP TABLE t")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Multi-statement queries are not allowed")
}

func TestRun_AllowsTrailingSemicolon(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "t.csv", "n\n1\n")
	s, err := New(dir, 1000)
	require.NoError(t, err)
	defer s.Close()

	_, _, _, err = s.Run(context.Background(), "SELECT n FROM t;")
	require.NoError(t, err)
}

func TestRun_CountOverRegisteredCSV(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "sales.csv", "month,amount\nJan,100\nFeb,120\nMar,90\nApr,140\n")
	s, err := New(dir, 1000)
	require.NoError(t, err)
	defer s.Close()

	columns, rows, truncated, err := s.Run(context.Background(), "SELECT COUNT(*) FROM sales")
	require.NoError(t, err)
	require.False(t, truncated)
	require.Len(t, columns, 1)
	require.Len(t, rows, 1)
	require.EqualValues(t, 4, rows[0][0])
}

func TestRun_TruncatesAtMaxRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "t.csv", "n\n1\n2\n3\n")
	s, err := New(dir, 2)
	require.NoError(t, err)
	defer s.Close()

	_, rows, truncated, err := s.Run(context.Background(), "SELECT n FROM t ORDER BY n")
	require.NoError(t, err)
	require.True(t, truncated)
	require.Len(t, rows, 2)
}

func TestRun_RejectsEmptyQuery(t *testing.T) {
	s, err := New("", 10)
	require.NoError(t, err)
	defer s.Close()

	_, _, _, err = s.Run(context.Background(), "   ")
	require.Error(t, err)
}

func TestTableNameFromFilename_NormalizesToLowercaseUnderscores(t *testing.T) {
	require.Equal(t, "q1_revenue_report", tableNameFromFilename("Q1 Revenue-Report.csv"))
	require.Equal(t, "sales", tableNameFromFilename("sales.json"))
}

func TestNew_NoDataDirYieldsNoTables(t *testing.T) {
	s, err := New("", 10)
	require.NoError(t, err)
	defer s.Close()

	require.Empty(t, s.Tables())
}
