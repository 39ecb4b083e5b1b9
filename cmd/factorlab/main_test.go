package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/factorlab/internal/testing"
)

// setupEnv points the CLI at a temp data dir holding one factor and one instrument with beta 1.5
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	testingpkg.WriteReturnsCSV(t, dir, 60, map[string]float64{"AAA": 1.5})

	t.Setenv("FACTORLAB_DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "disabled")
	t.Setenv("LOG_PRETTY", "false")
	t.Setenv("FACTORLAB_WINDOWS", "20")
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestWhole(t *testing.T) {
	setupEnv(t)

	out, _, err := execute(t, "whole", "aaa")
	require.NoError(t, err)
	assert.Contains(t, out, "AAA  2020-01-01..2020-02-29  n=60")
	assert.Contains(t, out, "const")
	assert.Contains(t, out, "Mkt-RF")
	assert.Contains(t, out, "ci_high")
}

func TestWhole_UnknownTickerIsSkipped(t *testing.T) {
	setupEnv(t)

	_, stderr, err := execute(t, "whole", "ZZZ")
	require.NoError(t, err)
	assert.Contains(t, stderr, "skipped (not_found)")
}

func TestWhole_WritesArtifact(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "whole.csv")

	_, _, err := execute(t, "whole", "AAA", "--out", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ",index,params,ticker,min_year,max_year\n"))
}

func TestRolling_LastWindows(t *testing.T) {
	setupEnv(t)

	out, _, err := execute(t, "rolling", "AAA", "-w", "20", "--last", "3")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "window=20  windows=41")
	assert.True(t, strings.HasPrefix(lines[1], "date"))
	assert.True(t, strings.HasPrefix(lines[4], "2020-02-29"))
}

func TestRolling_InvalidWindowIsSkipped(t *testing.T) {
	setupEnv(t)

	_, stderr, err := execute(t, "rolling", "AAA", "-w", "0")
	require.NoError(t, err)
	assert.Contains(t, stderr, "skipped (invalid_window)")
}

func TestCorrelations(t *testing.T) {
	setupEnv(t)

	out, _, err := execute(t, "correlations", "AAA", "-w", "20", "--last", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Mkt-RF")
	assert.NotContains(t, out, "const")
}

func TestPCA(t *testing.T) {
	setupEnv(t)

	out, _, err := execute(t, "pca", "-n", "1", "-w", "10", "--last", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PCA1")
	assert.Contains(t, lines[0], "other")
	assert.Contains(t, lines[2], "1.000000")
}

func TestBatch(t *testing.T) {
	dir := setupEnv(t)

	out, _, err := execute(t, "batch", "--tickers", "AAA,ZZZ")
	require.NoError(t, err)
	assert.Contains(t, out, "3 ok, 3 skipped")
	assert.Contains(t, out, "rolling:ZZZ:20")
	assert.Contains(t, out, "wrote rolling_regressions_output.csv")
	assert.FileExists(t, filepath.Join(dir, "output", "run_report.json"))
}

func TestImportAndNames(t *testing.T) {
	dir := setupEnv(t)
	namesPath := filepath.Join(dir, "names.json")
	require.NoError(t, os.WriteFile(namesPath, []byte(`{"AAA": {"longName": "Triple A Corp"}}`), 0o644))

	out, _, err := execute(t, "import", "--metadata", namesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 60 factor dates and 1 instruments (60 observations)")
	assert.Contains(t, out, "imported 1 instrument names")

	out, _, err = execute(t, "names", "AAA", "BBB")
	require.NoError(t, err)
	assert.Contains(t, out, "Triple A Corp")
	assert.Contains(t, out, "BBB     -")

	t.Setenv("FACTORLAB_SOURCE", "sqlite")
	out, _, err = execute(t, "whole", "AAA")
	require.NoError(t, err)
	assert.Contains(t, out, "AAA (Triple A Corp)")
}

func TestEnvFileMissing(t *testing.T) {
	setupEnv(t)

	_, _, err := execute(t, "--env", filepath.Join(t.TempDir(), "missing.env"), "names")
	assert.Error(t, err)
}
