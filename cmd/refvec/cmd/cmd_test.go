package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/refvec/internal/config"
	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/extract/extracttest"
	"github.com/Aman-CERP/refvec/internal/ui"
)

// testDir returns an empty reference directory and points the CLI at the
// static embedder.
func testDir(t *testing.T) string {
	t.Helper()
	t.Setenv("REFVEC_EMBEDDER", "static")
	t.Setenv("REFVEC_DATA_DIR", "")
	t.Setenv(PathEnv, "")
	return t.TempDir()
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// execute runs the CLI with args and stdin, returning stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func status(t *testing.T, dir string) ui.StatusInfo {
	t.Helper()
	out, _, err := execute(t, "", "status", "--json", "--path", dir)
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info), out)
	return info
}

func TestCommand_Table(t *testing.T) {
	for _, c := range []Command{CommandStatus, CommandVectorize, CommandRefresh, CommandClean, CommandTest, CommandWatch} {
		assert.Contains(t, handlers, c, "no handler for %s", c)
	}
	assert.Equal(t, "unknown", Command(99).String())

	assert.False(t, CommandStatus.Builds())
	assert.False(t, CommandTest.Builds())
	assert.False(t, CommandClean.Builds())
	assert.True(t, CommandVectorize.Builds())
	assert.True(t, CommandWatch.Builds())

	assert.False(t, CommandStatus.Embeds())
	assert.False(t, CommandClean.Embeds())
	assert.True(t, CommandTest.Embeds())
	assert.True(t, CommandWatch.Embeds())
}

func TestCLI_Walkthrough(t *testing.T) {
	// Given: a directory with two documents, never vectorized
	dir := testDir(t)
	write(t, dir, "bearings.txt", "Bearing clearance must be checked every service interval.")
	require.NoError(t, extracttest.WritePDF(filepath.Join(dir, "a.pdf"),
		"Pump overview and installation.",
		"Zirconium sleeve wear limits for the pump shaft."))

	info := status(t, dir)
	assert.Equal(t, 2, info.Total)
	assert.Equal(t, 2, info.NeedsProcessing)
	assert.NoDirExists(t, filepath.Join(dir, ".refvec"), "status must not create the data directory")

	// When: vectorizing
	out, _, err := execute(t, "", "vectorize", "--path", dir)

	// Then: both documents are processed and reported up to date
	require.NoError(t, err)
	assert.Contains(t, out, "Complete (vectorize): 2 processed, 0 skipped, 0 failed")
	info = status(t, dir)
	assert.Equal(t, 2, info.UpToDate)
	assert.Equal(t, 0, info.NeedsProcessing)
	assert.Positive(t, info.IndexedChunks)

	// And: a second run skips them
	out, _, err = execute(t, "", "vectorize", "--path", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 processed, 2 skipped")

	// And: a test query finds the pump document's second page
	out, _, err = execute(t, "", "test", "--path", dir, "--query", "zirconium sleeve wear", "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1. a.pdf (page 2")
}

func TestCLI_PathFromEnvironment(t *testing.T) {
	dir := testDir(t)
	write(t, dir, "notes.md", "# Notes\n\nTorque limits.")
	t.Setenv(PathEnv, dir)

	out, _, err := execute(t, "", "status", "--json")
	require.NoError(t, err)

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 1, info.Total)
}

func TestCLI_VectorizeReportsFailures(t *testing.T) {
	// Given: one good document and one corrupt PDF
	dir := testDir(t)
	write(t, dir, "good.txt", "Lubrication schedule for the gearbox.")
	write(t, dir, "broken.pdf", "this is not a pdf")

	// When: vectorizing
	out, _, err := execute(t, "", "vectorize", "--path", dir)

	// Then: the run completes, lists the failure and exits non-zero
	require.Error(t, err)
	assert.Contains(t, out, "Failed documents:")
	assert.Contains(t, out, "broken.pdf (extraction_error)")

	var errOut bytes.Buffer
	assert.Equal(t, ExitFailure, report(&errOut, err))
	assert.Contains(t, errOut.String(), "1 document(s) failed")

	// And: the good document is indexed, the broken one recorded as failed
	info := status(t, dir)
	assert.Equal(t, 1, info.UpToDate)
	assert.Equal(t, 1, info.Failed)
	require.Len(t, info.FailedFiles, 1)
	assert.Equal(t, "extraction_error", info.FailedFiles[0].Kind)
}

func TestCLI_Refresh(t *testing.T) {
	dir := testDir(t)
	write(t, dir, "a.txt", "Coolant mixing ratio.")
	_, _, err := execute(t, "", "vectorize", "--path", dir)
	require.NoError(t, err)

	out, _, err := execute(t, "", "refresh", "--path", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "Complete (refresh): 1 processed")
}

func TestCLI_Clean(t *testing.T) {
	dir := testDir(t)
	write(t, dir, "a.txt", "Valve seat inspection.")
	_, _, err := execute(t, "", "vectorize", "--path", dir)
	require.NoError(t, err)

	t.Run("declined", func(t *testing.T) {
		out, _, err := execute(t, "n\n", "clean", "--path", dir)

		require.NoError(t, err)
		assert.Contains(t, out, "Continue? [y/N]")
		assert.Contains(t, out, "Aborted")
		assert.Equal(t, 1, status(t, dir).UpToDate)
	})

	t.Run("no input declines", func(t *testing.T) {
		out, _, err := execute(t, "", "clean", "--path", dir)

		require.NoError(t, err)
		assert.Contains(t, out, "Aborted")
	})

	t.Run("confirmed", func(t *testing.T) {
		out, _, err := execute(t, "yes\n", "clean", "--path", dir)

		require.NoError(t, err)
		assert.Contains(t, out, "Removed 1 records")
		info := status(t, dir)
		assert.Equal(t, 0, info.UpToDate)
		assert.Equal(t, 1, info.NeedsProcessing)
		assert.FileExists(t, filepath.Join(dir, "a.txt"), "documents are never touched")
	})
}

func TestCLI_CleanForce(t *testing.T) {
	dir := testDir(t)
	write(t, dir, "a.txt", "Filter replacement.")
	_, _, err := execute(t, "", "vectorize", "--path", dir)
	require.NoError(t, err)

	out, _, err := execute(t, "", "clean", "--force", "--path", dir)

	require.NoError(t, err)
	assert.NotContains(t, out, "Continue?")
	assert.Contains(t, out, "Removed 1 records")
}

func TestCLI_TestQueryErrors(t *testing.T) {
	dir := testDir(t)
	write(t, dir, "a.txt", "Belt tension.")

	// Given: an index that was never built, a query fails without creating state
	_, _, err := execute(t, "", "test", "--path", dir, "--query", "belt")
	require.Error(t, err)
	assert.Equal(t, rverrors.ErrCodeIndexEmpty, rverrors.GetCode(err))
	assert.NoDirExists(t, filepath.Join(dir, ".refvec"))

	// And: an explicitly empty query is rejected
	_, _, err = execute(t, "", "test", "--path", dir, "--query", "  ")
	require.Error(t, err)
	assert.Equal(t, rverrors.ErrCodeQueryEmpty, rverrors.GetCode(err))
}

func TestCLI_TestDefaultQuery(t *testing.T) {
	// Given: a vectorized directory and a configured test query
	dir := testDir(t)
	write(t, dir, "a.txt", "Gearbox lubrication interval and oil grade.")
	write(t, dir, ".refvec.yaml", "index:\n  test_query: gearbox lubrication\n")
	_, _, err := execute(t, "", "vectorize", "--path", dir)
	require.NoError(t, err)

	// When: running test without --query
	out, _, err := execute(t, "", "test", "--path", dir)

	// Then: the configured query is searched
	require.NoError(t, err)
	assert.Contains(t, out, `Results for "gearbox lubrication"`)
	assert.Contains(t, out, "1. a.txt")
}

func TestCLI_StatusMissingDirectory(t *testing.T) {
	// Given: a path that does not exist
	missing := filepath.Join(testDir(t), "missing")

	// When: asking for status
	_, errOut, err := execute(t, "", "status", "--path", missing)

	// Then: the error is printed but status still succeeds
	require.NoError(t, err)
	assert.Contains(t, errOut, rverrors.ErrCodeDirectoryMissing)
	assert.NoDirExists(t, missing)
}

func TestCLI_WritersRefuseMissingDirectory(t *testing.T) {
	for _, args := range [][]string{
		{"vectorize"},
		{"refresh"},
		{"clean", "--force"},
		{"watch"},
	} {
		t.Run(args[0], func(t *testing.T) {
			// Given: a path that does not exist
			missing := filepath.Join(testDir(t), "missing")

			// When: running a command that writes
			_, _, err := execute(t, "", append(args, "--path", missing)...)

			// Then: it fails without creating the directory
			require.Error(t, err)
			assert.Equal(t, rverrors.ErrCodeDirectoryMissing, rverrors.GetCode(err))
			assert.NoDirExists(t, missing)
		})
	}
}

func TestCLI_CleanDeclinedOnFreshDirectory(t *testing.T) {
	// Given: a directory never vectorized
	dir := testDir(t)
	write(t, dir, "a.txt", "Sump pump float switch.")

	// When: declining the clean
	out, _, err := execute(t, "n\n", "clean", "--path", dir)

	// Then: no data directory appears
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted")
	assert.NoDirExists(t, filepath.Join(dir, ".refvec"))
}

func TestLoggingConfig(t *testing.T) {
	dir := testDir(t)
	cfg := &config.Config{}
	cfg.Paths.Root = dir
	cfg.Paths.DataDir = filepath.Join(dir, ".refvec")
	cfg.Logging.Level = "info"
	var stderr bytes.Buffer

	t.Run("warnings are mirrored by default", func(t *testing.T) {
		lc := loggingConfig(cfg, &rootOptions{}, CommandStatus, &stderr)
		assert.Same(t, &stderr, lc.Console)
		assert.Equal(t, "warn", lc.ConsoleLevel)
		assert.Equal(t, "info", lc.Level)
	})

	t.Run("verbose mirrors everything", func(t *testing.T) {
		lc := loggingConfig(cfg, &rootOptions{verbose: true}, CommandStatus, &stderr)
		assert.Equal(t, "debug", lc.ConsoleLevel)
		assert.Equal(t, "debug", lc.Level)
	})

	t.Run("file only where the data directory exists or is built", func(t *testing.T) {
		assert.Empty(t, loggingConfig(cfg, &rootOptions{}, CommandStatus, &stderr).FilePath)
		assert.Empty(t, loggingConfig(cfg, &rootOptions{}, CommandClean, &stderr).FilePath)
		assert.Equal(t, cfg.LogPath(), loggingConfig(cfg, &rootOptions{}, CommandVectorize, &stderr).FilePath)

		missing := *cfg
		missing.Paths.Root = filepath.Join(dir, "missing")
		missing.Paths.DataDir = filepath.Join(missing.Paths.Root, ".refvec")
		assert.Empty(t, loggingConfig(&missing, &rootOptions{}, CommandVectorize, &stderr).FilePath)

		require.NoError(t, os.MkdirAll(cfg.Paths.DataDir, 0o755))
		assert.Equal(t, cfg.LogPath(), loggingConfig(cfg, &rootOptions{}, CommandStatus, &stderr).FilePath)
	})
}

func TestCLI_WarningsReachStderr(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root reads files regardless of permissions")
	}
	// Given: an unreadable document
	dir := testDir(t)
	locked := filepath.Join(dir, "locked.txt")
	write(t, dir, "locked.txt", "Crane load chart.")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	// When: vectorizing without --verbose
	_, errOut, err := execute(t, "", "vectorize", "--path", dir)

	// Then: the failure warning is on stderr and the document is failed
	require.Error(t, err)
	assert.Contains(t, errOut, "level=WARN")
	assert.Contains(t, errOut, "vectorize_file_failed")
	assert.Equal(t, 1, status(t, dir).Failed)
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOut  string
	}{
		{"success", nil, ExitOK, ""},
		{"failed documents", &failedFilesError{count: 2}, ExitFailure, "2 document(s) failed"},
		{"interrupted", context.Canceled, ExitInterrupted, "rerun to resume"},
		{
			"refvec error",
			rverrors.New(rverrors.ErrCodeRunInProgress, "another run is in progress", nil),
			ExitFailure,
			rverrors.ErrCodeRunInProgress,
		},
		{"plain error", assert.AnError, ExitFailure, "Error: " + assert.AnError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Equal(t, tt.wantCode, report(&buf, tt.err))
			assert.Contains(t, buf.String(), tt.wantOut)
		})
	}
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("  a\n\tb   c "))

	long := strings.Repeat("x", snippetRunes+10)
	got := snippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), snippetRunes+3)
}
