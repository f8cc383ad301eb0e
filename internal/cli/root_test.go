package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "memtest", cmd.Use)
	assert.Contains(t, cmd.Long, "free-recall")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"bot", "migrate", "export", "words", "stats"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestExportFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	output := exportCmd.Flags().Lookup("output")
	require.NotNil(t, output)
	assert.Equal(t, "o", output.Shorthand)
	assert.Equal(t, "csv", exportCmd.Flags().Lookup("format").DefValue)
}

// run executes the CLI against a scratch database and working directory
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "memtest.db"))
	t.Setenv("EXPERIMENT_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestWordsCommand(t *testing.T) {
	out, err := run(t, "words")
	require.NoError(t, err)
	assert.Contains(t, out, "memorization: 3m0s")
	assert.Contains(t, out, "words (20):")
}

func TestWordsCommandWithExperimentFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(file, []byte("words: [Sun, Moon]\nrecall_deadline: 30s\n"), 0o644))

	out, err := run(t, "--experiment", file, "words")
	require.NoError(t, err)
	assert.Contains(t, out, "recall:       30s")
	assert.Contains(t, out, "  1. Sun")
	assert.Contains(t, out, "  2. Moon")
}

func TestMigrateAndExport(t *testing.T) {
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema applied (sqlite3)")

	target := filepath.Join(t.TempDir(), "out.xlsx")
	out, err = run(t, "export", "--format", "xlsx", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 0 participant(s)")
	_, err = os.Stat(target)
	assert.NoError(t, err)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "export", "--format", "pdf")
	assert.Error(t, err)
}

func TestBotRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	_, err := run(t, "bot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestStatsCommand(t *testing.T) {
	out, err := run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "CONDITION")
	assert.Contains(t, out, "AVG WORDS")
}
