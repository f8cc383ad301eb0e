package experiment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestDefaultProtocol(t *testing.T) {
	p := Default()

	assert.Equal(t, 20, p.WordList().Len())
	assert.Equal(t, 180*time.Second, p.MemorizationDeadline)
	assert.Equal(t, 120*time.Second, p.RecallDeadline)
	assert.False(t, p.WordList().Contains("apple"))
	assert.True(t, p.WordList().Contains("giraffe"))
}

func TestValidID(t *testing.T) {
	p := Default()

	tests := []struct {
		id   string
		want bool
	}{
		{"i1234567", true},
		{"i0000000", true},
		{"I1234567", false},
		{"i123456", false},
		{"i12345678", false},
		{"x1234567", false},
		{" i1234567", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ValidID(tt.id))
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol.yaml")
	content := `
words: [Apple, Pear, Plum]
memorization_deadline: 2m
recall_deadline: 90s
allow_early_finish: false
texts:
  welcome: Hello
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Apple", "Pear", "Plum"}, p.WordList().Display())
	assert.Equal(t, 2*time.Minute, p.MemorizationDeadline)
	assert.Equal(t, 90*time.Second, p.RecallDeadline)
	assert.False(t, p.AllowEarlyFinish)
	assert.Equal(t, "Hello", p.Texts.Welcome)
	// Untouched texts keep their defaults
	assert.Equal(t, Default().Texts.ThankYou, p.Texts.ThankYou)
}

func TestLoadRejectsInvalidProtocol(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "duplicate words", content: "words: [Apple, apple]"},
		{name: "empty words", content: "words: []"},
		{name: "zero deadline", content: "recall_deadline: 0s"},
		{name: "bad pattern", content: "id_pattern: '['"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "protocol.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadWordsFromCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "words.csv"), []byte("word\nApple\n\nPear,extra\n"), 0o600))
	path := filepath.Join(dir, "protocol.yaml")
	require.NoError(t, os.WriteFile(path, []byte("words_file: words.csv\n"), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "Pear"}, p.WordList().Display())
}

func TestLoadWordsFromExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Word"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "River"))
	require.NoError(t, f.SetCellValue("Sheet1", "A3", "Camera"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	words, err := LoadWordsFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"River", "Camera"}, words)
}

func TestWordListNormalization(t *testing.T) {
	l, err := NewWordList([]string{" Table ", "Lamp"})
	require.NoError(t, err)

	assert.True(t, l.Contains(Normalize("  TABLE\t")))
	assert.False(t, l.Contains("Table"), "membership expects normalized input")
	assert.Equal(t, []string{"Table", "Lamp"}, l.Display())
}
