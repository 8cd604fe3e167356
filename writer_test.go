package paperscraper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBatchAdd(t *testing.T) {
	b := NewBatch(2)
	b.Scraped = []string{"A", "B"}
	b.Add("A", [][]string{{"a1."}, nil})
	b.Add("A", [][]string{{"a2."}, {"a3."}})
	b.Add("B", [][]string{nil, nil})

	assert.Equal(t, [][]string{{"a1.", "a2."}, {"a3."}}, b.Sentences)
	assert.Equal(t, [][]string{{"A"}, {"A"}}, b.Extracted)
	assert.Equal(t, []string{
		"Scraped", "A", "B",
		"Extracted - class 0", "A",
		"Extracted - class 1", "A",
	}, b.LogLines())
}

func TestCorpusWriter(t *testing.T) {
	dir := t.TempDir()
	outputs := []string{filepath.Join(dir, "out", "c0.txt"), filepath.Join(dir, "out", "c1.txt")}
	logPath := filepath.Join(dir, "log.txt")

	w, err := OpenWriter(outputs, logPath, false)
	require.NoError(t, err)
	assert.Equal(t, outputs, w.Outputs())

	b1 := NewBatch(2)
	b1.Scraped = []string{"2401.00001"}
	b1.Add("2401.00001", [][]string{{"First.", "Second."}, nil})
	require.NoError(t, w.WriteBatch(b1))

	b2 := NewBatch(2)
	b2.Scraped = []string{"2401.00002", "2401.00003"}
	b2.Add("2401.00003", [][]string{{"Third."}, {"Other."}})
	require.NoError(t, w.WriteBatch(b2))

	assert.Equal(t, "First.\nSecond.\nThird.\n", readFile(t, outputs[0]))
	assert.Equal(t, "Other.\n", readFile(t, outputs[1]))
	assert.Equal(t, `Scraped
2401.00001
Extracted - class 0
2401.00001
Extracted - class 1
Scraped
2401.00002
2401.00003
Extracted - class 0
2401.00003
Extracted - class 1
2401.00003
`, readFile(t, logPath))
}

func TestOpenWriterTruncatesUnlessAppend(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "c0.txt")
	logPath := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(out, []byte("old\n"), 0644))

	_, err := OpenWriter([]string{out}, logPath, true)
	require.NoError(t, err)
	assert.Equal(t, "old\n", readFile(t, out))

	_, err = OpenWriter([]string{out}, logPath, false)
	require.NoError(t, err)
	assert.Equal(t, "", readFile(t, out))
}

func TestWriteBatchClassMismatch(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter([]string{filepath.Join(dir, "c0.txt")}, filepath.Join(dir, "log.txt"), false)
	require.NoError(t, err)

	err = w.WriteBatch(NewBatch(2))
	assert.ErrorIs(t, err, ErrClassOutputMismatch)
	assert.Equal(t, "", readFile(t, filepath.Join(dir, "log.txt")))

	_, err = OpenWriter(nil, filepath.Join(dir, "log.txt"), false)
	assert.Error(t, err)
}
