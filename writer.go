package paperscraper

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Batch collects the output of one date chunk.
type Batch struct {
	// Scraped holds every record ID fetched in the chunk, in order
	Scraped []string

	// Sentences holds, per class, the accepted sentences
	Sentences [][]string

	// Extracted holds, per class, the IDs that contributed at least one sentence
	Extracted [][]string
}

// NewBatch returns an empty batch for n classes.
func NewBatch(n int) *Batch {
	return &Batch{
		Sentences: make([][]string, n),
		Extracted: make([][]string, n),
	}
}

// Add records the per-class sentences accepted from one document of id.
func (b *Batch) Add(id string, accepted [][]string) {
	for i, sents := range accepted {
		if len(sents) == 0 {
			continue
		}
		b.Sentences[i] = append(b.Sentences[i], sents...)
		if n := len(b.Extracted[i]); n == 0 || b.Extracted[i][n-1] != id {
			b.Extracted[i] = append(b.Extracted[i], id)
		}
	}
}

// LogLines returns the provenance entry for the batch.
func (b *Batch) LogLines() []string {
	lines := append([]string{"Scraped"}, b.Scraped...)
	for i, ids := range b.Extracted {
		lines = append(lines, fmt.Sprintf("Extracted - class %d", i))
		lines = append(lines, ids...)
	}
	return lines
}

// CorpusWriter appends batches to per-class corpus files and a provenance log.
type CorpusWriter struct {
	outputs []string
	logPath string
}

// OpenWriter prepares the output files. Unless appendMode is set, existing
// files are truncated; parent directories are created.
func OpenWriter(outputs []string, logPath string, appendMode bool) (*CorpusWriter, error) {
	if len(outputs) == 0 {
		return nil, errors.New("corpus writer: no output files")
	}
	if logPath == "" {
		return nil, errors.New("corpus writer: no log file")
	}
	for _, path := range append(append([]string{}, outputs...), logPath) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		flags := os.O_WRONLY | os.O_CREATE
		if !appendMode {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0644)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		f.Close()
	}
	return &CorpusWriter{outputs: outputs, logPath: logPath}, nil
}

// Outputs returns the per-class corpus paths.
func (w *CorpusWriter) Outputs() []string {
	return w.outputs
}

// WriteBatch appends each class's sentences to its corpus, one per line,
// then appends the provenance entry to the log.
func (w *CorpusWriter) WriteBatch(b *Batch) error {
	if len(b.Sentences) != len(w.outputs) {
		return fmt.Errorf("%w: batch has %d classes, writer %d", ErrClassOutputMismatch, len(b.Sentences), len(w.outputs))
	}
	for i, path := range w.outputs {
		if len(b.Sentences[i]) == 0 {
			continue
		}
		if err := appendLines(path, b.Sentences[i]); err != nil {
			return fmt.Errorf("write class %d: %w", i, err)
		}
	}
	if err := appendLines(w.logPath, b.LogLines()); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func appendLines(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	for _, line := range lines {
		bw.WriteString(line)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
