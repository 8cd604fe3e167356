package paperscraper

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Defaults for e-print downloads.
const (
	DefaultEPrintBaseURL         = "https://export.arxiv.org/e-print/"
	DefaultArchiveContentType    = "application/x-eprint-tar"
	DefaultSingleFileContentType = "application/x-eprint"
	pdfContentType               = "application/pdf"

	// maxMemberSize caps a single extracted file.
	maxMemberSize = 100 * 1024 * 1024

	pdfFileName = "paper.pdf"
)

// ExtractError is returned when a downloaded archive cannot be unpacked.
type ExtractError struct {
	ID  string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.ID, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Kind reports ErrKindMalformed: a broken archive skips only its item.
func (e *ExtractError) Kind() ErrKind { return ErrKindMalformed }

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// BaseURL is prefixed to the paper ID (default DefaultEPrintBaseURL)
	BaseURL string

	// ContentType is the media type of a gzipped tar source bundle
	ContentType string

	// SingleFileContentType is the media type of a gzipped single TeX file;
	// such payloads are written to main.tex. Empty disables it.
	SingleFileContentType string

	// PDFFallback keeps PDF-only papers as paper.pdf
	PDFFallback bool

	// Extensions selects archive members by name suffix; "" matches all
	Extensions []string

	// MaxMemberSize skips archive members larger than this (default 100MB)
	MaxMemberSize int64

	Logger *zap.Logger
}

// Extractor downloads e-print bundles and unpacks the wanted members.
type Extractor struct {
	fetcher *Fetcher
	opts    ExtractorOptions
	logger  *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(fetcher *Fetcher, opts ExtractorOptions) *Extractor {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultEPrintBaseURL
	}
	if opts.ContentType == "" {
		opts.ContentType = DefaultArchiveContentType
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{""}
	}
	if opts.MaxMemberSize <= 0 {
		opts.MaxMemberSize = maxMemberSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, opts: opts, logger: logger}
}

// Extensions returns the member suffixes the extractor keeps.
func (e *Extractor) Extensions() []string {
	return e.opts.Extensions
}

// ListExtracted returns the files FetchAndExtract left in dir, in lexical
// order. A PDF kept by the fallback is listed whatever Extensions says.
func (e *Extractor) ListExtracted(dir string) ([]string, error) {
	exts := e.opts.Extensions
	if e.opts.PDFFallback && !HasExtension(pdfFileName, exts) {
		exts = append(slices.Clone(exts), pdfFileName)
	}
	return ListFiles(dir, exts)
}

// SourceURL returns the e-print download URL for id.
func (e *Extractor) SourceURL(id string) string {
	return e.opts.BaseURL + id
}

// FetchAndExtract downloads the e-print of id and extracts its wanted
// members into workDir, which is emptied first. It returns "" with a nil
// error when the paper has nothing to extract: a different content type
// (e.g. PDF only) or no matching member.
func (e *Extractor) FetchAndExtract(ctx context.Context, id, workDir string) (string, error) {
	resp, err := e.fetcher.Get(ctx, e.SourceURL(id))
	if err != nil {
		return "", err
	}

	mt := resp.MediaType()
	switch {
	case mt == e.opts.ContentType:
		n, err := e.extractTarGz(resp.Body, workDir)
		if err != nil {
			return "", &ExtractError{ID: id, Err: err}
		}
		if n == 0 {
			e.logger.Debug("no matching archive members", zap.String("id", id))
			return "", nil
		}
		return workDir, nil

	case mt == e.opts.SingleFileContentType && e.opts.SingleFileContentType != "":
		if !HasExtension("main.tex", e.opts.Extensions) {
			return "", nil
		}
		if err := e.writeSingle(resp.Body, workDir); err != nil {
			return "", &ExtractError{ID: id, Err: err}
		}
		return workDir, nil

	case mt == pdfContentType && e.opts.PDFFallback:
		if err := resetDir(workDir); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(workDir, pdfFileName), resp.Body, 0644); err != nil {
			return "", err
		}
		return workDir, nil
	}

	e.logger.Debug("content type not extracted",
		zap.String("id", id),
		zap.String("content_type", mt),
	)
	return "", nil
}

// extractTarGz decompresses data to a temp file, then unpacks the matching
// tar members into dstDir. It returns the number of files written.
func (e *Extractor) extractTarGz(data []byte, dstDir string) (int, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("gunzip: %w", err)
	}
	defer gzr.Close()

	tmpFile, err := os.CreateTemp("", "paperscraper-*.tar")
	if err != nil {
		return 0, err
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmpFile, gzr)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("gunzip: %w", err)
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		tmpFile.Close()
		return 0, err
	}
	defer tmpFile.Close()

	if err := resetDir(dstDir); err != nil {
		return 0, err
	}

	written := 0
	tr := tar.NewReader(tmpFile)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("untar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !HasExtension(hdr.Name, e.opts.Extensions) {
			continue
		}

		// Security: prevent path traversal
		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			continue
		}
		if hdr.Size > e.opts.MaxMemberSize {
			e.logger.Warn("archive member too large, skipping",
				zap.String("member", hdr.Name),
				zap.Int64("size", hdr.Size),
			)
			continue
		}

		target := filepath.Join(dstDir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, err
		}
		outFile, err := os.Create(target)
		if err != nil {
			return written, err
		}
		_, err = io.Copy(outFile, tr)
		outFile.Close()
		if err != nil {
			return written, fmt.Errorf("untar %s: %w", hdr.Name, err)
		}
		written++
	}
	return written, nil
}

func (e *Extractor) writeSingle(data []byte, dstDir string) error {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}
	defer gzr.Close()

	if err := resetDir(dstDir); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dstDir, "main.tex"))
	if err != nil {
		return err
	}
	n, err := io.CopyN(f, gzr, e.opts.MaxMemberSize+1)
	if cerr := f.Close(); err == nil || errors.Is(err, io.EOF) {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("gunzip: %w", err)
	}
	if n > e.opts.MaxMemberSize {
		return fmt.Errorf("main.tex exceeds %d bytes", e.opts.MaxMemberSize)
	}
	return nil
}

// resetDir removes dir and everything in it, then recreates it empty.
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear work dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	return nil
}

// HasExtension reports whether name ends with any of exts.
func HasExtension(name string, exts []string) bool {
	return slices.ContainsFunc(exts, func(ext string) bool {
		return strings.HasSuffix(name, ext)
	})
}

// ListFiles returns the regular files under dir whose names end with one of
// exts, in lexical order.
func ListFiles(dir string, exts []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && HasExtension(d.Name(), exts) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
