package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"ragengine/internal/domain"
)

// FileExtractor reads source documents into plain text. Markdown and
// plain text are read directly; PDF pages go through the pdf library.
type FileExtractor struct{}

func New() *FileExtractor { return &FileExtractor{} }

// Supported reports whether the file extension is one the extractor
// can handle.
func (e *FileExtractor) Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".pdf":
		return true
	}
	return false
}

// Opaque reports whether the format is binary, meaning change detection
// falls back to the approximate stat-based fingerprint.
func (e *FileExtractor) Opaque(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

// Extract returns the plain text of the file. Failures come back as
// *domain.ExtractionError so the caller can skip the file and continue.
func (e *FileExtractor) Extract(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &domain.ExtractionError{Path: path, Stage: "read", Err: err}
		}
		return string(data), nil
	case ".pdf":
		return e.extractPDF(path)
	default:
		return "", &domain.ExtractionError{
			Path:  path,
			Stage: "dispatch",
			Err:   fmt.Errorf("unsupported format %q", filepath.Ext(path)),
		}
	}
}

func (e *FileExtractor) extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", &domain.ExtractionError{Path: path, Stage: "open", Err: err}
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", &domain.ExtractionError{Path: path, Stage: "parse", Err: err}
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", &domain.ExtractionError{Path: path, Stage: "parse", Err: err}
	}
	return buf.String(), nil
}

// ListDir enumerates supported source filenames (base names) in dir,
// ignoring subdirectories and hidden files.
func (e *FileExtractor) ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if e.Supported(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
