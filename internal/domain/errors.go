package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexUnavailable means no persisted index exists yet; the caller
	// should run ingestion before querying.
	ErrIndexUnavailable = errors.New("index unavailable: run ingestion first")

	// ErrModelUnavailable means the embedding model failed to initialize.
	// Nothing can proceed without it, on either the ingest or query path.
	ErrModelUnavailable = errors.New("embedding model unavailable")
)

// ExtractionError reports that one source file could not be read or
// parsed. The ingestion pipeline recovers from it by skipping the file.
type ExtractionError struct {
	Path  string
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// DimensionError reports inconsistent vector dimensions, either inside
// persisted state or between a query vector and the stored index. It is
// fatal for the operation in progress.
type DimensionError struct {
	Want int
	Got  int
	ID   string
}

func (e *DimensionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("vector dimension mismatch for %s: want %d, got %d", e.ID, e.Want, e.Got)
	}
	return fmt.Sprintf("vector dimension mismatch: want %d, got %d", e.Want, e.Got)
}
