package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"ragengine/internal/domain"
)

// Fingerprint prefixes distinguish the two guarantees a checksum can
// carry. A "sha256:" fingerprint hashes the full decoded text content.
// An "approx:" fingerprint hashes (filename, byteSize, mtime) only and
// will miss content edits that preserve size and timestamp; it is used
// for opaque formats where text extraction is expensive.
const (
	prefixContent = "sha256:"
	prefixApprox  = "approx:"
)

// OfText returns the content fingerprint of decoded text.
func OfText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefixContent + hex.EncodeToString(sum[:])
}

// OfStat returns the approximate fingerprint of a file from its stat
// info. Callers needing strict change detection should hash extracted
// text with OfText instead.
func OfStat(filename string, info fs.FileInfo) string {
	key := fmt.Sprintf("%s|%d|%d", filepath.Base(filename), info.Size(), info.ModTime().Unix())
	sum := sha256.Sum256([]byte(key))
	return prefixApprox + hex.EncodeToString(sum[:])
}

// IsApproximate reports whether a fingerprint carries the weaker
// stat-based guarantee.
func IsApproximate(fp string) bool { return strings.HasPrefix(fp, prefixApprox) }

// Changes partitions filenames by what happened to them since the last
// ingestion. The four sets are disjoint and every filename from either
// side of the diff lands in exactly one of them.
type Changes struct {
	Unchanged []string
	Modified  []string
	New       []string
	Deleted   []string
}

// Total returns the number of classified filenames.
func (c Changes) Total() int {
	return len(c.Unchanged) + len(c.Modified) + len(c.New) + len(c.Deleted)
}

// Dirty reports whether anything needs re-ingestion.
func (c Changes) Dirty() bool {
	return len(c.Modified) > 0 || len(c.New) > 0 || len(c.Deleted) > 0
}

// Diff classifies the current directory listing against the records of
// the last ingestion. listing maps filename to its current fingerprint.
// Output slices are sorted for reproducible reports.
func Diff(records map[string]domain.SourceFileRecord, listing map[string]string) Changes {
	var changes Changes
	for name, fp := range listing {
		rec, known := records[name]
		switch {
		case !known:
			changes.New = append(changes.New, name)
		case rec.Checksum != fp:
			changes.Modified = append(changes.Modified, name)
		default:
			changes.Unchanged = append(changes.Unchanged, name)
		}
	}
	for name := range records {
		if _, present := listing[name]; !present {
			changes.Deleted = append(changes.Deleted, name)
		}
	}
	sort.Strings(changes.Unchanged)
	sort.Strings(changes.Modified)
	sort.Strings(changes.New)
	sort.Strings(changes.Deleted)
	return changes
}

// RecordsFromMetadata reconstructs per-source records by grouping the
// persisted chunk metadata by SourceID. Chunk ids keep their
// chunk-index order within each record.
func RecordsFromMetadata(meta []domain.ChunkMetadata) map[string]domain.SourceFileRecord {
	records := make(map[string]domain.SourceFileRecord)
	for _, m := range meta {
		rec, ok := records[m.SourceID]
		if !ok {
			rec = domain.SourceFileRecord{Filename: m.SourceID}
		}
		rec.Checksum = m.Checksum
		if m.IngestedAt.After(rec.LastIngestedAt) {
			rec.LastIngestedAt = m.IngestedAt
		}
		rec.ChunkIDs = append(rec.ChunkIDs, m.ID)
		records[m.SourceID] = rec
	}
	for name, rec := range records {
		ids := rec.ChunkIDs
		sort.Strings(ids)
		rec.ChunkIDs = ids
		records[name] = rec
	}
	return records
}
