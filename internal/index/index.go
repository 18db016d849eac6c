package index

import (
	"context"
	"fmt"
	"sort"

	"ragengine/internal/domain"
)

// Index is the read-only in-memory view of the persisted index, ready
// for similarity search. Entries are held in id order, which is the
// tie-break order for equal scores.
type Index struct {
	entries   []domain.IndexEntry
	byID      map[string]int
	dimension int
}

// New validates entries (unique ids, uniform vector dimension) and
// builds the search handle. Inconsistent dimensions mean the persisted
// state is corrupt; searching it would produce silently wrong scores,
// so construction fails with a DimensionError instead.
func New(entries []domain.IndexEntry) (*Index, error) {
	sorted := make([]domain.IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[string]int, len(sorted))
	dim := -1
	for i, entry := range sorted {
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %q in index", entry.ID)
		}
		byID[entry.ID] = i
		if dim == -1 {
			dim = len(entry.Vector)
		}
		if len(entry.Vector) != dim {
			return nil, &domain.DimensionError{Want: dim, Got: len(entry.Vector), ID: entry.ID}
		}
	}
	if dim == -1 {
		dim = 0
	}
	return &Index{entries: sorted, byID: byID, dimension: dim}, nil
}

// Load reads all entries from the store and builds the handle.
func Load(ctx context.Context, store domain.IndexStore) (*Index, error) {
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(entries)
}

// Entries returns the entries in id order. Callers must not mutate.
func (x *Index) Entries() []domain.IndexEntry { return x.entries }

func (x *Index) Len() int { return len(x.entries) }

// Dimension is the uniform vector dimension, zero for an empty index.
func (x *Index) Dimension() int { return x.dimension }

// Get looks up one entry by chunk id.
func (x *Index) Get(id string) (domain.IndexEntry, bool) {
	i, ok := x.byID[id]
	if !ok {
		return domain.IndexEntry{}, false
	}
	return x.entries[i], true
}
