// Package metadata keeps a metadata.json index next to the downloaded
// documents, describing what each file is and when it was fetched.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"catlux/pkg/models"

	"gocloud.dev/gcerrors"
)

// IndexFile is the object name of the index inside a destination
const IndexFile = "metadata.json"

// DocumentMetadata describes one stored document
type DocumentMetadata struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	GroupID      string    `json:"group_id"`
	FileName     string    `json:"file_name"`
	Title        string    `json:"title,omitempty"`
	Category     string    `json:"category,omitempty"`
	Reference    *int      `json:"reference,omitempty"`
	Locator      string    `json:"locator"`
	FileSize     int64     `json:"file_size"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Index is the content of metadata.json
type Index struct {
	Documents []DocumentMetadata `json:"documents"`
	Updated   time.Time          `json:"updated"`
}

// Lookup finds a document by id
func (ix *Index) Lookup(id string) (DocumentMetadata, bool) {
	for _, d := range ix.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return DocumentMetadata{}, false
}

// upsert replaces the entry with the same id or appends it, keeping ids sorted
func (ix *Index) upsert(d DocumentMetadata) {
	for i := range ix.Documents {
		if ix.Documents[i].ID == d.ID {
			ix.Documents[i] = d
			return
		}
	}
	ix.Documents = append(ix.Documents, d)
	sort.SliceStable(ix.Documents, func(i, j int) bool {
		return ix.Documents[i].ID < ix.Documents[j].ID
	})
}

// FromRecord converts a downloaded record into its index entry
func FromRecord(r models.Record, size int, downloadedAt time.Time) DocumentMetadata {
	d := DocumentMetadata{
		ID:           r.ID,
		Kind:         r.Kind.String(),
		GroupID:      r.GroupID,
		FileName:     r.FileName(),
		Title:        r.Title,
		Category:     r.Category,
		Locator:      r.Locator,
		FileSize:     int64(size),
		DownloadedAt: downloadedAt,
	}
	if r.Reference.Present {
		n := r.Reference.Number
		d.Reference = &n
	}
	return d
}

// Store is the part of a destination the indexer needs
type Store interface {
	ReadAll(ctx context.Context, name string) ([]byte, error)
	WriteAtomic(ctx context.Context, name string, data []byte) error
}

// Indexer maintains the index of one destination
type Indexer struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewIndexer creates an indexer writing through store
func NewIndexer(store Store) *Indexer {
	return &Indexer{store: store, now: time.Now}
}

// Load reads the index. A destination without one has an empty index.
func (x *Indexer) Load(ctx context.Context) (*Index, error) {
	data, err := x.store.ReadAll(ctx, IndexFile)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return &Index{Documents: []DocumentMetadata{}}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", IndexFile, err)
	}

	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", IndexFile, err)
	}
	if ix.Documents == nil {
		ix.Documents = []DocumentMetadata{}
	}
	return &ix, nil
}

// Add records a stored document in the index
func (x *Indexer) Add(ctx context.Context, r models.Record, size int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	ix, err := x.Load(ctx)
	if err != nil {
		return err
	}

	now := x.now()
	ix.upsert(FromRecord(r, size, now))
	ix.Updated = now

	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", IndexFile, err)
	}
	return x.store.WriteAtomic(ctx, IndexFile, data)
}
