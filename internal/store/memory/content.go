// Package memory provides in-process implementations of the content store
// and job repository. They back the server when no database is configured
// and serve as the reference fakes in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// ContentStore keeps content records per collection, unique by slug.
type ContentStore struct {
	mu      sync.RWMutex
	records map[string]map[string]storedRecord // collection -> slug -> record
}

type storedRecord struct {
	ID     string
	Record core.ContentRecord
}

// NewContentStore creates an empty store.
func NewContentStore() *ContentStore {
	return &ContentStore{records: make(map[string]map[string]storedRecord)}
}

// Seed inserts a published record directly, for reference targets such as
// cities that are not imported through the pipeline. It returns the new ID.
func (s *ContentStore) Seed(collection, slug, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.collection(collection)[slug] = storedRecord{
		ID: id,
		Record: core.ContentRecord{
			Collection: collection,
			Slug:       slug,
			Title:      title,
			Status:     core.PagePublished,
		},
	}
	return id
}

func (s *ContentStore) FindBySlug(_ context.Context, collection, slug string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[collection][slug]
	return rec.ID, ok, nil
}

func (s *ContentStore) InsertDraft(_ context.Context, collection string, record core.ContentRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(collection)
	if _, taken := coll[record.Slug]; taken {
		return "", fmt.Errorf("insert %s/%s: %w", collection, record.Slug, core.ErrSlugTaken)
	}
	record.Collection = collection
	record.Status = core.PageDraft
	id := uuid.NewString()
	coll[record.Slug] = storedRecord{ID: id, Record: record}
	return id, nil
}

// LookupBySlugField only supports the slug field; other fields are scanned.
func (s *ContentStore) LookupBySlugField(_ context.Context, collection, field, value string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.records[collection]
	if field == "slug" {
		rec, ok := coll[value]
		return rec.ID, ok, nil
	}
	for _, rec := range coll {
		if v, ok := rec.Record.Fields[field]; ok && fmt.Sprint(v) == value {
			return rec.ID, true, nil
		}
	}
	return "", false, nil
}

// Get returns the record stored under slug in collection.
func (s *ContentStore) Get(collection, slug string) (core.ContentRecord, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[collection][slug]
	return rec.Record, rec.ID, ok
}

// Slugs lists the slugs in collection, sorted.
func (s *ContentStore) Slugs(collection string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records[collection]))
	for slug := range s.records[collection] {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// collection returns the slug map for name, creating it. s.mu must be held.
func (s *ContentStore) collection(name string) map[string]storedRecord {
	coll, ok := s.records[name]
	if !ok {
		coll = make(map[string]storedRecord)
		s.records[name] = coll
	}
	return coll
}
