package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// fakeStore is an in-memory ContentStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	slugs   map[string]map[string]string // collection -> slug -> id
	inserts []ContentRecord
	nextID  int

	findErr   error
	insertErr error
	lookupErr error
	finds     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{slugs: make(map[string]map[string]string)}
}

func (s *fakeStore) seed(collection string, slugs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slug := range slugs {
		s.nextID++
		s.coll(collection)[slug] = fmt.Sprintf("seed-%d", s.nextID)
	}
}

func (s *fakeStore) coll(name string) map[string]string {
	c, ok := s.slugs[name]
	if !ok {
		c = make(map[string]string)
		s.slugs[name] = c
	}
	return c
}

func (s *fakeStore) FindBySlug(_ context.Context, collection, slug string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findErr != nil {
		return "", false, s.findErr
	}
	id, ok := s.slugs[collection][slug]
	return id, ok, nil
}

func (s *fakeStore) InsertDraft(_ context.Context, collection string, rec ContentRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return "", s.insertErr
	}
	if _, taken := s.slugs[collection][rec.Slug]; taken {
		return "", fmt.Errorf("insert %s: %w", rec.Slug, ErrSlugTaken)
	}
	s.nextID++
	id := fmt.Sprintf("rec-%d", s.nextID)
	s.coll(collection)[rec.Slug] = id
	s.inserts = append(s.inserts, rec)
	return id, nil
}

func (s *fakeStore) LookupBySlugField(ctx context.Context, collection, field, value string) (string, bool, error) {
	if s.lookupErr != nil {
		return "", false, s.lookupErr
	}
	return s.FindBySlug(ctx, collection, value)
}

// fakeLedgerRepo implements the ledger half of JobRepository.
type fakeLedgerRepo struct {
	JobRepository

	mu        sync.Mutex
	records   []GeneratedPageRecord
	appendErr error
}

func (r *fakeLedgerRepo) AppendLedger(_ context.Context, rec GeneratedPageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeLedgerRepo) ListLedger(_ context.Context, jobID string) ([]GeneratedPageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []GeneratedPageRecord
	for _, rec := range r.records {
		if rec.JobID == jobID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}
