package storage

import (
	"context"
	"sort"
	"sync"

	"autosniper/internal/outcome"
	"autosniper/internal/valuation"
)

// MemoryStore keeps valuations in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	valuations map[string]valuation.Result
	scored     map[string]outcome.Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		valuations: make(map[string]valuation.Result),
		scored:     make(map[string]outcome.Record),
	}
}

// Get returns the cached result for url.
func (m *MemoryStore) Get(_ context.Context, url string) (valuation.Result, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.valuations[urlKey(url)]
	return res, ok, nil
}

// Put replaces the cached result for res.URL.
func (m *MemoryStore) Put(_ context.Context, res valuation.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res.Cached = false
	m.valuations[urlKey(res.URL)] = res
	return nil
}

// ListValuations returns results newest first.
func (m *MemoryStore) ListValuations(_ context.Context, limit int) ([]valuation.Result, error) {
	m.mu.RLock()
	results := make([]valuation.Result, 0, len(m.valuations))
	for _, res := range m.valuations {
		results = append(results, res)
	}
	m.mu.RUnlock()

	sortNewestFirst(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// InsertScoredRecords keeps the first settled record seen per url.
func (m *MemoryStore) InsertScoredRecords(_ context.Context, _ string, records []outcome.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted int64
	for _, rec := range settled(records) {
		if _, exists := m.scored[rec.URL]; exists {
			continue
		}
		m.scored[rec.URL] = rec
		inserted++
	}
	return inserted, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func sortNewestFirst(results []valuation.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].AnalyzedAt.Equal(results[j].AnalyzedAt) {
			return results[i].AnalyzedAt.After(results[j].AnalyzedAt)
		}
		return results[i].URL < results[j].URL
	})
}

var (
	_ ValuationStore = (*MemoryStore)(nil)
	_ ScoredHistory  = (*MemoryStore)(nil)
)
