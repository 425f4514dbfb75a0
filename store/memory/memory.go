// Package memory provides in-memory implementations of the storage
// interfaces, for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edugrade/audit-engine/analytics"
	"github.com/edugrade/audit-engine/audit"
)

// =============================================================================
// EVENT STORE - audit.Store
// =============================================================================

// EventStore is an in-memory audit.Store. Appends keep arrival order per
// partition, which doubles as the timestamp tiebreaker.
type EventStore struct {
	mu     sync.RWMutex
	events map[audit.Partition][]audit.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[audit.Partition][]audit.Event)}
}

func (s *EventStore) Append(ctx context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := e.Partition()
	s.events[p] = append(s.events[p], copyEvent(e))
	return nil
}

func (s *EventStore) Load(ctx context.Context, p audit.Partition, order audit.Order, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[p]
	out := make([]audit.Event, len(stored))
	for i, e := range stored {
		out[i] = copyEvent(e)
	}

	// Stored order is append order (ascending). A stable sort keeps the
	// tiebreak for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if order != audit.OrderAsc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// copyEvent isolates stored events from callers on both sides of the
// store: a caller mutating a payload it appended or loaded must not
// reach the stored copy.
func copyEvent(e audit.Event) audit.Event {
	e.Payload = copyValue(e.Payload)
	return e
}

// copyValue deep-copies the JSON-shaped payload trees events carry.
// Scalars are immutable and shared as-is.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}

func (s *EventStore) LatestHash(ctx context.Context, p audit.Partition) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.events[p]
	if len(stored) == 0 {
		return "", nil
	}
	return stored[len(stored)-1].Hash, nil
}

// =============================================================================
// TIP CACHE - audit.TipCache
// =============================================================================

// TipCache is an in-memory audit.TipCache honoring TTLs.
type TipCache struct {
	mu      sync.RWMutex
	entries map[string]tipEntry
}

type tipEntry struct {
	value     string
	expiresAt time.Time
}

func NewTipCache() *TipCache {
	return &TipCache{entries: make(map[string]tipEntry)}
}

func (c *TipCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (c *TipCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = tipEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// =============================================================================
// COUNTER STORE - analytics.CounterStore
// =============================================================================

// CounterStore is an in-memory analytics.CounterStore. Counter maps are
// guarded by one mutex; the += under it is the same commutative additive
// update the SQL upsert performs.
type CounterStore struct {
	mu       sync.Mutex
	barrier  map[string]analytics.LedgerEntry
	dimYear  map[dimYearKey]*analytics.Stats
	students map[countryYearKey]map[string]*analytics.Stats
	subjects map[countryYearKey]map[string]*analytics.Stats
	global   map[string]*analytics.Stats
	hist     map[countryYearKey]map[int]int64
}

type dimYearKey struct {
	Dim   string
	DimID string
	Year  int
}

type countryYearKey struct {
	Country string
	Year    int
}

func NewCounterStore() *CounterStore {
	s := &CounterStore{}
	s.reset()
	return s
}

func (s *CounterStore) reset() {
	s.barrier = make(map[string]analytics.LedgerEntry)
	s.dimYear = make(map[dimYearKey]*analytics.Stats)
	s.students = make(map[countryYearKey]map[string]*analytics.Stats)
	s.subjects = make(map[countryYearKey]map[string]*analytics.Stats)
	s.global = make(map[string]*analytics.Stats)
	s.hist = make(map[countryYearKey]map[int]int64)
}

func (s *CounterStore) InsertFactOnce(ctx context.Context, entry analytics.LedgerEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.barrier[entry.FactID]; exists {
		return false, nil
	}
	s.barrier[entry.FactID] = entry
	return true, nil
}

func (s *CounterStore) AddDimYear(ctx context.Context, dim, dimID string, year int, sumDelta, countDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dimYearKey{Dim: dim, DimID: dimID, Year: year}
	stats, ok := s.dimYear[key]
	if !ok {
		stats = &analytics.Stats{}
		s.dimYear[key] = stats
	}
	stats.SumMilli += sumDelta
	stats.Count += countDelta
	return nil
}

func (s *CounterStore) AddStudent(ctx context.Context, country string, year int, studentID string, sumDelta, countDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addNested(s.students, countryYearKey{Country: country, Year: year}, studentID, sumDelta, countDelta)
	return nil
}

func (s *CounterStore) AddSubject(ctx context.Context, country string, year int, subjectID string, sumDelta, countDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addNested(s.subjects, countryYearKey{Country: country, Year: year}, subjectID, sumDelta, countDelta)
	return nil
}

func (s *CounterStore) AddSubjectGlobal(ctx context.Context, subjectID string, sumDelta, countDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.global[subjectID]
	if !ok {
		stats = &analytics.Stats{}
		s.global[subjectID] = stats
	}
	stats.SumMilli += sumDelta
	stats.Count += countDelta
	return nil
}

func (s *CounterStore) AddHistogram(ctx context.Context, country string, year int, bucket int, countDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := countryYearKey{Country: country, Year: year}
	if s.hist[key] == nil {
		s.hist[key] = make(map[int]int64)
	}
	s.hist[key][bucket] += countDelta
	return nil
}

func addNested(m map[countryYearKey]map[string]*analytics.Stats, key countryYearKey, id string, sumDelta, countDelta int64) {
	if m[key] == nil {
		m[key] = make(map[string]*analytics.Stats)
	}
	stats, ok := m[key][id]
	if !ok {
		stats = &analytics.Stats{}
		m[key][id] = stats
	}
	stats.SumMilli += sumDelta
	stats.Count += countDelta
}

func (s *CounterStore) DimYearStats(ctx context.Context, dim, dimID string, year int) (analytics.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.dimYear[dimYearKey{Dim: dim, DimID: dimID, Year: year}]
	if !ok {
		return analytics.Stats{}, nil
	}
	return *stats, nil
}

func (s *CounterStore) StudentStatsByCountryYear(ctx context.Context, country string, year int) ([]analytics.StudentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []analytics.StudentStats
	for id, stats := range s.students[countryYearKey{Country: country, Year: year}] {
		out = append(out, analytics.StudentStats{StudentID: id, Stats: *stats})
	}
	return out, nil
}

func (s *CounterStore) SubjectStatsByCountryYear(ctx context.Context, country string, year int) ([]analytics.SubjectStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []analytics.SubjectStats
	for id, stats := range s.subjects[countryYearKey{Country: country, Year: year}] {
		out = append(out, analytics.SubjectStats{SubjectID: id, Stats: *stats})
	}
	return out, nil
}

func (s *CounterStore) SubjectStatsGlobal(ctx context.Context) ([]analytics.SubjectStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []analytics.SubjectStats
	for id, stats := range s.global {
		out = append(out, analytics.SubjectStats{SubjectID: id, Stats: *stats})
	}
	return out, nil
}

func (s *CounterStore) Histogram(ctx context.Context, country string, year int) (map[int]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64)
	for bucket, count := range s.hist[countryYearKey{Country: country, Year: year}] {
		out[bucket] = count
	}
	return out, nil
}

func (s *CounterStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
