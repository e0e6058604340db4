// Package deliverylog keeps recent webhook deliveries in a bounded
// in-memory ring buffer.
package deliverylog

import (
	"sync"
	"time"
)

// Entry records one handled webhook delivery.
type Entry struct {
	RequestID  string        `json:"request_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Endpoint   string        `json:"endpoint"`
	UID        string        `json:"uid,omitempty"`
	ClientKey  string        `json:"client"`
	Status     int           `json:"status"`
	Outcome    string        `json:"outcome"`
	Duration   time.Duration `json:"-"`
	DurationMS float64       `json:"duration_ms"`
	BodyBytes  int           `json:"body_bytes"`
}

// Store is a thread-safe ring buffer of deliveries.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
	outcomes map[string]int
}

const defaultCapacity = 1000

// NewStore creates a store holding at most capacity entries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		outcomes: make(map[string]int),
	}
}

// Add appends an entry, overwriting the oldest once the store is full.
func (s *Store) Add(entry Entry) {
	if entry.DurationMS == 0 && entry.Duration > 0 {
		entry.DurationMS = float64(entry.Duration.Microseconds()) / 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.head] = entry
	s.head = (s.head + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
	s.outcomes[entry.Outcome]++
}

// FilterOptions specifies criteria for listing deliveries.
type FilterOptions struct {
	Endpoint  string
	UID       string
	ClientKey string
	Status    int
	MinStatus int
	Since     time.Time
	Limit     int
	Offset    int
}

// ListResult is a page of deliveries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// List returns deliveries matching opts, newest first.
func (s *Store) List(opts FilterOptions) ListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	filtered := []Entry{}
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.capacity) % s.capacity
		if entry := s.entries[idx]; matches(entry, opts) {
			filtered = append(filtered, entry)
		}
	}

	total := len(filtered)
	start := min(opts.Offset, total)
	end := min(start+opts.Limit, total)

	return ListResult{
		Entries: filtered[start:end],
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
}

func matches(entry Entry, opts FilterOptions) bool {
	switch {
	case opts.Endpoint != "" && entry.Endpoint != opts.Endpoint:
		return false
	case opts.UID != "" && entry.UID != opts.UID:
		return false
	case opts.ClientKey != "" && entry.ClientKey != opts.ClientKey:
		return false
	case opts.Status != 0 && entry.Status != opts.Status:
		return false
	case opts.MinStatus != 0 && entry.Status < opts.MinStatus:
		return false
	case !opts.Since.IsZero() && entry.Timestamp.Before(opts.Since):
		return false
	}
	return true
}

// Stats summarizes the store. Outcomes counts every delivery seen since the
// store was created, including ones no longer buffered.
type Stats struct {
	Capacity int            `json:"capacity"`
	Count    int            `json:"count"`
	Outcomes map[string]int `json:"outcomes"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcomes := make(map[string]int, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}
	return Stats{
		Capacity: s.capacity,
		Count:    s.count,
		Outcomes: outcomes,
	}
}
