package handle

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// MemoryStore is the default in-process Store. Records are immutable after
// insert, so readers never observe a half-written record and the sweep may
// race with Get harmlessly: both converge on "expired means absent".
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	clock   Clock
	logger  *zap.Logger
}

// NewMemoryStore creates an empty in-memory store. A nil clock uses the
// wall clock; a nil logger discards log output.
func NewMemoryStore(clock Clock, logger *zap.Logger) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		records: make(map[string]*Record),
		clock:   clock,
		logger:  logger,
	}
}

// Put implements Store.
func (s *MemoryStore) Put(ids []int, items []workitem.Context, meta workitem.SelectionMetadata, ttl time.Duration, origin string) (string, error) {
	if err := validateSnapshot(ids, items, meta); err != nil {
		return "", err
	}

	now := s.clock()
	token, err := NewToken(now)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	ttl = clampTTL(ttl)
	rec := &Record{
		Token:     token,
		IDs:       ids,
		Items:     items,
		Meta:      meta,
		CreatedAt: now,
		TTL:       ttl,
		ExpiresAt: now.Add(ttl),
		Origin:    origin,
	}

	s.mu.Lock()
	s.records[token] = rec
	s.mu.Unlock()

	s.logger.Debug("stored query handle",
		zap.String("token", token),
		zap.Int("items", len(ids)),
		zap.Time("expires_at", rec.ExpiresAt))
	return token, nil
}

// Get implements Store. An expired record is deleted on access; expired and
// absent are the same observable outcome apart from the error code.
func (s *MemoryStore) Get(token string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[token]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.NewHandleNotFound(token)
	}
	if rec.Expired(s.clock()) {
		s.Delete(token)
		return nil, errors.NewHandleExpired(token)
	}
	return rec, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(token string) {
	s.mu.Lock()
	delete(s.records, token)
	s.mu.Unlock()
}

// Sweep implements Store.
func (s *MemoryStore) Sweep() int {
	now := s.clock()

	s.mu.Lock()
	purged := 0
	for token, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, token)
			purged++
		}
	}
	s.mu.Unlock()

	return purged
}

// List implements Store.
func (s *MemoryStore) List() []Summary {
	now := s.clock()

	s.mu.RLock()
	summaries := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Expired(now) {
			continue
		}
		summaries = append(summaries, Summary{
			Token:     rec.Token,
			Count:     len(rec.IDs),
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
			Origin:    rec.Origin,
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
