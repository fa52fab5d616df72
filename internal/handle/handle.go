// Package handle implements the query-handle store: durable association of
// an opaque token with an immutable snapshot of query-matched work items.
// The store is the sole holder of the authoritative identifier list; agents
// only ever pass the token plus a declarative selector back in.
package handle

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// TokenPrefix marks a string as a query-handle token.
const TokenPrefix = "qh_"

// Defaults for record lifetime and background cleanup.
const (
	DefaultTTL           = time.Hour
	MaxTTL               = 24 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// Clock supplies the current time. Injectable so expiry is testable
// without real sleeps.
type Clock func() time.Time

// Record is a stored query snapshot. IDs and Items are never mutated after
// Put; a changed result set requires a brand-new record and token.
type Record struct {
	Token     string                     `json:"token"`
	IDs       []int                      `json:"ids"`
	Items     []workitem.Context         `json:"items"`
	Meta      workitem.SelectionMetadata `json:"meta"`
	CreatedAt time.Time                  `json:"created_at"`
	TTL       time.Duration              `json:"ttl"`
	ExpiresAt time.Time                  `json:"expires_at"` // CreatedAt + TTL, fixed at creation
	Origin    string                     `json:"origin,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Summary is a listing entry for a live record.
type Summary struct {
	Token     string    `json:"token"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Origin    string    `json:"origin,omitempty"`
}

// Store is the query-handle store interface. The memory store is the
// default; the sqlite store is a pluggable alternate behind the same
// semantics. Replication and distribution are out of scope.
type Store interface {
	// Put validates the snapshot, generates a fresh token, and inserts the
	// record. ttl <= 0 uses DefaultTTL.
	Put(ids []int, items []workitem.Context, meta workitem.SelectionMetadata, ttl time.Duration, origin string) (string, error)

	// Get returns the record for token, or a HANDLE_NOT_FOUND /
	// HANDLE_EXPIRED error. An expired record is deleted on access.
	Get(token string) (*Record, error)

	// Delete removes a record if present.
	Delete(token string)

	// Sweep purges all expired records and returns how many were removed.
	Sweep() int

	// List returns summaries of live records, oldest first.
	List() []Summary

	// Len returns the number of live records.
	Len() int
}

// NewToken generates a collision-resistant opaque token: fixed prefix plus
// a ULID (time-ordered component + random suffix). Not reversible to the
// stored data; unguessable enough to resist casual enumeration, though it
// is not a cryptographic secret boundary.
func NewToken(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return TokenPrefix + strings.ToLower(id.String()), nil
}

// validateSnapshot enforces the Put invariants shared by all backends.
func validateSnapshot(ids []int, items []workitem.Context, meta workitem.SelectionMetadata) error {
	if len(ids) != len(items) {
		return errors.NewInvalidRequest("identifier list and item context must have equal length")
	}
	for _, idx := range meta.SelectableIndices {
		if idx < 0 || idx >= len(items) {
			return errors.NewInvalidRequest("selectable index out of range")
		}
	}
	return nil
}

// clampTTL applies the default and upper bound.
func clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}
