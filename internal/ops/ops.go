// Package ops implements the operation layer: the query producer that
// creates query handles, the handle introspection operations, and the
// concrete bulk mutations. Each operation takes an Input struct and returns
// an Output struct; MCP handlers and CLI commands are thin mappings onto
// these functions.
package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ado"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/bulk"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/config"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// Query limits.
const (
	DefaultMaxResults = 200
	MaxResultsCeiling = 1000
)

// WorkItemClient is the surface of the tracking API used by operations.
// Satisfied by *ado.Client; faked in tests.
type WorkItemClient interface {
	QueryWIQL(ctx context.Context, wiql string, top int) ([]workitem.WorkItem, error)
	AddComment(ctx context.Context, id int, html string) error
	UpdateFields(ctx context.Context, id int, ops []ado.PatchOp) error
	Assign(ctx context.Context, id int, user string) error
	Remove(ctx context.Context, id int) error
}

// Env bundles the dependencies shared by every operation.
type Env struct {
	Store  handle.Store
	Client WorkItemClient
	Cfg    *config.Config
	Clock  func() time.Time
	Logger *zap.Logger
}

func (e *Env) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Env) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// ListingItem is a display-only row describing one item of a handle. It
// exists for human-readable output; identifiers shown here must never be
// fed back into a mutation call — all mutation flows through the token.
type ListingItem struct {
	Position     int    `json:"position"`
	ID           int    `json:"id"`
	Title        string `json:"title,omitempty"`
	Type         string `json:"type,omitempty"`
	State        string `json:"state,omitempty"`
	AssignedTo   string `json:"assigned_to,omitempty"`
	DaysInactive *int   `json:"days_inactive,omitempty"`
}

// listingFromContext converts one stored item context to a display row.
func listingFromContext(ctx workitem.Context) ListingItem {
	return ListingItem{
		Position:     ctx.Position,
		ID:           ctx.ID,
		Title:        ctx.Title,
		Type:         ctx.Type,
		State:        ctx.State,
		AssignedTo:   ctx.AssignedTo,
		DaysInactive: ctx.DaysInactive,
	}
}

// listingFromContexts converts stored item contexts to display rows,
// capped at max (<= 0 means no cap).
func listingFromContexts(contexts []workitem.Context, max int) []ListingItem {
	n := len(contexts)
	if max > 0 && n > max {
		n = max
	}
	items := make([]ListingItem, n)
	for i := 0; i < n; i++ {
		items[i] = listingFromContext(contexts[i])
	}
	return items
}

// dispatchOptions normalizes per-call bulk options against config defaults.
func dispatchOptions(cfg *config.Config, dryRun bool, maxPreview, batchSize int) bulk.Options {
	if batchSize <= 0 && cfg != nil {
		batchSize = cfg.BatchSize
	}
	return bulk.Options{
		DryRun:          dryRun,
		MaxPreviewItems: maxPreview,
		BatchSize:       batchSize,
	}
}
