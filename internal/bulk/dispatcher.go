// Package bulk implements the generic per-item mutation engine. Every
// concrete bulk operation (comment, field update, reassignment, removal)
// supplies only a mutation closure and options; the loop, batching, dry-run
// preview, and error aggregation live here exactly once.
package bulk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/selector"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// Batching and preview bounds.
const (
	DefaultBatchSize  = 10
	MaxBatchSize      = 50
	DefaultMaxPreview = 10
	MaxPreviewItems   = 50
)

// MutationFunc performs one mutation against a single work item. Any
// operation-specific parameters (comment text, target state) are closed
// over when the caller constructs the func.
type MutationFunc func(ctx context.Context, id int) error

// Options controls a single dispatch call.
type Options struct {
	DryRun          bool
	MaxPreviewItems int // <= 0 uses DefaultMaxPreview, capped at MaxPreviewItems
	BatchSize       int // <= 0 uses DefaultBatchSize, capped at MaxBatchSize
}

// ItemFailure records one item whose mutation failed.
type ItemFailure struct {
	Position int    `json:"position"`
	ID       int    `json:"id"`
	Reason   string `json:"reason"`
}

// PreviewItem is a display snapshot of one selected target.
type PreviewItem struct {
	Position int    `json:"position"`
	ID       int    `json:"id"`
	Title    string `json:"title,omitempty"`
	Type     string `json:"type,omitempty"`
	State    string `json:"state,omitempty"`
}

// Result is the aggregate accounting of one dispatch call. Partial failure
// is data, not an error: Succeeded and Failed partition the resolved
// targets exactly once each, and Skipped carries the selector's
// unresolvable positions.
type Result struct {
	Token         string          `json:"query_handle"`
	OperationID   string          `json:"operation_id"`
	TotalInHandle int             `json:"total_in_handle"`
	SelectedCount int             `json:"selected_count"`
	DryRun        bool            `json:"dry_run"`
	Previewed     []PreviewItem   `json:"previewed"`
	Succeeded     []int           `json:"succeeded"`
	Failed        []ItemFailure   `json:"failed"`
	Skipped       []selector.Skip `json:"skipped"`
}

// Dispatcher resolves a handle plus selector and drives the mutation loop.
type Dispatcher struct {
	store  handle.Store
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the given store. A nil logger
// discards log output.
func NewDispatcher(store handle.Store, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, logger: logger}
}

// Execute runs one dispatch call: Resolving -> (HandleMissing | Resolved)
// -> (DryRunPreview | Executing -> Completed). A missing or expired handle
// aborts before any mutation; per-item failures never abort the call.
func (d *Dispatcher) Execute(ctx context.Context, token string, sel selector.Selector, fn MutationFunc, opts Options) (*Result, error) {
	rec, err := d.store.Get(token)
	if err != nil {
		return nil, err
	}

	res, err := selector.Resolve(rec, sel)
	if err != nil {
		return nil, err
	}

	opID := uuid.NewString()
	d.logger.Info("bulk dispatch resolved",
		zap.String("operation_id", opID),
		zap.String("token", token),
		zap.Int("selected", len(res.Targets)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Bool("dry_run", opts.DryRun))

	result := &Result{
		Token:         token,
		OperationID:   opID,
		TotalInHandle: len(rec.IDs),
		SelectedCount: len(res.Targets),
		DryRun:        opts.DryRun,
		Previewed:     buildPreview(rec.Items, res.Targets, previewCap(opts.MaxPreviewItems)),
		Succeeded:     []int{},
		Failed:        []ItemFailure{},
		Skipped:       res.Skipped,
	}

	if opts.DryRun {
		return result, nil
	}

	// One outcome slot per target keeps results in target order even
	// though batch members execute concurrently.
	outcomes := make([]error, len(res.Targets))
	batchSize := normalizeBatchSize(opts.BatchSize)
	for start := 0; start < len(res.Targets); start += batchSize {
		end := start + batchSize
		if end > len(res.Targets) {
			end = len(res.Targets)
		}

		var g errgroup.Group
		g.SetLimit(batchSize)
		for i := start; i < end; i++ {
			g.Go(func() error {
				outcomes[i] = invoke(ctx, fn, res.Targets[i].ID)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, tgt := range res.Targets {
		if outcomes[i] != nil {
			result.Failed = append(result.Failed, ItemFailure{
				Position: tgt.Position,
				ID:       tgt.ID,
				Reason:   outcomes[i].Error(),
			})
		} else {
			result.Succeeded = append(result.Succeeded, tgt.ID)
		}
	}

	d.logger.Info("bulk dispatch completed",
		zap.String("operation_id", opID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

// invoke isolates one mutation call, converting a panic into a recorded
// failure so one bad item cannot take down the batch.
func invoke(ctx context.Context, fn MutationFunc, id int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mutation panicked: %v", r)
		}
	}()
	return fn(ctx, id)
}

// buildPreview assembles a capped display preview from the stored item
// contexts of the resolved targets.
func buildPreview(items []workitem.Context, targets []selector.Target, max int) []PreviewItem {
	preview := make([]PreviewItem, 0, min(len(targets), max))
	for _, tgt := range targets {
		if len(preview) >= max {
			break
		}
		item := items[tgt.Position]
		preview = append(preview, PreviewItem{
			Position: item.Position,
			ID:       item.ID,
			Title:    item.Title,
			Type:     item.Type,
			State:    item.State,
		})
	}
	return preview
}

func previewCap(requested int) int {
	if requested <= 0 {
		return DefaultMaxPreview
	}
	if requested > MaxPreviewItems {
		return MaxPreviewItems
	}
	return requested
}

func normalizeBatchSize(requested int) int {
	if requested <= 0 {
		return DefaultBatchSize
	}
	if requested > MaxBatchSize {
		return MaxBatchSize
	}
	return requested
}
