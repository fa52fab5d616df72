package ops

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/bulk"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/selector"
)

// BulkAssignInput contains parameters for the BulkAssign operation.
type BulkAssignInput struct {
	QueryHandle     string
	ItemSelector    json.RawMessage
	Assignee        string // display name or unique name accepted by the API
	DryRun          bool
	MaxPreviewItems int
	BatchSize       int
}

// BulkAssign reassigns every selected item to one person.
func BulkAssign(ctx context.Context, env *Env, input BulkAssignInput) (*BulkOutput, error) {
	assignee := strings.TrimSpace(input.Assignee)
	if assignee == "" {
		return nil, errors.NewInvalidRequest("assignee is required")
	}

	sel, err := selector.Parse(input.ItemSelector)
	if err != nil {
		return nil, err
	}

	fn := func(ctx context.Context, id int) error {
		return env.Client.Assign(ctx, id, assignee)
	}

	d := bulk.NewDispatcher(env.Store, env.log())
	result, err := d.Execute(ctx, input.QueryHandle, sel, fn,
		dispatchOptions(env.Cfg, input.DryRun, input.MaxPreviewItems, input.BatchSize))
	if err != nil {
		return nil, err
	}

	return &BulkOutput{Result: result, Message: bulkMessage("assign", "Assigned", result)}, nil
}
