package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/bulk"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/selector"
)

// BulkRemoveInput contains parameters for the BulkRemove operation.
type BulkRemoveInput struct {
	QueryHandle     string
	ItemSelector    json.RawMessage
	Comment         string // optional removal note added before the state change
	DryRun          bool
	MaxPreviewItems int
	BatchSize       int
}

// BulkRemove moves every selected item to the Removed state, optionally
// leaving a comment first. If the comment fails the item is reported
// failed and the state change is not attempted for it.
func BulkRemove(ctx context.Context, env *Env, input BulkRemoveInput) (*BulkOutput, error) {
	sel, err := selector.Parse(input.ItemSelector)
	if err != nil {
		return nil, err
	}

	var html string
	if comment := strings.TrimSpace(input.Comment); comment != "" {
		html, err = renderMarkdown(comment)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("comment markdown could not be rendered: %v", err))
		}
	}

	fn := func(ctx context.Context, id int) error {
		if html != "" {
			if err := env.Client.AddComment(ctx, id, html); err != nil {
				return fmt.Errorf("removal comment failed, item left untouched: %w", err)
			}
		}
		return env.Client.Remove(ctx, id)
	}

	d := bulk.NewDispatcher(env.Store, env.log())
	result, err := d.Execute(ctx, input.QueryHandle, sel, fn,
		dispatchOptions(env.Cfg, input.DryRun, input.MaxPreviewItems, input.BatchSize))
	if err != nil {
		return nil, err
	}

	return &BulkOutput{Result: result, Message: bulkMessage("remove", "Removed", result)}, nil
}
