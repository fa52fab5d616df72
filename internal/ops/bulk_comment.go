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

// BulkCommentInput contains parameters for the BulkComment operation.
type BulkCommentInput struct {
	QueryHandle     string
	ItemSelector    json.RawMessage
	Comment         string // markdown, rendered to HTML once per call
	DryRun          bool
	MaxPreviewItems int
	BatchSize       int
}

// BulkOutput wraps the dispatcher's accounting with a human-readable
// message. Partial failure lives inside Result as data; the envelope is
// still a success.
type BulkOutput struct {
	*bulk.Result
	Message string `json:"message"`
}

// BulkComment posts the same comment to every selected item.
func BulkComment(ctx context.Context, env *Env, input BulkCommentInput) (*BulkOutput, error) {
	if strings.TrimSpace(input.Comment) == "" {
		return nil, errors.NewInvalidRequest("comment text is required")
	}

	sel, err := selector.Parse(input.ItemSelector)
	if err != nil {
		return nil, err
	}

	html, err := renderMarkdown(input.Comment)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("comment markdown could not be rendered: %v", err))
	}

	fn := func(ctx context.Context, id int) error {
		return env.Client.AddComment(ctx, id, html)
	}

	d := bulk.NewDispatcher(env.Store, env.log())
	result, err := d.Execute(ctx, input.QueryHandle, sel, fn,
		dispatchOptions(env.Cfg, input.DryRun, input.MaxPreviewItems, input.BatchSize))
	if err != nil {
		return nil, err
	}

	return &BulkOutput{Result: result, Message: bulkMessage("comment on", "Commented on", result)}, nil
}

// bulkMessage formats the envelope message shared by all bulk operations.
func bulkMessage(infinitive, past string, result *bulk.Result) string {
	if result.DryRun {
		return fmt.Sprintf("Dry run: would %s %d of %d items in the handle. No mutation was performed.",
			infinitive, result.SelectedCount, result.TotalInHandle)
	}
	msg := fmt.Sprintf("%s %d of %d selected items", past, len(result.Succeeded), result.SelectedCount)
	if len(result.Failed) > 0 {
		msg += fmt.Sprintf(" (%d failed)", len(result.Failed))
	}
	if len(result.Skipped) > 0 {
		msg += fmt.Sprintf("; %d requested positions were skipped", len(result.Skipped))
	}
	return msg + "."
}
