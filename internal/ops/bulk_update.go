package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ado"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/bulk"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/selector"
)

// FieldUpdate is one field assignment applied to every selected item.
// Field accepts either a reference name ("System.Priority") or a full
// JSON-patch path ("/fields/System.Priority").
type FieldUpdate struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// BulkUpdateInput contains parameters for the BulkUpdate operation.
type BulkUpdateInput struct {
	QueryHandle     string
	ItemSelector    json.RawMessage
	Fields          []FieldUpdate
	DryRun          bool
	MaxPreviewItems int
	BatchSize       int
}

// BulkUpdate applies the same field updates to every selected item.
func BulkUpdate(ctx context.Context, env *Env, input BulkUpdateInput) (*BulkOutput, error) {
	if len(input.Fields) == 0 {
		return nil, errors.NewInvalidRequest("at least one field update is required")
	}

	patch := make([]ado.PatchOp, len(input.Fields))
	for i, f := range input.Fields {
		path, err := fieldPath(f.Field)
		if err != nil {
			return nil, err
		}
		patch[i] = ado.PatchOp{Op: "add", Path: path, Value: f.Value}
	}

	sel, err := selector.Parse(input.ItemSelector)
	if err != nil {
		return nil, err
	}

	fn := func(ctx context.Context, id int) error {
		return env.Client.UpdateFields(ctx, id, patch)
	}

	d := bulk.NewDispatcher(env.Store, env.log())
	result, err := d.Execute(ctx, input.QueryHandle, sel, fn,
		dispatchOptions(env.Cfg, input.DryRun, input.MaxPreviewItems, input.BatchSize))
	if err != nil {
		return nil, err
	}

	return &BulkOutput{Result: result, Message: bulkMessage("update", "Updated", result)}, nil
}

// fieldPath normalizes a field reference into a JSON-patch path.
func fieldPath(field string) (string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return "", errors.NewInvalidRequest("field name must not be empty")
	}
	if strings.HasPrefix(field, "/") {
		if !strings.HasPrefix(field, "/fields/") {
			return "", errors.NewInvalidRequest(fmt.Sprintf("field path %q must start with /fields/", field))
		}
		return field, nil
	}
	return "/fields/" + field, nil
}
