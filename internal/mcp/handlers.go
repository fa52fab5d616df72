package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env *ops.Env
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env) *Handlers {
	return &Handlers{env: env}
}

// Request types for each tool

// QueryRequest represents the arguments for workitem_query.
type QueryRequest struct {
	Wiql       string `json:"wiql"`
	MaxResults int    `json:"max_results,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// InspectRequest represents the arguments for handle_inspect.
type InspectRequest struct {
	QueryHandle     string `json:"query_handle"`
	IncludePreview  bool   `json:"include_preview,omitempty"`
	MaxPreviewItems int    `json:"max_preview_items,omitempty"`
}

// ValidateRequest represents the arguments for handle_validate.
type ValidateRequest struct {
	QueryHandle string `json:"query_handle"`
}

// SelectRequest represents the arguments for handle_select.
// ItemSelector stays raw here; the selector package owns its polymorphic
// parse ("all" | positions | criteria).
type SelectRequest struct {
	QueryHandle     string          `json:"query_handle"`
	ItemSelector    json.RawMessage `json:"item_selector,omitempty"`
	MaxPreviewItems int             `json:"max_preview_items,omitempty"`
}

// BulkCommentRequest represents the arguments for bulk_comment.
type BulkCommentRequest struct {
	QueryHandle     string          `json:"query_handle"`
	ItemSelector    json.RawMessage `json:"item_selector,omitempty"`
	Comment         string          `json:"comment"`
	DryRun          bool            `json:"dry_run,omitempty"`
	MaxPreviewItems int             `json:"max_preview_items,omitempty"`
}

// BulkUpdateRequest represents the arguments for bulk_update.
type BulkUpdateRequest struct {
	QueryHandle     string            `json:"query_handle"`
	ItemSelector    json.RawMessage   `json:"item_selector,omitempty"`
	Fields          []ops.FieldUpdate `json:"fields"`
	DryRun          bool              `json:"dry_run,omitempty"`
	MaxPreviewItems int               `json:"max_preview_items,omitempty"`
}

// BulkAssignRequest represents the arguments for bulk_assign.
type BulkAssignRequest struct {
	QueryHandle     string          `json:"query_handle"`
	ItemSelector    json.RawMessage `json:"item_selector,omitempty"`
	Assignee        string          `json:"assignee"`
	DryRun          bool            `json:"dry_run,omitempty"`
	MaxPreviewItems int             `json:"max_preview_items,omitempty"`
}

// BulkRemoveRequest represents the arguments for bulk_remove.
type BulkRemoveRequest struct {
	QueryHandle     string          `json:"query_handle"`
	ItemSelector    json.RawMessage `json:"item_selector,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	DryRun          bool            `json:"dry_run,omitempty"`
	MaxPreviewItems int             `json:"max_preview_items,omitempty"`
}

// Handler implementations

// HandleQuery handles the workitem_query tool call.
func (h *Handlers) HandleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QueryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Query(ctx, h.env, ops.QueryInput{
		Wiql:       input.Wiql,
		MaxResults: input.MaxResults,
		TTLSeconds: input.TTLSeconds,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleInspect handles the handle_inspect tool call.
func (h *Handlers) HandleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InspectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Inspect(h.env, ops.InspectInput{
		QueryHandle:     input.QueryHandle,
		IncludePreview:  input.IncludePreview,
		MaxPreviewItems: input.MaxPreviewItems,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleValidate handles the handle_validate tool call.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ValidateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Validate(h.env, ops.ValidateInput{QueryHandle: input.QueryHandle})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSelect handles the handle_select tool call.
func (h *Handlers) HandleSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SelectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SelectItems(h.env, ops.SelectItemsInput{
		QueryHandle:     input.QueryHandle,
		ItemSelector:    input.ItemSelector,
		MaxPreviewItems: input.MaxPreviewItems,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the handle_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListHandles(h.env)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBulkComment handles the bulk_comment tool call.
func (h *Handlers) HandleBulkComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BulkCommentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BulkComment(ctx, h.env, ops.BulkCommentInput{
		QueryHandle:     input.QueryHandle,
		ItemSelector:    input.ItemSelector,
		Comment:         input.Comment,
		DryRun:          input.DryRun,
		MaxPreviewItems: input.MaxPreviewItems,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBulkUpdate handles the bulk_update tool call.
func (h *Handlers) HandleBulkUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BulkUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BulkUpdate(ctx, h.env, ops.BulkUpdateInput{
		QueryHandle:     input.QueryHandle,
		ItemSelector:    input.ItemSelector,
		Fields:          input.Fields,
		DryRun:          input.DryRun,
		MaxPreviewItems: input.MaxPreviewItems,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBulkAssign handles the bulk_assign tool call.
func (h *Handlers) HandleBulkAssign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BulkAssignRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BulkAssign(ctx, h.env, ops.BulkAssignInput{
		QueryHandle:     input.QueryHandle,
		ItemSelector:    input.ItemSelector,
		Assignee:        input.Assignee,
		DryRun:          input.DryRun,
		MaxPreviewItems: input.MaxPreviewItems,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBulkRemove handles the bulk_remove tool call.
func (h *Handlers) HandleBulkRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BulkRemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BulkRemove(ctx, h.env, ops.BulkRemoveInput{
		QueryHandle:     input.QueryHandle,
		ItemSelector:    input.ItemSelector,
		Comment:         input.Comment,
		DryRun:          input.DryRun,
		MaxPreviewItems: input.MaxPreviewItems,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if appErr, ok := err.(*errors.Error); ok {
		errorObj := map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"status":  appErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or upstream response bodies
		if appErr.Code != errors.ErrInternal && appErr.Details != nil {
			errorObj["details"] = appErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
