package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ado"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/config"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ops"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// stubClient is a minimal WorkItemClient for handler tests. Query returns a
// canned result set; mutations are counted.
type stubClient struct {
	items     []workitem.WorkItem
	comments  int
	updates   int
	assigns   int
	removes   int
	failEvery bool
}

func (c *stubClient) QueryWIQL(_ context.Context, _ string, top int) ([]workitem.WorkItem, error) {
	if top < len(c.items) {
		return c.items[:top], nil
	}
	return c.items, nil
}

func (c *stubClient) AddComment(_ context.Context, _ int, _ string) error {
	if c.failEvery {
		return fmt.Errorf("upstream rejected the comment")
	}
	c.comments++
	return nil
}

func (c *stubClient) UpdateFields(_ context.Context, _ int, _ []ado.PatchOp) error {
	c.updates++
	return nil
}

func (c *stubClient) Assign(_ context.Context, _ int, _ string) error {
	c.assigns++
	return nil
}

func (c *stubClient) Remove(_ context.Context, _ int) error {
	c.removes++
	return nil
}

// testSetup builds handlers over a fresh memory store and stub client.
func testSetup(items ...workitem.WorkItem) (*Handlers, *stubClient) {
	client := &stubClient{items: items}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env := &ops.Env{
		Store:  handle.NewMemoryStore(func() time.Time { return now }, nil),
		Client: client,
		Clock:  func() time.Time { return now },
	}
	return NewHandlers(env), client
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// queryHandle runs workitem_query through the handler and returns the token.
func queryHandle(t *testing.T, h *Handlers) string {
	t.Helper()
	result, err := h.HandleQuery(context.Background(), makeRequest(map[string]any{
		"wiql": "SELECT [System.Id] FROM WorkItems",
	}))
	if err != nil {
		t.Fatalf("query handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	token, _ := output["query_handle"].(string)
	if token == "" {
		t.Fatal("query result missing query_handle")
	}
	return token
}

// TestHandleQuery tests the workitem_query handler.
func TestHandleQuery(t *testing.T) {
	h, _ := testSetup(
		workitem.WorkItem{ID: 1, Title: "one", State: "Active"},
		workitem.WorkItem{ID: 2, Title: "two", State: "New"},
	)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "valid query",
			args:      map[string]any{"wiql": "SELECT [System.Id] FROM WorkItems"},
			wantError: false,
		},
		{
			name:      "missing wiql",
			args:      map[string]any{},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "ttl override",
			args: map[string]any{
				"wiql":        "SELECT [System.Id] FROM WorkItems",
				"ttl_seconds": 120,
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleQuery(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else {
				if result.IsError {
					t.Errorf("expected success, got error: %v", extractErrorMessage(result))
				}
			}
		})
	}
}

// TestHandleInspectValidate tests the handle_inspect and handle_validate handlers.
func TestHandleInspectValidate(t *testing.T) {
	h, _ := testSetup(workitem.WorkItem{ID: 1, State: "Active"})
	ctx := context.Background()
	token := queryHandle(t, h)

	t.Run("inspect live handle", func(t *testing.T) {
		result, err := h.HandleInspect(ctx, makeRequest(map[string]any{
			"query_handle":    token,
			"include_preview": true,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if count := output["count"].(float64); count != 1 {
			t.Errorf("count = %v, want 1", count)
		}
	})

	t.Run("inspect unknown handle", func(t *testing.T) {
		result, err := h.HandleInspect(ctx, makeRequest(map[string]any{
			"query_handle": "qh_doesnotexist",
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		assertErrorCode(t, result, "HANDLE_NOT_FOUND")
	})

	t.Run("validate live handle", func(t *testing.T) {
		result, err := h.HandleValidate(ctx, makeRequest(map[string]any{
			"query_handle": token,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if output["valid"] != true {
			t.Errorf("valid = %v, want true", output["valid"])
		}
	})

	t.Run("validate dead handle is success payload", func(t *testing.T) {
		result, err := h.HandleValidate(ctx, makeRequest(map[string]any{
			"query_handle": "qh_doesnotexist",
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if result.IsError {
			t.Fatal("dead handle must be data, not an error result")
		}
		output := parseOutput(t, result)
		if output["valid"] != false {
			t.Errorf("valid = %v, want false", output["valid"])
		}
	})
}

// TestHandleSelect tests the handle_select handler.
func TestHandleSelect(t *testing.T) {
	h, client := testSetup(
		workitem.WorkItem{ID: 1, State: "Active"},
		workitem.WorkItem{ID: 2, State: "New"},
		workitem.WorkItem{ID: 3, State: "Active"},
	)
	ctx := context.Background()
	token := queryHandle(t, h)

	tests := []struct {
		name         string
		args         map[string]any
		wantError    bool
		errorCode    string
		wantSelected int
	}{
		{
			name:         "omitted selector selects all",
			args:         map[string]any{"query_handle": token},
			wantSelected: 3,
		},
		{
			name: "positions selector",
			args: map[string]any{
				"query_handle":  token,
				"item_selector": []any{0, 2},
			},
			wantSelected: 2,
		},
		{
			name: "criteria selector",
			args: map[string]any{
				"query_handle":  token,
				"item_selector": map[string]any{"states": []any{"Active"}},
			},
			wantSelected: 2,
		},
		{
			name: "malformed selector",
			args: map[string]any{
				"query_handle":  token,
				"item_selector": map[string]any{"bogus": true},
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleSelect(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}

			output := parseOutput(t, result)
			if got := int(output["selected_count"].(float64)); got != tt.wantSelected {
				t.Errorf("selected_count = %d, want %d", got, tt.wantSelected)
			}
		})
	}

	// Selection is pure preview.
	if client.comments+client.updates+client.assigns+client.removes != 0 {
		t.Error("handle_select must never trigger a mutation")
	}
}

// TestHandleBulkComment tests the bulk_comment handler.
func TestHandleBulkComment(t *testing.T) {
	h, client := testSetup(
		workitem.WorkItem{ID: 1, State: "Active"},
		workitem.WorkItem{ID: 2, State: "New"},
	)
	ctx := context.Background()
	token := queryHandle(t, h)

	t.Run("dry run performs no mutation", func(t *testing.T) {
		result, err := h.HandleBulkComment(ctx, makeRequest(map[string]any{
			"query_handle": token,
			"comment":      "ping",
			"dry_run":      true,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if output["dry_run"] != true {
			t.Errorf("dry_run = %v, want true", output["dry_run"])
		}
		if client.comments != 0 {
			t.Errorf("dry run posted %d comments, want 0", client.comments)
		}
	})

	t.Run("execute posts to selected items", func(t *testing.T) {
		result, err := h.HandleBulkComment(ctx, makeRequest(map[string]any{
			"query_handle":  token,
			"item_selector": map[string]any{"states": []any{"Active"}},
			"comment":       "ping",
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		succeeded := output["succeeded"].([]any)
		if len(succeeded) != 1 {
			t.Errorf("succeeded = %v, want one item", succeeded)
		}
		if client.comments != 1 {
			t.Errorf("posted %d comments, want 1", client.comments)
		}
	})

	t.Run("missing comment", func(t *testing.T) {
		result, err := h.HandleBulkComment(ctx, makeRequest(map[string]any{
			"query_handle": token,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("expired handle", func(t *testing.T) {
		result, err := h.HandleBulkComment(ctx, makeRequest(map[string]any{
			"query_handle": "qh_doesnotexist",
			"comment":      "ping",
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		assertErrorCode(t, result, "HANDLE_NOT_FOUND")
	})
}

// TestHandleBulkUpdateAssignRemove covers the remaining bulk handlers.
func TestHandleBulkUpdateAssignRemove(t *testing.T) {
	h, client := testSetup(
		workitem.WorkItem{ID: 1},
		workitem.WorkItem{ID: 2},
	)
	ctx := context.Background()
	token := queryHandle(t, h)

	t.Run("bulk_update", func(t *testing.T) {
		result, err := h.HandleBulkUpdate(ctx, makeRequest(map[string]any{
			"query_handle": token,
			"fields": []any{
				map[string]any{"field": "System.Priority", "value": 2},
			},
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if got := len(output["succeeded"].([]any)); got != 2 {
			t.Errorf("succeeded %d items, want 2", got)
		}
		if client.updates != 2 {
			t.Errorf("updates = %d, want 2", client.updates)
		}
	})

	t.Run("bulk_update without fields", func(t *testing.T) {
		result, err := h.HandleBulkUpdate(ctx, makeRequest(map[string]any{
			"query_handle": token,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("bulk_assign", func(t *testing.T) {
		result, err := h.HandleBulkAssign(ctx, makeRequest(map[string]any{
			"query_handle":  token,
			"item_selector": []any{0},
			"assignee":      "sam@example.com",
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if got := len(output["succeeded"].([]any)); got != 1 {
			t.Errorf("succeeded %d items, want 1", got)
		}
		if client.assigns != 1 {
			t.Errorf("assigns = %d, want 1", client.assigns)
		}
	})

	t.Run("bulk_remove dry run", func(t *testing.T) {
		result, err := h.HandleBulkRemove(ctx, makeRequest(map[string]any{
			"query_handle": token,
			"dry_run":      true,
		}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if output["dry_run"] != true {
			t.Errorf("dry_run = %v, want true", output["dry_run"])
		}
		if client.removes != 0 {
			t.Errorf("dry run removed %d items, want 0", client.removes)
		}
	})
}

// TestHandleList tests the handle_list handler.
func TestHandleList(t *testing.T) {
	h, _ := testSetup(workitem.WorkItem{ID: 1})
	ctx := context.Background()

	queryHandle(t, h)
	queryHandle(t, h)

	result, err := h.HandleList(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if count := output["count"].(float64); count != 2 {
		t.Errorf("count = %v, want 2", count)
	}
}

func TestServerRegistration(t *testing.T) {
	h, _ := testSetup()
	s := NewServer(h.env, config.DefaultConfig(), "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"workitem_query",
		"handle_inspect",
		"handle_validate",
		"handle_select",
		"handle_list",
		"bulk_comment",
		"bulk_update",
		"bulk_assign",
		"bulk_remove",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, _ := testSetup()
	cfg := config.DefaultConfig()
	cfg.DisabledTools = []string{"bulk_remove", "bulk_update"}
	s := NewServer(h.env, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 7 {
		t.Errorf("registered tool count = %d, want 7", len(tools))
	}
	for _, name := range []string{"bulk_remove", "bulk_update"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	for _, name := range []string{"workitem_query", "handle_inspect", "bulk_comment"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("core tool %q should be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	h, _ := testSetup()
	cfg := config.DefaultConfig()
	cfg.DisabledTypes = []string{"bulk"}
	s := NewServer(h.env, cfg, "test")
	tools := s.ListTools()

	// 9 tools minus the 4 bulk_* ones.
	if len(tools) != 5 {
		t.Errorf("registered tool count = %d, want 5", len(tools))
	}
	for name := range tools {
		if GetTypeForTool(name) == "bulk" {
			t.Errorf("bulk tool %q should not be registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"bulk_remove", "handle_list"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"bulk_remove", "fake_tool"},
			wantLen: 1,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes([]string{"workitem", "bulk"}); len(unknown) != 0 {
		t.Errorf("unknown = %v, want none", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"capsule"}); len(unknown) != 1 {
		t.Errorf("unknown = %v, want [capsule]", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()

	if len(names) != 9 {
		t.Errorf("AllToolNames() returned %d names, want 9", len(names))
	}

	unknown := ValidateDisabledTools(names)
	if len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_HandleErrorsIncludeDetails(t *testing.T) {
	r := errorResult(errors.NewHandleExpired("qh_abc"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrHandleExpired) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrHandleExpired)
	}
	details, ok := errObj["details"].(map[string]any)
	if !ok || details["token"] != "qh_abc" {
		t.Fatalf("details = %v, want token qh_abc", errObj["details"])
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error result, got success")
		return
	}
	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
