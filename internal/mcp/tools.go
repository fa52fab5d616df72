package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Descriptions are written for an LLM agent: they spell
// out the handle-plus-selector contract so the model never round-trips raw
// identifiers through its own context.

const selectorDescription = "Which items to act on: the string \"all\", an array of zero-based " +
	"positions from the query listing (e.g. [0,2,5]), or a criteria object with any of " +
	"states, tags, titleContains (arrays, OR within a field, AND across fields), " +
	"daysInactiveMin, daysInactiveMax. Omit to select all items."

var queryToolDef = mcp.NewTool("workitem_query",
	mcp.WithDescription(
		"Run a WIQL query and get back an opaque query handle (qh_...) plus a "+
			"human-readable listing. The handle pins the exact result set server-side; "+
			"pass it to the bulk tools with a selector instead of copying item IDs. "+
			"Handles expire, so re-query if a later call reports the handle gone.",
	),
	mcp.WithString("wiql",
		mcp.Required(),
		mcp.Description("WIQL query text, e.g. SELECT [System.Id] FROM WorkItems WHERE ..."),
	),
	mcp.WithNumber("max_results",
		mcp.Description("Cap on snapshot size (default 200, max 1000)"),
	),
	mcp.WithNumber("ttl_seconds",
		mcp.Description("Handle lifetime override in seconds (default 3600, max 86400)"),
	),
)

var inspectToolDef = mcp.NewTool("handle_inspect",
	mcp.WithDescription(
		"Describe a live query handle: item count, expiry, and the vocabulary of "+
			"states, types and tags present — useful for building a criteria selector. "+
			"Read-only.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token returned by workitem_query"),
	),
	mcp.WithBoolean("include_preview",
		mcp.Description("Include a preview of the first items"),
	),
	mcp.WithNumber("max_preview_items",
		mcp.Description("Preview row cap (default 10, max 50)"),
	),
)

var validateToolDef = mcp.NewTool("handle_validate",
	mcp.WithDescription(
		"Check whether a query handle is still usable. A dead handle is reported "+
			"as data (valid: false plus a code), never as a tool error.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token to check"),
	),
)

var selectToolDef = mcp.NewTool("handle_select",
	mcp.WithDescription(
		"Preview what a selector resolves to against a handle, without performing "+
			"any mutation. Returns the true selected count, a capped preview, and any "+
			"skipped positions. Use this before a destructive bulk call.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token returned by workitem_query"),
	),
	mcp.WithObject("item_selector",
		mcp.Description(selectorDescription),
	),
	mcp.WithNumber("max_preview_items",
		mcp.Description("Preview row cap (default 10, max 50)"),
	),
)

var listToolDef = mcp.NewTool("handle_list",
	mcp.WithDescription("List all live query handles with counts, origin queries and expiry."),
)

var bulkCommentToolDef = mcp.NewTool("bulk_comment",
	mcp.WithDescription(
		"Add the same comment to every selected item in a query handle. Markdown "+
			"is rendered to HTML. Per-item failures are reported in the result; the "+
			"call itself still succeeds. Set dry_run to preview without posting.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token returned by workitem_query"),
	),
	mcp.WithObject("item_selector",
		mcp.Description(selectorDescription),
	),
	mcp.WithString("comment",
		mcp.Required(),
		mcp.Description("Comment text in markdown"),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Preview the selection without posting anything"),
	),
	mcp.WithNumber("max_preview_items",
		mcp.Description("Preview row cap (default 10, max 50)"),
	),
)

var bulkUpdateToolDef = mcp.NewTool("bulk_update",
	mcp.WithDescription(
		"Apply the same field updates to every selected item. Each entry names a "+
			"field (System.State, /fields/System.Priority, ...) and the new value. "+
			"Set dry_run to preview without writing.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token returned by workitem_query"),
	),
	mcp.WithObject("item_selector",
		mcp.Description(selectorDescription),
	),
	mcp.WithArray("fields",
		mcp.Required(),
		mcp.Description("Field updates: objects with \"field\" and \"value\""),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Preview the selection without writing anything"),
	),
	mcp.WithNumber("max_preview_items",
		mcp.Description("Preview row cap (default 10, max 50)"),
	),
)

var bulkAssignToolDef = mcp.NewTool("bulk_assign",
	mcp.WithDescription(
		"Assign every selected item to one person. Set dry_run to preview "+
			"without writing.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token returned by workitem_query"),
	),
	mcp.WithObject("item_selector",
		mcp.Description(selectorDescription),
	),
	mcp.WithString("assignee",
		mcp.Required(),
		mcp.Description("Display name or unique name of the assignee"),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Preview the selection without writing anything"),
	),
	mcp.WithNumber("max_preview_items",
		mcp.Description("Preview row cap (default 10, max 50)"),
	),
)

var bulkRemoveToolDef = mcp.NewTool("bulk_remove",
	mcp.WithDescription(
		"Move every selected item to the Removed state, optionally leaving a "+
			"comment first. Destructive: run handle_select or dry_run first.",
	),
	mcp.WithString("query_handle",
		mcp.Required(),
		mcp.Description("Handle token returned by workitem_query"),
	),
	mcp.WithObject("item_selector",
		mcp.Description(selectorDescription),
	),
	mcp.WithString("comment",
		mcp.Description("Optional removal note in markdown, added before the state change"),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Preview the selection without writing anything"),
	),
	mcp.WithNumber("max_preview_items",
		mcp.Description("Preview row cap (default 10, max 50)"),
	),
)
