// Package ado is a minimal client for the Azure DevOps work item tracking
// REST API: the WIQL query path that feeds the query-handle producer, and
// the per-item mutation calls the bulk operations close over.
package ado

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

const apiVersion = "7.1"

// queryFields are the work item fields fetched for handle snapshots.
var queryFields = []string{
	"System.Title",
	"System.WorkItemType",
	"System.State",
	"System.AssignedTo",
	"System.Tags",
	"System.ChangedDate",
}

// PatchOp is one JSON-patch operation against a work item.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// Client talks to one organization/project. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	logger     *zap.Logger
	maxRetries uint64
}

// NewClient creates a client for dev.azure.com using PAT authentication.
func NewClient(organization, project, pat string, logger *zap.Logger) *Client {
	base := fmt.Sprintf("https://dev.azure.com/%s/%s/_apis",
		url.PathEscape(organization), url.PathEscape(project))
	return NewClientWithBaseURL(base, pat, logger)
}

// NewClientWithBaseURL creates a client against an explicit API base URL.
// Used by tests and by on-premises installations.
func NewClientWithBaseURL(baseURL, pat string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+pat)),
		logger:     logger,
		maxRetries: 4,
	}
}

// wiqlResponse is the shape of a WIQL query result.
type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

// batchResponse is the shape of a workitemsbatch result.
type batchResponse struct {
	Value []struct {
		ID     int             `json:"id"`
		Fields workItemFields `json:"fields"`
	} `json:"value"`
}

type workItemFields struct {
	Title       string    `json:"System.Title"`
	Type        string    `json:"System.WorkItemType"`
	State       string    `json:"System.State"`
	AssignedTo  *identity `json:"System.AssignedTo"`
	Tags        string    `json:"System.Tags"`
	ChangedDate time.Time `json:"System.ChangedDate"`
}

type identity struct {
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"`
}

// QueryWIQL runs a WIQL query and hydrates the matched items' fields.
// Result order follows the query's ORDER BY, which becomes the handle's
// authoritative item order. top caps the number of results.
func (c *Client) QueryWIQL(ctx context.Context, wiql string, top int) ([]workitem.WorkItem, error) {
	queryURL := fmt.Sprintf("%s/wit/wiql?api-version=%s&$top=%d", c.baseURL, apiVersion, top)
	var qr wiqlResponse
	if err := c.doJSON(ctx, http.MethodPost, queryURL, "application/json",
		map[string]string{"query": wiql}, &qr); err != nil {
		return nil, err
	}
	if len(qr.WorkItems) == 0 {
		return nil, nil
	}

	ids := make([]int, len(qr.WorkItems))
	for i, ref := range qr.WorkItems {
		ids[i] = ref.ID
	}

	batchURL := fmt.Sprintf("%s/wit/workitemsbatch?api-version=%s", c.baseURL, apiVersion)
	var br batchResponse
	if err := c.doJSON(ctx, http.MethodPost, batchURL, "application/json",
		map[string]any{"ids": ids, "fields": queryFields}, &br); err != nil {
		return nil, err
	}

	// The batch endpoint does not guarantee request order; rebuild in the
	// WIQL result order so positions stay meaningful.
	byID := make(map[int]workitem.WorkItem, len(br.Value))
	for _, row := range br.Value {
		item := workitem.WorkItem{
			ID:          row.ID,
			Title:       row.Fields.Title,
			Type:        row.Fields.Type,
			State:       row.Fields.State,
			Tags:        workitem.SplitTags(row.Fields.Tags),
			ChangedDate: row.Fields.ChangedDate,
		}
		if row.Fields.AssignedTo != nil {
			item.AssignedTo = row.Fields.AssignedTo.DisplayName
		}
		byID[row.ID] = item
	}

	items := make([]workitem.WorkItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// AddComment posts an HTML comment to a work item.
func (c *Client) AddComment(ctx context.Context, id int, html string) error {
	commentURL := fmt.Sprintf("%s/wit/workItems/%d/comments?api-version=%s-preview.3",
		c.baseURL, id, apiVersion)
	return c.doJSON(ctx, http.MethodPost, commentURL, "application/json",
		map[string]string{"text": html}, nil)
}

// UpdateFields applies JSON-patch operations to a work item.
func (c *Client) UpdateFields(ctx context.Context, id int, ops []PatchOp) error {
	patchURL := fmt.Sprintf("%s/wit/workitems/%d?api-version=%s", c.baseURL, id, apiVersion)
	return c.doJSON(ctx, http.MethodPatch, patchURL, "application/json-patch+json", ops, nil)
}

// Assign sets the assignee of a work item.
func (c *Client) Assign(ctx context.Context, id int, user string) error {
	return c.UpdateFields(ctx, id, []PatchOp{
		{Op: "add", Path: "/fields/System.AssignedTo", Value: user},
	})
}

// Remove moves a work item to the Removed state.
func (c *Client) Remove(ctx context.Context, id int) error {
	return c.UpdateFields(ctx, id, []PatchOp{
		{Op: "add", Path: "/fields/System.State", Value: "Removed"},
	})
}

// doJSON performs one authenticated request with retry on transient
// upstream failures (429 and 5xx). Other non-2xx statuses fail permanently.
func (c *Client) doJSON(ctx context.Context, method, rawURL, contentType string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternal(err)
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(errors.NewInternal(err))
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.NewUpstream(err.Error())
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return errors.NewUpstream(err.Error())
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(errors.NewUpstream(fmt.Sprintf("malformed response: %v", err)))
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("transient upstream failure, retrying",
				zap.Int("status", resp.StatusCode),
				zap.String("url", rawURL))
			return errors.NewUpstream(fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(data)))
		default:
			return backoff.Permanent(errors.NewUpstream(fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(data))))
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
}

// snippet truncates an error body for log and error messages.
func snippet(data []byte) string {
	const max = 200
	s := string(data)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
