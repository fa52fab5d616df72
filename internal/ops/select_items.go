package ops

import (
	"encoding/json"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/selector"
)

// SelectItemsInput contains parameters for the SelectItems operation.
type SelectItemsInput struct {
	QueryHandle     string
	ItemSelector    json.RawMessage
	MaxPreviewItems int // <= 0 shows 10
}

// SelectItemsOutput previews what a selector resolves to, without invoking
// any mutation. SelectedCount is the true count even when the preview is
// capped.
type SelectItemsOutput struct {
	QueryHandle   string          `json:"query_handle"`
	TotalInHandle int             `json:"total_in_handle"`
	SelectedCount int             `json:"selected_count"`
	Preview       []ListingItem   `json:"preview"`
	Skipped       []selector.Skip `json:"skipped"`
}

// SelectItems resolves a selector against a handle for inspection. This is
// how an agent confirms "which items would this touch" before a bulk call.
func SelectItems(env *Env, input SelectItemsInput) (*SelectItemsOutput, error) {
	if input.QueryHandle == "" {
		return nil, errors.NewInvalidRequest("query_handle is required")
	}

	sel, err := selector.Parse(input.ItemSelector)
	if err != nil {
		return nil, err
	}

	rec, err := env.Store.Get(input.QueryHandle)
	if err != nil {
		return nil, err
	}

	res, err := selector.Resolve(rec, sel)
	if err != nil {
		return nil, err
	}

	max := input.MaxPreviewItems
	if max <= 0 {
		max = 10
	}
	preview := make([]ListingItem, 0, min(len(res.Targets), max))
	for _, tgt := range res.Targets {
		if len(preview) >= max {
			break
		}
		preview = append(preview, listingFromContext(rec.Items[tgt.Position]))
	}

	return &SelectItemsOutput{
		QueryHandle:   rec.Token,
		TotalInHandle: len(rec.IDs),
		SelectedCount: len(res.Targets),
		Preview:       preview,
		Skipped:       res.Skipped,
	}, nil
}
