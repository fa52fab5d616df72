package ops

import (
	"time"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// InspectInput contains parameters for the Inspect operation.
type InspectInput struct {
	QueryHandle     string
	IncludePreview  bool
	MaxPreviewItems int // <= 0 shows 10
}

// InspectOutput describes a live handle without mutating anything.
type InspectOutput struct {
	QueryHandle      string                     `json:"query_handle"`
	Count            int                        `json:"count"`
	CreatedAt        time.Time                  `json:"created_at"`
	ExpiresAt        time.Time                  `json:"expires_at"`
	ExpiresInSeconds int                        `json:"expires_in_seconds"`
	Origin           string                     `json:"origin,omitempty"`
	Summary          workitem.SelectionMetadata `json:"summary"`
	Preview          []ListingItem              `json:"preview,omitempty"`
}

// Inspect returns metadata about a handle: counts, the criteria vocabulary
// usable in selectors, and time until expiry.
func Inspect(env *Env, input InspectInput) (*InspectOutput, error) {
	if input.QueryHandle == "" {
		return nil, errors.NewInvalidRequest("query_handle is required")
	}

	rec, err := env.Store.Get(input.QueryHandle)
	if err != nil {
		return nil, err
	}

	out := &InspectOutput{
		QueryHandle:      rec.Token,
		Count:            len(rec.IDs),
		CreatedAt:        rec.CreatedAt,
		ExpiresAt:        rec.ExpiresAt,
		ExpiresInSeconds: int(rec.ExpiresAt.Sub(env.now()).Seconds()),
		Origin:           rec.Origin,
		Summary:          rec.Meta,
	}

	if input.IncludePreview {
		max := input.MaxPreviewItems
		if max <= 0 {
			max = 10
		}
		out.Preview = listingFromContexts(rec.Items, max)
	}
	return out, nil
}
