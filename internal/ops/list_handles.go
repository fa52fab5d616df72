package ops

import (
	"time"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
)

// HandleInfo is one row of the handle listing.
type HandleInfo struct {
	QueryHandle      string    `json:"query_handle"`
	Count            int       `json:"count"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInSeconds int       `json:"expires_in_seconds"`
	Origin           string    `json:"origin,omitempty"`
}

// ListHandlesOutput contains the result of the ListHandles operation.
type ListHandlesOutput struct {
	Count   int          `json:"count"`
	Handles []HandleInfo `json:"handles"`
}

// ListHandles enumerates the live handles in the store, oldest first.
func ListHandles(env *Env) (*ListHandlesOutput, error) {
	summaries := env.Store.List()
	now := env.now()

	handles := make([]HandleInfo, len(summaries))
	for i, sum := range summaries {
		handles[i] = handleInfo(sum, now)
	}
	return &ListHandlesOutput{Count: len(handles), Handles: handles}, nil
}

func handleInfo(sum handle.Summary, now time.Time) HandleInfo {
	return HandleInfo{
		QueryHandle:      sum.Token,
		Count:            sum.Count,
		CreatedAt:        sum.CreatedAt,
		ExpiresAt:        sum.ExpiresAt,
		ExpiresInSeconds: int(sum.ExpiresAt.Sub(now).Seconds()),
		Origin:           sum.Origin,
	}
}
