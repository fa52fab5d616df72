package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// QueryInput contains parameters for the Query operation.
type QueryInput struct {
	// Wiql is the WIQL query text. Required.
	Wiql string
	// MaxResults caps the snapshot size. 0 uses the configured default.
	MaxResults int
	// TTLSeconds overrides the handle lifetime. 0 uses the configured default.
	TTLSeconds int
}

// QueryOutput contains the result of the Query operation. Items is a
// human-readable listing for display only; subsequent mutation must flow
// through QueryHandle plus a selector, never through re-stated identifiers.
type QueryOutput struct {
	QueryHandle string                     `json:"query_handle"`
	Count       int                        `json:"count"`
	ExpiresAt   time.Time                  `json:"expires_at"`
	Items       []ListingItem              `json:"items"`
	Summary     workitem.SelectionMetadata `json:"summary"`
	Message     string                     `json:"message"`
}

// Query runs a WIQL query, snapshots the matched items, and stores them
// under a fresh opaque handle. This is the producer side of the handle
// contract: item context i describes identifier i, always.
func Query(ctx context.Context, env *Env, input QueryInput) (*QueryOutput, error) {
	if strings.TrimSpace(input.Wiql) == "" {
		return nil, errors.NewInvalidRequest("wiql query text is required")
	}

	top := input.MaxResults
	if top <= 0 {
		top = DefaultMaxResults
		if env.Cfg != nil && env.Cfg.MaxQueryResults > 0 {
			top = env.Cfg.MaxQueryResults
		}
	}
	if top > MaxResultsCeiling {
		top = MaxResultsCeiling
	}

	items, err := env.Client.QueryWIQL(ctx, input.Wiql, top)
	if err != nil {
		return nil, err
	}

	now := env.now()
	contexts := workitem.BuildContexts(items, now)
	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	meta := workitem.BuildMetadata(contexts)

	ttl := time.Duration(input.TTLSeconds) * time.Second
	if ttl <= 0 && env.Cfg != nil {
		ttl = env.Cfg.HandleTTL()
	}

	token, err := env.Store.Put(ids, contexts, meta, ttl, input.Wiql)
	if err != nil {
		return nil, err
	}

	env.log().Info("query handle created",
		zap.String("token", token),
		zap.Int("items", len(ids)))

	rec, err := env.Store.Get(token)
	if err != nil {
		return nil, err
	}

	return &QueryOutput{
		QueryHandle: token,
		Count:       len(ids),
		ExpiresAt:   rec.ExpiresAt,
		Items:       listingFromContexts(contexts, 0),
		Summary:     meta,
		Message:     queryMessage(len(ids), token),
	}, nil
}

func queryMessage(count int, token string) string {
	if count == 0 {
		return "Query matched no work items. A handle was still created in case you want to confirm the empty result."
	}
	itemWord := "work item"
	if count > 1 {
		itemWord = "work items"
	}
	return fmt.Sprintf("Query matched %d %s. Use query handle %s with an item selector for any follow-up operation; do not copy identifiers from the listing.", count, itemWord, token)
}
