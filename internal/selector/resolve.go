package selector

import (
	"sort"
	"strings"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// Target is one resolved (position, identifier) pair.
type Target struct {
	Position int `json:"position"`
	ID       int `json:"id"`
}

// Skip records a requested position that could not be resolved. Informational,
// not an error.
type Skip struct {
	RequestedPosition int    `json:"requested_position"`
	Reason            string `json:"reason"`
}

// Resolution is the concrete, ordered subset a selector resolved to.
type Resolution struct {
	Targets []Target `json:"targets"`
	Skipped []Skip   `json:"skipped"`
}

// Resolve resolves a selector against a stored record. An empty handle
// yields an empty target list for any selector; criteria values absent from
// the snapshot's vocabulary simply match nothing. The only error path is a
// selector whose Kind is not part of the union.
func Resolve(rec *handle.Record, sel Selector) (Resolution, error) {
	switch sel.Kind {
	case KindAll:
		return resolveAll(rec), nil
	case KindPositions:
		return resolvePositions(rec, sel.Positions), nil
	case KindCriteria:
		return resolveCriteria(rec, sel.Criteria), nil
	}
	return Resolution{}, errors.NewInvalidRequest("selector has no recognized kind")
}

// resolveAll returns every selectable position in ascending order.
func resolveAll(rec *handle.Record) Resolution {
	indices := append([]int(nil), rec.Meta.SelectableIndices...)
	sort.Ints(indices)

	res := Resolution{Targets: make([]Target, 0, len(indices)), Skipped: []Skip{}}
	for _, pos := range indices {
		res.Targets = append(res.Targets, Target{Position: pos, ID: rec.IDs[pos]})
	}
	return res
}

// resolvePositions deduplicates the requested positions and keeps the
// caller's order. Anything outside the selectable set becomes a Skip entry;
// this path never fails.
func resolvePositions(rec *handle.Record, positions []int) Resolution {
	selectable := make(map[int]bool, len(rec.Meta.SelectableIndices))
	for _, idx := range rec.Meta.SelectableIndices {
		selectable[idx] = true
	}

	res := Resolution{Targets: []Target{}, Skipped: []Skip{}}
	seen := make(map[int]bool, len(positions))
	for _, pos := range positions {
		if seen[pos] {
			continue
		}
		seen[pos] = true

		if selectable[pos] {
			res.Targets = append(res.Targets, Target{Position: pos, ID: rec.IDs[pos]})
		} else {
			res.Skipped = append(res.Skipped, Skip{RequestedPosition: pos, Reason: "position out of range"})
		}
	}
	return res
}

// resolveCriteria walks the item contexts in original stored order and
// keeps each selectable position whose metadata matches. An empty result is
// valid, not an error.
func resolveCriteria(rec *handle.Record, c Criteria) Resolution {
	selectable := make(map[int]bool, len(rec.Meta.SelectableIndices))
	for _, idx := range rec.Meta.SelectableIndices {
		selectable[idx] = true
	}

	res := Resolution{Targets: []Target{}, Skipped: []Skip{}}
	for _, item := range rec.Items {
		if !selectable[item.Position] {
			continue
		}
		if matches(item, c) {
			res.Targets = append(res.Targets, Target{Position: item.Position, ID: item.ID})
		}
	}
	return res
}

// matches applies the AND-across-fields / OR-within-field-values rule.
func matches(item workitem.Context, c Criteria) bool {
	if len(c.States) > 0 && !anyFold(c.States, func(s string) bool {
		return strings.EqualFold(item.State, s)
	}) {
		return false
	}

	if len(c.Tags) > 0 {
		found := false
		for _, want := range c.Tags {
			for _, have := range item.Tags {
				if strings.EqualFold(have, want) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(c.TitleContains) > 0 {
		title := strings.ToLower(item.Title)
		if !anyFold(c.TitleContains, func(s string) bool {
			return strings.Contains(title, strings.ToLower(s))
		}) {
			return false
		}
	}

	// Staleness bounds require the item to carry staleness at all.
	if c.DaysInactiveMin != nil || c.DaysInactiveMax != nil {
		if item.DaysInactive == nil {
			return false
		}
		if c.DaysInactiveMin != nil && *item.DaysInactive < *c.DaysInactiveMin {
			return false
		}
		if c.DaysInactiveMax != nil && *item.DaysInactive > *c.DaysInactiveMax {
			return false
		}
	}

	return true
}

// anyFold reports whether pred holds for any value.
func anyFold(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}
