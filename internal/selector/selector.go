// Package selector resolves declarative selection expressions against a
// stored query-handle snapshot. A selector is one of three shapes: select
// all, explicit 0-based positions, or a predicate over the stored per-item
// metadata. Malformed shapes are rejected at the parse boundary; resolution
// itself reports unresolvable positions instead of failing.
package selector

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
)

// Kind discriminates the selector union.
type Kind string

const (
	KindAll       Kind = "all"
	KindPositions Kind = "positions"
	KindCriteria  Kind = "criteria"
)

// Criteria is a predicate over stored item metadata. An absent field means
// "unconstrained on this dimension". Within one field multiple values are
// OR-matched; across fields the provided constraints are AND-combined.
type Criteria struct {
	States          []string `json:"states,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	TitleContains   []string `json:"titleContains,omitempty"`
	DaysInactiveMin *int     `json:"daysInactiveMin,omitempty"`
	DaysInactiveMax *int     `json:"daysInactiveMax,omitempty"`
}

// Selector is the tagged union supplied by the caller at resolution time.
type Selector struct {
	Kind      Kind
	Positions []int
	Criteria  Criteria
}

// All selects every selectable position.
func All() Selector {
	return Selector{Kind: KindAll}
}

// ByPositions selects explicit 0-based positions in caller order.
func ByPositions(positions []int) Selector {
	return Selector{Kind: KindPositions, Positions: positions}
}

// ByCriteria selects positions whose stored metadata matches the predicate.
func ByCriteria(c Criteria) Selector {
	return Selector{Kind: KindCriteria, Criteria: c}
}

// Parse decodes the wire format: the literal string "all", an array of
// integer positions, or a criteria object. An absent selector defaults to
// select-all. Unknown object keys are rejected here rather than deep inside
// resolution.
func Parse(raw json.RawMessage) (Selector, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return All(), nil
	}

	switch trimmed[0] {
	case '"':
		var marker string
		if err := json.Unmarshal(trimmed, &marker); err != nil {
			return Selector{}, errors.NewInvalidRequest("selector string is malformed")
		}
		if marker != "all" {
			return Selector{}, errors.NewInvalidRequest(fmt.Sprintf("unknown selector %q (only \"all\" is valid as a string)", marker))
		}
		return All(), nil

	case '[':
		var positions []int
		if err := json.Unmarshal(trimmed, &positions); err != nil {
			return Selector{}, errors.NewInvalidRequest("selector array must contain only integer positions")
		}
		return ByPositions(positions), nil

	case '{':
		var c Criteria
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return Selector{}, errors.NewInvalidRequest(fmt.Sprintf("selector criteria is malformed: %v", err))
		}
		return ByCriteria(c), nil
	}

	return Selector{}, errors.NewInvalidRequest("selector must be \"all\", an array of positions, or a criteria object")
}
