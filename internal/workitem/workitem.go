package workitem

import (
	"sort"
	"strings"
	"time"
)

// WorkItem is a work item as returned by the tracking API query path.
type WorkItem struct {
	ID          int
	Title       string
	Type        string
	State       string
	AssignedTo  string
	Tags        []string
	ChangedDate time.Time // zero when the API omits it
}

// Context is the lightweight per-item snapshot captured at query time and
// stored inside a query handle. Position always equals the snapshot's index
// in the handle's item array.
type Context struct {
	Position     int        `json:"position"`
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Type         string     `json:"type,omitempty"`
	State        string     `json:"state,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	DaysInactive *int       `json:"days_inactive,omitempty"`
	LastChange   *time.Time `json:"last_change,omitempty"`
}

// SelectionMetadata describes what a handle's snapshot contains: the total
// count, which positions may be selected, and the vocabulary of criteria
// values actually present. The vocabulary is advisory (used for validation
// messages), never an allow-list for filtering.
type SelectionMetadata struct {
	TotalCount        int      `json:"total_count"`
	SelectableIndices []int    `json:"selectable_indices"`
	States            []string `json:"states,omitempty"`
	Types             []string `json:"types,omitempty"`
	Tags              []string `json:"tags,omitempty"`
}

// BuildContexts converts query results into index-aligned item contexts.
// Context i describes WorkItem i; staleness is computed against now.
func BuildContexts(items []WorkItem, now time.Time) []Context {
	contexts := make([]Context, len(items))
	for i, item := range items {
		ctx := Context{
			Position:   i,
			ID:         item.ID,
			Title:      item.Title,
			Type:       item.Type,
			State:      item.State,
			AssignedTo: item.AssignedTo,
			Tags:       item.Tags,
		}
		if !item.ChangedDate.IsZero() {
			changed := item.ChangedDate
			days := DaysInactive(changed, now)
			ctx.LastChange = &changed
			ctx.DaysInactive = &days
		}
		contexts[i] = ctx
	}
	return contexts
}

// BuildMetadata derives selection metadata from item contexts. All positions
// are selectable; the vocabulary lists are sorted and deduplicated.
func BuildMetadata(contexts []Context) SelectionMetadata {
	meta := SelectionMetadata{
		TotalCount:        len(contexts),
		SelectableIndices: make([]int, len(contexts)),
	}

	states := make(map[string]bool)
	types := make(map[string]bool)
	tags := make(map[string]bool)
	for i, ctx := range contexts {
		meta.SelectableIndices[i] = i
		if ctx.State != "" {
			states[ctx.State] = true
		}
		if ctx.Type != "" {
			types[ctx.Type] = true
		}
		for _, tag := range ctx.Tags {
			tags[tag] = true
		}
	}

	meta.States = sortedKeys(states)
	meta.Types = sortedKeys(types)
	meta.Tags = sortedKeys(tags)
	return meta
}

// DaysInactive returns the number of whole days between changed and now.
// Never negative: clock skew between the API and this process clamps to 0.
func DaysInactive(changed, now time.Time) int {
	days := int(now.Sub(changed).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// SplitTags parses the tracking API's semicolon-separated tag string.
func SplitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
