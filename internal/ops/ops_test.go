package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/ado"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

// fakeClient is an in-memory WorkItemClient recording every mutation.
type fakeClient struct {
	mu          sync.Mutex
	queryResult []workitem.WorkItem
	queryErr    error
	wiqlSeen    string

	comments map[int][]string
	updates  map[int][][]ado.PatchOp
	assigns  map[int][]string
	removed  []int

	failComment map[int]error
	failUpdate  map[int]error
}

func newFakeClient(items ...workitem.WorkItem) *fakeClient {
	return &fakeClient{
		queryResult: items,
		comments:    make(map[int][]string),
		updates:     make(map[int][][]ado.PatchOp),
		assigns:     make(map[int][]string),
		failComment: make(map[int]error),
		failUpdate:  make(map[int]error),
	}
}

func (c *fakeClient) QueryWIQL(_ context.Context, wiql string, top int) ([]workitem.WorkItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wiqlSeen = wiql
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	if top < len(c.queryResult) {
		return c.queryResult[:top], nil
	}
	return c.queryResult, nil
}

func (c *fakeClient) AddComment(_ context.Context, id int, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failComment[id]; err != nil {
		return err
	}
	c.comments[id] = append(c.comments[id], html)
	return nil
}

func (c *fakeClient) UpdateFields(_ context.Context, id int, ops []ado.PatchOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failUpdate[id]; err != nil {
		return err
	}
	c.updates[id] = append(c.updates[id], ops)
	return nil
}

func (c *fakeClient) Assign(_ context.Context, id int, user string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failUpdate[id]; err != nil {
		return err
	}
	c.assigns[id] = append(c.assigns[id], user)
	return nil
}

func (c *fakeClient) Remove(_ context.Context, id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failUpdate[id]; err != nil {
		return err
	}
	c.removed = append(c.removed, id)
	return nil
}

func (c *fakeClient) commentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, list := range c.comments {
		n += len(list)
	}
	return n
}

// testEnv builds an Env over a fresh memory store and the given client.
func testEnv(client WorkItemClient) *Env {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Env{
		Store:  handle.NewMemoryStore(func() time.Time { return now }, nil),
		Client: client,
		Clock:  func() time.Time { return now },
	}
}

// mustQuery runs Query and fails the test on error.
func mustQuery(t *testing.T, env *Env, wiql string) *QueryOutput {
	t.Helper()
	out, err := Query(context.Background(), env, QueryInput{Wiql: wiql})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	return out
}
