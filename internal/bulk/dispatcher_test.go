package bulk

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/selector"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/workitem"
)

func storeWithItems(t *testing.T, items ...workitem.WorkItem) (handle.Store, string) {
	t.Helper()
	store := handle.NewMemoryStore(nil, nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	contexts := workitem.BuildContexts(items, now)
	ids := make([]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	token, err := store.Put(ids, contexts, workitem.BuildMetadata(contexts), time.Hour, "test")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return store, token
}

func noopMutation(context.Context, int) error { return nil }

func TestExecute_DryRunNeverInvokesMutation(t *testing.T) {
	store, token := storeWithItems(t,
		workitem.WorkItem{ID: 1}, workitem.WorkItem{ID: 2}, workitem.WorkItem{ID: 3},
	)
	d := NewDispatcher(store, nil)

	var calls atomic.Int64
	fn := func(context.Context, int) error {
		calls.Add(1)
		return nil
	}

	result, err := d.Execute(context.Background(), token, selector.All(), fn, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("dry-run invoked mutation %d times, want 0", calls.Load())
	}
	if !result.DryRun {
		t.Error("DryRun flag not set on result")
	}
	if result.SelectedCount != 3 {
		t.Errorf("SelectedCount = %d, want 3", result.SelectedCount)
	}
	if len(result.Previewed) != 3 {
		t.Errorf("Previewed = %d items, want 3", len(result.Previewed))
	}
}

func TestExecute_DryRunPreviewCapped(t *testing.T) {
	items := make([]workitem.WorkItem, 20)
	for i := range items {
		items[i] = workitem.WorkItem{ID: i + 1, Title: fmt.Sprintf("item %d", i+1)}
	}
	store, token := storeWithItems(t, items...)
	d := NewDispatcher(store, nil)

	result, err := d.Execute(context.Background(), token, selector.All(), noopMutation,
		Options{DryRun: true, MaxPreviewItems: 5})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Previewed) != 5 {
		t.Errorf("Previewed = %d items, want capped at 5", len(result.Previewed))
	}
	if result.SelectedCount != 20 {
		t.Errorf("SelectedCount = %d, want the true count 20", result.SelectedCount)
	}
}

func TestExecute_PartialFailureIsolation(t *testing.T) {
	store, token := storeWithItems(t,
		workitem.WorkItem{ID: 1}, workitem.WorkItem{ID: 2}, workitem.WorkItem{ID: 3},
		workitem.WorkItem{ID: 4}, workitem.WorkItem{ID: 5},
	)
	d := NewDispatcher(store, nil)

	fn := func(_ context.Context, id int) error {
		if id == 3 {
			return fmt.Errorf("api rejected item %d", id)
		}
		return nil
	}

	result, err := d.Execute(context.Background(), token, selector.All(), fn, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(result.Succeeded, []int{1, 2, 4, 5}) {
		t.Errorf("Succeeded = %v, want [1 2 4 5]", result.Succeeded)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != 3 {
		t.Fatalf("Failed = %+v, want one entry for id 3", result.Failed)
	}
	if result.Failed[0].Reason != "api rejected item 3" {
		t.Errorf("Reason = %q", result.Failed[0].Reason)
	}
}

func TestExecute_PartitionInvariant(t *testing.T) {
	store, token := storeWithItems(t,
		workitem.WorkItem{ID: 1}, workitem.WorkItem{ID: 2}, workitem.WorkItem{ID: 3},
	)
	d := NewDispatcher(store, nil)

	fn := func(_ context.Context, id int) error {
		if id == 2 {
			return fmt.Errorf("boom")
		}
		return nil
	}

	// Request positions 0, 2, and an out-of-range 9.
	result, err := d.Execute(context.Background(), token,
		selector.ByPositions([]int{0, 2, 9}), fn, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	total := len(result.Succeeded) + len(result.Failed) + len(result.Skipped)
	if total != 3 {
		t.Errorf("succeeded+failed+skipped = %d, want 3 (each requested item exactly once)", total)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].RequestedPosition != 9 {
		t.Errorf("Skipped = %+v, want position 9", result.Skipped)
	}
}

func TestExecute_HandleNotFoundFailsFast(t *testing.T) {
	store := handle.NewMemoryStore(nil, nil)
	d := NewDispatcher(store, nil)

	var calls atomic.Int64
	fn := func(context.Context, int) error {
		calls.Add(1)
		return nil
	}

	_, err := d.Execute(context.Background(), "qh_gone", selector.All(), fn, Options{})
	if !errors.Is(err, errors.ErrHandleNotFound) {
		t.Fatalf("Execute = %v, want HANDLE_NOT_FOUND", err)
	}
	if calls.Load() != 0 {
		t.Errorf("mutation invoked %d times for a missing handle, want 0", calls.Load())
	}
}

func TestExecute_ExpiredHandleFailsFast(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := handle.NewMemoryStore(func() time.Time { return now }, nil)

	token, err := store.Put([]int{1}, []workitem.Context{{Position: 0, ID: 1}},
		workitem.SelectionMetadata{TotalCount: 1, SelectableIndices: []int{0}}, time.Minute, "")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now = now.Add(time.Hour)
	d := NewDispatcher(store, nil)
	_, err = d.Execute(context.Background(), token, selector.All(), noopMutation, Options{})
	if !errors.Is(err, errors.ErrHandleExpired) {
		t.Fatalf("Execute = %v, want HANDLE_EXPIRED", err)
	}
}

func TestExecute_ResultsInTargetOrder(t *testing.T) {
	items := make([]workitem.WorkItem, 12)
	for i := range items {
		items[i] = workitem.WorkItem{ID: i + 1}
	}
	store, token := storeWithItems(t, items...)
	d := NewDispatcher(store, nil)

	// Later items finish earlier; results must still come back re-sorted to
	// target order, not completion order.
	fn := func(_ context.Context, id int) error {
		time.Sleep(time.Duration(12-id) * time.Millisecond)
		return nil
	}

	result, err := d.Execute(context.Background(), token, selector.All(), fn,
		Options{BatchSize: 12})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := make([]int, 12)
	for i := range want {
		want[i] = i + 1
	}
	if !reflect.DeepEqual(result.Succeeded, want) {
		t.Errorf("Succeeded = %v, want target order %v", result.Succeeded, want)
	}
}

func TestExecute_BatchBoundsConcurrency(t *testing.T) {
	items := make([]workitem.WorkItem, 9)
	for i := range items {
		items[i] = workitem.WorkItem{ID: i + 1}
	}
	store, token := storeWithItems(t, items...)
	d := NewDispatcher(store, nil)

	var mu sync.Mutex
	inFlight, peak := 0, 0
	fn := func(context.Context, int) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	if _, err := d.Execute(context.Background(), token, selector.All(), fn, Options{BatchSize: 3}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestExecute_PanicRecordedAsFailure(t *testing.T) {
	store, token := storeWithItems(t, workitem.WorkItem{ID: 1}, workitem.WorkItem{ID: 2})
	d := NewDispatcher(store, nil)

	fn := func(_ context.Context, id int) error {
		if id == 1 {
			panic("unexpected nil field")
		}
		return nil
	}

	result, err := d.Execute(context.Background(), token, selector.All(), fn, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != 1 {
		t.Fatalf("Failed = %+v, want one entry for id 1", result.Failed)
	}
	if !reflect.DeepEqual(result.Succeeded, []int{2}) {
		t.Errorf("Succeeded = %v, want [2]", result.Succeeded)
	}
}

func TestExecute_CriteriaScenario(t *testing.T) {
	// store([1,2,3], states New/Active/Active) then bulk-execute over
	// ByCriteria(states=[Active]) must mutate exactly ids 2 and 3.
	store, token := storeWithItems(t,
		workitem.WorkItem{ID: 1, State: "New"},
		workitem.WorkItem{ID: 2, State: "Active"},
		workitem.WorkItem{ID: 3, State: "Active"},
	)
	d := NewDispatcher(store, nil)

	var mu sync.Mutex
	var invoked []int
	fn := func(_ context.Context, id int) error {
		mu.Lock()
		invoked = append(invoked, id)
		mu.Unlock()
		return nil
	}

	result, err := d.Execute(context.Background(), token,
		selector.ByCriteria(selector.Criteria{States: []string{"Active"}}), fn, Options{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.SelectedCount != 2 {
		t.Errorf("SelectedCount = %d, want 2", result.SelectedCount)
	}
	if !reflect.DeepEqual(result.Succeeded, []int{2, 3}) {
		t.Errorf("Succeeded = %v, want [2 3]", result.Succeeded)
	}
	if len(result.Failed) != 0 || len(result.Skipped) != 0 {
		t.Errorf("Failed = %v, Skipped = %v, want both empty", result.Failed, result.Skipped)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(invoked) != 2 {
		t.Fatalf("mutation invoked %d times, want exactly 2", len(invoked))
	}
}
