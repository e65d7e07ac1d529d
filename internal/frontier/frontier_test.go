package frontier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitecloner/pkg/types"
)

func task(u string) types.Task {
	return types.Task{URL: u, Kind: types.KindHTML}
}

func TestTryEnqueueDeduplicates(t *testing.T) {
	t.Parallel()

	f := New()
	if !f.TryEnqueue(task("https://example.com/")) {
		t.Fatal("first enqueue should succeed")
	}
	for i := 0; i < 3; i++ {
		if f.TryEnqueue(types.Task{URL: "https://example.com/", Kind: types.KindImg, Depth: i}) {
			t.Fatalf("re-enqueue %d should fail", i)
		}
	}

	ctx := context.Background()
	if _, ok := f.Dequeue(ctx); !ok {
		t.Fatal("expected a task")
	}
	f.Done()
	if f.TryEnqueue(task("https://example.com/")) {
		t.Error("URL must stay visited after it was processed")
	}
	if f.Seen() != 1 {
		t.Errorf("Seen = %d, want 1", f.Seen())
	}
}

func TestConcurrentTryEnqueue(t *testing.T) {
	t.Parallel()

	f := New()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if f.TryEnqueue(task(fmt.Sprintf("https://example.com/%d", j))) {
					wins.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 10 {
		t.Errorf("successful enqueues = %d, want 10", got)
	}
	if f.Len() != 10 {
		t.Errorf("Len = %d, want 10", f.Len())
	}
}

func TestDequeueOrder(t *testing.T) {
	t.Parallel()

	f := New()
	for _, u := range []string{"a", "b", "c"} {
		f.TryEnqueue(task(u))
	}
	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, ok := f.Dequeue(ctx)
		if !ok || got.URL != want {
			t.Fatalf("Dequeue = %q, %v; want %q", got.URL, ok, want)
		}
		f.Done()
	}
	if _, ok := f.Dequeue(ctx); ok {
		t.Error("drained frontier should report completion")
	}
}

func TestDoneBarrierWaitsForInFlight(t *testing.T) {
	t.Parallel()

	f := New()
	f.TryEnqueue(task("root"))
	ctx := context.Background()

	root, ok := f.Dequeue(ctx)
	if !ok {
		t.Fatal("expected root task")
	}

	got := make(chan types.Task, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		next, ok := f.Dequeue(ctx)
		if ok {
			got <- next
			f.Done()
		}
	}()

	// The second worker must block while root is still in flight even
	// though the queue is empty.
	select {
	case <-finished:
		t.Fatal("Dequeue returned while a task was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	f.TryEnqueue(task(root.URL + "/child"))
	f.Done()

	select {
	case child := <-got:
		if child.URL != "root/child" {
			t.Errorf("child = %q", child.URL)
		}
	case <-time.After(time.Second):
		t.Fatal("child task was never dequeued")
	}
	<-finished

	if _, ok := f.Dequeue(ctx); ok {
		t.Error("expected completion after all tasks are done")
	}
}

func TestAllWorkersObserveCompletion(t *testing.T) {
	t.Parallel()

	f := New()
	f.TryEnqueue(task("only"))
	ctx := context.Background()

	var wg sync.WaitGroup
	var processed atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := f.Dequeue(ctx); !ok {
					return
				}
				processed.Add(1)
				f.Done()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not terminate")
	}
	if processed.Load() != 1 {
		t.Errorf("processed = %d, want 1", processed.Load())
	}
}

func TestDequeueCancellation(t *testing.T) {
	t.Parallel()

	f := New()
	f.TryEnqueue(task("held"))
	if _, ok := f.Dequeue(context.Background()); !ok {
		t.Fatal("expected task")
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		_, ok := f.Dequeue(ctx)
		result <- ok
	}()
	cancel()

	select {
	case ok := <-result:
		if ok {
			t.Error("cancelled Dequeue should return false")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue ignored cancellation")
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	f := New()
	f.TryEnqueue(task("a"))
	f.Close()
	if _, ok := f.Dequeue(context.Background()); ok {
		t.Error("closed frontier should not hand out tasks")
	}
	if f.TryEnqueue(task("b")) {
		t.Error("closed frontier should reject tasks")
	}
}

func TestPendingOfferIsUpgraded(t *testing.T) {
	t.Parallel()

	f := New()
	x := "https://example.com/x"
	if !f.TryEnqueue(types.Task{URL: x, Kind: types.KindLink, Depth: 2}) {
		t.Fatal("first offer should be admitted")
	}
	if !f.TryEnqueue(types.Task{URL: x, Kind: types.KindHTML, Depth: 1}) {
		t.Fatal("shallower offer should replace the pending task")
	}
	if f.TryEnqueue(types.Task{URL: x, Kind: types.KindLink, Depth: 1}) {
		t.Fatal("a link should not replace an html task at the same depth")
	}
	if !f.TryEnqueue(types.Task{URL: x, Kind: types.KindCSS, Depth: 0}) {
		t.Fatal("shallower offer should win regardless of kind")
	}

	got, ok := f.Dequeue(context.Background())
	if !ok {
		t.Fatal("expected a task")
	}
	if got.Kind != types.KindCSS || got.Depth != 0 {
		t.Fatalf("dequeued %+v, want css at depth 0", got)
	}
	if f.Seen() != 1 {
		t.Fatalf("Seen = %d, want 1", f.Seen())
	}
}

func TestWaveIsHeldUntilInFlightDrains(t *testing.T) {
	t.Parallel()

	f := New()
	f.TryEnqueue(task("a"))
	f.TryEnqueue(task("b"))
	ctx := context.Background()

	first, _ := f.Dequeue(ctx)
	second, _ := f.Dequeue(ctx)
	if first.URL != "a" || second.URL != "b" {
		t.Fatalf("unexpected wave order %q, %q", first.URL, second.URL)
	}

	// Offers made while the wave runs are merged, not handed out.
	f.TryEnqueue(types.Task{URL: "c", Kind: types.KindLink, Depth: 1})
	f.Done()

	got := make(chan types.Task, 1)
	go func() {
		next, ok := f.Dequeue(ctx)
		if ok {
			got <- next
		}
	}()
	select {
	case next := <-got:
		t.Fatalf("task %q released before the wave drained", next.URL)
	case <-time.After(50 * time.Millisecond):
	}

	f.TryEnqueue(types.Task{URL: "c", Kind: types.KindHTML, Depth: 1})
	f.Done()

	select {
	case next := <-got:
		if next.URL != "c" || next.Kind != types.KindHTML {
			t.Fatalf("next wave handed out %+v", next)
		}
	case <-time.After(time.Second):
		t.Fatal("next wave was never released")
	}
	if f.TryEnqueue(types.Task{URL: "c", Kind: types.KindHTML, Depth: 0}) {
		t.Fatal("released URLs must not be offered again")
	}
}

func TestWaveOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	f := New()
	f.TryEnqueue(types.Task{URL: "z", Kind: types.KindImg, Depth: 1})
	f.TryEnqueue(types.Task{URL: "y", Kind: types.KindHTML, Depth: 1})
	f.TryEnqueue(types.Task{URL: "x", Kind: types.KindImg, Depth: 0})
	f.TryEnqueue(types.Task{URL: "w", Kind: types.KindImg, Depth: 1})

	ctx := context.Background()
	var order []string
	for i := 0; i < 4; i++ {
		next, ok := f.Dequeue(ctx)
		if !ok {
			t.Fatal("expected a task")
		}
		order = append(order, next.URL)
	}
	if got := fmt.Sprint(order); got != "[x y w z]" {
		t.Fatalf("wave order = %s, want [x y w z]", got)
	}
}
