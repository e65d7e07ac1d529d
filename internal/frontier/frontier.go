// Package frontier implements the deduplicating crawl queue shared by the
// crawl workers.
package frontier

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"sitecloner/pkg/types"
)

// Frontier is a deduplicating queue of tasks processed in waves. Tasks
// offered while a wave is running are held back until the wave has fully
// drained; duplicates offered in the meantime are merged, keeping the
// shallowest depth and, at equal depth, the kind ranked first by
// types.Kinds. A URL is handed out at most once for the lifetime of the
// frontier, so the outcome of a crawl does not depend on how many workers
// drain it. Dequeue blocks until work arrives or the crawl is finished,
// which is when nothing is queued, pending or in flight.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []types.Task
	pending  map[string]types.Task
	released map[string]struct{}
	inFlight int
	closed   bool
}

// New returns an empty frontier.
func New() *Frontier {
	f := &Frontier{
		pending:  make(map[string]types.Task),
		released: make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// TryEnqueue offers task for the next wave. It reports whether the offer
// was admitted, either as a new URL or by replacing a pending task for the
// same URL that it outranks. URLs already handed to a wave are rejected, as
// is everything once the frontier is closed.
func (f *Frontier) TryEnqueue(task types.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, done := f.released[task.URL]; done {
		return false
	}
	if held, ok := f.pending[task.URL]; ok && !outranks(task, held) {
		return false
	}
	f.pending[task.URL] = task
	f.cond.Signal()
	return true
}

// Dequeue claims the next task. It returns false once the frontier is
// drained, closed or ctx is done. Every claimed task must be released with
// Done.
func (f *Frontier) Dequeue(ctx context.Context) (types.Task, bool) {
	stop := context.AfterFunc(ctx, f.wake)
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed || ctx.Err() != nil {
			return types.Task{}, false
		}
		if len(f.queue) > 0 {
			task := f.queue[0]
			f.queue[0] = types.Task{}
			f.queue = f.queue[1:]
			f.inFlight++
			return task, true
		}
		if f.inFlight == 0 {
			if len(f.pending) == 0 {
				f.closed = true
				f.cond.Broadcast()
				return types.Task{}, false
			}
			f.releaseWave()
			f.cond.Broadcast()
			continue
		}
		f.cond.Wait()
	}
}

// releaseWave moves the pending tasks to the queue, shallowest first. The
// caller holds f.mu.
func (f *Frontier) releaseWave() {
	wave := make([]types.Task, 0, len(f.pending))
	for u, task := range f.pending {
		wave = append(wave, task)
		f.released[u] = struct{}{}
	}
	clear(f.pending)
	slices.SortFunc(wave, func(a, b types.Task) int {
		if a.Depth != b.Depth {
			return cmp.Compare(a.Depth, b.Depth)
		}
		if ra, rb := kindRank(a.Kind), kindRank(b.Kind); ra != rb {
			return cmp.Compare(ra, rb)
		}
		return strings.Compare(a.URL, b.URL)
	})
	f.queue = append(f.queue, wave...)
}

// outranks reports whether a should replace b for the same URL.
func outranks(a, b types.Task) bool {
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	return kindRank(a.Kind) < kindRank(b.Kind)
}

var kindOrder = func() map[types.Kind]int {
	order := make(map[types.Kind]int)
	for i, k := range types.Kinds() {
		order[k] = i
	}
	return order
}()

func kindRank(k types.Kind) int {
	if i, ok := kindOrder[k]; ok {
		return i
	}
	return len(kindOrder)
}

// Done releases a task claimed by Dequeue.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	if f.inFlight == 0 && len(f.queue) == 0 {
		f.cond.Broadcast()
	}
}

// Close stops the frontier; blocked and future Dequeue calls return false.
func (f *Frontier) Close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Len returns the number of queued and pending tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue) + len(f.pending)
}

// Seen returns the number of distinct URLs admitted so far.
func (f *Frontier) Seen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.released) + len(f.pending)
}

// InFlight returns the number of claimed tasks not yet released.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *Frontier) wake() {
	f.mu.Lock()
	f.cond.Broadcast()
	f.mu.Unlock()
}
