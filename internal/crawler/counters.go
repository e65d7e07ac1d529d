package crawler

import (
	"maps"
	"sync"

	"sitecloner/pkg/types"
)

// Counters tracks how many resources of each kind were saved.
type Counters struct {
	mu     sync.Mutex
	counts map[types.Kind]int
}

// NewCounters returns zeroed counters for every kind.
func NewCounters() *Counters {
	counts := make(map[types.Kind]int, len(types.Kinds()))
	for _, k := range types.Kinds() {
		counts[k] = 0
	}
	return &Counters{counts: counts}
}

// Inc adds one to kind.
func (c *Counters) Inc(kind types.Kind) {
	c.mu.Lock()
	c.counts[kind]++
	c.mu.Unlock()
}

// Snapshot copies the current counts.
func (c *Counters) Snapshot() map[types.Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.counts)
}

// recordLog keeps SiteRecords in completion order.
type recordLog struct {
	mu      sync.Mutex
	records []types.SiteRecord
}

func (l *recordLog) Append(rec types.SiteRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

func (l *recordLog) Snapshot() []types.SiteRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.SiteRecord, len(l.records))
	copy(out, l.records)
	return out
}
