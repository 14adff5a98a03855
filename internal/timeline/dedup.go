package timeline

import (
	"sync"

	"github.com/masa-finance/timeline-worker/api/types"
)

// Scope separates the two uses of a run's index so that a record marked as
// acquired is not mistaken for one already delivered, and vice versa.
type Scope uint8

const (
	ScopeAcquired Scope = iota
	ScopeDelivered
)

// Key identifies a record for deduplication. It uses the raw timestamp so it
// is stable even when the timestamp cannot be parsed.
type Key struct {
	Scope     Scope
	Content   string
	Timestamp string
}

func AcquiredKey(r types.Record) Key {
	return Key{Scope: ScopeAcquired, Content: r.Content, Timestamp: r.RawTimestamp}
}

func DeliveredKey(r types.Record) Key {
	return Key{Scope: ScopeDelivered, Content: r.Content, Timestamp: r.RawTimestamp}
}

// DedupIndex is the per-run set of keys already seen. It is discarded with the run.
type DedupIndex struct {
	mu   sync.Mutex
	seen map[Key]struct{}
}

func NewDedupIndex() *DedupIndex {
	return &DedupIndex{seen: make(map[Key]struct{})}
}

func (d *DedupIndex) Seen(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[k]
	return ok
}

func (d *DedupIndex) Mark(k Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[k] = struct{}{}
}

// Len returns the number of keys across all scopes.
func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
