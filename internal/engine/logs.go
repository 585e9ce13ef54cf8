package engine

import (
	"container/heap"
	"sort"

	"github.com/vesaa/clawwatch/internal/models"
)

// logRing holds a device's most recent log entries in chronological
// order, capped; inserting past the cap evicts the oldest first.
type logRing struct {
	cap     int
	entries []models.LogEntry
}

func newLogRing(cap int) *logRing {
	if cap <= 0 {
		cap = 1
	}
	return &logRing{cap: cap}
}

// append inserts a batch of entries, each at its timestamp position.
func (r *logRing) append(batch []models.LogEntry) {
	for _, entry := range batch {
		i := sort.Search(len(r.entries), func(i int) bool {
			return r.entries[i].Timestamp.After(entry.Timestamp)
		})
		r.entries = append(r.entries, models.LogEntry{})
		copy(r.entries[i+1:], r.entries[i:])
		r.entries[i] = entry

		if excess := len(r.entries) - r.cap; excess > 0 {
			r.entries = append(r.entries[:0], r.entries[excess:]...)
		}
	}
}

// recent returns up to limit entries, newest first.
func (r *logRing) recent(limit int) []models.LogEntry {
	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.LogEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.entries[n-1-i]
	}
	return out
}

// latest returns the newest entry, if any.
func (r *logRing) latest() (models.LogEntry, bool) {
	if len(r.entries) == 0 {
		return models.LogEntry{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// mergeRecent merges per-device newest-first sequences into one
// newest-first slice of up to limit entries. Each source is already
// ordered, so this is a k-way heap merge, not a re-sort.
func mergeRecent(sources [][]models.LogEntry, limit int) []models.LogEntry {
	h := &logHeap{}
	for _, src := range sources {
		if len(src) > 0 {
			h.items = append(h.items, logCursor{entries: src})
		}
	}
	heap.Init(h)

	var out []models.LogEntry
	for h.Len() > 0 && (limit <= 0 || len(out) < limit) {
		cur := h.items[0]
		out = append(out, cur.entries[cur.pos])
		if cur.pos+1 < len(cur.entries) {
			h.items[0].pos++
			heap.Fix(h, 0)
		} else {
			heap.Pop(h)
		}
	}
	return out
}

type logCursor struct {
	entries []models.LogEntry // newest first
	pos     int
}

type logHeap struct {
	items []logCursor
}

func (h *logHeap) Len() int { return len(h.items) }

func (h *logHeap) Less(i, j int) bool {
	ti := h.items[i].entries[h.items[i].pos].Timestamp
	tj := h.items[j].entries[h.items[j].pos].Timestamp
	return ti.After(tj)
}

func (h *logHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *logHeap) Push(x any) { h.items = append(h.items, x.(logCursor)) }

func (h *logHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
