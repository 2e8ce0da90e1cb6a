// Package index maps navigation values back to row numbers.
package index

import (
	"slices"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapview/pkg/navigation"
)

type timeEntry struct {
	ts  int64
	row int
}

// TimeIndex maps millisecond timestamps to rows. Entries may be added in
// any order; lookups sort lazily.
type TimeIndex struct {
	mu      sync.RWMutex
	entries []timeEntry
	sorted  bool
}

// NewTimeIndex returns an empty index with room for capacity entries.
func NewTimeIndex(capacity int) *TimeIndex {
	return &TimeIndex{entries: make([]timeEntry, 0, capacity), sorted: true}
}

// Add records that row holds timestamp ts.
func (x *TimeIndex) Add(ts int64, row int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if n := len(x.entries); n > 0 && x.entries[n-1].ts > ts {
		x.sorted = false
	}
	x.entries = append(x.entries, timeEntry{ts: ts, row: row})
}

// Len returns the number of entries.
func (x *TimeIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func (x *TimeIndex) ensureSorted() {
	x.mu.RLock()
	ok := x.sorted
	x.mu.RUnlock()
	if ok {
		return
	}
	x.mu.Lock()
	if !x.sorted {
		slices.SortStableFunc(x.entries, func(a, b timeEntry) int {
			switch {
			case a.ts < b.ts:
				return -1
			case a.ts > b.ts:
				return 1
			}
			return a.row - b.row
		})
		x.sorted = true
	}
	x.mu.Unlock()
}

// Bounds returns the smallest and largest timestamp.
func (x *TimeIndex) Bounds() (navigation.Bounds, bool) {
	x.ensureSorted()
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.entries) == 0 {
		return navigation.Bounds{}, false
	}
	return navigation.Bounds{Min: x.entries[0].ts, Max: x.entries[len(x.entries)-1].ts}, true
}

// Floor returns the row of the latest entry at or before ts. Timestamps
// before the first entry resolve to the first entry's row.
func (x *TimeIndex) Floor(ts int64) (int, bool) {
	x.ensureSorted()
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.entries) == 0 {
		return 0, false
	}
	i := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].ts > ts })
	if i == 0 {
		return x.entries[0].row, true
	}
	return x.entries[i-1].row, true
}

// Ceil returns the row of the earliest entry at or after ts. It reports
// false when every entry is before ts.
func (x *TimeIndex) Ceil(ts int64) (int, bool) {
	x.ensureSorted()
	x.mu.RLock()
	defer x.mu.RUnlock()
	i := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].ts >= ts })
	if i == len(x.entries) {
		return 0, false
	}
	return x.entries[i].row, true
}
