// Package extmerge implements the external k-way merger: it consolidates
// many sorted runs into one, combining duplicate keys and reporting
// monotone progress as input records are consumed.
package extmerge

import (
	"container/heap"
	"fmt"
	"os"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

// Progress reports monotone merge progress: workDone/workTotal are byte
// counts of input consumed versus total input size across all runs.
type Progress func(workDone, workTotal int64)

type cursor struct {
	run     *runfile.Run
	pos     int
	current runfile.Entry
	hasMore bool
	index   int // source index, used only for a stable heap tie-break
}

func newCursor(run *runfile.Run, index int) *cursor {
	c := &cursor{run: run, index: index}
	c.hasMore = run.NumRecords() > 0
	if c.hasMore {
		c.current = run.EntryAt(0)
	}
	return c
}

func (c *cursor) advance() {
	c.pos++
	if c.pos >= c.run.NumRecords() {
		c.hasMore = false
		return
	}
	c.current = c.run.EntryAt(c.pos)
}

type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if d := fpkey.CompareFull(h[i].current.Key, h[j].current.Key); d != 0 {
		return d < 0
	}
	return h[i].index < h[j].index
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge consolidates runs into a single new run at outPath (plus its
// sibling "_index"), combining entries with equal full keys via
// fpkey.Combine (sum counts, keep the earlier game offset). Progress, if
// non-nil, is invoked once per output record, after every input record
// carrying that key has been consumed.
func Merge(runs []*runfile.Run, outPath string, progress Progress) error {
	var workTotal int64
	for _, r := range runs {
		workTotal += int64(r.NumRecords()) * runfile.RecordSize
	}
	var workDone int64
	report := func() {
		if progress != nil {
			progress(workDone, workTotal)
		}
	}

	h := make(mergeHeap, 0, len(runs))
	for i, r := range runs {
		c := newCursor(r, i)
		if c.hasMore {
			h = append(h, c)
		}
	}
	heap.Init(&h)

	out := make([]runfile.Entry, 0, sumRecords(runs))
	for len(h) > 0 {
		top := heap.Pop(&h).(*cursor)
		merged := top.current
		workDone += runfile.RecordSize
		top.advance()
		if top.hasMore {
			heap.Push(&h, top)
		}

		for len(h) > 0 && fpkey.EqualFull(h[0].current.Key, merged.Key) {
			other := heap.Pop(&h).(*cursor)
			merged.Value = fpkey.Combine(merged.Value, other.current.Value)
			workDone += runfile.RecordSize
			other.advance()
			if other.hasMore {
				heap.Push(&h, other)
			}
		}

		out = append(out, merged)
		report()
	}

	stagingPath := outPath + ".staging"
	if err := runfile.WriteRun(stagingPath, out); err != nil {
		return fmt.Errorf("extmerge: write staged output: %w", err)
	}
	if err := os.Rename(stagingPath, outPath); err != nil {
		return fmt.Errorf("%w: extmerge: rename staged output into place: %v", dberr.ErrIOFault, err)
	}
	if err := os.Rename(stagingPath+"_index", outPath+"_index"); err != nil {
		return fmt.Errorf("%w: extmerge: rename staged index into place: %v", dberr.ErrIOFault, err)
	}
	return nil
}

func sumRecords(runs []*runfile.Run) int {
	n := 0
	for _, r := range runs {
		n += r.NumRecords()
	}
	return n
}
