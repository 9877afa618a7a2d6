// Package pipeline implements the asynchronous store pipeline: a bounded
// buffer pool feeding K sort workers and exactly one writer, decoupling
// the import orchestrator's producer role from the CPU-bound sort and the
// I/O-bound write.
package pipeline

import "github.com/sarona-RD/chess-pos-db/internal/runfile"

// Buffer is a reusable, pre-allocated slice of entries handed out by the
// pool and returned once its run file has been written.
type Buffer struct {
	Entries []runfile.Entry
}

// Reset empties the buffer for reuse without releasing its backing array.
func (b *Buffer) Reset() {
	b.Entries = b.Entries[:0]
}

// Full reports whether the buffer has reached its configured capacity.
func (b *Buffer) Full() bool {
	return len(b.Entries) >= cap(b.Entries)
}

func newBuffer(capacity int) *Buffer {
	return &Buffer{Entries: make([]runfile.Entry, 0, capacity)}
}
