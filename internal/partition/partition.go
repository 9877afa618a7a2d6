// Package partition implements the ordered directory-of-runs shard:
// file-id allocation, discovery of existing runs on open, tracking of
// pending pipeline futures, and query/merge dispatch across the files it
// owns.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sarona-RD/chess-pos-db/internal/extmerge"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/pipeline"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

// Partition is one logical shard: an ordered set of run files on disk plus
// whatever pipeline futures are still pending for it.
type Partition struct {
	dir string

	mu       sync.Mutex
	files    []*runfile.Run // sorted by id ascending
	fileIDs  []uint32       // files[i] has id fileIDs[i]
	pending  map[uint32]*pipeline.Future
	reserved uint32 // ids below this are promised to ReserveIDRange callers
}

// idFromName parses a run filename back into its id, returning ok=false
// for sibling/staging files that are not run files themselves (anything
// whose name contains "index" or ends ".tmp"/".staging").
func idFromName(name string) (uint32, bool) {
	if strings.Contains(name, "index") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".staging") {
		return 0, false
	}
	id, err := strconv.ParseUint(name, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}

// Open scans dir for existing run files (skipping "_index" siblings and
// any leftover staging files), memory-maps each, and returns a Partition
// with its files sorted by id ascending.
func Open(dir string) (*Partition, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("partition: mkdir %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("partition: read dir %s: %w", dir, err)
	}

	type found struct {
		id   uint32
		path string
	}
	var discovered []found
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		// A crash mid-merge or mid-write leaves staging/temp files behind;
		// the inputs are still intact, so the strays are just garbage.
		if strings.Contains(name, ".staging") || strings.HasSuffix(name, ".tmp") {
			os.Remove(filepath.Join(dir, name))
			continue
		}
		id, ok := idFromName(name)
		if !ok {
			continue
		}
		discovered = append(discovered, found{id: id, path: filepath.Join(dir, name)})
	}
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].id < discovered[j].id })

	p := &Partition{
		dir:     dir,
		pending: make(map[uint32]*pipeline.Future),
	}
	for _, f := range discovered {
		run, err := runfile.Open(f.path)
		if err != nil {
			p.closeAll()
			return nil, fmt.Errorf("partition: open run %s: %w", f.path, err)
		}
		p.files = append(p.files, run)
		p.fileIDs = append(p.fileIDs, f.id)
	}

	return p, nil
}

func (p *Partition) closeAll() {
	for _, f := range p.files {
		f.Close()
	}
}

// Close closes every open run file.
func (p *Partition) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, f := range p.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NextID returns the id that the next StoreUnordered call will allocate:
// one past the highest known id among resolved files and pending futures.
func (p *Partition) NextID() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextIDLocked()
}

func (p *Partition) nextIDLocked() uint32 {
	max := int64(-1)
	for _, id := range p.fileIDs {
		if int64(id) > max {
			max = int64(id)
		}
	}
	for id := range p.pending {
		if int64(id) > max {
			max = int64(id)
		}
	}
	next := uint32(max + 1)
	if next < p.reserved {
		next = p.reserved
	}
	return next
}

// ReserveIDRange sets aside n consecutive ids and returns the first.
// Automatic allocation (StoreUnordered with no explicit id) never hands out
// an id below the reservation watermark, so reserved ranges and dynamic
// allocation can be mixed safely.
func (p *Partition) ReserveIDRange(n uint32) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.nextIDLocked()
	p.reserved = start + n
	return start
}

func (p *Partition) pathForID(id uint32) string {
	return filepath.Join(p.dir, strconv.FormatUint(uint64(id), 10))
}

// StoreUnordered allocates an id (or uses explicitID if non-nil), schedules
// buf on pipe for that id's path, and registers the resulting future.
// Ids are allocated in strict insertion order, including not-yet-resolved
// pending futures; an id is never reused.
func (p *Partition) StoreUnordered(pipe *pipeline.Pipeline, buf *pipeline.Buffer, explicitID *uint32) uint32 {
	p.mu.Lock()
	var id uint32
	if explicitID != nil {
		id = *explicitID
	} else {
		id = p.nextIDLocked()
	}
	future := pipe.ScheduleUnordered(p.pathForID(id), buf)
	p.pending[id] = future
	p.mu.Unlock()
	return id
}

// CollectFutureFiles blocks on every pending future in id order and opens
// the resulting run files, inserting each into the partition's file list
// at its id-sorted position.
func (p *Partition) CollectFutureFiles() error {
	p.mu.Lock()
	ids := make([]uint32, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	futures := make([]*pipeline.Future, len(ids))
	for i, id := range ids {
		futures[i] = p.pending[id]
	}
	p.mu.Unlock()

	for i, id := range ids {
		path, err := futures[i].Wait()
		if err != nil {
			return fmt.Errorf("partition: future for id %d failed: %w", id, err)
		}

		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()

		if _, statErr := os.Stat(path); statErr != nil {
			// Empty buffers write no run file (pipeline.writeBufferRun);
			// nothing to collect for this id.
			continue
		}
		run, err := runfile.Open(path)
		if err != nil {
			return fmt.Errorf("partition: open collected run %s: %w", path, err)
		}

		p.mu.Lock()
		p.insertSortedLocked(id, run)
		p.mu.Unlock()
	}
	return nil
}

func (p *Partition) insertSortedLocked(id uint32, run *runfile.Run) {
	i := sort.Search(len(p.fileIDs), func(i int) bool { return p.fileIDs[i] >= id })
	p.fileIDs = append(p.fileIDs, 0)
	copy(p.fileIDs[i+1:], p.fileIDs[i:])
	p.fileIDs[i] = id

	p.files = append(p.files, nil)
	copy(p.files[i+1:], p.files[i:])
	p.files[i] = run
}

// Files returns a snapshot of the partition's currently open run files,
// sorted by id ascending.
func (p *Partition) Files() []*runfile.Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*runfile.Run, len(p.files))
	copy(out, p.files)
	return out
}

// ExecuteQuery runs EqualRangeMany for keys (under cmp) against every file
// in the partition and returns, for each key, the concatenation of matches
// found across all files (a position's entries can be split across
// multiple runs until the next merge).
func (p *Partition) ExecuteQuery(keys []fpkey.Key, cmp func(a, b fpkey.Key) int) [][]runfile.Entry {
	files := p.Files()
	out := make([][]runfile.Entry, len(keys))
	for _, f := range files {
		results := f.EqualRangeMany(keys, cmp)
		for i, r := range results {
			out[i] = append(out[i], r...)
		}
	}
	return out
}

// MergeAll consolidates every run currently in the partition into a single
// new run (allocated the next id), atomically replacing the inputs: the
// new file is opened and inserted, then the old files are closed and their
// underlying run+index files unlinked.
func (p *Partition) MergeAll(progress extmerge.Progress) error {
	p.mu.Lock()
	if len(p.pending) != 0 {
		p.mu.Unlock()
		return fmt.Errorf("partition: MergeAll called with %d unresolved futures; call CollectFutureFiles first", len(p.pending))
	}
	oldFiles := append([]*runfile.Run(nil), p.files...)
	newID := p.nextIDLocked()
	p.mu.Unlock()

	if len(oldFiles) <= 1 {
		return nil
	}

	outPath := p.pathForID(newID)
	if err := extmerge.Merge(oldFiles, outPath, progress); err != nil {
		return fmt.Errorf("partition: merge all: %w", err)
	}

	merged, err := runfile.Open(outPath)
	if err != nil {
		return fmt.Errorf("partition: open merged run %s: %w", outPath, err)
	}

	p.mu.Lock()
	p.files = []*runfile.Run{merged}
	p.fileIDs = []uint32{newID}
	p.mu.Unlock()

	for _, f := range oldFiles {
		path := f.Path()
		f.Close()
		os.Remove(path)
		os.Remove(path + "_index")
	}
	return nil
}

// ReplicateMergeAll merges every run in the partition into outPath without
// modifying the partition itself, producing an external consolidated copy
// rather than compacting in place.
func (p *Partition) ReplicateMergeAll(outPath string, progress extmerge.Progress) error {
	files := p.Files()
	if len(files) == 0 {
		return runfile.WriteRun(outPath, nil)
	}
	return extmerge.Merge(files, outPath, progress)
}
