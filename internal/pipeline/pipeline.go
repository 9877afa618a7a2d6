package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

// Future resolves once a scheduled buffer has been sorted, combined and
// written to its run file, yielding that run's path for runfile.Open. An
// empty buffer writes no file, so its path does not exist.
type Future struct {
	done chan struct{}
	path string
	err  error
}

// Wait blocks until the write stage has finished with this job, returning
// the final run path or the error that aborted it.
func (f *Future) Wait() (string, error) {
	<-f.done
	return f.path, f.err
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(path string, err error) {
	f.path = path
	f.err = err
	close(f.done)
}

type sortJob struct {
	path   string
	buf    *Buffer
	future *Future
}

// Pipeline is the bounded buffer pool plus sort/write worker topology.
// Buffers flow buffer_queue -> (importer fills it) -> sort_queue ->
// (sorted+combined) -> write_queue -> (written, run emitted) -> back to
// buffer_queue.
type Pipeline struct {
	log zerolog.Logger

	bufferQueue chan *Buffer
	sortQueue   chan sortJob
	writeQueue  chan sortJob

	sortWG sync.WaitGroup // sort workers; closes writeQueue once drained
	wg     sync.WaitGroup // writer only; WaitForCompletion blocks on this
}

// Config controls the pipeline's buffer pool sizing and worker count.
type Config struct {
	// NumBuffers is the number of pre-allocated buffers in the pool.
	NumBuffers int
	// BufferCapacity is the number of entries each buffer can hold before
	// the importer must flush it.
	BufferCapacity int
	// SortWorkers is K, the number of concurrent sort workers (K >= 1).
	SortWorkers int
}

// New starts the sort workers and the single writer goroutine and returns
// a Pipeline ready to accept ScheduleUnordered calls.
func New(cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.SortWorkers < 1 {
		cfg.SortWorkers = 1
	}

	p := &Pipeline{
		log:         log,
		bufferQueue: make(chan *Buffer, cfg.NumBuffers),
		sortQueue:   make(chan sortJob, cfg.NumBuffers),
		writeQueue:  make(chan sortJob, cfg.NumBuffers),
	}
	for i := 0; i < cfg.NumBuffers; i++ {
		p.bufferQueue <- newBuffer(cfg.BufferCapacity)
	}

	for i := 0; i < cfg.SortWorkers; i++ {
		p.sortWG.Add(1)
		go p.sortWorker()
	}
	go func() {
		p.sortWG.Wait()
		close(p.writeQueue)
	}()

	p.wg.Add(1)
	go p.writer()

	return p
}

// GetEmptyBuffer blocks until a buffer is available in the pool and
// returns it cleared for reuse.
func (p *Pipeline) GetEmptyBuffer() *Buffer {
	buf := <-p.bufferQueue
	buf.Reset()
	return buf
}

// ReturnBuffer gives back a buffer the caller drew via GetEmptyBuffer but
// never scheduled (e.g. an empty bucket at the end of an import pass),
// clearing it before it rejoins the pool.
func (p *Pipeline) ReturnBuffer(buf *Buffer) {
	buf.Reset()
	p.bufferQueue <- buf
}

// ScheduleUnordered hands a filled buffer off to the sort stage for path,
// returning a Future that resolves once the run file (and its sparse
// index) have been durably written.
func (p *Pipeline) ScheduleUnordered(path string, buf *Buffer) *Future {
	future := newFuture()
	p.sortQueue <- sortJob{path: path, buf: buf, future: future}
	return future
}

// WaitForCompletion closes the intake queues and blocks until every sort
// worker and the writer have drained and exited. The pipeline is not
// usable afterward.
func (p *Pipeline) WaitForCompletion() {
	close(p.sortQueue)
	p.wg.Wait()
}

func (p *Pipeline) sortWorker() {
	defer p.sortWG.Done()
	for job := range p.sortQueue {
		sortAndCombine(job.buf)
		p.writeQueue <- job
	}
}

// sortAndCombine stable-sorts a buffer by fpkey.CompareFull and folds
// adjacent records with equal full keys via fpkey.Combine.
func sortAndCombine(buf *Buffer) {
	entries := buf.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return fpkey.CompareFull(entries[i].Key, entries[j].Key) < 0
	})

	out := entries[:0]
	for _, e := range entries {
		if n := len(out); n > 0 && fpkey.EqualFull(out[n-1].Key, e.Key) {
			out[n-1].Value = fpkey.Combine(out[n-1].Value, e.Value)
			continue
		}
		out = append(out, e)
	}
	buf.Entries = out
}

func (p *Pipeline) writer() {
	defer p.wg.Done()

	for job := range p.writeQueue {
		err := writeBufferRun(job.path, job.buf)
		if err != nil {
			p.log.Error().Err(err).Str("path", job.path).Msg("pipeline: write stage failed")
		}
		job.future.resolve(job.path, err)

		job.buf.Reset()
		p.bufferQueue <- job.buf
	}
}

func writeBufferRun(path string, buf *Buffer) error {
	if len(buf.Entries) == 0 {
		return nil
	}
	if err := runfile.WriteRun(path, buf.Entries); err != nil {
		return fmt.Errorf("pipeline: write run %s: %w", path, err)
	}
	return nil
}
