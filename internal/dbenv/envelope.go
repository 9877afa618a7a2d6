// Package dbenv implements the database envelope: the on-disk directory
// layout, manifest validation, stats file, and the wiring that ties the
// header stores, partition, pipeline and query executor together into one
// open database handle.
package dbenv

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/extmerge"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/headerstore"
	"github.com/sarona-RD/chess-pos-db/internal/importer"
	"github.com/sarona-RD/chess-pos-db/internal/partition"
	"github.com/sarona-RD/chess-pos-db/internal/pipeline"
	"github.com/sarona-RD/chess-pos-db/internal/query"
)

// levelDirs names the header store subdirectory for each fpkey.Level.
var levelDirs = [numLevels]string{
	fpkey.LevelHuman:  "_human",
	fpkey.LevelEngine: "_engine",
	fpkey.LevelServer: "_server",
}

const dataDirName = "data"

// Config controls the pipeline topology an Envelope starts.
type Config struct {
	// BufferMemory is M, the pipeline buffer pool's total memory budget
	// in bytes.
	BufferMemory int64
	// NumImporters is the number of concurrent importer blocks this
	// envelope's pipeline must serve buffers to (1 for the sequential
	// pass, numBlocks for the parallel pass). The pool is sized so every
	// importer can hold one buffer per result at once.
	NumImporters int
	// SortWorkers is K, the pipeline's sort worker count.
	SortWorkers int
	Log         zerolog.Logger
}

// numResults is len(allResults): WhiteWin, BlackWin, Draw.
const numResults = 3

// pipelineConfig derives a pipeline.Config from cfg: the memory budget is
// split evenly across numResults x numImporters buffers plus a small
// cushion, so in-flight buffers don't starve the pool while a just-filled
// one is still sorting or writing.
func pipelineConfig(cfg Config) pipeline.Config {
	numImporters := cfg.NumImporters
	if numImporters < 1 {
		numImporters = 1
	}
	const nExtra = 2
	numBuffers := numResults*numImporters + nExtra

	entrySize := int64(16 + 8) // fpkey.Key (4 x uint32) + packed uint64 value
	bufferCapacity := 1
	if cfg.BufferMemory > 0 {
		if c := int(cfg.BufferMemory / (int64(numBuffers) * entrySize)); c > bufferCapacity {
			bufferCapacity = c
		}
	}

	sortWorkers := cfg.SortWorkers
	if sortWorkers < 1 {
		sortWorkers = 1
	}

	return pipeline.Config{
		NumBuffers:     numBuffers,
		BufferCapacity: bufferCapacity,
		SortWorkers:    sortWorkers,
	}
}

// Envelope is one open database: its manifest, stats, per-level header
// stores, single partition, and the pipeline feeding it. There is exactly
// one concrete format (db_beta), so no factory indirection sits in front
// of it.
type Envelope struct {
	dir      string
	manifest Manifest
	stats    statsTracker

	headers [numLevels]*headerstore.Store
	part    *partition.Partition
	pipe    *pipeline.Pipeline

	log zerolog.Logger
}

func dataDir(dir string) string { return dir + "/" + dataDirName }

// Create initializes a new, empty database at dir: writes the manifest
// atomically, then opens (creating) every per-level header store and the
// data partition.
func Create(dir string, cfg Config) (*Envelope, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: dbenv: mkdir %s: %v", dberr.ErrIOFault, dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: dbenv: read dir %s: %v", dberr.ErrIOFault, dir, err)
	}
	if len(entries) != 0 {
		return nil, fmt.Errorf("%w: dbenv: Create requires an empty directory, %s is not empty", dberr.ErrConfig, dir)
	}

	m := Manifest{FormatKey: FormatKey, LittleEndian: hostIsLittleEndian()}
	if err := writeManifestAtomic(dir, m); err != nil {
		return nil, err
	}

	return openEnvelope(dir, m, cfg)
}

// Open opens an existing database at dir, validating its manifest before
// opening header stores and the partition. A format key or endianness
// mismatch is a fatal ErrManifestMismatch and mutates nothing.
func Open(dir string, cfg Config) (*Envelope, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if err := validateManifest(m); err != nil {
		return nil, err
	}
	return openEnvelope(dir, m, cfg)
}

func openEnvelope(dir string, m Manifest, cfg Config) (*Envelope, error) {
	stats, err := readStats(dir)
	if err != nil {
		return nil, err
	}

	e := &Envelope{dir: dir, manifest: m, log: cfg.Log}
	e.stats.s = stats

	for lvl := fpkey.Level(0); int(lvl) < numLevels; lvl++ {
		store, err := headerstore.Open(dir + "/" + levelDirs[lvl])
		if err != nil {
			e.closePartial(int(lvl))
			return nil, fmt.Errorf("dbenv: open header store for level %v: %w", lvl, err)
		}
		e.headers[lvl] = store
	}

	part, err := partition.Open(dataDir(dir))
	if err != nil {
		e.closePartial(numLevels)
		return nil, fmt.Errorf("dbenv: open partition: %w", err)
	}
	e.part = part

	e.pipe = pipeline.New(pipelineConfig(cfg), cfg.Log)
	return e, nil
}

func (e *Envelope) closePartial(numHeadersOpened int) {
	for i := 0; i < numHeadersOpened; i++ {
		if e.headers[i] != nil {
			e.headers[i].Close()
		}
	}
	if e.part != nil {
		e.part.Close()
	}
}

// Importer returns an import orchestrator for level, wired to this
// envelope's shared pipeline, partition and that level's header store.
// Must not be called after Flush has retired the pipeline.
func (e *Envelope) Importer(level fpkey.Level, bufferEntries, minRating int) (*importer.Orchestrator, error) {
	if e.pipe == nil {
		return nil, fmt.Errorf("%w: dbenv: Importer called after Flush retired the pipeline", dberr.ErrInternal)
	}
	cfg := importer.Config{Level: level, BufferEntries: bufferEntries, MinRating: minRating}
	return importer.New(e.pipe, e.part, e.headers[level], cfg, e.log), nil
}

// RecordImport folds one import pass's stats into this envelope's running
// per-level totals; callers pass the importer.Stats their pass returned.
func (e *Envelope) RecordImport(level fpkey.Level, games, positions uint64) {
	e.stats.add(level, games, positions)
}

// Stats returns a snapshot of the per-level (games, positions) counters.
func (e *Envelope) Stats() Stats {
	return e.stats.snapshot()
}

// Query runs req against the envelope's partition and header stores.
func (e *Envelope) Query(req query.Request) (query.Response, error) {
	headers := make(map[fpkey.Level]*headerstore.Store, numLevels)
	for lvl := fpkey.Level(0); int(lvl) < numLevels; lvl++ {
		headers[lvl] = e.headers[lvl]
	}
	ex := query.New(e.part, headers)
	return ex.Execute(req)
}

// MergeAll consolidates the partition's runs in place.
func (e *Envelope) MergeAll(progress extmerge.Progress) error {
	return e.part.MergeAll(progress)
}

// ReplicateMergeAll merges the partition's runs into an external copy at
// outPath without modifying the envelope.
func (e *Envelope) ReplicateMergeAll(outPath string, progress extmerge.Progress) error {
	return e.part.ReplicateMergeAll(outPath, progress)
}

// Flush drains the pipeline, collects every pending future into the
// partition, and persists stats durably. After Flush returns, every
// scheduled write is durable and visible to subsequent opens. The pipeline
// is retired; Importer must not be called again on this Envelope afterward.
func (e *Envelope) Flush() error {
	if e.pipe != nil {
		e.pipe.WaitForCompletion()
		e.pipe = nil
	}
	if err := e.part.CollectFutureFiles(); err != nil {
		return fmt.Errorf("dbenv: flush: %w", err)
	}
	if err := writeStatsAtomic(e.dir, e.stats.snapshot()); err != nil {
		return err
	}
	return nil
}

// Close releases every open file handle (header stores, memory-mapped run
// files). Flush should be called first if there is unflushed import work.
func (e *Envelope) Close() error {
	var firstErr error
	for _, store := range e.headers {
		if store == nil {
			continue
		}
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.part != nil {
		if err := e.part.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear removes every run, header store and stats record, leaving the
// manifest and an empty data/ directory behind.
func (e *Envelope) Clear() error {
	for lvl := fpkey.Level(0); int(lvl) < numLevels; lvl++ {
		if err := e.headers[lvl].Close(); err != nil {
			return fmt.Errorf("dbenv: clear: close header store for level %v: %w", lvl, err)
		}
		levelDir := e.dir + "/" + levelDirs[lvl]
		if err := os.RemoveAll(levelDir); err != nil {
			return fmt.Errorf("%w: dbenv: clear: remove %s: %v", dberr.ErrIOFault, levelDir, err)
		}
		store, err := headerstore.Open(levelDir)
		if err != nil {
			return fmt.Errorf("dbenv: clear: recreate header store for level %v: %w", lvl, err)
		}
		e.headers[lvl] = store
	}

	if err := e.part.Close(); err != nil {
		return fmt.Errorf("dbenv: clear: close partition: %w", err)
	}
	if err := os.RemoveAll(dataDir(e.dir)); err != nil {
		return fmt.Errorf("%w: dbenv: clear: remove data dir: %v", dberr.ErrIOFault, err)
	}
	part, err := partition.Open(dataDir(e.dir))
	if err != nil {
		return fmt.Errorf("dbenv: clear: recreate partition: %w", err)
	}
	e.part = part

	e.stats = statsTracker{}
	return writeStatsAtomic(e.dir, e.stats.snapshot())
}

// Path returns the envelope's root directory.
func (e *Envelope) Path() string { return e.dir }

// Manifest returns the envelope's validated manifest.
func (e *Envelope) Manifest() Manifest { return e.manifest }
