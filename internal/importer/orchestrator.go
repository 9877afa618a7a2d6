// Package importer implements the import orchestrator: it reads games
// from a chessext.GameSource, computes a fingerprint/key for
// every played position, buckets entries by (level, result), and flushes
// full buckets into the async store pipeline. A parallel pass partitions
// the input file list into blocks, each with its own pre-reserved id range,
// so blocks can import concurrently without a shared id lock.
package importer

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sarona-RD/chess-pos-db/internal/chessext"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/headerstore"
	"github.com/sarona-RD/chess-pos-db/internal/partition"
	"github.com/sarona-RD/chess-pos-db/internal/pipeline"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

// allResults enumerates the three storable results (ResultNone is never
// written).
var allResults = [3]fpkey.Result{fpkey.ResultWhiteWin, fpkey.ResultBlackWin, fpkey.ResultDraw}

// Stats accumulates the counters an import pass returns.
type Stats struct {
	NumGames        uint64
	NumSkippedGames uint64
	NumPositions    uint64
}

func (s *Stats) add(o Stats) {
	s.NumGames += o.NumGames
	s.NumSkippedGames += o.NumSkippedGames
	s.NumPositions += o.NumPositions
}

// Config fixes the game level this orchestrator's games are imported under
// (one partition per database, so bucketing is by (level, result) only)
// and BufferEntries, the block-size estimator's denominator for the
// parallel pass's id pre-reservation. Buckets themselves flush when their
// pipeline buffer reaches the pipeline's buffer capacity, not at
// BufferEntries.
type Config struct {
	Level         fpkey.Level
	BufferEntries int

	// MinRating skips games where either side's Elo is below this floor
	// (0 disables the filter).
	MinRating int
}

// Orchestrator drives an import pass against one partition and header
// store, fed by a shared pipeline.
type Orchestrator struct {
	pipe    *pipeline.Pipeline
	part    *partition.Partition
	headers *headerstore.Store
	cfg     Config
	log     zerolog.Logger
}

// New returns an Orchestrator wired to the given pipeline, partition and
// header store.
func New(pipe *pipeline.Pipeline, part *partition.Partition, headers *headerstore.Store, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{pipe: pipe, part: part, headers: headers, cfg: cfg, log: log}
}

// buckets holds one pipeline.Buffer per storable result, handed out lazily
// and flushed either when full or at the end of a pass.
type buckets struct {
	o   *Orchestrator
	bys map[fpkey.Result]*pipeline.Buffer
}

func newBuckets(o *Orchestrator) *buckets {
	return &buckets{o: o, bys: make(map[fpkey.Result]*pipeline.Buffer)}
}

func (b *buckets) get(result fpkey.Result) *pipeline.Buffer {
	buf, ok := b.bys[result]
	if !ok {
		buf = b.o.pipe.GetEmptyBuffer()
		b.bys[result] = buf
	}
	return buf
}

// push appends entry to result's bucket, flushing (with an explicit id from
// ids, if provided) and replacing the bucket if it's now full.
func (b *buckets) push(result fpkey.Result, entry runfile.Entry, ids idAllocator) error {
	buf := b.get(result)
	buf.Entries = append(buf.Entries, entry)
	if buf.Full() {
		if err := b.flushOne(result, ids); err != nil {
			return err
		}
	}
	return nil
}

func (b *buckets) flushOne(result fpkey.Result, ids idAllocator) error {
	buf := b.bys[result]
	var explicitID *uint32
	if ids != nil {
		id, err := ids.next(result)
		switch {
		case err == nil:
			explicitID = &id
		case errors.Is(err, errIDRangeExhausted):
			// Compressed inputs can blow past the size-based estimate;
			// dynamic allocation sits above every reservation watermark,
			// so falling back here cannot collide with another block.
		default:
			return err
		}
	}
	b.o.part.StoreUnordered(b.o.pipe, buf, explicitID)
	delete(b.bys, result)
	return nil
}

// flushAll flushes every non-empty bucket and returns any still-empty ones
// to the pipeline's pool.
func (b *buckets) flushAll(ids idAllocator) error {
	for result, buf := range b.bys {
		if len(buf.Entries) == 0 {
			b.o.pipe.ReturnBuffer(buf)
			delete(b.bys, result)
			continue
		}
		if err := b.flushOne(result, ids); err != nil {
			return err
		}
	}
	return nil
}

// idAllocator hands out pre-reserved, monotonically increasing ids per
// result for one parallel import block.
type idAllocator interface {
	next(result fpkey.Result) (uint32, error)
}

// ImportFiles runs the sequential per-file pass across paths in order,
// sharing one set of (level, result) buckets across the whole list and
// flushing only when a bucket fills or the list is exhausted.
func (o *Orchestrator) ImportFiles(paths []string) (Stats, error) {
	var stats Stats
	b := newBuckets(o)
	for _, path := range paths {
		source, err := chessext.OpenPGNSource(path)
		if err != nil {
			return stats, fmt.Errorf("importer: open %s: %w", path, err)
		}
		fileStats, err := o.importSource(source, b, nil)
		source.Close()
		stats.add(fileStats)
		if err != nil {
			return stats, fmt.Errorf("importer: import %s: %w", path, err)
		}
	}
	if err := b.flushAll(nil); err != nil {
		return stats, fmt.Errorf("importer: final flush: %w", err)
	}
	return stats, nil
}

// ImportFile is ImportFiles for a single path.
func (o *Orchestrator) ImportFile(path string) (Stats, error) {
	return o.ImportFiles([]string{path})
}

// importSource drains source to exhaustion, pushing one Entry per played
// ply into the (level, result) bucket for the game's outcome.
func (o *Orchestrator) importSource(source chessext.GameSource, b *buckets, ids idAllocator) (Stats, error) {
	var stats Stats
	for {
		meta, positions, ok, err := source.Next()
		if err != nil {
			return stats, err
		}
		if !ok {
			return stats, nil
		}
		if !meta.HasResult {
			stats.NumSkippedGames++
			continue
		}
		if o.cfg.MinRating > 0 && (int(meta.WhiteElo) < o.cfg.MinRating || int(meta.BlackElo) < o.cfg.MinRating) {
			stats.NumSkippedGames++
			continue
		}

		gameID, err := o.headers.AddGame(gameHeaderFromMetadata(meta))
		if err != nil {
			return stats, fmt.Errorf("add game header: %w", err)
		}
		stats.NumGames++

		for {
			pos, rm, ok, err := positions.Next()
			if err != nil {
				return stats, err
			}
			if !ok {
				break
			}
			board, blackToMove := pos.Pack()
			fp := fpkey.ComputeFingerprint(board, blackToMove)
			key := fpkey.MakeKey(fp, rm.Pack(), o.cfg.Level, meta.Result)
			value := fpkey.Unpack(fpkey.Pack(1, uint64(gameID), true))

			if err := b.push(meta.Result, runfile.Entry{Key: key, Value: value}, ids); err != nil {
				return stats, err
			}
			stats.NumPositions++
		}
	}
}

func gameHeaderFromMetadata(meta chessext.GameMetadata) headerstore.GameHeader {
	tags := make([]headerstore.Tag, len(meta.ExtraTags))
	for i, t := range meta.ExtraTags {
		tags[i] = headerstore.Tag{Name: t.Name, Value: t.Value}
	}
	return headerstore.GameHeader{
		Date:     headerstore.Date{Year: uint16(meta.Year), Month: uint8(meta.Month), Day: uint8(meta.Day)},
		ECO:      meta.ECO,
		PlyCount: meta.PlyCount,
		WhiteElo: meta.WhiteElo,
		BlackElo: meta.BlackElo,
		Round:    meta.Round,
		Event:    meta.Event,
		White:    meta.White,
		Black:    meta.Black,
		Tags:     tags,
	}
}

// minPGNBytesPerMove is a conservative lower bound on the on-disk size of
// one PGN move (move number, space, short SAN, separators) used to upper
// bound how many buffer-fuls of entries a block of a given byte size could
// possibly produce.
const minPGNBytesPerMove = 2

// ImportFilesParallel partitions paths into numBlocks blocks by cumulative
// file size and imports each block concurrently, pre-reserving a
// non-overlapping id range per (block, result) so blocks never race over
// partition ids.
func (o *Orchestrator) ImportFilesParallel(paths []string, numBlocks int) (Stats, error) {
	blocks, err := partitionBySize(paths, numBlocks)
	if err != nil {
		return Stats{}, err
	}

	allocators, err := o.reserveBlockRanges(blocks)
	if err != nil {
		return Stats{}, err
	}

	statsPerBlock := make([]Stats, len(blocks))
	g := new(errgroup.Group)
	for i, blk := range blocks {
		i, blk := i, blk
		g.Go(func() error {
			b := newBuckets(o)
			var blockStats Stats
			for _, path := range blk.paths {
				source, err := chessext.OpenPGNSource(path)
				if err != nil {
					return fmt.Errorf("importer: open %s: %w", path, err)
				}
				fileStats, err := o.importSource(source, b, allocators[i])
				source.Close()
				blockStats.add(fileStats)
				if err != nil {
					return fmt.Errorf("importer: import %s: %w", path, err)
				}
			}
			if err := b.flushAll(allocators[i]); err != nil {
				return fmt.Errorf("importer: final flush for block %d: %w", i, err)
			}
			statsPerBlock[i] = blockStats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	var total Stats
	for _, s := range statsPerBlock {
		total.add(s)
	}
	return total, nil
}

type block struct {
	paths      []string
	totalBytes int64
}

// errIDRangeExhausted signals that a block outgrew its pre-reserved id
// range. The size-based estimate upper-bounds plain PGN, but a ".pgn.zst"
// input is measured compressed and can expand several-fold past it; the
// caller falls back to dynamic partition allocation for the overflow.
var errIDRangeExhausted = errors.New("importer: pre-reserved id range exhausted")

// reservedRange is a fixed-size per-result id allocator for one import
// block: ids are handed out sequentially starting at start, returning
// errIDRangeExhausted once the pre-reserved length runs out.
type reservedRange struct {
	nextID map[fpkey.Result]uint32
	end    map[fpkey.Result]uint32
}

func (r *reservedRange) next(result fpkey.Result) (uint32, error) {
	id := r.nextID[result]
	if id >= r.end[result] {
		return 0, fmt.Errorf("%w for result %v", errIDRangeExhausted, result)
	}
	r.nextID[result] = id + 1
	return id, nil
}

// reserveBlockRanges assigns each block a disjoint, contiguous id range per
// result, sized by the conservative
// ceil(blockBytes / (bufferEntries * minPGNBytesPerMove)) + 1 bound.
func (o *Orchestrator) reserveBlockRanges(blocks []block) ([]idAllocator, error) {
	if o.cfg.BufferEntries <= 0 {
		return nil, fmt.Errorf("importer: BufferEntries must be positive to pre-reserve parallel id ranges")
	}

	allocators := make([]idAllocator, len(blocks))
	for i, blk := range blocks {
		denom := float64(o.cfg.BufferEntries) * minPGNBytesPerMove
		rangeLen := uint32(math.Ceil(float64(blk.totalBytes)/denom)) + 1

		rr := &reservedRange{nextID: make(map[fpkey.Result]uint32), end: make(map[fpkey.Result]uint32)}
		for _, result := range allResults {
			start := o.part.ReserveIDRange(rangeLen)
			rr.nextID[result] = start
			rr.end[result] = start + rangeLen
		}
		allocators[i] = rr
	}
	return allocators, nil
}

// partitionBySize splits paths into up to numBlocks blocks of roughly equal
// cumulative file size.
func partitionBySize(paths []string, numBlocks int) ([]block, error) {
	if numBlocks < 1 {
		numBlocks = 1
	}
	sizes, total, err := statSizes(paths)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	if numBlocks > len(paths) {
		numBlocks = len(paths)
	}

	target := total / int64(numBlocks)
	if target == 0 {
		target = 1
	}

	var blocks []block
	var cur block
	for i, path := range paths {
		cur.paths = append(cur.paths, path)
		cur.totalBytes += sizes[i]
		lastBlock := len(blocks) == numBlocks-1
		if !lastBlock && cur.totalBytes >= target {
			blocks = append(blocks, cur)
			cur = block{}
		}
	}
	if len(cur.paths) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks, nil
}

func statSizes(paths []string) ([]int64, int64, error) {
	sizes := make([]int64, len(paths))
	var total int64
	for i, path := range paths {
		st, err := os.Stat(path)
		if err != nil {
			return nil, 0, fmt.Errorf("importer: stat %s: %w", path, err)
		}
		sizes[i] = st.Size()
		total += st.Size()
	}
	return sizes, total, nil
}
