package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sarona-RD/chess-pos-db/internal/chessext"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/headerstore"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
	"github.com/sarona-RD/chess-pos-db/internal/partition"
	"github.com/sarona-RD/chess-pos-db/internal/pipeline"
)

type fakePosition struct {
	board fpkey.BoardPlacement
}

func (p fakePosition) Pack() (fpkey.BoardPlacement, bool) { return p.board, false }

func (p fakePosition) LegalMoves() ([]chessext.LegalMove, error) { return nil, nil }

// fakeIterator emits the initial position first (with no reverse move),
// then one position per ply, matching the PositionIterator contract.
type fakeIterator struct {
	plies int
	next  int
	seed  byte
}

func (it *fakeIterator) Next() (chessext.Position, fpkey.ReverseMove, bool, error) {
	if it.next > it.plies {
		return nil, fpkey.ReverseMove{}, false, nil
	}
	var b fpkey.BoardPlacement
	b[0] = it.seed
	b[1] = byte(it.next)
	rm := fpkey.NoReverseMove
	if it.next > 0 {
		rm = fpkey.ReverseMove{FromSquare: it.next % 64, ToSquare: (it.next + 8) % 64, MovedPiece: fpkey.PiecePawn}
	}
	it.next++
	return fakePosition{board: b}, rm, true, nil
}

type fakeGame struct {
	meta  chessext.GameMetadata
	plies int
}

type fakeSource struct {
	games []fakeGame
	idx   int
}

func (s *fakeSource) Next() (chessext.GameMetadata, chessext.PositionIterator, bool, error) {
	if s.idx >= len(s.games) {
		return chessext.GameMetadata{}, nil, false, nil
	}
	g := s.games[s.idx]
	s.idx++
	return g.meta, &fakeIterator{plies: g.plies, seed: byte(s.idx)}, true, nil
}

func (s *fakeSource) Close() error { return nil }

func withResult(r fpkey.Result, plies int) fakeGame {
	return fakeGame{
		meta:  chessext.GameMetadata{HasResult: true, Result: r, PlyCount: uint16(plies)},
		plies: plies,
	}
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *partition.Partition, *headerstore.Store) {
	t.Helper()
	pipe := pipeline.New(pipeline.Config{NumBuffers: 8, BufferCapacity: 64, SortWorkers: 1}, logx.NewSilentLogger())
	t.Cleanup(pipe.WaitForCompletion)

	part, err := partition.Open(t.TempDir())
	if err != nil {
		t.Fatalf("partition.Open: %v", err)
	}
	t.Cleanup(func() { part.Close() })

	headers, err := headerstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("headerstore.Open: %v", err)
	}
	t.Cleanup(func() { headers.Close() })

	return New(pipe, part, headers, cfg, logx.NewSilentLogger()), part, headers
}

func TestImportSourceCountsGamesAndPositions(t *testing.T) {
	o, part, headers := newTestOrchestrator(t, Config{Level: fpkey.LevelHuman, BufferEntries: 64})

	src := &fakeSource{games: []fakeGame{
		withResult(fpkey.ResultWhiteWin, 5),
		withResult(fpkey.ResultWhiteWin, 7),
	}}

	b := newBuckets(o)
	stats, err := o.importSource(src, b, nil)
	if err != nil {
		t.Fatalf("importSource: %v", err)
	}
	if err := b.flushAll(nil); err != nil {
		t.Fatalf("flushAll: %v", err)
	}

	if stats.NumGames != 2 {
		t.Fatalf("NumGames: got %d want 2", stats.NumGames)
	}
	// Each game contributes its initial position plus one per ply.
	if stats.NumPositions != 14 {
		t.Fatalf("NumPositions: got %d want 14", stats.NumPositions)
	}
	if got := headers.NextGameID(); got != 2 {
		t.Fatalf("NextGameID: got %d want 2", got)
	}

	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}
	files := part.Files()
	if len(files) != 1 {
		t.Fatalf("expected one run file (one result bucket), got %d", len(files))
	}
	if got := files[0].NumRecords(); got != 14 {
		t.Fatalf("expected 14 distinct position records, got %d", got)
	}
	resolved, err := headers.Query([]uint32{0, 1})
	if err != nil {
		t.Fatalf("headers.Query: %v", err)
	}
	if resolved[0].PlyCount != 5 || resolved[1].PlyCount != 7 {
		t.Fatalf("ply counts: got (%d,%d) want (5,7)", resolved[0].PlyCount, resolved[1].PlyCount)
	}
}

func TestImportSourceSkipsUnknownResultGames(t *testing.T) {
	o, _, headers := newTestOrchestrator(t, Config{Level: fpkey.LevelHuman, BufferEntries: 64})

	src := &fakeSource{games: []fakeGame{
		withResult(fpkey.ResultDraw, 3),
		{meta: chessext.GameMetadata{HasResult: false}, plies: 10},
	}}

	b := newBuckets(o)
	stats, err := o.importSource(src, b, nil)
	if err != nil {
		t.Fatalf("importSource: %v", err)
	}
	if err := b.flushAll(nil); err != nil {
		t.Fatalf("flushAll: %v", err)
	}

	if stats.NumSkippedGames != 1 {
		t.Fatalf("NumSkippedGames: got %d want 1", stats.NumSkippedGames)
	}
	if stats.NumGames != 1 {
		t.Fatalf("NumGames: got %d want 1", stats.NumGames)
	}
	if stats.NumPositions != 4 {
		t.Fatalf("NumPositions: got %d want 4 (skipped game contributes none)", stats.NumPositions)
	}
	// The skipped game must also leave no header behind.
	if got := headers.NextGameID(); got != 1 {
		t.Fatalf("NextGameID: got %d want 1", got)
	}
}

func TestImportSourceMinRatingFilter(t *testing.T) {
	o, _, headers := newTestOrchestrator(t, Config{Level: fpkey.LevelHuman, BufferEntries: 64, MinRating: 2000})

	strong := withResult(fpkey.ResultWhiteWin, 2)
	strong.meta.WhiteElo, strong.meta.BlackElo = 2400, 2350
	weak := withResult(fpkey.ResultBlackWin, 2)
	weak.meta.WhiteElo, weak.meta.BlackElo = 2400, 1500

	b := newBuckets(o)
	stats, err := o.importSource(&fakeSource{games: []fakeGame{strong, weak}}, b, nil)
	if err != nil {
		t.Fatalf("importSource: %v", err)
	}
	if err := b.flushAll(nil); err != nil {
		t.Fatalf("flushAll: %v", err)
	}

	if stats.NumGames != 1 || stats.NumSkippedGames != 1 {
		t.Fatalf("stats: got games=%d skipped=%d, want 1/1", stats.NumGames, stats.NumSkippedGames)
	}
	if got := headers.NextGameID(); got != 1 {
		t.Fatalf("NextGameID: got %d want 1", got)
	}
}

func TestBucketFlushOnFull(t *testing.T) {
	o, part, _ := newTestOrchestrator(t, Config{Level: fpkey.LevelHuman, BufferEntries: 4})

	// The pipeline's 64-entry buffer capacity is what Full() checks; 102
	// positions must cross it and force at least one mid-pass flush.
	src := &fakeSource{games: []fakeGame{
		withResult(fpkey.ResultWhiteWin, 50),
		withResult(fpkey.ResultWhiteWin, 50),
	}}

	b := newBuckets(o)
	if _, err := o.importSource(src, b, nil); err != nil {
		t.Fatalf("importSource: %v", err)
	}
	if err := b.flushAll(nil); err != nil {
		t.Fatalf("flushAll: %v", err)
	}
	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}

	files := part.Files()
	if len(files) < 2 {
		t.Fatalf("expected the 102 positions to span multiple flushed runs, got %d", len(files))
	}
	total := 0
	for _, f := range files {
		total += f.NumRecords()
	}
	if total != 102 {
		t.Fatalf("expected 102 records across runs, got %d", total)
	}
}

func TestPartitionBySizeSplitsByBytes(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 4)
	for i := range paths {
		paths[i] = filepath.Join(dir, "f"+string(rune('0'+i))+".pgn")
		if err := os.WriteFile(paths[i], make([]byte, 1000), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	blocks, err := partitionBySize(paths, 2)
	if err != nil {
		t.Fatalf("partitionBySize: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	seen := 0
	for _, blk := range blocks {
		seen += len(blk.paths)
	}
	if seen != len(paths) {
		t.Fatalf("blocks cover %d paths, want %d", seen, len(paths))
	}
}

func TestReserveBlockRangesAreDisjoint(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, Config{Level: fpkey.LevelHuman, BufferEntries: 16})

	blocks := []block{
		{totalBytes: 10_000},
		{totalBytes: 10_000},
	}
	allocators, err := o.reserveBlockRanges(blocks)
	if err != nil {
		t.Fatalf("reserveBlockRanges: %v", err)
	}

	seen := make(map[uint32]bool)
	for _, alloc := range allocators {
		for _, result := range allResults {
			for {
				id, err := alloc.next(result)
				if err != nil {
					break
				}
				if seen[id] {
					t.Fatalf("id %d handed out twice", id)
				}
				seen[id] = true
			}
		}
	}
	if len(seen) == 0 {
		t.Fatalf("expected some reserved ids")
	}
}
