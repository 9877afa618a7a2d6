package partition

import (
	"os"
	"testing"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
	"github.com/sarona-RD/chess-pos-db/internal/pipeline"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

func keyLane0(v uint32) fpkey.Key {
	var k fpkey.Key
	k[0] = v
	return k
}

func testEntry(lane0 uint32, count uint64) runfile.Entry {
	return runfile.Entry{Key: keyLane0(lane0), Value: fpkey.Unpack(fpkey.Pack(count, 0, true))}
}

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New(pipeline.Config{NumBuffers: 4, BufferCapacity: 64, SortWorkers: 2}, logx.NewSilentLogger())
	t.Cleanup(p.WaitForCompletion)
	return p
}

func TestStoreUnorderedAllocatesDenseIDsAndCollects(t *testing.T) {
	dir := t.TempDir()
	part, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer part.Close()

	pipe := newTestPipeline(t)

	for i := 0; i < 3; i++ {
		buf := pipe.GetEmptyBuffer()
		buf.Entries = append(buf.Entries, testEntry(uint32(i*10), 1))
		id := part.StoreUnordered(pipe, buf, nil)
		if id != uint32(i) {
			t.Fatalf("StoreUnordered(%d): got id %d, want %d", i, id, i)
		}
	}

	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}
	if got := len(part.Files()); got != 3 {
		t.Fatalf("expected 3 files after collect, got %d", got)
	}
	if got := part.NextID(); got != 3 {
		t.Fatalf("NextID after collect: got %d want 3", got)
	}
}

func TestOpenDiscoversExistingRunsSortedByID(t *testing.T) {
	dir := t.TempDir()

	part, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pipe := newTestPipeline(t)
	for i := 0; i < 4; i++ {
		buf := pipe.GetEmptyBuffer()
		buf.Entries = append(buf.Entries, testEntry(uint32(i), 1))
		part.StoreUnordered(pipe, buf, nil)
	}
	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}
	part.Close()

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	files := reopened.Files()
	if len(files) != 4 {
		t.Fatalf("expected 4 discovered files, got %d", len(files))
	}
}

func TestExecuteQueryFindsEntriesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	part, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer part.Close()

	pipe := newTestPipeline(t)
	buf1 := pipe.GetEmptyBuffer()
	buf1.Entries = append(buf1.Entries, testEntry(5, 1))
	part.StoreUnordered(pipe, buf1, nil)

	buf2 := pipe.GetEmptyBuffer()
	buf2.Entries = append(buf2.Entries, testEntry(5, 2), testEntry(9, 1))
	part.StoreUnordered(pipe, buf2, nil)

	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}

	results := part.ExecuteQuery([]fpkey.Key{keyLane0(5), keyLane0(9), keyLane0(999)}, fpkey.CompareFull)
	if len(results) != 3 {
		t.Fatalf("expected 3 result groups, got %d", len(results))
	}
	if len(results[0]) != 2 {
		t.Fatalf("expected key 5 to match in both files, got %d matches", len(results[0]))
	}
	if len(results[1]) != 1 {
		t.Fatalf("expected key 9 to match once, got %d matches", len(results[1]))
	}
	if len(results[2]) != 0 {
		t.Fatalf("expected key 999 to match nothing, got %d matches", len(results[2]))
	}
}

func TestReserveIDRangeKeepsDynamicAllocationClear(t *testing.T) {
	dir := t.TempDir()
	part, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer part.Close()

	if start := part.ReserveIDRange(10); start != 0 {
		t.Fatalf("ReserveIDRange: got start %d, want 0", start)
	}
	if got := part.NextID(); got != 10 {
		t.Fatalf("NextID after reservation: got %d want 10", got)
	}

	pipe := newTestPipeline(t)
	buf := pipe.GetEmptyBuffer()
	buf.Entries = append(buf.Entries, testEntry(1, 1))
	if id := part.StoreUnordered(pipe, buf, nil); id != 10 {
		t.Fatalf("dynamic allocation landed inside the reserved range: got id %d, want 10", id)
	}
	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}
}

func TestOpenRemovesStrayStagingFiles(t *testing.T) {
	dir := t.TempDir()
	stray := dir + "/7.staging"
	if err := os.WriteFile(stray, []byte("partial"), 0o644); err != nil {
		t.Fatalf("seed stray staging file: %v", err)
	}
	tmp := dir + "/3.tmp"
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatalf("seed stray tmp file: %v", err)
	}

	part, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer part.Close()

	if len(part.Files()) != 0 {
		t.Fatalf("expected no discovered runs, got %d", len(part.Files()))
	}
	for _, path := range []string{stray, tmp} {
		if _, err := os.Stat(path); err == nil {
			t.Fatalf("expected %s to be removed on open", path)
		}
	}
}

func TestMergeAllConsolidatesFiles(t *testing.T) {
	dir := t.TempDir()
	part, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer part.Close()

	pipe := newTestPipeline(t)
	for i := 0; i < 3; i++ {
		buf := pipe.GetEmptyBuffer()
		buf.Entries = append(buf.Entries, testEntry(7, 1))
		part.StoreUnordered(pipe, buf, nil)
	}
	if err := part.CollectFutureFiles(); err != nil {
		t.Fatalf("CollectFutureFiles: %v", err)
	}

	if err := part.MergeAll(nil); err != nil {
		t.Fatalf("MergeAll: %v", err)
	}

	files := part.Files()
	if len(files) != 1 {
		t.Fatalf("expected 1 file after merge, got %d", len(files))
	}
	if files[0].NumRecords() != 1 {
		t.Fatalf("expected 1 combined record after merge, got %d", files[0].NumRecords())
	}
	if got := files[0].EntryAt(0).Value.Count; got != 3 {
		t.Fatalf("expected combined count 3, got %d", got)
	}
}
