package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

func entryWithLane0(lane0 uint32, count uint64) runfile.Entry {
	var k fpkey.Key
	k[0] = lane0
	return runfile.Entry{Key: k, Value: fpkey.Unpack(fpkey.Pack(count, 0, true))}
}

func TestScheduleUnorderedWritesSortedCombinedRun(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{NumBuffers: 2, BufferCapacity: 16, SortWorkers: 2}, logx.NewSilentLogger())

	buf := p.GetEmptyBuffer()
	buf.Entries = append(buf.Entries,
		entryWithLane0(30, 1),
		entryWithLane0(10, 1),
		entryWithLane0(10, 2), // duplicate of the entry above, should combine
		entryWithLane0(20, 1),
	)

	path := filepath.Join(dir, "0")
	future := p.ScheduleUnordered(path, buf)

	gotPath, err := future.Wait()
	if err != nil {
		t.Fatalf("future.Wait: %v", err)
	}
	if gotPath != path {
		t.Fatalf("future path mismatch: got %s want %s", gotPath, path)
	}

	p.WaitForCompletion()

	run, err := runfile.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer run.Close()

	if run.NumRecords() != 3 {
		t.Fatalf("expected 3 combined records, got %d", run.NumRecords())
	}
	e0 := run.EntryAt(0)
	if e0.Key[0] != 10 || e0.Value.Count != 3 {
		t.Fatalf("expected combined entry (10, count=3) first, got %+v", e0)
	}
}

func TestGetEmptyBufferReturnsClearedBuffer(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{NumBuffers: 1, BufferCapacity: 4, SortWorkers: 1}, logx.NewSilentLogger())

	buf := p.GetEmptyBuffer()
	buf.Entries = append(buf.Entries, entryWithLane0(1, 1))
	future := p.ScheduleUnordered(filepath.Join(dir, "0"), buf)
	if _, err := future.Wait(); err != nil {
		t.Fatalf("future.Wait: %v", err)
	}

	buf2 := p.GetEmptyBuffer()
	if len(buf2.Entries) != 0 {
		t.Fatalf("expected recycled buffer to be empty, got %d entries", len(buf2.Entries))
	}

	p.WaitForCompletion()
}

func TestEmptyBufferProducesNoRunFile(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{NumBuffers: 1, BufferCapacity: 4, SortWorkers: 1}, logx.NewSilentLogger())

	buf := p.GetEmptyBuffer()
	path := filepath.Join(dir, "0")
	future := p.ScheduleUnordered(path, buf)
	if _, err := future.Wait(); err != nil {
		t.Fatalf("future.Wait: %v", err)
	}
	p.WaitForCompletion()

	if _, err := runfile.Open(path); err == nil {
		t.Fatalf("expected no run file to be written for an empty buffer")
	}
}
