package extmerge

import (
	"path/filepath"
	"testing"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

func keyLane0(v uint32) fpkey.Key {
	var k fpkey.Key
	k[0] = v
	return k
}

func writeTestRun(t *testing.T, path string, entries []runfile.Entry) *runfile.Run {
	t.Helper()
	if err := runfile.WriteRun(path, entries); err != nil {
		t.Fatalf("WriteRun(%s): %v", path, err)
	}
	r, err := runfile.Open(path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestMergeCombinesDuplicateKeysAcrossRuns(t *testing.T) {
	dir := t.TempDir()

	runA := writeTestRun(t, filepath.Join(dir, "a"), []runfile.Entry{
		{Key: keyLane0(10), Value: fpkey.Unpack(fpkey.Pack(2, 5, true))},
		{Key: keyLane0(30), Value: fpkey.Unpack(fpkey.Pack(1, 100, true))},
	})
	runB := writeTestRun(t, filepath.Join(dir, "b"), []runfile.Entry{
		{Key: keyLane0(10), Value: fpkey.Unpack(fpkey.Pack(3, 1, true))},
		{Key: keyLane0(20), Value: fpkey.Unpack(fpkey.Pack(1, 50, true))},
	})

	outPath := filepath.Join(dir, "merged")
	var lastDone, lastTotal int64
	err := Merge([]*runfile.Run{runA, runB}, outPath, func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if lastDone != lastTotal {
		t.Fatalf("expected final progress done==total, got %d/%d", lastDone, lastTotal)
	}

	merged, err := runfile.Open(outPath)
	if err != nil {
		t.Fatalf("Open(merged): %v", err)
	}
	defer merged.Close()

	if merged.NumRecords() != 3 {
		t.Fatalf("expected 3 merged records, got %d", merged.NumRecords())
	}

	e10 := merged.EntryAt(0)
	if e10.Key[0] != 10 || e10.Value.Count != 5 || e10.Value.GameOffset != 1 {
		t.Fatalf("expected combined entry for key 10 with count=5, min offset=1, got %+v", e10)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	dir := t.TempDir()

	runA := writeTestRun(t, filepath.Join(dir, "a"), []runfile.Entry{
		{Key: keyLane0(5), Value: fpkey.Unpack(fpkey.Pack(1, 9, true))},
	})
	runB := writeTestRun(t, filepath.Join(dir, "b"), []runfile.Entry{
		{Key: keyLane0(5), Value: fpkey.Unpack(fpkey.Pack(4, 2, true))},
	})

	outAB := filepath.Join(dir, "ab")
	if err := Merge([]*runfile.Run{runA, runB}, outAB, nil); err != nil {
		t.Fatalf("Merge(A,B): %v", err)
	}
	outBA := filepath.Join(dir, "ba")
	if err := Merge([]*runfile.Run{runB, runA}, outBA, nil); err != nil {
		t.Fatalf("Merge(B,A): %v", err)
	}

	ab, err := runfile.Open(outAB)
	if err != nil {
		t.Fatalf("Open(ab): %v", err)
	}
	defer ab.Close()
	ba, err := runfile.Open(outBA)
	if err != nil {
		t.Fatalf("Open(ba): %v", err)
	}
	defer ba.Close()

	eAB, eBA := ab.EntryAt(0), ba.EntryAt(0)
	if eAB.Value.Count != eBA.Value.Count || eAB.Value.GameOffset != eBA.Value.GameOffset {
		t.Fatalf("merge order affected result: AB=%+v BA=%+v", eAB.Value, eBA.Value)
	}
}

func TestMergeSingleRunPassesThrough(t *testing.T) {
	dir := t.TempDir()
	runA := writeTestRun(t, filepath.Join(dir, "a"), []runfile.Entry{
		{Key: keyLane0(1), Value: fpkey.Unpack(fpkey.Pack(1, 1, true))},
		{Key: keyLane0(2), Value: fpkey.Unpack(fpkey.Pack(1, 2, true))},
	})

	outPath := filepath.Join(dir, "out")
	if err := Merge([]*runfile.Run{runA}, outPath, nil); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	out, err := runfile.Open(outPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer out.Close()
	if out.NumRecords() != 2 {
		t.Fatalf("expected 2 records passed through, got %d", out.NumRecords())
	}
}
