package runfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

func mustKey(t *testing.T, lane0 uint32, rest ...uint32) fpkey.Key {
	t.Helper()
	var k fpkey.Key
	k[0] = lane0
	for i, v := range rest {
		k[i+1] = v
	}
	return k
}

func buildSortedEntries(t *testing.T, n int) []Entry {
	t.Helper()
	entries := make([]Entry, n)
	for i := 0; i < n; i++ {
		entries[i] = Entry{
			Key:   mustKey(t, uint32(i*7919)), // sparse, monotone, mimics hash spread
			Value: fpkey.Unpack(fpkey.Pack(uint64(i+1), uint64(i), true)),
		}
	}
	return entries
}

func TestWriteRunOpenAndEqualRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	entries := buildSortedEntries(t, 5000)
	if err := WriteRun(path, entries); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	run, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer run.Close()

	if run.NumRecords() != len(entries) {
		t.Fatalf("NumRecords: got %d want %d", run.NumRecords(), len(entries))
	}

	for _, i := range []int{0, 1, 2500, 4999} {
		want := entries[i]
		got := run.EqualRange(want.Key, fpkey.CompareFull)
		if len(got) != 1 {
			t.Fatalf("EqualRange(%d): got %d entries, want 1", i, len(got))
		}
		if got[0].Key != want.Key {
			t.Fatalf("EqualRange(%d): key mismatch got %v want %v", i, got[0].Key, want.Key)
		}
		if got[0].Value.Count != want.Value.Count {
			t.Fatalf("EqualRange(%d): count mismatch got %d want %d", i, got[0].Value.Count, want.Value.Count)
		}
	}
}

func TestEqualRangeMissingKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	entries := buildSortedEntries(t, 100)
	if err := WriteRun(path, entries); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	run, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer run.Close()

	missing := mustKey(t, 1) // unlikely to collide with i*7919 for small i
	got := run.EqualRange(missing, fpkey.CompareFull)
	if len(got) != 0 {
		t.Fatalf("expected no match for missing key, got %d entries", len(got))
	}
}

func TestEqualRangeManyPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	entries := buildSortedEntries(t, 200)
	if err := WriteRun(path, entries); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	run, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer run.Close()

	targets := []fpkey.Key{entries[150].Key, entries[10].Key, entries[99].Key}
	results := run.EqualRangeMany(targets, fpkey.CompareFull)
	if len(results) != len(targets) {
		t.Fatalf("expected %d result groups, got %d", len(targets), len(results))
	}
	for i, target := range targets {
		if len(results[i]) != 1 || results[i][0].Key != target {
			t.Fatalf("result %d does not match target %v: %v", i, target, results[i])
		}
	}
}

func TestEqualRangeGroupSpanningAnchors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	// 5000 records get anchors every 1250 records plus one on the final
	// record, which falls inside the last 50-record without-reverse-move
	// group; the bracket's lower bound must stop before the group, not at
	// the anchor inside it.
	const groups, perGroup = 100, 50
	entries := make([]Entry, 0, groups*perGroup)
	for g := 0; g < groups; g++ {
		for m := 0; m < perGroup; m++ {
			var k fpkey.Key
			k[0] = uint32(g + 1)
			k[3] = uint32(m+1) << 5 // packed-reverse-move bits only
			entries = append(entries, Entry{Key: k, Value: fpkey.Unpack(fpkey.Pack(1, uint64(m), true))})
		}
	}
	if err := WriteRun(path, entries); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	run, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer run.Close()

	for _, g := range []int{0, 42, groups - 1} {
		var target fpkey.Key
		target[0] = uint32(g + 1)
		got := run.EqualRange(target, fpkey.CompareWithoutReverseMove)
		if len(got) != perGroup {
			t.Fatalf("group %d: got %d entries, want %d", g, len(got), perGroup)
		}
		if got[0].Key[3] != 1<<5 {
			t.Fatalf("group %d: leading record dropped, first lane3 %#x", g, got[0].Key[3])
		}
	}
}

func TestOpenRejectsCorruptRunLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	entries := buildSortedEntries(t, 10)
	if err := WriteRun(path, entries); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	// Truncate the run file to a non-multiple of RecordSize.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-1], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatalf("expected Open to reject truncated run file")
	}
}

func TestWriteRunRejectsUnsortedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	entries := []Entry{
		{Key: mustKey(t, 10), Value: fpkey.Unpack(fpkey.Pack(1, 0, true))},
		{Key: mustKey(t, 5), Value: fpkey.Unpack(fpkey.Pack(1, 1, true))},
	}
	if err := WriteRun(path, entries); err == nil {
		t.Fatalf("expected WriteRun to reject unsorted input")
	}
}

func TestEmptyRunOpensAndReturnsNoMatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run-0")

	if err := WriteRun(path, nil); err != nil {
		t.Fatalf("WriteRun(empty): %v", err)
	}
	run, err := Open(path)
	if err != nil {
		t.Fatalf("Open(empty): %v", err)
	}
	defer run.Close()

	if run.NumRecords() != 0 {
		t.Fatalf("expected 0 records, got %d", run.NumRecords())
	}
	if got := run.EqualRange(mustKey(t, 1), fpkey.CompareFull); len(got) != 0 {
		t.Fatalf("expected no matches on empty run, got %d", len(got))
	}
}
