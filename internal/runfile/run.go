package runfile

import (
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

// indexSuffix names the sibling sparse-index file next to a run file,
// matching the partition's skip-*_index-on-scan convention.
const indexSuffix = "_index"

// Run is one immutable, memory-mapped sorted run file plus its sparse range
// index, opened read-only for the lifetime of a query or merge pass.
type Run struct {
	path string

	runFile *os.File
	runData []byte // mmap of the run file

	idxFile *os.File
	idxData []byte // mmap of the _index file, empty if numRecords == 0

	numRecords int
	index      RangeIndex
}

// Open memory-maps path and its path+"_index" sibling read-only, validating
// both against the record-size and monotonicity invariants before handing
// back a usable Run.
func Open(path string) (*Run, error) {
	runFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("runfile: open %s: %w", path, err)
	}

	runData, err := mmapReadOnly(runFile)
	if err != nil {
		runFile.Close()
		return nil, fmt.Errorf("runfile: mmap %s: %w", path, err)
	}

	if len(runData)%RecordSize != 0 {
		munmap(runData)
		runFile.Close()
		return nil, fmt.Errorf("%w: %s: length %d not a multiple of record size %d", dberr.ErrCorruptRun, path, len(runData), RecordSize)
	}
	numRecords := len(runData) / RecordSize

	idxPath := path + indexSuffix
	idxFile, err := os.Open(idxPath)
	if err != nil {
		munmap(runData)
		runFile.Close()
		return nil, fmt.Errorf("runfile: open index %s: %w", idxPath, err)
	}

	var idxData []byte
	if st, statErr := idxFile.Stat(); statErr == nil && st.Size() > 0 {
		idxData, err = mmapReadOnly(idxFile)
		if err != nil {
			munmap(runData)
			runFile.Close()
			idxFile.Close()
			return nil, fmt.Errorf("runfile: mmap index %s: %w", idxPath, err)
		}
	}

	if len(idxData)%IndexRecordSize != 0 {
		munmap(runData)
		if idxData != nil {
			munmap(idxData)
		}
		runFile.Close()
		idxFile.Close()
		return nil, fmt.Errorf("%w: %s: index length %d not a multiple of record size %d", dberr.ErrCorruptRun, idxPath, len(idxData), IndexRecordSize)
	}

	anchors := make([]IndexEntry, len(idxData)/IndexRecordSize)
	for i := range anchors {
		anchors[i] = DecodeIndexEntry(idxData[i*IndexRecordSize : (i+1)*IndexRecordSize])
	}
	for i := 1; i < len(anchors); i++ {
		if anchors[i].Position <= anchors[i-1].Position {
			munmap(runData)
			if idxData != nil {
				munmap(idxData)
			}
			runFile.Close()
			idxFile.Close()
			return nil, fmt.Errorf("%w: %s: index positions not strictly increasing at %d", dberr.ErrCorruptRun, idxPath, i)
		}
	}

	r := &Run{
		path:       path,
		runFile:    runFile,
		runData:    runData,
		idxFile:    idxFile,
		idxData:    idxData,
		numRecords: numRecords,
		index:      NewRangeIndex(anchors, uint64(numRecords)),
	}
	return r, nil
}

// Close unmaps and closes the underlying files. Close is idempotent.
func (r *Run) Close() error {
	if r.runData != nil {
		munmap(r.runData)
		r.runData = nil
	}
	if r.idxData != nil {
		munmap(r.idxData)
		r.idxData = nil
	}
	var err error
	if r.runFile != nil {
		err = r.runFile.Close()
		r.runFile = nil
	}
	if r.idxFile != nil {
		if cerr := r.idxFile.Close(); err == nil {
			err = cerr
		}
		r.idxFile = nil
	}
	return err
}

// Path returns the run file's path on disk.
func (r *Run) Path() string { return r.path }

// NumRecords returns the number of Entry records in the run.
func (r *Run) NumRecords() int { return r.numRecords }

// EntryAt decodes the record at the given record index (not byte offset).
func (r *Run) EntryAt(i int) Entry {
	return DecodeEntry(r.runData[i*RecordSize : (i+1)*RecordSize])
}

// EqualRange returns every entry in the run whose key equals target under
// cmp, narrowing the search to the sparse index's bracket first and then
// running interpolation search (falling back to binary search when the key
// distribution makes interpolation degenerate) within that bracket.
func (r *Run) EqualRange(target fpkey.Key, cmp func(a, b fpkey.Key) int) []Entry {
	if r.numRecords == 0 {
		return nil
	}
	lo, hi, ok := r.index.Bracket(target, cmp)
	if !ok {
		lo, hi = 0, uint64(r.numRecords-1)
	}

	keyAt := func(i int) fpkey.Key { return KeyAt(r.runData, i) }

	first := interpolationLowerBound(keyAt, int(lo), int(hi), target, cmp)
	if first >= r.numRecords || cmp(keyAt(first), target) != 0 {
		return nil
	}
	last := first
	for last+1 <= int(hi) && last+1 < r.numRecords && cmp(keyAt(last+1), target) == 0 {
		last++
	}

	out := make([]Entry, 0, last-first+1)
	for i := first; i <= last; i++ {
		out = append(out, r.EntryAt(i))
	}
	return out
}

// EqualRangeMany batches EqualRange across several targets, preserving
// input order in the returned slice of slices.
func (r *Run) EqualRangeMany(targets []fpkey.Key, cmp func(a, b fpkey.Key) int) [][]Entry {
	out := make([][]Entry, len(targets))
	for i, t := range targets {
		out[i] = r.EqualRange(t, cmp)
	}
	return out
}

// interpolationLowerBound finds the first record position in [lo, hi] whose
// key is >= target, using interpolation search when the lanes admit a
// numeric estimate and falling back to plain binary search otherwise (the
// high lanes of a fingerprint behave like uniform random bits, but
// interpolation search degenerates gracefully to O(log n) when they don't).
func interpolationLowerBound(keyAt func(int) fpkey.Key, lo, hi int, target fpkey.Key, cmp func(a, b fpkey.Key) int) int {
	for lo < hi {
		mid := lo + (hi-lo)/2
		if estimate, ok := interpolateMid(keyAt, lo, hi, target); ok {
			mid = estimate
		}
		if cmp(keyAt(mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// interpolateMid estimates a probe position in [lo, hi) using the lead lane
// of the key as a proxy for a uniformly distributed value; ok=false sends
// the caller to plain bisection.
func interpolateMid(keyAt func(int) fpkey.Key, lo, hi int, target fpkey.Key) (int, bool) {
	if hi <= lo {
		return 0, false
	}
	loKey := keyAt(lo)[0]
	hiKey := keyAt(hi)[0]
	if hiKey <= loKey {
		return 0, false
	}
	span := float64(hiKey - loKey)
	frac := float64(target[0]-loKey) / span
	if frac < 0 || frac > 1 {
		return 0, false
	}
	est := lo + int(frac*float64(hi-lo))
	if est < lo {
		est = lo
	}
	if est >= hi {
		// A probe at hi would not narrow [lo, hi); let the caller bisect.
		return 0, false
	}
	return est, true
}

// WriteRun writes a sorted, already-combined slice of entries to path and
// its path+"_index" sibling, atomically (via staging files renamed into
// place), using indexGranularity for the sparse index.
func WriteRun(path string, entries []Entry) error {
	if !sort.SliceIsSorted(entries, func(i, j int) bool {
		return fpkey.CompareFull(entries[i].Key, entries[j].Key) < 0
	}) {
		return fmt.Errorf("%w: WriteRun given unsorted entries for %s", dberr.ErrInternal, path)
	}

	buf := make([]byte, len(entries)*RecordSize)
	for i, e := range entries {
		EncodeEntry(buf[i*RecordSize:(i+1)*RecordSize], e)
	}
	if err := writeFileAtomic(path, buf); err != nil {
		return fmt.Errorf("runfile: write run %s: %w", path, err)
	}

	anchors := BuildRangeIndex(entries)
	idxBuf := make([]byte, len(anchors)*IndexRecordSize)
	for i, a := range anchors {
		EncodeIndexEntry(idxBuf[i*IndexRecordSize:(i+1)*IndexRecordSize], a)
	}
	if err := writeFileAtomic(path+indexSuffix, idxBuf); err != nil {
		return fmt.Errorf("runfile: write index %s: %w", path+indexSuffix, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func mmapReadOnly(f *os.File) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, nil
	}
	return unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
}

func munmap(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Munmap(data)
}
