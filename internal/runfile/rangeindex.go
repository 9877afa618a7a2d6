package runfile

import (
	"encoding/binary"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

// IndexRecordSize is the on-disk width of one sparse index anchor: a Key
// plus the uint64 record position (not byte offset) it anchors.
const IndexRecordSize = 24

// IndexEntry anchors a Key to the record position of its first occurrence
// in the run, letting interpolation search start from a narrow bracket
// instead of the whole file.
type IndexEntry struct {
	Key      fpkey.Key
	Position uint64
}

// indexGranularity returns the number of records between successive sparse
// index anchors: the n records are split into max(1, n/1024) equal spans,
// so runs of 1024 records or more get anchors 1024 to 2047 records apart,
// keeping the index under ~1KiB per MiB of 24-byte run records.
func indexGranularity(n int) int {
	spans := n / 1024
	if spans < 1 {
		spans = 1
	}
	g := (n + spans - 1) / spans
	if g < 1 {
		g = 1
	}
	return g
}

// BuildRangeIndex produces the sparse anchors for a sorted slice of
// entries. Anchors are placed every indexGranularity(len(entries)) records,
// always including position 0 and always including the final record so
// Bracket never has to special-case an unbounded upper end.
func BuildRangeIndex(entries []Entry) []IndexEntry {
	if len(entries) == 0 {
		return nil
	}
	step := indexGranularity(len(entries))
	var idx []IndexEntry
	for i := 0; i < len(entries); i += step {
		idx = append(idx, IndexEntry{Key: entries[i].Key, Position: uint64(i)})
	}
	last := uint64(len(entries) - 1)
	if idx[len(idx)-1].Position != last {
		idx = append(idx, IndexEntry{Key: entries[len(entries)-1].Key, Position: last})
	}
	return idx
}

// EncodeIndexEntry serializes e into dst (at least IndexRecordSize bytes).
func EncodeIndexEntry(dst []byte, e IndexEntry) {
	binary.BigEndian.PutUint32(dst[0:4], e.Key[0])
	binary.BigEndian.PutUint32(dst[4:8], e.Key[1])
	binary.BigEndian.PutUint32(dst[8:12], e.Key[2])
	binary.BigEndian.PutUint32(dst[12:16], e.Key[3])
	binary.BigEndian.PutUint64(dst[16:24], e.Position)
}

// DecodeIndexEntry parses one IndexRecordSize-byte slice into an IndexEntry.
func DecodeIndexEntry(src []byte) IndexEntry {
	var k fpkey.Key
	k[0] = binary.BigEndian.Uint32(src[0:4])
	k[1] = binary.BigEndian.Uint32(src[4:8])
	k[2] = binary.BigEndian.Uint32(src[8:12])
	k[3] = binary.BigEndian.Uint32(src[12:16])
	pos := binary.BigEndian.Uint64(src[16:24])
	return IndexEntry{Key: k, Position: pos}
}

// RangeIndex is the decoded, in-memory form of a run's sparse index,
// mapping a sought key to the [lo, hi] record-position bracket that must
// contain any equal-range match.
type RangeIndex struct {
	anchors []IndexEntry
	numRecs uint64
}

// NewRangeIndex wraps decoded anchors for bracketing queries against a run
// holding numRecs records total.
func NewRangeIndex(anchors []IndexEntry, numRecs uint64) RangeIndex {
	return RangeIndex{anchors: anchors, numRecs: numRecs}
}

// Bracket returns the inclusive [lo, hi] record-position range that must
// contain every record equal to key under cmp, narrowing the full
// [0, numRecs) run down to the span between the two anchors straddling key.
// It returns ok=false if the index is empty (an empty run).
func (ri RangeIndex) Bracket(key fpkey.Key, cmp func(a, b fpkey.Key) int) (lo, hi uint64, ok bool) {
	if len(ri.anchors) == 0 || ri.numRecs == 0 {
		return 0, 0, false
	}

	// Find the last anchor strictly less than key (lower bound) by binary
	// search over the sparse anchor slice itself, and the first anchor
	// greater than key (upper bound) by a linear scan of that slice. The
	// lower bound must be strict: a
	// group equal to key can span several anchors, and starting from an
	// equal anchor would drop the group's leading records.
	lowIdx := 0
	highIdx := len(ri.anchors) - 1
	lo = ri.anchors[0].Position
	for lowIdx <= highIdx {
		mid := (lowIdx + highIdx) / 2
		if cmp(ri.anchors[mid].Key, key) < 0 {
			lo = ri.anchors[mid].Position
			lowIdx = mid + 1
		} else {
			highIdx = mid - 1
		}
	}

	hi = ri.numRecs - 1
	for i := 0; i < len(ri.anchors); i++ {
		if cmp(ri.anchors[i].Key, key) > 0 {
			hi = ri.anchors[i].Position
			break
		}
	}

	return lo, hi, true
}
