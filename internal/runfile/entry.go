// Package runfile implements the external sorted run: an
// immutable, memory-mapped file of (Key, CountAndGameOffset) records sorted
// by fpkey.CompareFull, paired with a sparse range index that accelerates
// equal-range lookups via interpolation search.
package runfile

import (
	"encoding/binary"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

// RecordSize is the on-disk width of one Entry: a 16-byte Key (four
// big-endian uint32 lanes) followed by an 8-byte packed CountAndGameOffset.
const RecordSize = 24

// Entry is one decoded record of a run file.
type Entry struct {
	Key   fpkey.Key
	Value fpkey.CountAndGameOffset
}

// EncodeEntry serializes e into dst, which must be at least RecordSize
// bytes.
func EncodeEntry(dst []byte, e Entry) {
	binary.BigEndian.PutUint32(dst[0:4], e.Key[0])
	binary.BigEndian.PutUint32(dst[4:8], e.Key[1])
	binary.BigEndian.PutUint32(dst[8:12], e.Key[2])
	binary.BigEndian.PutUint32(dst[12:16], e.Key[3])
	binary.BigEndian.PutUint64(dst[16:24], e.Value.Pack())
}

// DecodeEntry parses one RecordSize-byte slice into an Entry.
func DecodeEntry(src []byte) Entry {
	var k fpkey.Key
	k[0] = binary.BigEndian.Uint32(src[0:4])
	k[1] = binary.BigEndian.Uint32(src[4:8])
	k[2] = binary.BigEndian.Uint32(src[8:12])
	k[3] = binary.BigEndian.Uint32(src[12:16])
	packed := binary.BigEndian.Uint64(src[16:24])
	return Entry{Key: k, Value: fpkey.Unpack(packed)}
}

// KeyAt decodes only the Key portion of the record at recordIndex within
// data, skipping the value, so the hot comparison path of interpolation
// search never decodes the packed count/offset.
func KeyAt(data []byte, recordIndex int) fpkey.Key {
	off := recordIndex * RecordSize
	var k fpkey.Key
	k[0] = binary.BigEndian.Uint32(data[off : off+4])
	k[1] = binary.BigEndian.Uint32(data[off+4 : off+8])
	k[2] = binary.BigEndian.Uint32(data[off+8 : off+12])
	k[3] = binary.BigEndian.Uint32(data[off+12 : off+16])
	return k
}
