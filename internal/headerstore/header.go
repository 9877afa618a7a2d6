// Package headerstore implements the per-game-level append-only game
// metadata store: a `header` blob of variable-length records and a
// companion `index` of u64 offsets assigning each game its dense id.
package headerstore

import (
	"encoding/binary"
	"fmt"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
)

const (
	maxShortString = 255
	maxTagPairs    = 255

	flagHasTags = uint8(1) << 0
)

// Date is the year/month/day a game was played, packed into the header
// record's 4-byte Date field.
type Date struct {
	Year  uint16
	Month uint8
	Day   uint8
}

// Tag is an additional (name, value) PGN tag pair carried past the fixed
// event/white/black fields, each length-prefixed to 255 bytes.
type Tag struct {
	Name  string
	Value string
}

// GameHeader is one game's metadata, the decoded form of a header blob
// record.
type GameHeader struct {
	Date      Date
	ECO       [2]byte
	PlyCount  uint16
	WhiteElo  uint16
	BlackElo  uint16
	Round     uint16
	Event     string
	White     string
	Black     string
	Tags      []Tag
}

func putShortString(dst []byte, s string) int {
	if len(s) > maxShortString {
		s = s[:maxShortString]
	}
	dst[0] = byte(len(s))
	copy(dst[1:], s)
	return 1 + len(s)
}

func getShortString(src []byte) (string, int, error) {
	if len(src) < 1 {
		return "", 0, fmt.Errorf("%w: header record truncated reading string length", dberr.ErrCorruptRun)
	}
	n := int(src[0])
	if len(src) < 1+n {
		return "", 0, fmt.Errorf("%w: header record truncated reading string body", dberr.ErrCorruptRun)
	}
	return string(src[1 : 1+n]), 1 + n, nil
}

// encodedSize returns the number of bytes Encode will write for h,
// excluding the leading u16 size field itself.
func (h GameHeader) encodedSize() int {
	n := 2 /* reserved */ + 4 /* date */ + 2 /* eco */ + 2 + 2 + 2 + 2 /* ply/welo/belo/round */ + 1 /* flags */
	n += 1 + len(clampString(h.Event))
	n += 1 + len(clampString(h.White))
	n += 1 + len(clampString(h.Black))
	if len(h.Tags) > 0 {
		n += 1 // tag count
		for _, t := range h.Tags {
			n += 1 + len(clampString(t.Name))
			n += 1 + len(clampString(t.Value))
		}
	}
	return n
}

func clampString(s string) string {
	if len(s) > maxShortString {
		return s[:maxShortString]
	}
	return s
}

// Encode appends h's wire representation (leading u16 total size, then the
// fixed fields, then the packed strings) to dst and returns the result.
func Encode(dst []byte, h GameHeader) []byte {
	size := h.encodedSize()
	rec := make([]byte, 2+size)
	binary.BigEndian.PutUint16(rec[0:2], uint16(size))

	body := rec[2:]
	binary.BigEndian.PutUint16(body[0:2], 0) // reserved
	body[2] = byte(h.Date.Year >> 8)
	body[3] = byte(h.Date.Year)
	body[4] = h.Date.Month
	body[5] = h.Date.Day
	body[6] = h.ECO[0]
	body[7] = h.ECO[1]
	binary.BigEndian.PutUint16(body[8:10], h.PlyCount)
	binary.BigEndian.PutUint16(body[10:12], h.WhiteElo)
	binary.BigEndian.PutUint16(body[12:14], h.BlackElo)
	binary.BigEndian.PutUint16(body[14:16], h.Round)

	flags := uint8(0)
	if len(h.Tags) > 0 {
		flags |= flagHasTags
	}
	body[16] = flags

	off := 17
	off += putShortString(body[off:], h.Event)
	off += putShortString(body[off:], h.White)
	off += putShortString(body[off:], h.Black)

	if len(h.Tags) > 0 {
		tagCount := len(h.Tags)
		if tagCount > maxTagPairs {
			tagCount = maxTagPairs
		}
		body[off] = byte(tagCount)
		off++
		for i := 0; i < tagCount; i++ {
			off += putShortString(body[off:], h.Tags[i].Name)
			off += putShortString(body[off:], h.Tags[i].Value)
		}
	}

	return append(dst, rec...)
}

// Decode parses one record (the bytes following the leading u16 size field,
// exactly `size` bytes long) into a GameHeader.
func Decode(body []byte) (GameHeader, error) {
	if len(body) < 17 {
		return GameHeader{}, fmt.Errorf("%w: header record shorter than fixed fields", dberr.ErrCorruptRun)
	}
	var h GameHeader
	h.Date = Date{
		Year:  uint16(body[2])<<8 | uint16(body[3]),
		Month: body[4],
		Day:   body[5],
	}
	h.ECO = [2]byte{body[6], body[7]}
	h.PlyCount = binary.BigEndian.Uint16(body[8:10])
	h.WhiteElo = binary.BigEndian.Uint16(body[10:12])
	h.BlackElo = binary.BigEndian.Uint16(body[12:14])
	h.Round = binary.BigEndian.Uint16(body[14:16])
	flags := body[16]

	off := 17
	var n int
	var err error
	if h.Event, n, err = getShortString(body[off:]); err != nil {
		return GameHeader{}, err
	}
	off += n
	if h.White, n, err = getShortString(body[off:]); err != nil {
		return GameHeader{}, err
	}
	off += n
	if h.Black, n, err = getShortString(body[off:]); err != nil {
		return GameHeader{}, err
	}
	off += n

	if flags&flagHasTags != 0 {
		if off >= len(body) {
			return GameHeader{}, fmt.Errorf("%w: header record missing tag count", dberr.ErrCorruptRun)
		}
		count := int(body[off])
		off++
		h.Tags = make([]Tag, 0, count)
		for i := 0; i < count; i++ {
			var name, value string
			if name, n, err = getShortString(body[off:]); err != nil {
				return GameHeader{}, err
			}
			off += n
			if value, n, err = getShortString(body[off:]); err != nil {
				return GameHeader{}, err
			}
			off += n
			h.Tags = append(h.Tags, Tag{Name: name, Value: value})
		}
	}

	return h, nil
}
