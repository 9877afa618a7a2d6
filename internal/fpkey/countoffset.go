package fpkey

// CountAndGameOffset packs an occurrence count and a reference to one game
// (by convention the first game a position was seen in) into a single
// uint64 record value:
//
//	bits  0-5   (6 bits):  N, the width in bits of the count field, N in [1,58]
//	bits  6..6+N:          count, saturating at (1<<N)-1
//	bits  6+N..64:         game offset, using the remaining 58-N bits
//
// N == 58 is the sentinel "offset unavailable" case: the count field claims
// every remaining bit and there is no room left to carry a game offset. A
// caller that needs the offset and sees N == 58 must treat it as unknown,
// never zero.
const (
	maxFieldWidth  = 58
	noOffsetWidth  = 58
	sizeFieldBits  = 6
	sizeFieldMask  = uint64(1)<<sizeFieldBits - 1
)

// CountAndGameOffset is the decoded form of the packed uint64 value.
type CountAndGameOffset struct {
	Count          uint64
	GameOffset     uint64
	OffsetAvailable bool
}

// bitWidth returns the number of bits needed to represent v (0 needs 0
// bits, but count fields are always allocated at least 1 bit).
func bitWidth(v uint64) uint {
	w := uint(0)
	for v > 0 {
		w++
		v >>= 1
	}
	return w
}

// Pack encodes a count and an optional game offset into the compact uint64
// representation. When the count alone (saturated) cannot coexist with the
// offset in 58 bits, N is driven to 58 and the offset is dropped rather
// than truncated silently.
func Pack(count, gameOffset uint64, offsetAvailable bool) uint64 {
	countWidth := bitWidth(count)
	if countWidth == 0 {
		countWidth = 1
	}

	if offsetAvailable {
		for n := countWidth; n <= maxFieldWidth-1; n++ {
			offsetWidth := maxFieldWidth - n
			if bitWidth(gameOffset) <= offsetWidth {
				return packRaw(n, count, gameOffset)
			}
		}
	}

	// Offset doesn't fit anywhere, or wasn't available: claim all 58 bits
	// for the count and saturate if even that isn't enough.
	n := uint(noOffsetWidth)
	maxCount := uint64(1)<<n - 1
	if count > maxCount {
		count = maxCount
	}
	return packRaw(n, count, 0)
}

func packRaw(n uint, count, gameOffset uint64) uint64 {
	v := uint64(n) & sizeFieldMask
	v |= (count & (uint64(1)<<n - 1)) << sizeFieldBits
	if n < noOffsetWidth {
		v |= gameOffset << (sizeFieldBits + n)
	}
	return v
}

// Unpack decodes a packed uint64 back into its count/offset parts.
func Unpack(packed uint64) CountAndGameOffset {
	n := uint(packed & sizeFieldMask)
	if n == 0 {
		n = 1
	}
	if n > maxFieldWidth {
		n = maxFieldWidth
	}
	count := (packed >> sizeFieldBits) & (uint64(1)<<n - 1)
	if n == noOffsetWidth {
		return CountAndGameOffset{Count: count, OffsetAvailable: false}
	}
	offset := packed >> (sizeFieldBits + n)
	return CountAndGameOffset{Count: count, GameOffset: offset, OffsetAvailable: true}
}

// Combine merges two records for the same key during sort/write or merge:
// counts add (saturating into the packed width), and the game offset kept
// is the minimum of the two available offsets, i.e. the first game a
// position was seen in.
func Combine(a, b CountAndGameOffset) CountAndGameOffset {
	sum := a.Count + b.Count
	if sum < a.Count { // overflow
		sum = ^uint64(0)
	}

	switch {
	case a.OffsetAvailable && b.OffsetAvailable:
		offset := a.GameOffset
		if b.GameOffset < offset {
			offset = b.GameOffset
		}
		return CountAndGameOffset{Count: sum, GameOffset: offset, OffsetAvailable: true}
	case a.OffsetAvailable:
		return CountAndGameOffset{Count: sum, GameOffset: a.GameOffset, OffsetAvailable: true}
	case b.OffsetAvailable:
		return CountAndGameOffset{Count: sum, GameOffset: b.GameOffset, OffsetAvailable: true}
	default:
		return CountAndGameOffset{Count: sum, OffsetAvailable: false}
	}
}

// Pack re-packs c (for example the result of Combine) via the package-level
// Pack, choosing the minimal N that fits both fields.
func (c CountAndGameOffset) Pack() uint64 {
	return Pack(c.Count, c.GameOffset, c.OffsetAvailable)
}
