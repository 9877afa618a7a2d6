package fpkey

import "fmt"

// Level identifies the class of player that produced a game. Two bits in
// the key are reserved for it, leaving room for a fourth level.
type Level uint8

const (
	LevelHuman Level = iota
	LevelEngine
	LevelServer
)

// String renders the level the way directory names and log fields expect.
func (l Level) String() string {
	switch l {
	case LevelHuman:
		return "human"
	case LevelEngine:
		return "engine"
	case LevelServer:
		return "server"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Result identifies the outcome of the game a position was played in.
// ResultNone is the reserved fourth value of the 2-bit field; it is never
// stored in a Key and queries must name the results they want explicitly.
type Result uint8

const (
	ResultWhiteWin Result = iota
	ResultBlackWin
	ResultDraw
	ResultNone
)

func (r Result) String() string {
	switch r {
	case ResultWhiteWin:
		return "white_win"
	case ResultBlackWin:
		return "black_win"
	case ResultDraw:
		return "draw"
	case ResultNone:
		return "none"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}

// Bit layout of Key's least significant lane (lane 3). The fields occupy
// bits 1-31; bit 0 stays the side-to-move bit ComputeFingerprint wrote.
const (
	keyReverseMoveShift = 5
	keyLevelShift       = 3
	keyResultShift      = 1

	keyReverseMoveMask = uint32(reverseMoveBitMask) << keyReverseMoveShift
	keyLevelMask       = uint32(0x3) << keyLevelShift
	keyResultMask       = uint32(0x3) << keyResultShift
	keyLane3Mask       = keyReverseMoveMask | keyLevelMask | keyResultMask
)

// Key is the on-disk sort/search key for a stored position: a 128-bit
// fingerprint whose least significant lane has been overwritten with the
// packed reverse move, level and result.
type Key [4]uint32

// MakeKey builds a Key from a position fingerprint and the move/level/result
// that produced it. It overwrites (never XORs) the masked window of lane 3,
// so both comparator families see the same field positions.
func MakeKey(fp Fingerprint, rm PackedReverseMove, level Level, result Result) Key {
	k := Key(fp)
	lane3 := k[3] &^ keyLane3Mask
	lane3 |= (uint32(rm) << keyReverseMoveShift) & keyReverseMoveMask
	lane3 |= (uint32(level) << keyLevelShift) & keyLevelMask
	lane3 |= (uint32(result) << keyResultShift) & keyResultMask
	k[3] = lane3
	return k
}

// ReverseMove extracts the packed reverse move this key was built with.
func (k Key) ReverseMove() PackedReverseMove {
	return PackedReverseMove((k[3] & keyReverseMoveMask) >> keyReverseMoveShift)
}

// Level extracts the game level this key was built with.
func (k Key) Level() Level {
	return Level((k[3] & keyLevelMask) >> keyLevelShift)
}

// Result extracts the game result this key was built with.
func (k Key) Result() Result {
	return Result((k[3] & keyResultMask) >> keyResultShift)
}

// HashLanes returns the 96-bit fingerprint-only region (lanes 0-2) used to
// group transpositions regardless of the move that reached them. The
// side-to-move bit that ComputeFingerprint folds into lane 3 is not part of
// it, although CompareWithoutReverseMove does compare that bit.
func (k Key) HashLanes() [3]uint32 {
	return [3]uint32{k[0], k[1], k[2]}
}

// CompareFull is the canonical run ordering: primary order is
// CompareWithoutReverseMove (so every without-reverse-move group is
// contiguous in a sorted run), tie-broken by the
// packed reverse move bits the without-reverse-move comparator masks away.
// This is the ordering WriteRun sorts by and the range index is built over.
func CompareFull(a, b Key) int {
	if d := CompareWithoutReverseMove(a, b); d != 0 {
		return d
	}
	// Only the reverse-move bits can still differ at this point.
	if a[3] == b[3] {
		return 0
	}
	if a[3] < b[3] {
		return -1
	}
	return 1
}

// EqualFull reports whether a and b are identical in all four lanes,
// including the packed reverse move.
func EqualFull(a, b Key) bool {
	return a == b
}

// reverseMoveMaskedLane3 strips the reverse-move bits from lane 3, leaving
// level, result and the single side-to-move bit fingerprint() folds in.
func reverseMoveMaskedLane3(lane3 uint32) uint32 {
	return lane3 &^ keyReverseMoveMask
}

// CompareWithoutReverseMove orders two keys ignoring the packed reverse
// move, grouping all transpositions into the same position together.
func CompareWithoutReverseMove(a, b Key) int {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	al, bl := reverseMoveMaskedLane3(a[3]), reverseMoveMaskedLane3(b[3])
	if al != bl {
		if al < bl {
			return -1
		}
		return 1
	}
	return 0
}

// EqualWithoutReverseMove reports whether a and b identify the same
// position/level/result, ignoring the move that reached it.
func EqualWithoutReverseMove(a, b Key) bool {
	return CompareWithoutReverseMove(a, b) == 0
}
