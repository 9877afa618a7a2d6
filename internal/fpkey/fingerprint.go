// Package fpkey implements the fingerprint-keyed identity of a chess
// position: a 128-bit fingerprint, the packed reverse move that produced
// it, and the (key, count, first-game-offset) record packing.
package fpkey

import (
	"github.com/spaolacci/murmur3"
)

// BoardPlacement is the packed piece-placement encoding a position is
// fingerprinted from, the same 26-byte packed position width the external
// move-generator library packs a GameState down to. Side to move is carried
// separately since it is folded into the fingerprint, not the placement.
type BoardPlacement [26]byte

// Fingerprint is the 128-bit hash of a position, stored as four big-endian
// lanes ordered most-significant to least-significant (lane 0 is the high
// 32 bits of the high 64 bits of the murmur3 digest).
type Fingerprint [4]uint32

// ComputeFingerprint hashes the board placement with murmur3's 128-bit
// variant and XORs the side-to-move bit into the low bit of the least
// significant lane.
func ComputeFingerprint(board BoardPlacement, blackToMove bool) Fingerprint {
	hi, lo := murmur3.Sum128(board[:])
	fp := Fingerprint{
		uint32(hi >> 32),
		uint32(hi),
		uint32(lo >> 32),
		uint32(lo),
	}
	if blackToMove {
		fp[3] ^= 1
	}
	return fp
}
