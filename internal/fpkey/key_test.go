package fpkey

import "testing"

func sampleFingerprint() Fingerprint {
	var board BoardPlacement
	board[4] = 6
	board[20] = 6
	return ComputeFingerprint(board, false)
}

func TestMakeKeyRoundTripsFields(t *testing.T) {
	fp := sampleFingerprint()
	rm := ReverseMove{
		FromSquare:    12,
		ToSquare:      28,
		MovedPiece:    PiecePawn,
		CapturedPiece: PieceNone,
		Promotion:     PromoNone,
		Castle:        CastleNone,
		EnPassant:     false,
	}.Pack()

	k := MakeKey(fp, rm, LevelEngine, ResultBlackWin)

	if got := k.ReverseMove(); got != rm {
		t.Fatalf("reverse move round trip: got %#x want %#x", got, rm)
	}
	if got := k.Level(); got != LevelEngine {
		t.Fatalf("level round trip: got %v want %v", got, LevelEngine)
	}
	if got := k.Result(); got != ResultBlackWin {
		t.Fatalf("result round trip: got %v want %v", got, ResultBlackWin)
	}
}

func TestMakeKeyPreservesHashLanes(t *testing.T) {
	fp := sampleFingerprint()
	rm := ReverseMove{FromSquare: 1, ToSquare: 2}.Pack()

	k := MakeKey(fp, rm, LevelHuman, ResultDraw)
	lanes := k.HashLanes()
	if lanes != [3]uint32{fp[0], fp[1], fp[2]} {
		t.Fatalf("key overwrite touched lanes 0-2: got %v want %v", lanes, fp[:3])
	}
}

func TestCompareWithoutReverseMoveIgnoresMove(t *testing.T) {
	fp := sampleFingerprint()
	rm1 := ReverseMove{FromSquare: 1, ToSquare: 2}.Pack()
	rm2 := ReverseMove{FromSquare: 10, ToSquare: 20, MovedPiece: PieceKnight}.Pack()

	k1 := MakeKey(fp, rm1, LevelHuman, ResultWhiteWin)
	k2 := MakeKey(fp, rm2, LevelHuman, ResultWhiteWin)

	if CompareFull(k1, k2) == 0 {
		t.Fatalf("distinct reverse moves compared equal under CompareFull")
	}
	if !EqualWithoutReverseMove(k1, k2) {
		t.Fatalf("same position/level/result with different reverse move should be equal without it")
	}
}

func TestCompareWithoutReverseMoveDistinguishesLevelAndResult(t *testing.T) {
	fp := sampleFingerprint()
	rm := ReverseMove{}.Pack()

	base := MakeKey(fp, rm, LevelHuman, ResultDraw)
	diffLevel := MakeKey(fp, rm, LevelEngine, ResultDraw)
	diffResult := MakeKey(fp, rm, LevelHuman, ResultWhiteWin)

	if EqualWithoutReverseMove(base, diffLevel) {
		t.Fatalf("keys with different levels should not be equal")
	}
	if EqualWithoutReverseMove(base, diffResult) {
		t.Fatalf("keys with different results should not be equal")
	}
}

func TestCompareFullOrdersLexicographically(t *testing.T) {
	a := Key{1, 0, 0, 0}
	b := Key{2, 0, 0, 0}
	if CompareFull(a, b) >= 0 {
		t.Fatalf("expected a < b, got CompareFull=%d", CompareFull(a, b))
	}
	if CompareFull(b, a) <= 0 {
		t.Fatalf("expected b > a, got CompareFull=%d", CompareFull(b, a))
	}
	if CompareFull(a, a) != 0 {
		t.Fatalf("expected equal keys to compare 0")
	}
}

func TestReverseMovePackUnpackRoundTrip(t *testing.T) {
	cases := []ReverseMove{
		{FromSquare: 0, ToSquare: 0},
		{FromSquare: 63, ToSquare: 63, MovedPiece: PieceKing, CapturedPiece: PieceQueen, Promotion: PromoKnight, Castle: CastleQueenside, EnPassant: true},
		{FromSquare: 12, ToSquare: 28, MovedPiece: PiecePawn, EnPassant: true},
	}
	for _, rm := range cases {
		packed := rm.Pack()
		got := packed.Unpack()
		if got != rm {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, rm)
		}
		if packed > (1<<NumReverseMoveBits)-1 {
			t.Fatalf("packed reverse move exceeds %d bits: %#x", NumReverseMoveBits, packed)
		}
	}
}
