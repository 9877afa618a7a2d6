package fpkey

// PackedReverseMove is the 27-bit encoding of the move that produced a
// position, used to distinguish transpositions that reach the same piece
// placement by different paths.
//
// Bit layout (bit 0 = LSB), 27 bits total:
//
//	bits 0-5:    from square (0-63)
//	bits 6-11:   to square (0-63)
//	bits 12-14:  moved piece kind (0=none, 1=P, 2=N, 3=B, 4=R, 5=Q, 6=K)
//	bits 15-17:  captured piece kind (same encoding, 0=none)
//	bits 18-20:  promotion piece (0=none, 1=Q, 2=R, 3=B, 4=N)
//	bits 21-22:  castling (0=none, 1=kingside, 2=queenside)
//	bit  23:     en passant capture
//	bits 24-26:  reserved, always 0
type PackedReverseMove uint32

const (
	rmFromMask     = 0x3F
	rmToShift      = 6
	rmToMask       = 0x3F << rmToShift
	rmMovedShift   = 12
	rmMovedMask    = 0x7 << rmMovedShift
	rmCapturedShift = 15
	rmCapturedMask  = 0x7 << rmCapturedShift
	rmPromoShift   = 18
	rmPromoMask    = 0x7 << rmPromoShift
	rmCastleShift  = 21
	rmCastleMask   = 0x3 << rmCastleShift
	rmEPShift      = 23
	rmEPMask       = 0x1 << rmEPShift

	// NumReverseMoveBits is the width of PackedReverseMove within Key's
	// least significant lane.
	NumReverseMoveBits = 27
	reverseMoveBitMask = (1 << NumReverseMoveBits) - 1
)

// Piece kinds, shared by moved/captured piece fields.
const (
	PieceNone PieceKind = iota
	PiecePawn
	PieceKnight
	PieceBishop
	PieceRook
	PieceQueen
	PieceKing
)

// PieceKind identifies a chess piece type irrespective of color.
type PieceKind uint8

// Promotion piece encoding for PackedReverseMove; distinct from PieceKind
// because promotions can never be to a pawn or king.
const (
	PromoNone PromoKind = iota
	PromoQueen
	PromoRook
	PromoBishop
	PromoKnight
)

// PromoKind identifies the piece a pawn promoted to.
type PromoKind uint8

// Castling side encoding for PackedReverseMove.
const (
	CastleNone CastleSide = iota
	CastleKingside
	CastleQueenside
)

// CastleSide identifies which rook participated in a castling move.
type CastleSide uint8

// ReverseMove describes the move that produced a position, in the form
// needed to pack it into a Key.
type ReverseMove struct {
	FromSquare, ToSquare int
	MovedPiece           PieceKind
	CapturedPiece        PieceKind
	Promotion            PromoKind
	Castle                CastleSide
	EnPassant             bool
}

// NoReverseMove is the zero-value reverse move used for root positions that
// were reached by no recorded move (e.g. the starting position, or a FEN
// root supplied without a SAN suffix).
var NoReverseMove = ReverseMove{}

// Pack encodes a ReverseMove into its 27-bit representation.
func (m ReverseMove) Pack() PackedReverseMove {
	var v uint32
	v |= uint32(m.FromSquare) & rmFromMask
	v |= (uint32(m.ToSquare) & 0x3F) << rmToShift
	v |= (uint32(m.MovedPiece) & 0x7) << rmMovedShift
	v |= (uint32(m.CapturedPiece) & 0x7) << rmCapturedShift
	v |= (uint32(m.Promotion) & 0x7) << rmPromoShift
	v |= (uint32(m.Castle) & 0x3) << rmCastleShift
	if m.EnPassant {
		v |= rmEPMask
	}
	return PackedReverseMove(v & reverseMoveBitMask)
}

// Unpack decodes a PackedReverseMove back into its fields.
func (p PackedReverseMove) Unpack() ReverseMove {
	v := uint32(p)
	return ReverseMove{
		FromSquare:    int(v & rmFromMask),
		ToSquare:      int((v & rmToMask) >> rmToShift),
		MovedPiece:    PieceKind((v & rmMovedMask) >> rmMovedShift),
		CapturedPiece: PieceKind((v & rmCapturedMask) >> rmCapturedShift),
		Promotion:     PromoKind((v & rmPromoMask) >> rmPromoShift),
		Castle:        CastleSide((v & rmCastleMask) >> rmCastleShift),
		EnPassant:     v&rmEPMask != 0,
	}
}
