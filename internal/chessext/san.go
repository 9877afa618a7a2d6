package chessext

import (
	"github.com/freeeve/pgn/v3"
)

// sanForMove renders mv (legal from pos) as SAN, for the query wire format's
// per-continuation move label: piece letter, disambiguation where another
// like piece reaches the same square, capture marker, check/mate suffix.
func sanForMove(pos *pgn.GameState, mv pgn.Mv) string {
	const flagCastle = 4
	if mv.Flags == flagCastle {
		if mv.To > mv.From {
			return "O-O"
		}
		return "O-O-O"
	}

	files := "abcdefgh"
	ranks := "12345678"

	fromFile, fromRank := int(mv.From)%8, int(mv.From)/8
	toFile, toRank := int(mv.To)%8, int(mv.To)/8

	piece := pos.PieceAt(mv.From)
	isPawn := pieceKindFromChar(piece) == pieceKindFromChar('P')
	isCapture := pos.PieceAt(mv.To) != 0 || (isPawn && mv.Flags == 2)

	var san string
	if isPawn {
		if isCapture {
			san = string(files[fromFile]) + "x" + string(files[toFile]) + string(ranks[toRank])
		} else {
			san = string(files[toFile]) + string(ranks[toRank])
		}
		switch mv.Promo {
		case pgn.PromoQueen:
			san += "=Q"
		case pgn.PromoRook:
			san += "=R"
		case pgn.PromoBishop:
			san += "=B"
		case pgn.PromoKnight:
			san += "=N"
		}
		return san + checkSuffix(pos, mv)
	}

	pieceChar := upperPieceLetter(piece)
	san = string(pieceChar)

	disambig := ""
	for _, other := range pgn.GenerateLegalMoves(pos) {
		if other.To != mv.To || other.From == mv.From {
			continue
		}
		if upperPieceLetter(pos.PieceAt(other.From)) != pieceChar {
			continue
		}
		otherFile, otherRank := int(other.From)%8, int(other.From)/8
		switch {
		case fromFile != otherFile:
			disambig = string(files[fromFile])
		case fromRank != otherRank:
			disambig = string(ranks[fromRank])
		default:
			disambig = string(files[fromFile]) + string(ranks[fromRank])
		}
		break
	}
	san += disambig

	if isCapture {
		san += "x"
	}
	san += string(files[toFile]) + string(ranks[toRank])

	return san + checkSuffix(pos, mv)
}

func upperPieceLetter(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 32
	}
	return c
}

// checkSuffix replays mv against a scratch copy of pos to determine whether
// it delivers check or checkmate.
func checkSuffix(pos *pgn.GameState, mv pgn.Mv) string {
	scratch := pos.Pack().Unpack()
	if scratch == nil {
		return ""
	}
	if err := pgn.ApplyMove(scratch, mv); err != nil {
		return ""
	}
	if !scratch.IsInCheck() {
		return ""
	}
	if len(pgn.GenerateLegalMoves(scratch)) == 0 {
		return "#"
	}
	return "+"
}
