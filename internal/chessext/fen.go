package chessext

import (
	"fmt"

	"github.com/freeeve/pgn/v3"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

// ParseFEN parses a FEN string into a root Position.
func ParseFEN(fen string) (Position, error) {
	pos, err := pgn.NewGame(fen)
	if err != nil {
		return nil, fmt.Errorf("chessext: parse fen %q: %w", fen, err)
	}
	return &pgnPosition{pos: pos}, nil
}

// ApplySAN parses san (legal from root) and returns the position reached
// plus the reverse move that would record it. Used by the query executor
// to resolve a FEN+SAN root into the position *after* the move.
func ApplySAN(root Position, san string) (Position, fpkey.ReverseMove, error) {
	rp, ok := root.(*pgnPosition)
	if !ok {
		return nil, fpkey.ReverseMove{}, fmt.Errorf("chessext: ApplySAN: root is not a PGN position")
	}

	mv, err := pgn.ParseSAN(rp.pos, san)
	if err != nil {
		return nil, fpkey.ReverseMove{}, fmt.Errorf("chessext: parse SAN %q: %w", san, err)
	}
	rm := reverseMoveFromMv(rp.pos, mv)

	childPos := rp.pos.Pack().Unpack()
	if err := pgn.ApplyMove(childPos, mv); err != nil {
		return nil, fpkey.ReverseMove{}, fmt.Errorf("chessext: apply SAN %q: %w", san, err)
	}

	return &pgnPosition{pos: childPos}, rm, nil
}
