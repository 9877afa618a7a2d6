package chessext

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

// IsPGNFile reports whether name is a game file this source can read,
// including a ".pgn.zst" sibling. Decompression itself is handled inside
// pgn.Games, so compressed paths pass straight through to it.
func IsPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		base := name[:len(name)-len(ext)]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

// PGNSource adapts github.com/freeeve/pgn/v3 to GameSource.
type PGNSource struct {
	games  <-chan *pgn.Game
	stopFn func()
	errFn  func() error
}

// OpenPGNSource opens path, a ".pgn" or ".pgn.zst" game file, for streaming
// read.
func OpenPGNSource(path string) (*PGNSource, error) {
	parser := pgn.Games(path)
	return &PGNSource{games: parser.Games, stopFn: parser.Stop, errFn: parser.Err}, nil
}

// Close stops the underlying scan.
func (s *PGNSource) Close() error {
	s.stopFn()
	return s.errFn()
}

// Next pulls the next game off the parser's channel.
func (s *PGNSource) Next() (GameMetadata, PositionIterator, bool, error) {
	game, ok := <-s.games
	if !ok {
		if err := s.errFn(); err != nil {
			return GameMetadata{}, nil, false, fmt.Errorf("chessext: scan game: %w", err)
		}
		return GameMetadata{}, nil, false, nil
	}
	meta := metadataFromTags(game.Tags)
	meta.PlyCount = uint16(len(game.Moves))
	return meta, &pgnPositionIterator{game: game}, true, nil
}

func metadataFromTags(tags map[string]string) GameMetadata {
	var meta GameMetadata

	switch tags["Result"] {
	case "1-0":
		meta.HasResult, meta.Result = true, fpkey.ResultWhiteWin
	case "0-1":
		meta.HasResult, meta.Result = true, fpkey.ResultBlackWin
	case "1/2-1/2":
		meta.HasResult, meta.Result = true, fpkey.ResultDraw
	}

	if date := tags["Date"]; date != "" {
		parts := strings.Split(date, ".")
		if len(parts) == 3 {
			meta.Year, _ = strconv.Atoi(parts[0])
			meta.Month, _ = strconv.Atoi(parts[1])
			meta.Day, _ = strconv.Atoi(parts[2])
		}
	}
	if eco := tags["ECO"]; len(eco) >= 2 {
		meta.ECO = [2]byte{eco[0], eco[1]}
	}
	if round, err := strconv.Atoi(tags["Round"]); err == nil {
		meta.Round = uint16(round)
	}
	meta.WhiteElo = uint16(parseElo(tags["WhiteElo"]))
	meta.BlackElo = uint16(parseElo(tags["BlackElo"]))
	meta.Event = tags["Event"]
	meta.Site = tags["Site"]
	meta.White = tags["White"]
	meta.Black = tags["Black"]

	known := map[string]bool{
		"Result": true, "Date": true, "ECO": true, "Round": true,
		"WhiteElo": true, "BlackElo": true, "Event": true, "Site": true,
		"White": true, "Black": true,
	}
	for name, value := range tags {
		if !known[name] {
			meta.ExtraTags = append(meta.ExtraTags, Tag{Name: name, Value: value})
		}
	}

	return meta
}

func parseElo(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

// pgnPositionIterator replays a parsed game's moves ply by ply, building the
// reverse move that reached each resulting position.
type pgnPositionIterator struct {
	game *pgn.Game
	pos  *pgn.GameState
	idx  int
}

func (it *pgnPositionIterator) Next() (Position, fpkey.ReverseMove, bool, error) {
	// The initial position is a played position too: it is emitted first,
	// with no reverse move, so the root of every game is stored.
	if it.pos == nil {
		it.pos = pgn.NewStartingPosition()
		return &pgnPosition{pos: it.pos}, fpkey.NoReverseMove, true, nil
	}
	if it.idx >= len(it.game.Moves) {
		return nil, fpkey.ReverseMove{}, false, nil
	}
	mv := it.game.Moves[it.idx]
	rm := reverseMoveFromMv(it.pos, mv)

	if err := pgn.ApplyMove(it.pos, mv); err != nil {
		return nil, fpkey.ReverseMove{}, false, fmt.Errorf("chessext: apply move %d: %w", it.idx, err)
	}
	it.idx++

	return &pgnPosition{pos: it.pos}, rm, true, nil
}

// reverseMoveFromMv builds the fpkey.ReverseMove for mv, observing the board
// in pos *before* mv is applied: captured piece and castling direction are
// only resolvable from the pre-move board.
func reverseMoveFromMv(pos *pgn.GameState, mv pgn.Mv) fpkey.ReverseMove {
	const (
		flagEnPassant = 2
		flagCastle    = 4
	)

	movedPiece := pieceKindFromChar(pos.PieceAt(mv.From))
	isEnPassant := mv.Flags == flagEnPassant && movedPiece == fpkey.PiecePawn
	isCastle := mv.Flags == flagCastle

	var capturedPiece fpkey.PieceKind
	switch {
	case isEnPassant:
		capturedPiece = fpkey.PiecePawn
	case !isCastle:
		capturedPiece = pieceKindFromChar(pos.PieceAt(mv.To))
	}

	var castle fpkey.CastleSide
	if isCastle {
		if mv.To > mv.From {
			castle = fpkey.CastleKingside
		} else {
			castle = fpkey.CastleQueenside
		}
	}

	return fpkey.ReverseMove{
		FromSquare:    int(mv.From),
		ToSquare:      int(mv.To),
		MovedPiece:    movedPiece,
		CapturedPiece: capturedPiece,
		Promotion:     promoKindFromMv(mv),
		Castle:        castle,
		EnPassant:     isEnPassant,
	}
}

// promoKindFromMv reads mv.Promo without naming its declared type (an
// unexported enum in freeeve/pgn/v3), comparing only against the exported
// constants.
func promoKindFromMv(mv pgn.Mv) fpkey.PromoKind {
	switch mv.Promo {
	case pgn.PromoQueen:
		return fpkey.PromoQueen
	case pgn.PromoRook:
		return fpkey.PromoRook
	case pgn.PromoBishop:
		return fpkey.PromoBishop
	case pgn.PromoKnight:
		return fpkey.PromoKnight
	default:
		return fpkey.PromoNone
	}
}

// pieceKindFromChar maps the ASCII piece letter freeeve/pgn/v3's
// GameState.PieceAt returns ('P'/'p', 'N'/'n', ... or 0 for empty) to a
// color-independent fpkey.PieceKind.
func pieceKindFromChar(c byte) fpkey.PieceKind {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	switch c {
	case 'P':
		return fpkey.PiecePawn
	case 'N':
		return fpkey.PieceKnight
	case 'B':
		return fpkey.PieceBishop
	case 'R':
		return fpkey.PieceRook
	case 'Q':
		return fpkey.PieceQueen
	case 'K':
		return fpkey.PieceKing
	default:
		return fpkey.PieceNone
	}
}

// pgnPosition adapts *pgn.GameState to the chessext.Position contract.
type pgnPosition struct {
	pos *pgn.GameState
}

func (p *pgnPosition) Pack() (fpkey.BoardPlacement, bool) {
	packed := p.pos.Pack()
	var placement fpkey.BoardPlacement
	copy(placement[:], packed[:])
	blackToMove := strings.Contains(p.pos.ToFEN(), " b ")
	return placement, blackToMove
}

func (p *pgnPosition) LegalMoves() ([]LegalMove, error) {
	moves := pgn.GenerateLegalMoves(p.pos)
	out := make([]LegalMove, 0, len(moves))
	for _, mv := range moves {
		rm := reverseMoveFromMv(p.pos, mv)

		childPos := p.pos.Pack().Unpack()
		if err := pgn.ApplyMove(childPos, mv); err != nil {
			return nil, fmt.Errorf("chessext: apply legal move: %w", err)
		}

		out = append(out, LegalMove{
			SAN:         sanForMove(p.pos, mv),
			ReverseMove: rm,
			Resulting:   &pgnPosition{pos: childPos},
		})
	}
	return out, nil
}
