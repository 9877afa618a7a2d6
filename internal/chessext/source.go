// Package chessext is the external-collaborator boundary: chess move
// generation, SAN/FEN parsing and PGN/BCGN lexing are outside this
// system's scope, so everything here is a thin adapter over
// github.com/freeeve/pgn/v3, plus a documented (unimplemented) contract
// for a binary-format reader.
package chessext

import "github.com/sarona-RD/chess-pos-db/internal/fpkey"

// GameMetadata carries the header fields a GameSource exposes per game.
type GameMetadata struct {
	HasResult bool
	Result    fpkey.Result

	Year, Month, Day    int
	ECO                  [2]byte
	PlyCount             uint16
	Round                uint16
	WhiteElo, BlackElo   uint16
	Event, Site          string
	White, Black         string
	ExtraTags            []Tag
}

// Tag is an additional PGN tag pair not already surfaced as a GameMetadata
// field.
type Tag struct {
	Name, Value string
}

// Position is one ply of a game: its packed placement (fingerprintable
// directly) and the legal continuations from it.
type Position interface {
	// Pack returns the packed piece-placement this position fingerprints
	// from, plus whether black is to move.
	Pack() (fpkey.BoardPlacement, bool)

	// LegalMoves enumerates every legal move from this position, each
	// paired with the reverse move that would record it and the SAN the
	// query wire format serializes it as.
	LegalMoves() ([]LegalMove, error)
}

// LegalMove is one legal continuation from a Position.
type LegalMove struct {
	SAN         string
	ReverseMove fpkey.ReverseMove
	Resulting   Position
}

// PositionIterator lazily advances a game ply by ply, starting from the
// initial position.
type PositionIterator interface {
	// Next returns the next position in the game: first the initial
	// position with NoReverseMove, then the position after each move
	// along with that move's reverse-move encoding. ok=false once the
	// game is exhausted.
	Next() (pos Position, rm fpkey.ReverseMove, ok bool, err error)
}

// GameSource is a lazy iterator over games. Only PGNSource is implemented;
// BCGNSource documents the interface a binary-format reader would need to
// satisfy.
type GameSource interface {
	// Next advances to the next game, returning its metadata and a
	// PositionIterator over its plies. ok=false when the source is
	// exhausted (not an error).
	Next() (meta GameMetadata, positions PositionIterator, ok bool, err error)

	// Close releases any underlying file handles.
	Close() error
}
