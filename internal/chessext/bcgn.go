package chessext

import "errors"

// ErrBCGNUnimplemented is returned by BCGNSource. BCGN lexing is outside
// this system's scope; BCGNSource exists only to document the GameSource
// contract a future binary-format reader would have to satisfy.
var ErrBCGNUnimplemented = errors.New("chessext: BCGN source not implemented")

// BCGNSource is an unimplemented GameSource for the BCGN binary game format.
// Constructing one always succeeds; every Next call fails with
// ErrBCGNUnimplemented, and Close returns nil.
type BCGNSource struct{}

// OpenBCGNSource returns a GameSource stub for path. Reading from it always
// fails; this exists so code that dispatches on file extension has a
// well-typed value to construct before failing loudly.
func OpenBCGNSource(path string) (*BCGNSource, error) {
	return &BCGNSource{}, nil
}

func (s *BCGNSource) Next() (GameMetadata, PositionIterator, bool, error) {
	return GameMetadata{}, nil, false, ErrBCGNUnimplemented
}

func (s *BCGNSource) Close() error { return nil }
