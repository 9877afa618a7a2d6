// Package dberr names the error taxonomy shared across the storage engine.
//
// These are sentinel errors: callers use errors.Is against the values
// below and wrap with fmt.Errorf("...: %w") on the way up.
package dberr

import "errors"

var (
	// ErrConfig marks a bad memory budget or invalid path at construction time.
	ErrConfig = errors.New("posdb: config error")

	// ErrManifestMismatch marks a manifest whose format key or endianness
	// flag disagrees with the running process. Fatal on open.
	ErrManifestMismatch = errors.New("posdb: manifest mismatch")

	// ErrCorruptRun marks a run or index file whose size invariant is
	// broken (length not a multiple of record size, or a non-monotone
	// index). The offending partition open fails naming the file.
	ErrCorruptRun = errors.New("posdb: corrupt run")

	// ErrIOFault marks an OS error surfaced during read/write/mmap.
	ErrIOFault = errors.New("posdb: io fault")

	// ErrInvalidRequest marks a malformed query: unknown category,
	// out-of-range field, or bad JSON shape.
	ErrInvalidRequest = errors.New("posdb: invalid request")

	// ErrInternal marks an assertion violation or unreachable branch.
	ErrInternal = errors.New("posdb: internal error")

	// ErrNotFound marks a lookup (header offset, partition file) that
	// isn't present.
	ErrNotFound = errors.New("posdb: not found")

	// ErrReadOnly marks a write attempted against a read-only handle.
	ErrReadOnly = errors.New("posdb: read-only")
)
