// Package query implements the query executor: it normalizes a request,
// expands every root position by legal continuations,
// batches the resulting keys, dispatches them against a partition, and
// aggregates per-(level, result) statistics plus optional header
// references.
package query

import (
	"fmt"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

// Category selects which relationship between a root position and a
// matched entry's stored key is being queried.
type Category int

const (
	CategoryTranspositions Category = iota
	CategoryContinuations
	CategoryAll
)

// categoryOrder fixes the iteration order over a request's Fetching map so
// batching and response assembly are deterministic.
var categoryOrder = []Category{CategoryTranspositions, CategoryContinuations, CategoryAll}

func (c Category) String() string {
	switch c {
	case CategoryTranspositions:
		return "transpositions"
	case CategoryContinuations:
		return "continuations"
	case CategoryAll:
		return "all"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// FetchOptions controls which optional results a category produces.
type FetchOptions struct {
	FetchChildren              bool
	FetchFirstGame             bool
	FetchLastGame              bool
	FetchFirstGameForEachChild bool
	FetchLastGameForEachChild  bool
}

// normalize applies the implication rule: the per-child game fetches only
// make sense when children are fetched at all.
func (o FetchOptions) normalize() FetchOptions {
	if o.FetchFirstGameForEachChild || o.FetchLastGameForEachChild {
		o.FetchChildren = true
	}
	return o
}

// RootQuery is one requested root position: a FEN, optionally followed by a
// SAN move (in which case the root is the position *after* the move, with
// the move itself recorded as a reverse move to distinguish transpositions).
type RootQuery struct {
	FEN string
	SAN string // "" means the root is the FEN position itself.
}

// Request is the normalized form of a query.
type Request struct {
	Token    string
	Roots    []RootQuery
	Levels   []fpkey.Level
	Results  []fpkey.Result
	Fetching map[Category]FetchOptions
}

// Validate rejects a malformed request: unknown category, out-of-range
// fields, empty roots or filters.
func (r *Request) Validate() error {
	if len(r.Roots) == 0 {
		return fmt.Errorf("%w: no root positions given", dberr.ErrInvalidRequest)
	}
	for i, root := range r.Roots {
		if root.FEN == "" {
			return fmt.Errorf("%w: root %d: empty FEN", dberr.ErrInvalidRequest, i)
		}
	}
	if len(r.Levels) == 0 {
		return fmt.Errorf("%w: no game levels given", dberr.ErrInvalidRequest)
	}
	for _, l := range r.Levels {
		if l != fpkey.LevelHuman && l != fpkey.LevelEngine && l != fpkey.LevelServer {
			return fmt.Errorf("%w: unknown level %v", dberr.ErrInvalidRequest, l)
		}
	}
	if len(r.Results) == 0 {
		return fmt.Errorf("%w: no game results given", dberr.ErrInvalidRequest)
	}
	for _, res := range r.Results {
		if res != fpkey.ResultWhiteWin && res != fpkey.ResultBlackWin && res != fpkey.ResultDraw {
			return fmt.Errorf("%w: unknown result %v", dberr.ErrInvalidRequest, res)
		}
	}
	if len(r.Fetching) == 0 {
		return fmt.Errorf("%w: no categories requested", dberr.ErrInvalidRequest)
	}
	for c := range r.Fetching {
		switch c {
		case CategoryTranspositions, CategoryContinuations, CategoryAll:
		default:
			return fmt.Errorf("%w: unknown category %v", dberr.ErrInvalidRequest, c)
		}
	}
	return nil
}

// normalizeFetching returns r.Fetching with every option's implication
// rule applied.
func (r *Request) normalizeFetching() map[Category]FetchOptions {
	out := make(map[Category]FetchOptions, len(r.Fetching))
	for c, o := range r.Fetching {
		out[c] = o.normalize()
	}
	return out
}

// LevelResult is a (level, result) pair, the granularity every occurrence
// count is broken down at.
type LevelResult struct {
	Level  fpkey.Level
	Result fpkey.Result
}

// Accum is the running aggregate for one (origin, level, result) triple:
// summed count, plus the minimum ("first") and maximum ("last") game
// offset seen across every contributing entry. Game offsets are only
// meaningful within the header store of this triple's own Level (ids are
// dense per level), so the
// resolved headers live here rather than on the position-wide entry.
type Accum struct {
	Count       uint64
	FirstOffset uint64
	HasFirst    bool
	LastOffset  uint64
	HasLast     bool

	FirstGame *GameRef
	LastGame  *GameRef
}

// add folds one entry's CountAndGameOffset into the accumulator. Unlike
// fpkey.Combine (which keeps only the minimum offset, the on-disk
// compaction rule), the query executor tracks both extremes itself from
// the still-distinct entries a partition returns before full consolidation.
func (a *Accum) add(v fpkey.CountAndGameOffset) {
	a.Count += v.Count
	if !v.OffsetAvailable {
		return
	}
	if !a.HasFirst || v.GameOffset < a.FirstOffset {
		a.FirstOffset, a.HasFirst = v.GameOffset, true
	}
	if !a.HasLast || v.GameOffset > a.LastOffset {
		a.LastOffset, a.HasLast = v.GameOffset, true
	}
}

// PositionEntry is the aggregated statistics for one position (a root or a
// continuation child), broken down by (level, result).
type PositionEntry struct {
	Stats map[LevelResult]*Accum
}

func newPositionEntry() *PositionEntry {
	return &PositionEntry{Stats: make(map[LevelResult]*Accum)}
}

func (e *PositionEntry) accumFor(lr LevelResult) *Accum {
	a, ok := e.Stats[lr]
	if !ok {
		a = &Accum{}
		e.Stats[lr] = a
	}
	return a
}

// GameRef is a resolved pointer to the first or last game that reached a
// position, carrying both the raw offset (the run-entry's game id) and the
// decoded header, when available. Spec.md §3's packed-count sentinel means
// an entry may report a count with no game offset at all; GameRef is nil in
// that case.
type GameRef struct {
	GameID uint32
	Header GameHeaderView
}

// GameHeaderView is copied out of headerstore.GameHeader so the wire layer
// gets exactly the fields a response carries, nothing more.
type GameHeaderView struct {
	Year, Month, Day    int
	ECO                 string
	PlyCount            uint16
	WhiteElo, BlackElo  uint16
	Round               uint16
	Event, White, Black string
}

// ChildResult is one legal continuation from a root: its SAN label
// (computed from the root position the move applies at) and its aggregated
// entry.
type ChildResult struct {
	SAN   string
	Entry *PositionEntry
}

// CategoryResult is one category's outcome for one root: the root's own
// aggregated entry, plus children when fetch_children was requested.
type CategoryResult struct {
	Root     *PositionEntry
	Children []ChildResult
}

// RootResult is one root position's full response: its identity plus
// every requested category's result.
type RootResult struct {
	FEN        string
	SAN        string
	Categories map[Category]*CategoryResult
}

// Response is the query executor's result, echoing the request token.
type Response struct {
	Token   string
	Results []RootResult
}
