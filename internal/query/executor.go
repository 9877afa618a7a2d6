package query

import (
	"fmt"

	"github.com/sarona-RD/chess-pos-db/internal/chessext"
	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/headerstore"
	"github.com/sarona-RD/chess-pos-db/internal/partition"
	"github.com/sarona-RD/chess-pos-db/internal/runfile"
)

// Executor runs requests against one partition (the whole database's single
// logical shard; level and result are encoded in the key itself, not in
// separate partitions per level) and resolves header references through
// the per-level header stores.
type Executor struct {
	part    *partition.Partition
	headers map[fpkey.Level]*headerstore.Store
}

// New returns an Executor dispatching against part, resolving headers
// through headers (keyed by game level).
func New(part *partition.Partition, headers map[fpkey.Level]*headerstore.Store) *Executor {
	return &Executor{part: part, headers: headers}
}

// levelResultPairs enumerates the cross product of req.Levels x req.Results,
// the per-key breakdown granularity every category is queried at.
func levelResultPairs(req *Request) []LevelResult {
	out := make([]LevelResult, 0, len(req.Levels)*len(req.Results))
	for _, l := range req.Levels {
		for _, r := range req.Results {
			out = append(out, LevelResult{Level: l, Result: r})
		}
	}
	return out
}

func fingerprintOf(pos chessext.Position) fpkey.Fingerprint {
	board, blackToMove := pos.Pack()
	return fpkey.ComputeFingerprint(board, blackToMove)
}

// rootState is one parsed root position, resolved from its FEN (and
// optional SAN move) once per Execute call.
type rootState struct {
	query RootQuery
	pos   chessext.Position
	rm    fpkey.ReverseMove
}

// queryItem tags one dispatched key with where its result belongs in the
// response being assembled.
type queryItem struct {
	rootIdx  int
	category Category
	childIdx int // -1 selects the category's own root entry
	lr       LevelResult
}

// Execute runs req against the executor's partition, returning the
// aggregated, header-resolved response.
func (ex *Executor) Execute(req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	fetching := req.normalizeFetching()
	pairs := levelResultPairs(&req)

	roots := make([]rootState, len(req.Roots))
	for i, rq := range req.Roots {
		pos, err := chessext.ParseFEN(rq.FEN)
		if err != nil {
			return Response{}, fmt.Errorf("%w: root %d: %v", dberr.ErrInvalidRequest, i, err)
		}
		rm := fpkey.NoReverseMove
		if rq.SAN != "" {
			afterMove, moveRM, err := chessext.ApplySAN(pos, rq.SAN)
			if err != nil {
				return Response{}, fmt.Errorf("%w: root %d: %v", dberr.ErrInvalidRequest, i, err)
			}
			pos, rm = afterMove, moveRM
		}
		roots[i] = rootState{query: rq, pos: pos, rm: rm}
	}

	results := make([]RootResult, len(roots))
	for i, r := range roots {
		results[i] = RootResult{FEN: r.query.FEN, SAN: r.query.SAN, Categories: make(map[Category]*CategoryResult)}
	}

	// fullKeys/fullItems carry exact-move lookups (Transpositions, the
	// Continuations root entry, and Continuations children); noMoveKeys
	// carries the without-reverse-move All lookups. Two slices because
	// Run.EqualRangeMany takes one comparator per call.
	var fullKeys, noMoveKeys []fpkey.Key
	var fullItems, noMoveItems []queryItem

	for ri, r := range roots {
		rootFP := fingerprintOf(r.pos)

		for _, cat := range categoryOrder {
			opts, requested := fetching[cat]
			if !requested {
				continue
			}
			cr := &CategoryResult{Root: newPositionEntry()}
			results[ri].Categories[cat] = cr
			for _, lr := range pairs {
				cr.Root.accumFor(lr) // present at zero even with no matches
			}

			switch cat {
			case CategoryTranspositions:
				for _, lr := range pairs {
					k := fpkey.MakeKey(rootFP, r.rm.Pack(), lr.Level, lr.Result)
					fullKeys = append(fullKeys, k)
					fullItems = append(fullItems, queryItem{rootIdx: ri, category: cat, childIdx: -1, lr: lr})
				}

			case CategoryAll:
				for _, lr := range pairs {
					k := fpkey.MakeKey(rootFP, 0, lr.Level, lr.Result)
					noMoveKeys = append(noMoveKeys, k)
					noMoveItems = append(noMoveItems, queryItem{rootIdx: ri, category: cat, childIdx: -1, lr: lr})
				}

			case CategoryContinuations:
				// The root entry under Continuations reports the same
				// position the children branch from.
				for _, lr := range pairs {
					k := fpkey.MakeKey(rootFP, r.rm.Pack(), lr.Level, lr.Result)
					fullKeys = append(fullKeys, k)
					fullItems = append(fullItems, queryItem{rootIdx: ri, category: cat, childIdx: -1, lr: lr})
				}

				legal, err := r.pos.LegalMoves()
				if err != nil {
					return Response{}, fmt.Errorf("posdb: enumerate legal moves for root %d: %w", ri, err)
				}
				if !opts.FetchChildren {
					continue
				}
				cr.Children = make([]ChildResult, len(legal))
				for ci, mv := range legal {
					cr.Children[ci] = ChildResult{SAN: mv.SAN, Entry: newPositionEntry()}
					childFP := fingerprintOf(mv.Resulting)
					for _, lr := range pairs {
						cr.Children[ci].Entry.accumFor(lr) // present at zero for every unplayed move
						k := fpkey.MakeKey(childFP, mv.ReverseMove.Pack(), lr.Level, lr.Result)
						fullKeys = append(fullKeys, k)
						fullItems = append(fullItems, queryItem{rootIdx: ri, category: cat, childIdx: ci, lr: lr})
					}
				}
			}
		}
	}

	fullMatches := ex.part.ExecuteQuery(fullKeys, fpkey.CompareFull)
	noMoveMatches := ex.part.ExecuteQuery(noMoveKeys, fpkey.CompareWithoutReverseMove)

	applyMatches(results, fullItems, fullMatches)
	applyMatches(results, noMoveItems, noMoveMatches)

	if err := ex.resolveHeaders(fetching, results); err != nil {
		return Response{}, err
	}

	return Response{Token: req.Token, Results: results}, nil
}

func applyMatches(results []RootResult, items []queryItem, matches [][]runfile.Entry) {
	for idx, item := range items {
		cr := results[item.rootIdx].Categories[item.category]
		var entry *PositionEntry
		if item.childIdx < 0 {
			entry = cr.Root
		} else {
			entry = cr.Children[item.childIdx].Entry
		}
		acc := entry.accumFor(item.lr)
		for _, e := range matches[idx] {
			acc.add(e.Value)
		}
	}
}
