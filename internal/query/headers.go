package query

import (
	"fmt"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/headerstore"
)

// pendingRef is one unresolved game reference discovered while walking the
// assembled response: the offset (game id) to look up and where to write
// the resolved GameRef back. The per-level header store it needs is given
// by the map key it is filed under.
type pendingRef struct {
	offset uint64
	dst    **GameRef
}

// resolveHeaders walks every accumulated Stats entry in results, batches
// the first/last game lookups each category's FetchOptions actually
// requested per level, and fills in Accum.FirstGame/LastGame.
func (ex *Executor) resolveHeaders(fetching map[Category]FetchOptions, results []RootResult) error {
	byLevel := make(map[fpkey.Level][]pendingRef)

	register := func(acc *Accum, level fpkey.Level, wantFirst, wantLast bool) {
		if wantFirst && acc.HasFirst {
			byLevel[level] = append(byLevel[level], pendingRef{offset: acc.FirstOffset, dst: &acc.FirstGame})
		}
		if wantLast && acc.HasLast {
			byLevel[level] = append(byLevel[level], pendingRef{offset: acc.LastOffset, dst: &acc.LastGame})
		}
	}

	for _, rr := range results {
		for cat, cr := range rr.Categories {
			opts := fetching[cat]
			for lr, acc := range cr.Root.Stats {
				register(acc, lr.Level, opts.FetchFirstGame, opts.FetchLastGame)
			}
			for _, child := range cr.Children {
				for lr, acc := range child.Entry.Stats {
					register(acc, lr.Level, opts.FetchFirstGameForEachChild, opts.FetchLastGameForEachChild)
				}
			}
		}
	}

	for level, pending := range byLevel {
		store, ok := ex.headers[level]
		if !ok {
			return fmt.Errorf("%w: no header store configured for level %v", dberr.ErrInternal, level)
		}

		ids := make([]uint32, len(pending))
		for i, p := range pending {
			ids[i] = uint32(p.offset)
		}
		headers, err := store.Query(ids)
		if err != nil {
			return fmt.Errorf("posdb: resolve headers for level %v: %w", level, err)
		}
		for i, p := range pending {
			view := toHeaderView(headers[i])
			*p.dst = &GameRef{GameID: ids[i], Header: view}
		}
	}
	return nil
}

func toHeaderView(h headerstore.GameHeader) GameHeaderView {
	return GameHeaderView{
		Year:     int(h.Date.Year),
		Month:    int(h.Date.Month),
		Day:      int(h.Date.Day),
		ECO:      string(h.ECO[:]),
		PlyCount: h.PlyCount,
		WhiteElo: h.WhiteElo,
		BlackElo: h.BlackElo,
		Round:    h.Round,
		Event:    h.Event,
		White:    h.White,
		Black:    h.Black,
	}
}
