package httpapi

import (
	"fmt"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/query"
)

// This file implements the query wire format: JSON in, JSON out,
// translated to/from internal/query's domain types so the wire shapes can
// evolve independently of the executor.

// WireRootQuery is one requested root position.
type WireRootQuery struct {
	FEN string `json:"fen"`
	SAN string `json:"san,omitempty"`
}

// WireFetchOptions mirrors query.FetchOptions with JSON field names.
type WireFetchOptions struct {
	FetchChildren              bool `json:"fetch_children,omitempty"`
	FetchFirstGame             bool `json:"fetch_first_game,omitempty"`
	FetchLastGame              bool `json:"fetch_last_game,omitempty"`
	FetchFirstGameForEachChild bool `json:"fetch_first_game_for_each_child,omitempty"`
	FetchLastGameForEachChild  bool `json:"fetch_last_game_for_each_child,omitempty"`
}

// WireRequest is the JSON shape of a query request.
type WireRequest struct {
	Token    string                      `json:"token"`
	Roots    []WireRootQuery             `json:"roots"`
	Levels   []string                    `json:"levels"`
	Results  []string                    `json:"results"`
	Fetching map[string]WireFetchOptions `json:"fetching"`
}

func levelFromString(s string) (fpkey.Level, error) {
	switch s {
	case "human":
		return fpkey.LevelHuman, nil
	case "engine":
		return fpkey.LevelEngine, nil
	case "server":
		return fpkey.LevelServer, nil
	default:
		return 0, fmt.Errorf("%w: unknown level %q", dberr.ErrInvalidRequest, s)
	}
}

func resultFromString(s string) (fpkey.Result, error) {
	switch s {
	case "white_win":
		return fpkey.ResultWhiteWin, nil
	case "black_win":
		return fpkey.ResultBlackWin, nil
	case "draw":
		return fpkey.ResultDraw, nil
	default:
		return 0, fmt.Errorf("%w: unknown result %q", dberr.ErrInvalidRequest, s)
	}
}

func categoryFromString(s string) (query.Category, error) {
	switch s {
	case "transpositions":
		return query.CategoryTranspositions, nil
	case "continuations":
		return query.CategoryContinuations, nil
	case "all":
		return query.CategoryAll, nil
	default:
		return 0, fmt.Errorf("%w: unknown category %q", dberr.ErrInvalidRequest, s)
	}
}

func fetchOptionsFromWire(w WireFetchOptions) query.FetchOptions {
	return query.FetchOptions{
		FetchChildren:              w.FetchChildren,
		FetchFirstGame:             w.FetchFirstGame,
		FetchLastGame:              w.FetchLastGame,
		FetchFirstGameForEachChild: w.FetchFirstGameForEachChild,
		FetchLastGameForEachChild:  w.FetchLastGameForEachChild,
	}
}

// requestFromWire translates a WireRequest into a query.Request, surfacing
// any unknown level/result/category as an ErrInvalidRequest.
func requestFromWire(w WireRequest) (query.Request, error) {
	req := query.Request{
		Token:    w.Token,
		Fetching: make(map[query.Category]query.FetchOptions, len(w.Fetching)),
	}

	for _, r := range w.Roots {
		req.Roots = append(req.Roots, query.RootQuery{FEN: r.FEN, SAN: r.SAN})
	}
	for _, s := range w.Levels {
		lvl, err := levelFromString(s)
		if err != nil {
			return query.Request{}, err
		}
		req.Levels = append(req.Levels, lvl)
	}
	for _, s := range w.Results {
		res, err := resultFromString(s)
		if err != nil {
			return query.Request{}, err
		}
		req.Results = append(req.Results, res)
	}
	for catStr, opts := range w.Fetching {
		cat, err := categoryFromString(catStr)
		if err != nil {
			return query.Request{}, err
		}
		req.Fetching[cat] = fetchOptionsFromWire(opts)
	}

	return req, nil
}

// WireGameHeader is the JSON shape of a resolved game reference's header.
type WireGameHeader struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	ECO      string `json:"eco"`
	PlyCount uint16 `json:"ply_count"`
	WhiteElo uint16 `json:"white_elo"`
	BlackElo uint16 `json:"black_elo"`
	Round    uint16 `json:"round"`
	Event    string `json:"event"`
	White    string `json:"white"`
	Black    string `json:"black"`
}

// WireGameRef is a resolved first/last game pointer.
type WireGameRef struct {
	GameID uint32         `json:"game_id"`
	Header WireGameHeader `json:"header"`
}

// WireStats is one (level, result) breakdown line for a position entry.
type WireStats struct {
	Level     string       `json:"level"`
	Result    string       `json:"result"`
	Count     uint64       `json:"count"`
	FirstGame *WireGameRef `json:"first_game,omitempty"`
	LastGame  *WireGameRef `json:"last_game,omitempty"`
}

// WirePositionEntry is the JSON shape of query.PositionEntry.
type WirePositionEntry struct {
	Stats []WireStats `json:"stats"`
}

// WireChildResult is one legal continuation's SAN label plus its entry.
type WireChildResult struct {
	SAN   string            `json:"san"`
	Entry WirePositionEntry `json:"entry"`
}

// WireCategoryResult is one category's outcome for one root.
type WireCategoryResult struct {
	Root     WirePositionEntry `json:"root"`
	Children []WireChildResult `json:"children,omitempty"`
}

// WireRootResult is one root position's full response.
type WireRootResult struct {
	FEN        string                        `json:"fen"`
	SAN        string                        `json:"san,omitempty"`
	Categories map[string]WireCategoryResult `json:"categories"`
}

// WireResponse is the JSON shape of query.Response.
type WireResponse struct {
	Token   string           `json:"token"`
	Results []WireRootResult `json:"results"`
}

func gameRefToWire(ref *query.GameRef) *WireGameRef {
	if ref == nil {
		return nil
	}
	h := ref.Header
	return &WireGameRef{
		GameID: ref.GameID,
		Header: WireGameHeader{
			Year: h.Year, Month: h.Month, Day: h.Day,
			ECO:      h.ECO,
			PlyCount: h.PlyCount,
			WhiteElo: h.WhiteElo, BlackElo: h.BlackElo,
			Round: h.Round,
			Event: h.Event, White: h.White, Black: h.Black,
		},
	}
}

func positionEntryToWire(e *query.PositionEntry) WirePositionEntry {
	out := WirePositionEntry{Stats: make([]WireStats, 0, len(e.Stats))}
	for lr, acc := range e.Stats {
		out.Stats = append(out.Stats, WireStats{
			Level:     lr.Level.String(),
			Result:    lr.Result.String(),
			Count:     acc.Count,
			FirstGame: gameRefToWire(acc.FirstGame),
			LastGame:  gameRefToWire(acc.LastGame),
		})
	}
	return out
}

// responseToWire translates a query.Response into its JSON wire shape.
func responseToWire(resp query.Response) WireResponse {
	out := WireResponse{Token: resp.Token, Results: make([]WireRootResult, len(resp.Results))}
	for i, rr := range resp.Results {
		wrr := WireRootResult{FEN: rr.FEN, SAN: rr.SAN, Categories: make(map[string]WireCategoryResult, len(rr.Categories))}
		for cat, cr := range rr.Categories {
			wcr := WireCategoryResult{Root: positionEntryToWire(cr.Root)}
			for _, child := range cr.Children {
				wcr.Children = append(wcr.Children, WireChildResult{SAN: child.SAN, Entry: positionEntryToWire(child.Entry)})
			}
			wrr.Categories[cat.String()] = wcr
		}
		out.Results[i] = wrr
	}
	return out
}
