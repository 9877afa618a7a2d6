package dbenv

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
)

const statsFileName = "stats"

// numLevels is len(fpkey.Level's enumeration): Human, Engine, Server.
const numLevels = 3

// LevelStats is one level's running totals.
type LevelStats struct {
	Games     uint64
	Positions uint64
}

// Stats is the decoded `<db>/stats` file: one LevelStats triple indexed by
// fpkey.Level.
type Stats [numLevels]LevelStats

func encodeStats(s Stats) []byte {
	buf := make([]byte, numLevels*16)
	for i, ls := range s {
		binary.BigEndian.PutUint64(buf[i*16:i*16+8], ls.Games)
		binary.BigEndian.PutUint64(buf[i*16+8:i*16+16], ls.Positions)
	}
	return buf
}

func decodeStats(buf []byte) (Stats, error) {
	if len(buf) != numLevels*16 {
		return Stats{}, fmt.Errorf("%w: dbenv: stats file length %d, want %d", dberr.ErrCorruptRun, len(buf), numLevels*16)
	}
	var s Stats
	for i := range s {
		s[i] = LevelStats{
			Games:     binary.BigEndian.Uint64(buf[i*16 : i*16+8]),
			Positions: binary.BigEndian.Uint64(buf[i*16+8 : i*16+16]),
		}
	}
	return s, nil
}

// writeStatsAtomic persists s to dir's stats file via temp-file-then-rename,
// the same atomicity discipline the manifest uses.
func writeStatsAtomic(dir string, s Stats) error {
	path := dir + "/" + statsFileName
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encodeStats(s), 0o644); err != nil {
		return fmt.Errorf("%w: dbenv: write stats temp file: %v", dberr.ErrIOFault, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: dbenv: rename stats into place: %v", dberr.ErrIOFault, err)
	}
	return nil
}

// readStats loads and decodes dir's stats file, returning a zeroed Stats if
// the file doesn't exist yet (a freshly created envelope has no stats file
// until its first flush).
func readStats(dir string) (Stats, error) {
	buf, err := os.ReadFile(dir + "/" + statsFileName)
	if os.IsNotExist(err) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("%w: dbenv: read stats: %v", dberr.ErrIOFault, err)
	}
	return decodeStats(buf)
}

// statsTracker guards Stats under a mutex, since a parallel import runs
// concurrent blocks that each contribute counts as they finish.
type statsTracker struct {
	mu sync.Mutex
	s  Stats
}

func (t *statsTracker) add(level fpkey.Level, games, positions uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s[level].Games += games
	t.s[level].Positions += positions
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
