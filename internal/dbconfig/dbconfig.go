// Package dbconfig centralizes the flag-parsed configuration shared by every
// cmd/ binary, so posdb-import/posdb-server/posdb-merge read one config
// struct instead of re-declaring flags.
package dbconfig

import (
	"flag"
	"strconv"
	"strings"
)

// Config holds every setting a posdb binary needs, parsed once from flags
// and shared by whichever components the binary wires up.
type Config struct {
	// DBDir is the database envelope's root directory (manifest, stats,
	// header stores, data/ partition).
	DBDir string

	// BufferMemory is the pipeline buffer pool's total memory budget in
	// bytes, parsed by Resolve from a human-readable flag ("512m", "4g").
	BufferMemory int64

	// MergeMemory caps buffered input bytes across merge cursors; kept for
	// CLI compatibility even though internal/extmerge reads directly from
	// mmap and does not spend it.
	MergeMemory int64

	// SortWorkers is K, the number of pipeline sort workers.
	SortWorkers int

	// RatingMin filters out games where either side is below this Elo.
	RatingMin int

	// Parallel enables the import orchestrator's block-partitioned
	// parallel pass instead of the sequential per-file pass.
	Parallel bool

	// NumBlocks is the number of import blocks when Parallel is set.
	NumBlocks int

	// bufferMemoryFlag/mergeMemoryFlag stash the raw flag.String pointers
	// between RegisterFlags and Resolve, since ParseSize needs the flag's
	// final parsed value, not the default captured at registration time.
	bufferMemoryFlag *string
	mergeMemoryFlag  *string
}

// RegisterFlags registers cfg's fields on fs (use flag.CommandLine for a
// plain binary); after parsing fs, the caller calls cfg.Resolve() and then
// reads cfg back.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DBDir, "db", "./data/posdb", "database directory")
	bufferMemory := fs.String("buffer-memory", "512m", "pipeline buffer pool memory budget (e.g. 512m, 4g)")
	mergeMemory := fs.String("merge-memory", "1g", "merge cursor memory budget (e.g. 512m, 4g)")
	fs.IntVar(&cfg.SortWorkers, "sort-workers", 4, "number of pipeline sort workers")
	fs.IntVar(&cfg.RatingMin, "rating-min", 0, "minimum Elo for both sides (0 disables the filter)")
	fs.BoolVar(&cfg.Parallel, "parallel", false, "partition input files into blocks and import them concurrently")
	fs.IntVar(&cfg.NumBlocks, "blocks", 4, "number of import blocks when -parallel is set")

	cfg.bufferMemoryFlag = bufferMemory
	cfg.mergeMemoryFlag = mergeMemory
}

// Resolve must be called after flag.Parse() to convert the human-readable
// size flags into Config's byte fields.
func (c *Config) Resolve() {
	if c.bufferMemoryFlag != nil {
		c.BufferMemory = ParseSize(*c.bufferMemoryFlag)
	}
	if c.mergeMemoryFlag != nil {
		c.MergeMemory = ParseSize(*c.mergeMemoryFlag)
	}
}

// ParseSize parses a human-readable byte size like "512m", "4g", "1024"
// into bytes. Unparseable input yields 0.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return 0
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "m"):
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "g"):
		multiplier = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n * multiplier
}
