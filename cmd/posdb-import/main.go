// Command posdb-import ingests PGN files into a database envelope:
// flag-parsed config, a summary log line, and a final flush once every
// input file has been imported. An interrupt signal is logged but does not
// cut the import short.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sarona-RD/chess-pos-db/internal/chessext"
	"github.com/sarona-RD/chess-pos-db/internal/dbconfig"
	"github.com/sarona-RD/chess-pos-db/internal/dbenv"
	"github.com/sarona-RD/chess-pos-db/internal/fpkey"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
)

func main() {
	cfg := &dbconfig.Config{}
	dbconfig.RegisterFlags(flag.CommandLine, cfg)

	level := flag.String("level", "human", "game level to import under: human, engine, or server")
	dir := flag.String("dir", "", "directory to scan for .pgn/.pgn.zst files (in addition to any positional file arguments)")
	bufferEntries := flag.Int("buffer-entries", 4096, "entries per flushed bucket assumed by -parallel when pre-reserving run ids (buckets flush when their pipeline buffer fills)")
	flag.Parse()
	cfg.Resolve()

	paths := flag.Args()
	if *dir != "" {
		found, err := scanPGNDir(*dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "posdb-import: scan dir:", err)
			os.Exit(1)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: posdb-import [flags] [file.pgn ...]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	lvl, err := parseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "posdb-import:", err)
		os.Exit(1)
	}

	logger := logx.NewLogger()
	logger.Info().
		Str("db", cfg.DBDir).
		Int("files", len(paths)).
		Str("level", *level).
		Bool("parallel", cfg.Parallel).
		Msg("starting import")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := openOrCreate(cfg.DBDir, dbenv.Config{
		BufferMemory: cfg.BufferMemory,
		NumImporters: blockCount(cfg),
		SortWorkers:  cfg.SortWorkers,
		Log:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open database envelope")
	}
	defer env.Close()

	orch, err := env.Importer(lvl, *bufferEntries, cfg.RatingMin)
	if err != nil {
		logger.Fatal().Err(err).Msg("create import orchestrator")
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("interrupt received; the import still runs over every input file before flushing")
	}()

	start := time.Now()
	var numGames, numSkipped, numPositions uint64
	if cfg.Parallel {
		s, err := orch.ImportFilesParallel(paths, cfg.NumBlocks)
		numGames, numSkipped, numPositions = s.NumGames, s.NumSkippedGames, s.NumPositions
		if err != nil {
			logger.Error().Err(err).Msg("parallel import failed")
		}
	} else {
		s, err := orch.ImportFiles(paths)
		numGames, numSkipped, numPositions = s.NumGames, s.NumSkippedGames, s.NumPositions
		if err != nil {
			logger.Error().Err(err).Msg("import failed")
		}
	}

	env.RecordImport(lvl, numGames, numPositions)

	logger.Info().Msg("flushing...")
	if err := env.Flush(); err != nil {
		logger.Error().Err(err).Msg("flush failed")
	}

	logger.Info().
		Uint64("games", numGames).
		Uint64("skipped", numSkipped).
		Uint64("positions", numPositions).
		Dur("elapsed", time.Since(start)).
		Msg("import complete")
}

func blockCount(cfg *dbconfig.Config) int {
	if cfg.Parallel && cfg.NumBlocks > 0 {
		return cfg.NumBlocks
	}
	return 1
}

func openOrCreate(dir string, cfg dbenv.Config) (*dbenv.Envelope, error) {
	if _, err := os.Stat(filepath.Join(dir, "manifest")); errors.Is(err, os.ErrNotExist) {
		return dbenv.Create(dir, cfg)
	}
	return dbenv.Open(dir, cfg)
}

func parseLevel(s string) (fpkey.Level, error) {
	switch s {
	case "human":
		return fpkey.LevelHuman, nil
	case "engine":
		return fpkey.LevelEngine, nil
	case "server":
		return fpkey.LevelServer, nil
	default:
		return 0, fmt.Errorf("unknown level %q (want human, engine, or server)", s)
	}
}

func scanPGNDir(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if chessext.IsPGNFile(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
