// Command posdb-merge consolidates a database envelope's runs, either in
// place or into an external replica, logging progress every few seconds.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sarona-RD/chess-pos-db/internal/dbconfig"
	"github.com/sarona-RD/chess-pos-db/internal/dbenv"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
)

func main() {
	cfg := &dbconfig.Config{}
	dbconfig.RegisterFlags(flag.CommandLine, cfg)
	outPath := flag.String("out", "", "write the merged run to this file path (plus its _index sibling) instead of merging in place")
	flag.Parse()
	cfg.Resolve()

	logger := logx.NewLogger()

	env, err := dbenv.Open(cfg.DBDir, dbenv.Config{
		BufferMemory: cfg.BufferMemory,
		NumImporters: 1,
		SortWorkers:  cfg.SortWorkers,
		Log:          logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "posdb-merge: open:", err)
		os.Exit(1)
	}
	defer env.Close()

	lastLog := time.Now()
	progress := func(workDone, workTotal int64) {
		if time.Since(lastLog) < 5*time.Second {
			return
		}
		lastLog = time.Now()
		logger.Info().Int64("done", workDone).Int64("total", workTotal).Msg("merge progress")
	}

	start := time.Now()
	if *outPath != "" {
		logger.Info().Str("db", cfg.DBDir).Str("out", *outPath).Msg("replicate-merging")
		err = env.ReplicateMergeAll(*outPath, progress)
	} else {
		logger.Info().Str("db", cfg.DBDir).Msg("merging in place")
		err = env.MergeAll(progress)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("merge failed")
	}

	logger.Info().Dur("elapsed", time.Since(start)).Msg("merge complete")
}
