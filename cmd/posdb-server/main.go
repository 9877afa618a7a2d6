// Command posdb-server serves the query wire format over HTTP against an
// open database envelope: flag config, a graceful-shutdown signal context,
// and an http.Server with explicit Shutdown before the envelope is flushed
// and closed.
package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sarona-RD/chess-pos-db/internal/dbconfig"
	"github.com/sarona-RD/chess-pos-db/internal/dbenv"
	"github.com/sarona-RD/chess-pos-db/internal/httpapi"
	"github.com/sarona-RD/chess-pos-db/internal/logx"
)

func main() {
	cfg := &dbconfig.Config{}
	dbconfig.RegisterFlags(flag.CommandLine, cfg)
	addr := flag.String("addr", ":8080", "listen address")
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
		logger.Fatal().Err(err).Str("db", cfg.DBDir).Msg("open database envelope")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, env),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("db", cfg.DBDir).Msg("posdb-server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("flushing database envelope...")
	if err := env.Flush(); err != nil {
		logger.Error().Err(err).Msg("flush error")
	}
	if err := env.Close(); err != nil {
		logger.Error().Err(err).Msg("close error")
	}

	logger.Info().Msg("shutdown complete")
}
