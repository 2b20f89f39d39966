package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"golang.org/x/sync/errgroup"

	"github.com/raterudder/leneda/pkg/leneda"
	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/meters"
	"github.com/raterudder/leneda/pkg/refresh"
	"github.com/raterudder/leneda/pkg/server"
	"github.com/raterudder/leneda/pkg/storage"
)

func main() {
	// init packages
	client := leneda.Configured()
	router := meters.Configured()
	s := storage.Configured()
	engine := refresh.Configured(client, router, s)

	// init server
	srv := server.Configured(engine, s, client)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := client.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid leneda configuration", slog.Any("error", err))
		os.Exit(1)
	}

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// keep the last known values across restarts
	if err := engine.Restore(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to restore snapshot", slog.Any("error", err))
	}

	// Run will block until context is canceled or error happens
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
