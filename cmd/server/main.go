package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tictactoe"
	"tictactoe/internal/auth"
	"tictactoe/internal/config"
	"tictactoe/internal/game"
	"tictactoe/internal/room"
	"tictactoe/internal/server"
	"tictactoe/internal/storage"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	logger := initLogger(conf)

	if err := run(logger, conf); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func initLogger(conf *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: conf.Level()}
	if conf.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(logger *slog.Logger, conf *config.Config) error {
	store, err := storage.New(conf.Storage.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	registry := game.DefaultRegistry()
	if _, ok := registry.Get(conf.Rooms.Variant); !ok {
		return fmt.Errorf("unknown default variant %q", conf.Rooms.Variant)
	}

	var resolver auth.Resolver = auth.Anonymous{}
	if conf.Auth.JWTSecret != "" {
		resolver = auth.NewJWTResolver(conf.Auth.JWTSecret)
	} else {
		logger.Warn("no jwt secret configured, all connections are anonymous and cannot create rooms")
	}

	static, err := fs.Sub(tictactoe.WebFS, "web")
	if err != nil {
		return fmt.Errorf("web assets: %w", err)
	}

	directory := room.NewDirectory(logger, registry, store)
	srv := server.New(logger, directory, registry, resolver, store, server.Options{
		DefaultVariant: conf.Rooms.Variant,
		OutboxSize:     conf.Rooms.OutboxSize,
		WriteTimeout:   conf.Rooms.WriteTimeout,
		Static:         static,
	})

	httpServer := &http.Server{
		Addr:              conf.HTTP.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", conf.HTTP.Addr, "variant", conf.Rooms.Variant)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.HTTP.ShutdownTimeout)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	// Hijacked WebSocket connections are not tracked by Shutdown; closing the
	// directory ends them.
	directory.Close()
	return err
}
