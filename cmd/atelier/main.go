package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atelier/internal/config"
	"atelier/internal/server"
	"atelier/internal/storage/sqlite"
)

func main() {
	configFlag := flag.String("config", os.Getenv("ATELIER_CONFIG"), "Path to YAML config file")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbFlag := flag.String("db", "", "Path to sqlite database file (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("unable to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}
	if *dbFlag != "" {
		cfg.Database.Path = *dbFlag
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	store, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	srv := server.New(store, logger, cfg.Auth)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
