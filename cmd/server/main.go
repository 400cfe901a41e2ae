// Package main is the entry point for the ad-rewards server.
//
// main stays minimal: load configuration, build the logger, hand both to
// internal/server. All behaviour lives in the internal packages.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/ad-rewards/internal/config"
	"github.com/sakif/ad-rewards/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// .env, then CONFIG_FILE (TOML), then environment variables.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Text for humans by default; LOG_FORMAT=json for log shippers.
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)

	if !cfg.GitHubEnabled() {
		logger.Info("GitHub OAuth not configured; password sign-in only")
	}
	if len(cfg.AdminUsers) == 0 {
		logger.Warn("ADMIN_USERS is empty; admin endpoints will reject everyone")
	}

	// === 3. START ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
