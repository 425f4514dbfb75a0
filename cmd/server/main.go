/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the EduGrade audit/analytics server. Owns every
  store lifecycle: stores are opened here, injected into the cores, and
  closed here. The cores never hold global clients.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Open the SQLite store (events + counters)
  3. Open the Badger tip cache
  4. Build ledger, aggregator, handler, router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: edugrade.db)
              Use ":memory:" for an in-memory database
  -cache-dir  Badger tip cache directory; "" = in-memory cache
  -tip-ttl    Tip cache entry TTL (default: 30m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close cache and database
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
  - store/badgercache/badgercache.go: Tip cache implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edugrade/audit-engine/analytics"
	"github.com/edugrade/audit-engine/api"
	"github.com/edugrade/audit-engine/audit"
	"github.com/edugrade/audit-engine/store/badgercache"
	"github.com/edugrade/audit-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "edugrade.db", "SQLite database path")
	cacheDir := flag.String("cache-dir", "", "Badger tip cache directory (empty = in-memory)")
	tipTTL := flag.Duration("tip-ttl", audit.DefaultTipTTL, "Tip cache entry TTL")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Initialize stores
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var cache *badgercache.Cache
	if *cacheDir != "" {
		cache, err = badgercache.New(*cacheDir)
	} else {
		cache, err = badgercache.NewInMemory()
	}
	if err != nil {
		logger.Error("failed to initialize tip cache", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	// Build the cores
	ledger := audit.NewLedger(store, cache, audit.Config{
		TipTTL: *tipTTL,
		Logger: logger,
	})
	aggregator := analytics.NewAggregator(store, analytics.Config{
		Logger: logger,
	})

	// Create router
	handler := api.NewHandler(ledger, aggregator, store)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
