/*
main.go - HTTP server entry point

PURPOSE:
  Serves the enrollment API for a front desk UI or scripts.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, ENROLL_* environment, flags)
  2. Build the zap logger
  3. Open the configured store and load the catalog
  4. Attach the Prometheus recorder to the ledger
  5. Configure the HTTP router and start the server

COMMAND-LINE FLAGS (override the environment):
  -port     HTTP server port
  -driver   csv | sqlite | memory
  -db       registry file or SQLite database path
  -catalog  catalog JSON path (empty: built-in catalog)
  -config   optional config file

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  ./server -driver=sqlite -db="./data/enrollments.db"
  ENROLL_STORE_DRIVER=memory ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/api"
	"github.com/warp/enrollment-engine/app"
	"github.com/warp/enrollment-engine/config"
	"github.com/warp/enrollment-engine/logging"
	"github.com/warp/enrollment-engine/metrics"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port")
	driver := flag.String("driver", "", "store driver: csv, sqlite or memory")
	dbPath := flag.String("db", "", "registry file or SQLite database path")
	catalogPath := flag.String("catalog", "", "catalog JSON path")
	configFile := flag.String("config", "", "optional config file")
	flag.Parse()

	v := config.NewViper()
	if *port != 0 {
		v.Set("PORT", *port)
	}
	if *driver != "" {
		v.Set("STORE_DRIVER", *driver)
	}
	if *dbPath != "" {
		v.Set("STORE_PATH", *dbPath)
	}
	if *catalogPath != "" {
		v.Set("CATALOG_PATH", *catalogPath)
	}
	cfg, err := config.FromViper(v, *configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	recorder := metrics.NewRecorder()
	engine, err := app.New(cfg, logger, recorder)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer engine.Close()

	handler := api.NewHandler(engine.Ledger, engine.Catalog, engine.Validator, logger)
	router := api.NewRouter(handler, recorder, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Port)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
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
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
