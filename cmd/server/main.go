/*
main.go - Application entry point

PURPOSE:
  Starts the kindergarten attendance server. Loads configuration, picks the
  record store, wires the attendance service and HTTP router, and handles
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (defaults, .env, KINDER_* environment)
  2. Apply command-line flag overrides
  3. Build the logger (Rollbar-backed when a token is configured)
  4. Open the store: sqlite (default), mongo or memory
  5. Create attendance service, handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides http.port)
  -db      SQLite database path (overrides store.sqlite.path)
           Use ":memory:" for in-memory database
  -driver  sqlite | mongo | memory (overrides store.driver)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  # Run with file database
  KINDER_AUTH_SECRET=dev ./server -db="./data/kindergarten.db"

  # Run against MongoDB
  KINDER_STORE_MONGO_URI=mongodb://localhost:27017 ./server -driver=mongo

  # Local development without tokens
  KINDER_AUTH_ENABLED=false ./server -driver=memory

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/api"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/config"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/logger"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/store/memory"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/store/mongo"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/store/sqlite"
)

// backend is what every store driver provides.
type backend interface {
	attendance.RecordStore
	attendance.DirectoryStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path")
	driver := flag.String("driver", cfg.StoreDriver, "Store driver: sqlite, mongo or memory")
	flag.Parse()

	cfg.Port, cfg.SQLitePath, cfg.StoreDriver = *port, *dbPath, *driver
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Logger
	std := logger.NewStd(os.Stderr, logger.ParseLevel(cfg.LogLevel))
	var lg logger.Logger = std
	if cfg.RollbarToken != "" {
		rb := logger.NewRollbar(std, logger.RollbarConfig{
			Token:       cfg.RollbarToken,
			Environment: cfg.RollbarEnv,
		})
		defer rb.Close()
		lg = rb
	}

	// Initialize store
	store, closer, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.StoreDriver, err)
	}
	defer closer.Close()

	svc := attendance.NewService(store, store,
		attendance.WithLogger(std.Named("attendance")),
		attendance.WithLocation(cfg.Location),
		attendance.WithLateAfter(cfg.LateAfter),
		attendance.WithChainSerialization(cfg.SerializeChain),
	)
	if rb, ok := lg.(*logger.Rollbar); ok {
		svc.Log = rb
	}

	auth := api.NewAuthenticator(cfg.AuthSecret, api.NewMemoryTokenStore(), cfg.AuthEnabled)
	if !cfg.AuthEnabled {
		lg.Warn("authentication disabled, every request runs as manager")
	}

	handler := api.NewHandler(svc, store, auth, lg)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		lg.Info("server starting", "addr", server.Addr, "driver", cfg.StoreDriver, "tz", cfg.Location.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		lg.Error("server forced to shutdown", "err", err)
	}

	lg.Info("server stopped")
}

func openStore(cfg *config.Config) (backend, io.Closer, error) {
	switch cfg.StoreDriver {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB, mongo.WithLocation(cfg.Location))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "memory":
		return memory.New(), io.NopCloser(nil), nil
	default:
		s, err := sqlite.New(cfg.SQLitePath, sqlite.WithLocation(cfg.Location))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
