/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server. Handles configuration,
  dependency injection, seeding, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Seed default configuration and formulas on first run
  4. Wire services: workflow service, compositor, recompute runner
  5. Start HTTP server and background scheduler
  6. Graceful shutdown on SIGINT/SIGTERM

CONFIGURATION:
  Flags override environment variables:
  -port      HTTP server port          (env PORT, default 8080)
  -db        SQLite database path      (env DB_PATH, default payroll.db)
             Use ":memory:" for an in-memory database
  -log-level logrus level              (env LOG_LEVEL, default info)

EXAMPLES:
  # Run with file database
  ./server -db="./data/payroll.db"

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background jobs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/formula"
	"github.com/warp/payroll-engine/kpi"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/salary"
	"github.com/warp/payroll-engine/store/sqlite"
	"github.com/warp/payroll-engine/workflow"
)

func main() {
	// .env is optional; flags and real env win.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "payroll.db"), "SQLite database path")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	if err := seedDefaults(context.Background(), store, log); err != nil {
		log.WithError(err).Fatal("failed to seed defaults")
	}

	// Wire the engine.
	svc := workflow.NewService(store, log)
	compositor := &salary.Compositor{
		Directory:   store,
		Attendance:  store,
		Evaluations: store,
		Salaries:    store,
		Config:      store,
		Formulas:    store,
		Compiler:    formula.NewCompiler(),
		Catalog:     kpi.NewCatalog(nil, nil),
	}
	runner := &salary.Runner{
		Compositor: compositor,
		Directory:  store,
		Log:        log,
	}

	handler := api.NewHandler(store, svc, compositor, runner, log)
	router := api.NewRouter(handler)

	scheduler := api.NewScheduler(svc, runner, log)
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}
	log.Info("server stopped")
}

// seedDefaults installs the default configuration and formula set on a
// fresh database. An existing configuration is never overwritten.
func seedDefaults(ctx context.Context, store *sqlite.Store, log *logrus.Logger) error {
	_, err := store.Snapshot(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, payroll.ErrNoConfig):
		return err
	}

	log.Info("empty database, seeding default configuration")
	if err := store.SaveConfig(ctx, factory.DefaultSystemConfig()); err != nil {
		return err
	}
	for _, f := range factory.DefaultFormulas() {
		if err := store.SaveFormula(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
