package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medidir/internal/directory/handler"
	"medidir/internal/directory/store"
	"medidir/internal/platform/config"
	"medidir/internal/platform/httpserver"
	"medidir/internal/platform/logger"
	"medidir/internal/platform/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Domain logic lives in internal/directory.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err.Error())
		os.Exit(1)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Error("database unreachable", "error", err.Error())
		os.Exit(1)
	}
	cancelPing()

	directoryStore := store.NewPostgres(db)
	if err := directoryStore.EnsureSchema(context.Background()); err != nil {
		log.Error("ensure schema", "error", err.Error())
		os.Exit(1)
	}

	m := metrics.New()
	h := handler.New(directoryStore, log, m)

	router := chi.NewRouter()
	h.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting medidir", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
	if err := db.Close(); err != nil {
		log.Error("close database", "error", err.Error())
	}
}
