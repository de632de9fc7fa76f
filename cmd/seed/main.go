package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/lib/pq"

	"medidir/internal/directory/store"
	"medidir/internal/platform/config"
	"medidir/internal/platform/logger"
)

// main idempotently seeds the specialty and city reference data. Running it
// twice leaves exactly one row per distinct natural key.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	directoryStore := store.NewPostgres(db)
	if err := directoryStore.EnsureSchema(ctx); err != nil {
		log.Error("ensure schema", "error", err.Error())
		os.Exit(1)
	}

	if err := store.Seed(ctx, directoryStore, store.DefaultSpecialties, store.DefaultCities); err != nil {
		log.Error("seed failed", "error", err.Error())
		os.Exit(1)
	}

	log.Info("seed complete",
		"specialties", len(store.DefaultSpecialties),
		"cities", len(store.DefaultCities),
	)
}
