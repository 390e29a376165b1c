// Command backfill replays the audit trail through the dedup engine:
// wipes and rebuilds the vector index, then reclassifies every audit row
// in batches. Run it offline; it must not overlap with live ingestion.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/opsline/quell/internal/config"
	"github.com/opsline/quell/internal/core"
	"github.com/opsline/quell/internal/core/normalize"
	"github.com/opsline/quell/internal/llm"
	"github.com/opsline/quell/internal/store"
	"github.com/opsline/quell/internal/vector"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := flag.String("config", "config/config.toml", "path to config file")
	batchSize := flag.Int("batch", 0, "audit rows per transaction (0 = config value)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
		cfg.LLM.EmbeddingModel = "nomic-embed-text"
		cfg.LLM.BaseURL = "http://localhost:11434"
	}

	ctx := context.Background()

	pg, err := store.New(ctx, storeConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pg.Close()

	_, embedder, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize embedding client: %v", err)
	}
	if embedder == nil {
		log.Fatalf("Provider %s has no embedding support; backfill needs one", cfg.LLM.Provider)
	}

	size := *batchSize
	if size == 0 {
		size = cfg.Dedup.BatchSize
	}

	normalizer := normalize.New(normalize.FieldPaths(cfg.Sources["default"]))
	engine := core.NewEngine(pg, embedder, vector.NewMemory(), normalizer, cfg.Dedup.SimilarityThreshold)

	res, err := engine.Backfill(ctx, size)
	if err != nil {
		if res != nil {
			log.Fatalf("Backfill failed after %d rows: %v", res.Processed, err)
		}
		log.Fatalf("Backfill failed: %v", err)
	}

	log.Printf("Backfill completed: processed=%d cleaned=%d duplicates=%d skipped=%d",
		res.Processed, res.Cleaned, res.Duplicates, res.Skipped)
}

func storeConfig(cfg *config.Config) *store.Config {
	pc := store.DefaultConfig()
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Postgres.Database = v
	}
	if cfg.Postgres.Host != "" {
		pc.Host = cfg.Postgres.Host
	}
	if cfg.Postgres.Port != 0 {
		pc.Port = cfg.Postgres.Port
	}
	if cfg.Postgres.User != "" {
		pc.User = cfg.Postgres.User
	}
	if cfg.Postgres.Password != "" {
		pc.Password = cfg.Postgres.Password
	}
	if cfg.Postgres.Database != "" {
		pc.Database = cfg.Postgres.Database
	}
	if cfg.Postgres.SSLMode != "" {
		pc.SSLMode = cfg.Postgres.SSLMode
	}
	return pc
}
