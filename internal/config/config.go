package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type DedupConfig struct {
	// SimilarityThreshold is inclusive: a top match at exactly this score
	// is a semantic duplicate.
	SimilarityThreshold float64 `toml:"similarity_threshold"`

	// AuditLive controls whether the live ingestion path also records the
	// audit row. Backfill always audits.
	AuditLive bool `toml:"audit_live"`

	// BatchSize is the number of audit rows per backfill transaction.
	BatchSize int `toml:"batch_size"`
}

type ChatConfig struct {
	// Prompt is a template with two %s slots: incident context, query.
	Prompt string `toml:"prompt"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Postgres PostgresConfig `toml:"postgres"`
	Dedup    DedupConfig    `toml:"dedup"`
	Chat     ChatConfig     `toml:"chat"`

	// Sources maps a source format name to its field-path table:
	// canonical field -> candidate dot-paths in the raw payload.
	Sources map[string]map[string][]string `toml:"sources"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return &cfg, nil
}
