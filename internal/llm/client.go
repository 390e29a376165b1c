package llm

import (
	"context"
)

// LLMClient generates chat answers for the incident Q&A feature.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedderClient turns embedding text into a fixed-dimension vector. The
// engine treats any error (or an empty vector) as "provider unavailable"
// and degrades instead of failing ingestion.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
