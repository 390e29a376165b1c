// Package core implements the deduplication decision engine: the policy
// that classifies each incoming event as a new incident, an exact repeat,
// or a semantic near-duplicate, and the writes that keep the relational
// record set and the vector index consistent with that decision.
package core

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/opsline/quell/internal/core/model"
	"github.com/opsline/quell/internal/core/normalize"
	"github.com/opsline/quell/internal/llm"
	"github.com/opsline/quell/internal/store"
	"github.com/opsline/quell/internal/vector"
)

// DefaultThreshold is the similarity score at or above which two
// embeddings are treated as the same incident.
const DefaultThreshold = 0.85

// Engine orchestrates one ingestion decision. It holds no state of its
// own; concurrency control for same-id races is delegated to the store's
// primary key (see storeCleaned).
type Engine struct {
	Store      store.Store
	Embedder   llm.EmbedderClient
	Index      vector.Index
	Normalizer *normalize.Normalizer
	Threshold  float64
}

// Options are the per-call knobs decided at the entry point, not inside
// the engine. RecordAudit is always on for backfill; the live path reads
// it from config.
type Options struct {
	RecordAudit bool
}

func NewEngine(s store.Store, embedder llm.EmbedderClient, index vector.Index, n *normalize.Normalizer, threshold float64) *Engine {
	if n == nil {
		n = normalize.New(nil)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		Store:      s,
		Embedder:   embedder,
		Index:      index,
		Normalizer: n,
		Threshold:  threshold,
	}
}

// Submit classifies one raw event and persists the outcome.
//
// Failures of the embedding provider or the vector index degrade the
// decision rather than failing the request; only relational-store errors
// propagate to the caller.
func (e *Engine) Submit(ctx context.Context, raw model.RawEvent, opts Options) (*model.Decision, error) {
	rec := e.Normalizer.Normalize(raw)
	if rec.IncidentID == "" {
		rec.IncidentID = uuid.New().String()
	}

	// Exact match on the event's own incident id is terminal.
	existing, err := e.Store.FetchByID(ctx, rec.IncidentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if err := e.Store.InsertDuplicate(ctx, existing.IncidentID, rec); err != nil {
			return nil, err
		}
		return &model.Decision{
			Status:     model.StatusDuplicateExact,
			IncidentID: existing.IncidentID,
			Message:    fmt.Sprintf("incident %s already exists", existing.IncidentID),
		}, nil
	}

	if opts.RecordAudit {
		if err := e.Store.InsertAudit(ctx, rec); err != nil {
			return nil, err
		}
	}

	vec, err := e.embed(ctx, rec)
	if err != nil || len(vec) == 0 {
		// Availability over consistency: the record is kept, dedup for it
		// is silently weakened until a backfill re-embeds the audit trail.
		if err != nil {
			log.Printf("embedding unavailable for incident %s: %v", rec.IncidentID, err)
		}
		return e.storeCleaned(ctx, rec, nil)
	}

	if match := e.topMatch(ctx, vec); match != nil && match.Similarity >= e.Threshold {
		if err := e.Store.InsertDuplicate(ctx, match.IncidentID, rec); err != nil {
			return nil, err
		}
		return &model.Decision{
			Status:     model.StatusDuplicateSemantic,
			IncidentID: match.IncidentID,
			Message:    fmt.Sprintf("matches existing incident %s (similarity %.2f)", match.IncidentID, match.Similarity),
		}, nil
	}

	return e.storeCleaned(ctx, rec, vec)
}

// storeCleaned creates the cleaned record and, when a vector is available,
// the matching index entry. A primary-key conflict means a concurrent
// submission with the same id committed first: the event is reclassified
// as an exact duplicate of that incident instead of failing.
func (e *Engine) storeCleaned(ctx context.Context, rec model.CanonicalRecord, vec []float32) (*model.Decision, error) {
	err := e.Store.InsertCleaned(ctx, rec)
	if errors.Is(err, store.ErrConflict) {
		if err := e.Store.InsertDuplicate(ctx, rec.IncidentID, rec); err != nil {
			return nil, err
		}
		return &model.Decision{
			Status:     model.StatusDuplicateExact,
			IncidentID: rec.IncidentID,
			Message:    fmt.Sprintf("incident %s was created concurrently", rec.IncidentID),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if vec == nil {
		return &model.Decision{
			Status:     model.StatusUniqueDegraded,
			IncidentID: rec.IncidentID,
			Message:    "stored without dedup (embedding unavailable)",
		}, nil
	}

	// An index write failure only widens the vector/cleaned gap in the
	// allowed direction; the incident itself is already committed.
	if err := e.Index.Store(ctx, vec, entryFor(rec)); err != nil {
		log.Printf("vector store failed for incident %s: %v", rec.IncidentID, err)
	}

	return &model.Decision{
		Status:     model.StatusNew,
		IncidentID: rec.IncidentID,
		Message:    fmt.Sprintf("new incident %s created", rec.IncidentID),
	}, nil
}

// embed builds the text representation and calls the embedding provider.
// A nil embedder (providers without embedding support) counts as a
// provider failure, so ingestion still proceeds degraded.
func (e *Engine) embed(ctx context.Context, rec model.CanonicalRecord) ([]float32, error) {
	if e.Embedder == nil {
		return nil, nil
	}
	return e.Embedder.Embed(ctx, normalize.Text(rec))
}

// topMatch returns the single nearest neighbor, or nil when the index has
// no entries or is unavailable. Only the top hit is ever consulted.
func (e *Engine) topMatch(ctx context.Context, vec []float32) *vector.Match {
	matches, err := e.Index.Search(ctx, vec, 1)
	if err != nil {
		log.Printf("vector search failed, treating as no match: %v", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

func entryFor(rec model.CanonicalRecord) vector.Entry {
	return vector.Entry{
		IncidentID:    rec.IncidentID,
		ObservedValue: rec.ObservedValue,
		PolicyName:    rec.PolicyName,
		ConditionName: rec.ConditionName,
		Subject:       rec.Subject,
		DisplayName:   rec.DisplayName,
		Severity:      rec.Severity,
		Summary:       rec.Summary,
	}
}
