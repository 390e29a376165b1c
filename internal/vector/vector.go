// Package vector defines the similarity-index contract the dedup engine
// searches against, plus a brute-force in-memory implementation.
//
// The Index interface follows the same pattern as the relational store: a
// narrow interface with pluggable backends. The built-in Memory backend is
// for tests and all-in-one deployment; a client for Weaviate, Qdrant or
// similar can be swapped in without touching the engine.
package vector

import "context"

// Entry is the denormalized display data stored alongside a vector so that
// duplicate summaries can be rendered without a relational round trip.
type Entry struct {
	IncidentID    string
	ObservedValue string
	PolicyName    string
	ConditionName string
	Subject       string
	DisplayName   string
	Severity      string
	Summary       string
}

// Match is one search result. Similarity is max(0, 1 - distance) for
// whatever distance metric the backend uses, so it always lands in [0, 1]
// with 1 meaning identical.
type Match struct {
	Entry
	Similarity float64
}

// Index stores embedding vectors keyed by incident id.
//
// Store is create-only: an incident's vector is written once, when its
// cleaned record is created, and never updated. Search returns up to k
// matches ordered by descending similarity.
type Index interface {
	Store(ctx context.Context, vec []float32, entry Entry) error
	Search(ctx context.Context, vec []float32, k int) ([]Match, error)

	// Reset drops every entry. Only the backfill uses this, to rebuild the
	// index from the audit trail.
	Reset(ctx context.Context) error
}
