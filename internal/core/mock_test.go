package core

import (
	"context"
	"errors"

	"github.com/opsline/quell/internal/core/model"
	"github.com/opsline/quell/internal/store"
	"github.com/opsline/quell/internal/vector"
)

// MockStore is an in-memory store.Store with the same conflict and
// idempotency semantics as the Postgres adapter.
type MockStore struct {
	Cleaned    map[string]model.CanonicalRecord
	Duplicates []DuplicateRow
	AuditRows  []model.CanonicalRecord

	InsertCleanedErr error // forced failure, overrides normal behavior
	FetchErr         error
	TxCalls          int
}

type DuplicateRow struct {
	OriginalID string
	Rec        model.CanonicalRecord
}

func NewMockStore() *MockStore {
	return &MockStore{Cleaned: map[string]model.CanonicalRecord{}}
}

func (m *MockStore) InsertAudit(ctx context.Context, rec model.CanonicalRecord) error {
	for _, existing := range m.AuditRows {
		if existing.IncidentID == rec.IncidentID {
			return nil // idempotent
		}
	}
	m.AuditRows = append(m.AuditRows, rec)
	return nil
}

func (m *MockStore) InsertCleaned(ctx context.Context, rec model.CanonicalRecord) error {
	if m.InsertCleanedErr != nil {
		return m.InsertCleanedErr
	}
	if _, ok := m.Cleaned[rec.IncidentID]; ok {
		return store.ErrConflict
	}
	m.Cleaned[rec.IncidentID] = rec
	return nil
}

func (m *MockStore) InsertDuplicate(ctx context.Context, originalID string, rec model.CanonicalRecord) error {
	m.Duplicates = append(m.Duplicates, DuplicateRow{OriginalID: originalID, Rec: rec})
	return nil
}

func (m *MockStore) FetchByID(ctx context.Context, incidentID string) (*model.CanonicalRecord, error) {
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	rec, ok := m.Cleaned[incidentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *MockStore) AuditCount(ctx context.Context) (int, error) {
	return len(m.AuditRows), nil
}

func (m *MockStore) AuditBatch(ctx context.Context, limit, offset int) ([]model.CanonicalRecord, error) {
	if offset >= len(m.AuditRows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.AuditRows) {
		end = len(m.AuditRows)
	}
	return m.AuditRows[offset:end], nil
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	m.TxCalls++
	return fn(m)
}

// MockEmbedder returns Fn(text) when set, otherwise Vector/Err.
type MockEmbedder struct {
	Fn     func(text string) ([]float32, error)
	Vector []float32
	Err    error
	Calls  int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.Fn != nil {
		return m.Fn(text)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Vector, nil
}

// MockIndex returns canned matches, for exercising exact threshold
// boundaries that real cosine arithmetic cannot hit.
type MockIndex struct {
	Matches   []vector.Match
	SearchErr error
	StoreErr  error

	Stored     []vector.Entry
	ResetCalls int
}

func (m *MockIndex) Store(ctx context.Context, vec []float32, entry vector.Entry) error {
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.Stored = append(m.Stored, entry)
	return nil
}

func (m *MockIndex) Search(ctx context.Context, vec []float32, k int) ([]vector.Match, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if len(m.Matches) > k {
		return m.Matches[:k], nil
	}
	return m.Matches, nil
}

func (m *MockIndex) Reset(ctx context.Context) error {
	m.ResetCalls++
	m.Stored = nil
	m.Matches = nil
	return nil
}

var errProviderDown = errors.New("provider down")
