//go:build integration

package integration

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/quell/internal/core"
	"github.com/opsline/quell/internal/core/model"
	"github.com/opsline/quell/internal/store"
	"github.com/opsline/quell/internal/vector"
)

func newStore(t *testing.T) *store.Postgres {
	t.Helper()
	_ = godotenv.Load("../../.env")

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		t.Skip("Skipping integration test: POSTGRES_HOST not set")
	}

	cfg := store.DefaultConfig()
	cfg.Host = host
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		require.NoError(t, err)
		cfg.Port = port
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Database = v
	}

	pg, err := store.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	return pg
}

// textEmbedder maps text deterministically onto a vector so similarity is
// reproducible without an embedding provider. The leading incident-id
// field is dropped before hashing, so two events with the same content
// but different ids embed identically and everything else lands in an
// orthogonal direction.
type textEmbedder struct{}

func (textEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if i := strings.Index(text, " | "); i >= 0 {
		text = text[i+3:]
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	vec := make([]float32, 32)
	vec[h.Sum32()%32] = 1
	return vec, nil
}

func newEngine(pg *store.Postgres) *core.Engine {
	return core.NewEngine(pg, textEmbedder{}, vector.NewMemory(), nil, core.DefaultThreshold)
}

func TestSubmitLifecycle(t *testing.T) {
	pg := newStore(t)
	engine := newEngine(pg)
	ctx := context.Background()

	id := "it-" + uuid.New().String()
	raw := model.RawEvent{
		"incident_id": id,
		"policy_name": "cpu-high",
		"severity":    "critical",
		"summary":     "integration test incident " + id,
	}

	dec, err := engine.Submit(ctx, raw, core.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, dec.Status)
	assert.Equal(t, id, dec.IncidentID)

	rec, err := pg.FetchByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cpu-high", rec.PolicyName)
	assert.Equal(t, "critical", rec.Severity)
	assert.NotEmpty(t, rec.Payload)

	// Same id again, regardless of content: exact duplicate.
	raw["summary"] = "changed content"
	dec, err = engine.Submit(ctx, raw, core.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDuplicateExact, dec.Status)
	assert.Equal(t, id, dec.IncidentID)
}

func TestSemanticDuplicateAcrossIDs(t *testing.T) {
	pg := newStore(t)
	engine := newEngine(pg)
	ctx := context.Background()

	suffix := uuid.New().String()
	base := model.RawEvent{
		"incident_id": "it-a-" + suffix,
		"summary":     "disk pressure " + suffix,
	}
	dec, err := engine.Submit(ctx, base, core.Options{})
	require.NoError(t, err)
	require.Equal(t, model.StatusNew, dec.Status)

	// Different id, identical content: embeds onto the same vector and
	// folds into the first incident.
	twin := model.RawEvent{
		"incident_id": "it-b-" + suffix,
		"summary":     "disk pressure " + suffix,
	}
	dec2, err := engine.Submit(ctx, twin, core.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDuplicateSemantic, dec2.Status)
	assert.Equal(t, dec.IncidentID, dec2.IncidentID)
}

func TestAuditInsertIdempotent(t *testing.T) {
	pg := newStore(t)
	ctx := context.Background()

	rec := model.CanonicalRecord{
		IncidentID: "it-audit-" + uuid.New().String(),
		Summary:    "audit idempotency",
	}
	require.NoError(t, pg.InsertAudit(ctx, rec))

	before, err := pg.AuditCount(ctx)
	require.NoError(t, err)

	require.NoError(t, pg.InsertAudit(ctx, rec))
	after, err := pg.AuditCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCleanedInsertConflict(t *testing.T) {
	pg := newStore(t)
	ctx := context.Background()

	rec := model.CanonicalRecord{IncidentID: "it-conflict-" + uuid.New().String()}
	require.NoError(t, pg.InsertCleaned(ctx, rec))

	err := pg.InsertCleaned(ctx, rec)
	assert.True(t, errors.Is(err, store.ErrConflict))
}

func TestFetchUnknownIncident(t *testing.T) {
	pg := newStore(t)

	_, err := pg.FetchByID(context.Background(), "it-missing-"+uuid.New().String())
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCountsAndSummary(t *testing.T) {
	pg := newStore(t)
	engine := newEngine(pg)
	ctx := context.Background()

	id := "it-counts-" + uuid.New().String()
	_, err := engine.Submit(ctx, model.RawEvent{"incident_id": id, "severity": "warning"}, core.Options{})
	require.NoError(t, err)

	counts, err := pg.Counts(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, counts.TotalAlerts, 1)
	assert.GreaterOrEqual(t, counts.SeverityCounts["warning"], 1)

	summary, err := pg.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts.TotalAlerts, summary.TotalAlerts)
	assert.Equal(t, store.Reduction(counts.TotalAlerts, counts.TotalDuplicates), summary.Reduction)
}

func TestChatMessageRoundTrip(t *testing.T) {
	pg := newStore(t)
	ctx := context.Background()

	id := "it-chat-" + uuid.New().String()
	msg, err := pg.InsertChatMessage(ctx, id, "what happened?", "disk filled up")
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	history, err := pg.ChatHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "what happened?", history[0].Query)
	assert.Equal(t, "disk filled up", history[0].Response)
}
