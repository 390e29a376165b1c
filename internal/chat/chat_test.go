package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsline/quell/internal/core/model"
	"github.com/opsline/quell/internal/store"
)

type mockStorage struct {
	records  map[string]model.CanonicalRecord
	messages []store.ChatMessage
}

func (m *mockStorage) FetchByID(ctx context.Context, incidentID string) (*model.CanonicalRecord, error) {
	rec, ok := m.records[incidentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *mockStorage) InsertChatMessage(ctx context.Context, incidentID, query, response string) (*store.ChatMessage, error) {
	msg := store.ChatMessage{
		ID:         int64(len(m.messages) + 1),
		IncidentID: incidentID,
		Query:      query,
		Response:   response,
		Timestamp:  time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *mockStorage) ChatHistory(ctx context.Context, incidentID string) ([]store.ChatMessage, error) {
	var out []store.ChatMessage
	for _, msg := range m.messages {
		if msg.IncidentID == incidentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type mockGenerator struct {
	lastPrompt string
	response   string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.lastPrompt = prompt
	return m.response, nil
}

func TestAskUsesIncidentContext(t *testing.T) {
	storage := &mockStorage{records: map[string]model.CanonicalRecord{
		"inc-1": {IncidentID: "inc-1", Severity: "critical", Summary: "CPU above 90%"},
	}}
	gen := &mockGenerator{response: "critical"}
	svc := NewService(storage, gen, "")

	msg, err := svc.Ask(context.Background(), "inc-1", "what severity?")
	require.NoError(t, err)

	assert.Equal(t, "critical", msg.Response)
	assert.Equal(t, "inc-1", msg.IncidentID)
	assert.True(t, strings.Contains(gen.lastPrompt, "severity: critical"))
	assert.True(t, strings.Contains(gen.lastPrompt, "what severity?"))
}

func TestAskUnknownIncident(t *testing.T) {
	storage := &mockStorage{records: map[string]model.CanonicalRecord{}}
	gen := &mockGenerator{response: "No relevant information found."}
	svc := NewService(storage, gen, "")

	msg, err := svc.Ask(context.Background(), "nope", "anything?")
	require.NoError(t, err)

	assert.True(t, strings.Contains(gen.lastPrompt, "No related incident found."))
	assert.Equal(t, "No relevant information found.", msg.Response)
}

func TestHistoryPerIncident(t *testing.T) {
	storage := &mockStorage{records: map[string]model.CanonicalRecord{
		"inc-1": {IncidentID: "inc-1"},
		"inc-2": {IncidentID: "inc-2"},
	}}
	svc := NewService(storage, &mockGenerator{response: "ok"}, "")
	ctx := context.Background()

	_, err := svc.Ask(ctx, "inc-1", "q1")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, "inc-2", "q2")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, "inc-1", "q3")
	require.NoError(t, err)

	history, err := svc.History(ctx, "inc-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "q1", history[0].Query)
	assert.Equal(t, "q3", history[1].Query)
}
