// Package chat answers free-text questions about a stored incident using
// an LLM, strictly from the incident's own fields, and keeps the
// query/response history per incident.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opsline/quell/internal/core/model"
	"github.com/opsline/quell/internal/store"
)

const defaultPrompt = "You are a helpful assistant. " +
	"Answer the user query strictly using the provided context. " +
	"Do not explain, do not ask follow-up questions, do not add uncertainty. " +
	"Return only a single concise answer. " +
	"If the answer is found in the context, give it directly. " +
	"If not found, say 'No relevant information found.'\n\n" +
	"Context:\n%s\n\nQuery: %s\n\nAnswer:"

// Generator is the slice of llm.LLMClient the chat service needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Storage is the slice of the Postgres adapter the chat service needs.
type Storage interface {
	FetchByID(ctx context.Context, incidentID string) (*model.CanonicalRecord, error)
	InsertChatMessage(ctx context.Context, incidentID, query, response string) (*store.ChatMessage, error)
	ChatHistory(ctx context.Context, incidentID string) ([]store.ChatMessage, error)
}

type Service struct {
	Store  Storage
	LLM    Generator
	Prompt string
}

func NewService(s Storage, g Generator, prompt string) *Service {
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Service{Store: s, LLM: g, Prompt: prompt}
}

// Ask answers a question about an incident and persists the exchange. An
// unknown incident id does not fail; the model is told no incident was
// found and answers accordingly.
func (s *Service) Ask(ctx context.Context, incidentID, query string) (*store.ChatMessage, error) {
	rec, err := s.Store.FetchByID(ctx, incidentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	contextText := "No related incident found."
	if rec != nil {
		contextText = contextLines(rec)
	}

	response, err := s.LLM.Generate(ctx, fmt.Sprintf(s.Prompt, contextText, query))
	if err != nil {
		return nil, fmt.Errorf("failed to generate chat response: %w", err)
	}

	return s.Store.InsertChatMessage(ctx, incidentID, query, response)
}

// History returns all stored exchanges for an incident, oldest first.
func (s *Service) History(ctx context.Context, incidentID string) ([]store.ChatMessage, error) {
	return s.Store.ChatHistory(ctx, incidentID)
}

func contextLines(rec *model.CanonicalRecord) string {
	lines := []string{
		"incident_id: " + rec.IncidentID,
		"observed_value: " + rec.ObservedValue,
		"policy_name: " + rec.PolicyName,
		"condition_name: " + rec.ConditionName,
		"subject: " + rec.Subject,
		"display_name: " + rec.DisplayName,
		"severity: " + rec.Severity,
		"summary: " + rec.Summary,
		"created_at: " + rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	return strings.Join(lines, "\n")
}
