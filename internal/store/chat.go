package store

import (
	"context"
	"fmt"
	"time"
)

// ChatMessage is one stored question/answer pair attached to an incident.
type ChatMessage struct {
	ID         int64     `json:"id"`
	IncidentID string    `json:"incident_id"`
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	Timestamp  time.Time `json:"timestamp"`
}

// InsertChatMessage persists a query/response pair and returns the row as
// stored, with the database-assigned id and timestamp.
func (p *Postgres) InsertChatMessage(ctx context.Context, incidentID, query, response string) (*ChatMessage, error) {
	var msg ChatMessage
	err := p.db.QueryRow(ctx, `
		INSERT INTO chat_messages (incident_id, query, response)
		VALUES ($1, $2, $3)
		RETURNING id, incident_id, query, response, created_at`,
		incidentID, query, response,
	).Scan(&msg.ID, &msg.IncidentID, &msg.Query, &msg.Response, &msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return &msg, nil
}

// ChatHistory returns all chat messages for an incident, oldest first.
func (p *Postgres) ChatHistory(ctx context.Context, incidentID string) ([]ChatMessage, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, incident_id, query, response, created_at
		FROM chat_messages
		WHERE incident_id = $1
		ORDER BY created_at`,
		incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.IncidentID, &msg.Query, &msg.Response, &msg.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
