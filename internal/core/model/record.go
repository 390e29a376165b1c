package model

import (
	"encoding/json"
	"time"
)

// RawEvent is an incoming alert/log payload as received from an upstream
// source. Shapes vary per source; unknown fields are kept and stored as the
// record's payload blob.
type RawEvent map[string]interface{}

// CanonicalRecord is the normalized form of a raw event. All string fields
// are optional; empty means the source did not carry the field.
type CanonicalRecord struct {
	IncidentID    string          `json:"incident_id"`
	ObservedValue string          `json:"observed_value,omitempty"`
	PolicyName    string          `json:"policy_name,omitempty"`
	ConditionName string          `json:"condition_name,omitempty"`
	Subject       string          `json:"subject,omitempty"`
	DisplayName   string          `json:"display_name,omitempty"`
	Severity      string          `json:"severity,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
