package model

// Status classifies the outcome of one ingestion.
type Status string

const (
	// StatusNew: no exact or semantic match; a cleaned record and a vector
	// entry were created.
	StatusNew Status = "new"

	// StatusDuplicateExact: the incident id already has a cleaned record.
	StatusDuplicateExact Status = "duplicate_exact"

	// StatusDuplicateSemantic: the nearest neighbor scored at or above the
	// similarity threshold.
	StatusDuplicateSemantic Status = "duplicate_semantic"

	// StatusUniqueDegraded: stored as a new incident without a vector entry
	// because the embedding provider was unavailable.
	StatusUniqueDegraded Status = "unique_degraded"
)

// Decision is the result returned for every submitted event. IncidentID is
// the canonical id: the matched incident's id for duplicates, the event's
// own (or generated) id otherwise.
type Decision struct {
	Status     Status `json:"status"`
	IncidentID string `json:"incident_id"`
	Message    string `json:"message"`
}
