package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/opsline/quell/internal/core/model"
)

// FieldPaths maps a canonical field name to an ordered list of candidate
// lookup paths in the raw payload. Paths use dot notation for nested
// objects ("documentation.subject"); the first path that resolves to a
// non-empty value wins. This keeps source-shape differences out of the
// engine: a new source format is a config entry, not a code change.
type FieldPaths map[string][]string

// DefaultFieldPaths matches the monitoring-webhook shape the service was
// originally built for.
func DefaultFieldPaths() FieldPaths {
	return FieldPaths{
		"incident_id":    {"incident_id"},
		"observed_value": {"observed_value"},
		"policy_name":    {"policy_name"},
		"condition_name": {"condition_name"},
		"subject":        {"documentation.subject", "subject"},
		"display_name":   {"metric.displayName", "display_name"},
		"severity":       {"severity"},
		"summary":        {"summary"},
	}
}

// Normalizer maps raw events onto canonical records. It never fails:
// missing fields come out empty and the full raw payload is preserved as
// an opaque blob.
type Normalizer struct {
	paths FieldPaths
}

func New(paths FieldPaths) *Normalizer {
	if paths == nil {
		paths = DefaultFieldPaths()
	}
	return &Normalizer{paths: paths}
}

func (n *Normalizer) Normalize(raw model.RawEvent) model.CanonicalRecord {
	payload, _ := json.Marshal(raw)
	return model.CanonicalRecord{
		IncidentID:    n.lookup(raw, "incident_id"),
		ObservedValue: n.lookup(raw, "observed_value"),
		PolicyName:    n.lookup(raw, "policy_name"),
		ConditionName: n.lookup(raw, "condition_name"),
		Subject:       n.lookup(raw, "subject"),
		DisplayName:   n.lookup(raw, "display_name"),
		Severity:      n.lookup(raw, "severity"),
		Summary:       n.lookup(raw, "summary"),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func (n *Normalizer) lookup(raw model.RawEvent, field string) string {
	for _, path := range n.paths[field] {
		if v := extract(raw, path); v != "" {
			return v
		}
	}
	return ""
}

// extract resolves a dot path against nested maps. Non-string leaves are
// rendered through the JSON encoder so numeric observed values survive.
func extract(raw map[string]interface{}, path string) string {
	parts := strings.Split(path, ".")
	var cur interface{} = raw
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur, ok = m[p]
		if !ok {
			return ""
		}
	}

	switch v := cur.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
