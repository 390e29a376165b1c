package store

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Counts is the dashboard counter set: cleaned incidents, duplicate rows,
// and the severity histogram over cleaned incidents only.
type Counts struct {
	TotalAlerts     int            `json:"totalAlertsCount"`
	TotalDuplicates int            `json:"totalDuplicateCount"`
	SeverityCounts  map[string]int `json:"severityCounts"`
}

// SummaryReport adds the noise-reduction percentage to the counters.
type SummaryReport struct {
	TotalAlerts    int            `json:"totalAlerts"`
	Duplicates     int            `json:"duplicates"`
	Reduction      float64        `json:"reduction"`
	SeverityCounts map[string]int `json:"severityCounts"`
}

// GroupedEntry is one occurrence in a per-incident timeline: the cleaned
// record itself plus every duplicate folded into it.
type GroupedEntry struct {
	Source    string    `json:"source"` // "cleaned" or "duplicate"
	Severity  string    `json:"severity,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Postgres) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{SeverityCounts: map[string]int{}}

	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&c.TotalAlerts); err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM incident_duplicates`).Scan(&c.TotalDuplicates); err != nil {
		return nil, fmt.Errorf("failed to count duplicates: %w", err)
	}

	rows, err := p.db.Query(ctx, `
		SELECT COALESCE(severity, ''), COUNT(*)
		FROM incidents
		GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to build severity histogram: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, err
		}
		c.SeverityCounts[severity] = n
	}
	return c, rows.Err()
}

func (p *Postgres) Summary(ctx context.Context) (*SummaryReport, error) {
	counts, err := p.Counts(ctx)
	if err != nil {
		return nil, err
	}
	return &SummaryReport{
		TotalAlerts:    counts.TotalAlerts,
		Duplicates:     counts.TotalDuplicates,
		Reduction:      Reduction(counts.TotalAlerts, counts.TotalDuplicates),
		SeverityCounts: counts.SeverityCounts,
	}, nil
}

// Reduction is the share of ingested events absorbed as duplicates:
// duplicates / (cleaned + duplicates) * 100, rounded to two decimals.
// Zero when nothing has been ingested.
func Reduction(cleaned, duplicates int) float64 {
	total := cleaned + duplicates
	if total == 0 {
		return 0
	}
	return math.Round(float64(duplicates)/float64(total)*100*100) / 100
}

// FetchGrouped folds cleaned and duplicate rows into per-incident
// timelines, newest rows first within each source.
func (p *Postgres) FetchGrouped(ctx context.Context) (map[string][]GroupedEntry, error) {
	grouped := map[string][]GroupedEntry{}

	cleaned, err := p.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range cleaned {
		grouped[rec.IncidentID] = []GroupedEntry{{
			Source:    "cleaned",
			Severity:  rec.Severity,
			Summary:   rec.Summary,
			Timestamp: rec.CreatedAt,
		}}
	}

	rows, err := p.db.Query(ctx, `
		SELECT incident_id, COALESCE(severity, ''), COALESCE(summary, ''), created_at
		FROM incident_duplicates
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch duplicates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var entry GroupedEntry
		entry.Source = "duplicate"
		if err := rows.Scan(&id, &entry.Severity, &entry.Summary, &entry.Timestamp); err != nil {
			return nil, err
		}
		grouped[id] = append(grouped[id], entry)
	}
	return grouped, rows.Err()
}
