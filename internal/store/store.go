// Package store is the Postgres adapter behind the dedup engine: the audit
// trail, the cleaned (one-per-incident) table, the append-only duplicate
// table, and the aggregate queries the API serves.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsline/quell/internal/core/model"
)

var (
	// ErrNotFound: no cleaned record for the requested incident id.
	ErrNotFound = errors.New("store: incident not found")

	// ErrConflict: a cleaned record with this incident id already exists.
	// The engine recovers from this; it is not a request failure.
	ErrConflict = errors.New("store: incident already exists")
)

// uniqueViolation is the Postgres error code for duplicate primary keys.
const uniqueViolation = "23505"

// Store is the slice of the adapter the dedup engine consumes. The gin
// layer uses the concrete *Postgres, which also carries the aggregate and
// chat queries.
type Store interface {
	InsertAudit(ctx context.Context, rec model.CanonicalRecord) error
	InsertCleaned(ctx context.Context, rec model.CanonicalRecord) error
	InsertDuplicate(ctx context.Context, originalID string, rec model.CanonicalRecord) error
	FetchByID(ctx context.Context, incidentID string) (*model.CanonicalRecord, error)
	AuditCount(ctx context.Context) (int, error)
	AuditBatch(ctx context.Context, limit, offset int) ([]model.CanonicalRecord, error)
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// Config holds Postgres connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "quell",
		User:     "quell",
		SSLMode:  "prefer",
		MaxConns: 25,
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every store
// method works unchanged inside a backfill batch transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the relational store. Safe for concurrent use; all state is
// the pooled connection set.
type Postgres struct {
	pool *pgxpool.Pool
	db   querier
}

// New connects, pings, and bootstraps the schema.
func New(ctx context.Context, cfg *Config) (*Postgres, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Postgres{pool: pool, db: pool}, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// WithTx runs fn against a transaction-bound copy of the store. Rolls back
// on error, commits otherwise. The backfill uses this for one commit per
// batch.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Postgres{pool: p.pool, db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const recordColumns = `incident_id, observed_value, policy_name, condition_name,
	subject, display_name, severity, summary, payload, created_at`

func recordArgs(rec model.CanonicalRecord) []any {
	return []any{
		rec.IncidentID,
		nullable(rec.ObservedValue),
		nullable(rec.PolicyName),
		nullable(rec.ConditionName),
		nullable(rec.Subject),
		nullable(rec.DisplayName),
		nullable(rec.Severity),
		nullable(rec.Summary),
		payloadArg(rec),
		rec.CreatedAt,
	}
}

// InsertAudit appends to the audit trail. Idempotent: replaying an already
// recorded incident id is a no-op, never an error.
func (p *Postgres) InsertAudit(ctx context.Context, rec model.CanonicalRecord) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO audit_events (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (incident_id) DO NOTHING`,
		recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// InsertCleaned creates the canonical record for a new incident. A primary
// key conflict surfaces as ErrConflict so the engine can reclassify the
// event instead of failing the request.
func (p *Postgres) InsertCleaned(ctx context.Context, rec model.CanonicalRecord) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO incidents (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		recordArgs(rec)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert cleaned incident: %w", err)
	}
	return nil
}

// InsertDuplicate records rec as a later occurrence of originalID. The
// duplicate row carries the incoming event's own fields and payload but
// references the canonical incident. No uniqueness; always appends.
func (p *Postgres) InsertDuplicate(ctx context.Context, originalID string, rec model.CanonicalRecord) error {
	args := recordArgs(rec)
	args[0] = originalID
	_, err := p.db.Exec(ctx, `
		INSERT INTO incident_duplicates (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to insert duplicate: %w", err)
	}
	return nil
}

// FetchByID returns the cleaned record for an incident, or ErrNotFound.
func (p *Postgres) FetchByID(ctx context.Context, incidentID string) (*model.CanonicalRecord, error) {
	row := p.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM incidents
		WHERE incident_id = $1`,
		incidentID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch incident %s: %w", incidentID, err)
	}
	return rec, nil
}

// FetchAll returns every cleaned incident, latest first.
func (p *Postgres) FetchAll(ctx context.Context) ([]model.CanonicalRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM incidents
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incidents: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AuditCount returns the number of audit rows, for backfill progress.
func (p *Postgres) AuditCount(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}

// AuditBatch pages through the audit trail in incident order (oldest
// first), so backfill replays events in the order they arrived.
func (p *Postgres) AuditBatch(ctx context.Context, limit, offset int) ([]model.CanonicalRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM audit_events
		ORDER BY created_at, incident_id
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit batch: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]model.CanonicalRecord, error) {
	var recs []model.CanonicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanRecord(row pgx.Row) (*model.CanonicalRecord, error) {
	var (
		rec                                  model.CanonicalRecord
		observed, policy, condition, subject *string
		display, severity, summary           *string
		payload                              []byte
		createdAt                            time.Time
	)
	err := row.Scan(&rec.IncidentID, &observed, &policy, &condition,
		&subject, &display, &severity, &summary, &payload, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.ObservedValue = deref(observed)
	rec.PolicyName = deref(policy)
	rec.ConditionName = deref(condition)
	rec.Subject = deref(subject)
	rec.DisplayName = deref(display)
	rec.Severity = deref(severity)
	rec.Summary = deref(summary)
	rec.Payload = payload
	rec.CreatedAt = createdAt
	return &rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func payloadArg(rec model.CanonicalRecord) any {
	if len(rec.Payload) == 0 {
		return nil
	}
	return rec.Payload
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
