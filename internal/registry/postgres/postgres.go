// Package postgres implements the Registry Store (internal/registry.Store)
// on top of PostgreSQL using database/sql and lib/pq, grounded on the
// pack's raw-SQL store pattern rather than an ORM.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sandboxforge/orchestrator/internal/registry/postgres/migrations"
	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

// Store implements registry.Store on top of a *sql.DB.
type Store struct {
	db *sql.DB
}

// Open connects to databaseURL, applies the embedded schema migrations, and
// returns a ready Store. The caller owns the returned Store's lifetime and
// must call Close when done.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "open registry database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "ping registry database", err)
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "apply registry migrations", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB without applying migrations or pinging
// it, for use by tests that inject a sqlmock connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, record *sandbox.Record) error {
	cfg, err := json.Marshal(record.Config)
	if err != nil {
		return sandbox.Wrap(sandbox.KindInternal, "marshal sandbox config", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sandboxes
			(sandbox_id, user_id, container_id, status, hot_path, cold_path, cwd, config,
			 ttl_seconds, expires_at, last_heartbeat_at, stopped_at, stop_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		record.SandboxID, record.UserID, record.ContainerID, string(record.Status),
		record.HotPath, record.ColdPath, record.CWD, cfg,
		record.TTLSeconds, toNullTime(record.ExpiresAt), toNullTime(record.LastHeartbeatAt),
		toNullTime(record.StoppedAt), string(record.StopReason), record.CreatedAt, record.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sandbox.Wrap(sandbox.KindConflict, "sandbox_id already exists", err)
	}
	if err != nil {
		return sandbox.Wrap(sandbox.KindStoreUnavailable, "save sandbox record", err)
	}
	return nil
}

const selectColumns = `
	sandbox_id, user_id, container_id, status, hot_path, cold_path, cwd, config,
	ttl_seconds, expires_at, last_heartbeat_at, stopped_at, stop_reason, created_at, updated_at
`

func (s *Store) Get(ctx context.Context, id string) (*sandbox.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sandboxes WHERE sandbox_id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "get sandbox record", err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*sandbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM sandboxes
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "list sandbox records", err)
	}
	defer rows.Close()

	var out []*sandbox.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "scan sandbox record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "iterate sandbox records", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, patch sandbox.Patch) (*sandbox.Record, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(existing)
	existing.UpdatedAt = time.Now().UTC()

	cfg, err := json.Marshal(existing.Config)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindInternal, "marshal sandbox config", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sandboxes
		SET container_id = $2, status = $3, cwd = $4, config = $5, ttl_seconds = $6,
		    expires_at = $7, last_heartbeat_at = $8, stopped_at = $9, stop_reason = $10, updated_at = $11
		WHERE sandbox_id = $1
	`,
		existing.SandboxID, existing.ContainerID, string(existing.Status), existing.CWD, cfg,
		existing.TTLSeconds, toNullTime(existing.ExpiresAt), toNullTime(existing.LastHeartbeatAt),
		toNullTime(existing.StoppedAt), string(existing.StopReason), existing.UpdatedAt,
	)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "update sandbox record", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	return existing, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sandboxes WHERE sandbox_id = $1`, id)
	if err != nil {
		return sandbox.Wrap(sandbox.KindStoreUnavailable, "delete sandbox record", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sandbox.New(sandbox.KindNotFound, "sandbox not found")
	}
	return nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*sandbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM sandboxes
		WHERE status IN ($1, $2) AND expires_at IS NOT NULL AND expires_at <= $3
		ORDER BY expires_at
	`, string(sandbox.StatusReady), string(sandbox.StatusRunning), now)
	if err != nil {
		return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "list expired sandbox records", err)
	}
	defer rows.Close()

	var out []*sandbox.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, sandbox.Wrap(sandbox.KindStoreUnavailable, "scan expired sandbox record", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*sandbox.Record, error) {
	var (
		rec         sandbox.Record
		status      string
		stopReason  string
		cfg         []byte
		expiresAt   sql.NullTime
		lastHeartbt sql.NullTime
		stoppedAt   sql.NullTime
	)

	if err := row.Scan(
		&rec.SandboxID, &rec.UserID, &rec.ContainerID, &status, &rec.HotPath, &rec.ColdPath, &rec.CWD, &cfg,
		&rec.TTLSeconds, &expiresAt, &lastHeartbt, &stoppedAt, &stopReason, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = sandbox.Status(status)
	rec.StopReason = sandbox.StopReason(stopReason)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &rec.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	rec.ExpiresAt = fromNullTime(expiresAt)
	rec.LastHeartbeatAt = fromNullTime(lastHeartbt)
	rec.StoppedAt = fromNullTime(stoppedAt)
	return &rec, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), detected without importing lib/pq's Error type so the
// check also degrades gracefully against sqlmock-injected errors in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type sqlStater interface{ SQLState() string }
	if s, ok := err.(sqlStater); ok {
		return s.SQLState() == "23505"
	}
	return false
}
