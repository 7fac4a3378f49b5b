package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"edgestat/domain/core"
	"edgestat/domain/run"
	"edgestat/ports"
)

// RunRepository persists run manifests, lifecycle status, and result
// matrices.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// SaveManifest records a new run in pending state.
func (r *RunRepository) SaveManifest(ctx context.Context, m *run.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	query := `
		INSERT INTO runs (
			run_id, created_at, status, algorithm, permutations, hypotheses,
			fingerprint, manifest
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		m.RunID.String(),
		m.CreatedAt.Time(),
		string(ports.RunPending),
		string(m.Config.Algorithm),
		m.Config.Permutations,
		m.Shape.Hypotheses,
		m.Fingerprint,
		manifestJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", m.RunID, err)
	}
	return nil
}

// SetStatus advances the run lifecycle.
func (r *RunRepository) SetStatus(ctx context.Context, id core.RunID, status ports.RunStatus, note string) error {
	query := `
		UPDATE runs
		SET status = $2, status_note = $3, updated_at = $4
		WHERE run_id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String(), string(status), note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update status of run %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update of run %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", id, core.ErrRunNotFound)
	}
	return nil
}

// SaveResult stores the result document and the listing summary column
// in one transaction.
func (r *RunRepository) SaveResult(ctx context.Context, res *run.Result) error {
	resultJSON, err := json.Marshal(newResultRecord(res))
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := res.Manifest.RunID.String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_results (run_id, result, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET result = $2, saved_at = $3`,
		id, resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert result of run %s: %w", id, err)
	}

	minP := sql.NullFloat64{}
	if v := res.MinFWEP(); !math.IsNaN(v) {
		minP = sql.NullFloat64{Float64: v, Valid: true}
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE runs SET min_fwe_pvalue = $2, updated_at = $3 WHERE run_id = $1`,
		id, minP, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update summary of run %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("run %s: %w", id, core.ErrRunNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result of run %s: %w", id, err)
	}
	return nil
}

// GetManifest retrieves a run manifest by id.
func (r *RunRepository) GetManifest(ctx context.Context, id core.RunID) (*run.Manifest, error) {
	var manifestJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT manifest FROM runs WHERE run_id = $1`, id.String(),
	).Scan(&manifestJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s: %w", id, core.ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to get manifest of run %s: %w", id, err)
	}

	var m run.Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest of run %s: %w", id, err)
	}
	return &m, nil
}

// GetResult retrieves the stored result for a finished run.
func (r *RunRepository) GetResult(ctx context.Context, id core.RunID) (*run.Result, error) {
	query := `
		SELECT r.manifest, res.result
		FROM runs r
		JOIN run_results res ON res.run_id = r.run_id
		WHERE r.run_id = $1`

	var manifestJSON, resultJSON []byte
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(&manifestJSON, &resultJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s: %w", id, core.ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to get result of run %s: %w", id, err)
	}

	var m run.Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest of run %s: %w", id, err)
	}
	var rec resultRecord
	if err := json.Unmarshal(resultJSON, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result of run %s: %w", id, err)
	}
	res, err := rec.result(&m)
	if err != nil {
		return nil, fmt.Errorf("stored result of run %s is corrupt: %w", id, err)
	}
	return res, nil
}

// ListRuns returns summaries of stored runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	query, args := buildListQuery(filters)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []ports.RunSummary
	for rows.Next() {
		var (
			s         ports.RunSummary
			id        string
			createdAt time.Time
			status    string
			algorithm string
			minP      sql.NullFloat64
		)
		if err := rows.Scan(&id, &createdAt, &status, &algorithm, &s.Permutations, &s.Hypotheses, &minP); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		s.ID = core.RunID(id)
		s.CreatedAt = core.NewTimestamp(createdAt)
		s.Status = ports.RunStatus(status)
		s.Algorithm = run.Algorithm(algorithm)
		s.MinFWEP = math.NaN()
		if minP.Valid {
			s.MinFWEP = minP.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// buildListQuery assembles the filtered listing query with positional
// arguments.
func buildListQuery(filters ports.RunFilters) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.Algorithm != nil {
		args = append(args, string(*filters.Algorithm))
		where = append(where, fmt.Sprintf("algorithm = $%d", len(args)))
	}

	query := `SELECT run_id, created_at, status, algorithm, permutations, hypotheses, min_fwe_pvalue FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
