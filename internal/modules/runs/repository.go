// Package runs persists completed analysis runs so results can be fetched
// again without recomputation.
package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotFound indicates the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one persisted analysis: the request that produced it and the full
// result, both as JSON.
type Run struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Request   json.RawMessage `json:"request"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// Repository provides access to the runs table.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "runs_repo").Logger(),
	}
}

// Save persists a run and returns its generated ID.
func (r *Repository) Save(kind string, request, result interface{}) (string, error) {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode run request: %w", err)
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode run result: %w", err)
	}

	id := uuid.New().String()
	_, err = r.db.Exec(
		"INSERT INTO runs (id, kind, request, result, created_at) VALUES (?, ?, ?, ?, ?)",
		id, kind, string(reqJSON), string(resJSON), time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	r.log.Debug().Str("run_id", id).Str("kind", kind).Msg("Saved analysis run")
	return id, nil
}

// Get fetches a run by ID.
func (r *Repository) Get(id string) (*Run, error) {
	var run Run
	var request, result string
	var createdUnix int64

	err := r.db.QueryRow(
		"SELECT id, kind, request, result, created_at FROM runs WHERE id = ?", id,
	).Scan(&run.ID, &run.Kind, &request, &result, &createdUnix)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.Request = json.RawMessage(request)
	run.Result = json.RawMessage(result)
	run.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &run, nil
}

// List returns the most recent runs, newest first, optionally filtered by
// kind.
func (r *Repository) List(kind string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, kind, request, result, created_at FROM runs"
	args := []interface{}{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var run Run
		var request, res string
		var createdUnix int64
		if err := rows.Scan(&run.ID, &run.Kind, &request, &res, &createdUnix); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Request = json.RawMessage(request)
		run.Result = json.RawMessage(res)
		run.CreatedAt = time.Unix(createdUnix, 0).UTC()
		result = append(result, run)
	}
	return result, rows.Err()
}

// PurgeOlderThan deletes runs created before the cutoff and returns the
// number removed.
func (r *Repository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec("DELETE FROM runs WHERE created_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge runs: %w", err)
	}
	return res.RowsAffected()
}
