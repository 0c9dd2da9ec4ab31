// Package analysis persists completed optimization and risk results so they
// can be retrieved later without recomputation.
package analysis

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/domain"
)

// Kind labels what produced a stored result
type Kind string

const (
	KindOptimization Kind = "optimization"
	KindFrontier     Kind = "frontier"
	KindRisk         Kind = "risk"
	KindSimulation   Kind = "simulation"
)

// Record is one stored analysis result. Result holds the engine's output,
// serialized as msgpack in the database.
type Record struct {
	ID        string      `json:"id"`
	Kind      Kind        `json:"kind"`
	Symbols   []string    `json:"symbols"`
	CreatedAt time.Time   `json:"created_at"`
	Result    interface{} `json:"result"`
}

// Repository stores analysis records in the analytics database
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates the analysis repository and ensures its schema exists
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	repo := &Repository{
		db:  db,
		log: log.With().Str("component", "analysis_repo").Logger(),
	}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Repository) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS analysis_results (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			symbols    TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload    BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_analysis_created_at ON analysis_results(created_at);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create analysis_results schema: %w", err)
	}
	return nil
}

// Save stores a result and returns its generated id
func (r *Repository) Save(kind Kind, symbols []string, result interface{}) (string, error) {
	id := uuid.New().String()

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize analysis payload: %w", err)
	}
	symbolsBlob, err := msgpack.Marshal(symbols)
	if err != nil {
		return "", fmt.Errorf("failed to serialize symbols: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO analysis_results (id, kind, symbols, created_at, payload)
		VALUES (?, ?, ?, ?, ?)
	`, id, string(kind), symbolsBlob, time.Now().Unix(), payload)
	if err != nil {
		return "", fmt.Errorf("failed to store analysis result: %w", err)
	}

	r.log.Debug().Str("id", id).Str("kind", string(kind)).Msg("Analysis result stored")
	return id, nil
}

// Get retrieves one record by id
func (r *Repository) Get(id string) (*Record, error) {
	var (
		rec         Record
		kind        string
		symbolsBlob []byte
		createdAt   int64
		payload     []byte
	)

	err := r.db.QueryRow(`
		SELECT id, kind, symbols, created_at, payload
		FROM analysis_results
		WHERE id = ?
	`, id).Scan(&rec.ID, &kind, &symbolsBlob, &createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: analysis %s not found", domain.ErrInvalidInput, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}

	rec.Kind = Kind(kind)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := msgpack.Unmarshal(symbolsBlob, &rec.Symbols); err != nil {
		return nil, fmt.Errorf("failed to decode symbols for %s: %w", id, err)
	}
	var result interface{}
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode payload for %s: %w", id, err)
	}
	rec.Result = result

	return &rec, nil
}

// List returns the most recent records, newest first, without payloads
func (r *Repository) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, kind, symbols, created_at
		FROM analysis_results
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec         Record
			kind        string
			symbolsBlob []byte
			createdAt   int64
		)
		if err := rows.Scan(&rec.ID, &kind, &symbolsBlob, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis record: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		if err := msgpack.Unmarshal(symbolsBlob, &rec.Symbols); err != nil {
			return nil, fmt.Errorf("failed to decode symbols: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analysis records: %w", err)
	}

	return records, nil
}

// DeleteOlderThan purges records created before the cutoff and reports how
// many were removed
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM analysis_results WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge old analysis results: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged rows: %w", err)
	}
	return deleted, nil
}
