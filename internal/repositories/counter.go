package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spc/internal/models"
)

// CounterRepository persists counter values and the mutations that produced them.
type CounterRepository struct {
	db *sql.DB
}

// NewCounterRepository creates a new CounterRepository with the given database connection
func NewCounterRepository(db *sql.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Load returns the stored value for key and whether the counter exists.
func (r *CounterRepository) Load(ctx context.Context, key string) (int64, bool, error) {
	var value int64
	err := r.db.QueryRowContext(ctx, "SELECT value FROM counters WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load counter %s: %w", key, err)
	}
	return value, true, nil
}

// Save stores m.Value for m.Key and appends m to the counter's history in one transaction.
func (r *CounterRepository) Save(ctx context.Context, m models.CounterMutation) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	at := m.CreatedAt.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO counters (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsert, m.Key, m.Value, at, at); err != nil {
		return fmt.Errorf("failed to save counter %s: %w", m.Key, err)
	}

	history := "INSERT INTO counter_history (key, op, amount, value, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, history, m.Key, m.Op, m.Amount, m.Value, at); err != nil {
		return fmt.Errorf("failed to record counter history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit counter %s: %w", m.Key, err)
	}
	return nil
}

// History returns up to limit of the most recent mutations of key, newest first. A non-positive limit returns all.
func (r *CounterRepository) History(ctx context.Context, key string, limit int) ([]models.CounterMutation, error) {
	query := `
		SELECT key, op, amount, value, created_at
		FROM counter_history
		WHERE key = ?
		ORDER BY id DESC
	`
	args := []any{key}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counter history: %w", err)
	}
	defer rows.Close()

	var mutations []models.CounterMutation
	for rows.Next() {
		var m models.CounterMutation
		if err := rows.Scan(&m.Key, &m.Op, &m.Amount, &m.Value, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan counter history: %w", err)
		}
		mutations = append(mutations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return mutations, nil
}
