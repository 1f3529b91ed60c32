package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

const checkpointColumns = `id, generation, run_id, phase, status, input, attempt, logical_time, wake_at, last_result, error, created_at, updated_at`

// InstanceRepository stores orchestrator checkpoints and the history of their current generation.
//
// The workflow input is stored as msgpack so the payload survives schema-free across generations.
type InstanceRepository struct {
	db *sql.DB
}

// NewInstanceRepository creates a new InstanceRepository with the given database connection
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Get returns the checkpoint for id or [shared.ErrInstanceNotFound].
func (r *InstanceRepository) Get(ctx context.Context, id string) (*models.Checkpoint, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+checkpointColumns+" FROM instances WHERE id = ?", id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrInstanceNotFound, id)
	}
	return cp, err
}

// Save writes cp, inserting it when the instance is new. UpdatedAt is stamped on every write.
func (r *InstanceRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	return r.upsert(ctx, r.db, cp)
}

// Replace purges the history of cp's instance and writes cp in one transaction.
//
// It is used both for continue-as-new and for re-creating a finished instance.
func (r *InstanceRepository) Replace(ctx context.Context, cp *models.Checkpoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM instance_events WHERE instance_id = ?", cp.InstanceID); err != nil {
		return fmt.Errorf("failed to purge history of %s: %w", cp.InstanceID, err)
	}

	if err := r.upsert(ctx, tx, cp); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint %s: %w", cp.InstanceID, err)
	}
	return nil
}

func (r *InstanceRepository) upsert(ctx context.Context, q execer, cp *models.Checkpoint) error {
	if cp.InstanceID == "" {
		return fmt.Errorf("%w: instance id is required", shared.ErrInvalidArgument)
	}

	input, err := msgpack.Marshal(&cp.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}

	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	var wakeAt sql.NullTime
	if cp.WakeAt != nil {
		wakeAt = sql.NullTime{Time: cp.WakeAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO instances (` + checkpointColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			generation = excluded.generation,
			run_id = excluded.run_id,
			phase = excluded.phase,
			status = excluded.status,
			input = excluded.input,
			attempt = excluded.attempt,
			logical_time = excluded.logical_time,
			wake_at = excluded.wake_at,
			last_result = excluded.last_result,
			error = excluded.error,
			updated_at = excluded.updated_at
	`
	_, err = q.ExecContext(ctx, query,
		cp.InstanceID,
		cp.Generation,
		cp.RunID,
		string(cp.Phase),
		string(cp.Status),
		input,
		cp.Attempt,
		cp.LogicalTime.UTC(),
		wakeAt,
		cp.LastResult,
		cp.Error,
		cp.CreatedAt.UTC(),
		cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.InstanceID, err)
	}
	return nil
}

// List returns checkpoints ordered by id. An empty status returns every instance.
func (r *InstanceRepository) List(ctx context.Context, status models.Status) ([]*models.Checkpoint, error) {
	query := "SELECT " + checkpointColumns + " FROM instances"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var checkpoints []*models.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return checkpoints, nil
}

// Append records ev in the instance's history, assigning its sequence.
func (r *InstanceRepository) Append(ctx context.Context, ev *models.HistoryEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextSequence(ctx, tx, "instance_events")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ev.Sequence = seq

	query := `
		INSERT INTO instance_events (id, instance_id, generation, run_id, kind, phase, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		seq,
		ev.InstanceID,
		ev.Generation,
		ev.RunID,
		string(ev.Kind),
		string(ev.Phase),
		ev.Detail,
		ev.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// History returns the events of id's current generation in the order they were appended.
func (r *InstanceRepository) History(ctx context.Context, id string) ([]models.HistoryEvent, error) {
	query := `
		SELECT id, instance_id, generation, run_id, kind, phase, detail, created_at
		FROM instance_events
		WHERE instance_id = ?
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var events []models.HistoryEvent
	for rows.Next() {
		var (
			ev          models.HistoryEvent
			kind, phase string
		)
		if err := rows.Scan(&ev.Sequence, &ev.InstanceID, &ev.Generation, &ev.RunID, &kind, &phase, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = models.EventKind(kind)
		ev.Phase = models.Phase(phase)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanCheckpoint scans a row from either [sql.Row] or [sql.Rows] into a [models.Checkpoint]
func scanCheckpoint(s scanner) (*models.Checkpoint, error) {
	var (
		cp            models.Checkpoint
		phase, status string
		input         []byte
		wakeAt        sql.NullTime
	)

	err := s.Scan(
		&cp.InstanceID,
		&cp.Generation,
		&cp.RunID,
		&phase,
		&status,
		&input,
		&cp.Attempt,
		&cp.LogicalTime,
		&wakeAt,
		&cp.LastResult,
		&cp.Error,
		&cp.CreatedAt,
		&cp.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}

	if err := msgpack.Unmarshal(input, &cp.Input); err != nil {
		return nil, fmt.Errorf("failed to decode input of %s: %w", cp.InstanceID, err)
	}

	cp.Phase = models.Phase(phase)
	cp.Status = models.Status(status)
	cp.WakeAt = nullTime(&wakeAt)
	return &cp, nil
}
