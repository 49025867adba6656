package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func scanTask(rows pgx.Rows, withCandidate bool) (QueueTask, error) {
	var (
		t           QueueTask
		processedAt pgtype.Timestamptz
	)
	var err error
	if withCandidate {
		err = rows.Scan(&t.ID, &t.CandidateID, &t.Status, &t.CreatedAt, &processedAt)
	} else {
		err = rows.Scan(&t.ID, &t.DialogueID, &t.Status, &t.CreatedAt, &processedAt)
	}
	if err != nil {
		return t, fmt.Errorf("store: failed to scan queue task: %w", err)
	}
	if processedAt.Valid {
		at := processedAt.Time
		t.ProcessedAt = &at
	}
	return t, nil
}

// EnqueueQualified inserts a pending qualified-dossier task unless the
// candidate already has one waiting.
func (s *Store) EnqueueQualified(ctx context.Context, q Querier, candidateID int64) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO notification_queue (candidate_id, status)
		SELECT $1, 'pending'
		WHERE NOT EXISTS (
			SELECT 1 FROM notification_queue WHERE candidate_id = $1 AND status = 'pending'
		)
	`, candidateID); err != nil {
		return fmt.Errorf("store: failed to enqueue qualified task: %w", err)
	}
	return nil
}

// FetchPendingQualified returns up to limit pending qualified tasks.
func (s *Store) FetchPendingQualified(ctx context.Context, limit int) ([]QueueTask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, candidate_id, status, created_at, processed_at
		FROM notification_queue
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: failed to fetch qualified tasks: %w", err)
	}
	defer rows.Close()
	var out []QueueTask
	for rows.Next() {
		t, err := scanTask(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkQualifiedTask finalizes one qualified task.
func (s *Store) MarkQualifiedTask(ctx context.Context, id int64, status string) error {
	return s.markTask(ctx, "notification_queue", id, status)
}

// HasInactiveRow reports whether the dialogue ever entered the inactive
// queue; the rejected queue is skipped in that case.
func (s *Store) HasInactiveRow(ctx context.Context, q Querier, dialogueID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM inactive_notification_queue WHERE dialogue_id = $1)
	`, dialogueID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: failed to check inactive row: %w", err)
	}
	return exists, nil
}

// EnsureInactive inserts an inactive-queue row once per dialogue.
func (s *Store) EnsureInactive(ctx context.Context, q Querier, dialogueID int64) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO inactive_notification_queue (dialogue_id, status)
		VALUES ($1, 'pending')
		ON CONFLICT (dialogue_id) DO NOTHING
	`, dialogueID); err != nil {
		return fmt.Errorf("store: failed to enqueue inactive task: %w", err)
	}
	return nil
}

// CancelInactivePending cancels a still-pending inactive task, e.g. when a
// human recruiter takes the dialogue over.
func (s *Store) CancelInactivePending(ctx context.Context, q Querier, dialogueID int64) error {
	if _, err := q.Exec(ctx, `
		UPDATE inactive_notification_queue
		SET status = 'cancelled', processed_at = $2
		WHERE dialogue_id = $1 AND status = 'pending'
	`, dialogueID, time.Now().UTC()); err != nil {
		return fmt.Errorf("store: failed to cancel inactive task: %w", err)
	}
	return nil
}

// FetchPendingInactive returns up to limit pending inactive tasks.
func (s *Store) FetchPendingInactive(ctx context.Context, limit int) ([]QueueTask, error) {
	return s.fetchDialogueTasks(ctx, "inactive_notification_queue", limit)
}

// MarkInactiveTask finalizes one inactive task.
func (s *Store) MarkInactiveTask(ctx context.Context, id int64, status string) error {
	return s.markTask(ctx, "inactive_notification_queue", id, status)
}

// UpsertRejected inserts a rejected-queue row, or resets an existing one for
// this dialogue back to pending.
func (s *Store) UpsertRejected(ctx context.Context, q Querier, dialogueID int64) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO rejected_notification_queue (dialogue_id, status)
		VALUES ($1, 'pending')
		ON CONFLICT (dialogue_id)
		DO UPDATE SET status = 'pending', processed_at = NULL
	`, dialogueID); err != nil {
		return fmt.Errorf("store: failed to enqueue rejected task: %w", err)
	}
	return nil
}

// FetchPendingRejected returns up to limit pending rejected tasks.
func (s *Store) FetchPendingRejected(ctx context.Context, limit int) ([]QueueTask, error) {
	return s.fetchDialogueTasks(ctx, "rejected_notification_queue", limit)
}

// MarkRejectedTask finalizes one rejected task.
func (s *Store) MarkRejectedTask(ctx context.Context, id int64, status string) error {
	return s.markTask(ctx, "rejected_notification_queue", id, status)
}

func (s *Store) fetchDialogueTasks(ctx context.Context, table string, limit int) ([]QueueTask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, dialogue_id, status, created_at, processed_at
		FROM `+table+`
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: failed to fetch %s tasks: %w", table, err)
	}
	defer rows.Close()
	var out []QueueTask
	for rows.Next() {
		t, err := scanTask(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) markTask(ctx context.Context, table string, id int64, status string) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE `+table+`
		SET status = $2, processed_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: failed to mark %s task: %w", table, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
