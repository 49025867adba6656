package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// CancelPendingReminders cancels every pending interview reminder for the
// dialogue; called before scheduling a new set and on declined interviews.
func (s *Store) CancelPendingReminders(ctx context.Context, q Querier, dialogueID int64) (int64, error) {
	ct, err := q.Exec(ctx, `
		UPDATE interview_reminders
		SET status = 'cancelled', processed_at = $2
		WHERE dialogue_id = $1 AND status = 'pending'
	`, dialogueID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: failed to cancel reminders: %w", err)
	}
	return ct.RowsAffected(), nil
}

// InsertReminder schedules one interview reminder row.
func (s *Store) InsertReminder(ctx context.Context, q Querier, r *InterviewReminder) error {
	if r == nil {
		return errors.New("store: reminder cannot be nil")
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO interview_reminders (
			dialogue_id, recruiter_id, interview_datetime_utc,
			scheduled_send_time_utc, notification_type, status
		)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, r.DialogueID, r.RecruiterID, r.InterviewAtUTC, r.ScheduledSendAtUTC, r.Type); err != nil {
		return fmt.Errorf("store: failed to insert reminder: %w", err)
	}
	return nil
}

// ClaimDueReminders locks up to limit pending reminders whose send time has
// arrived. Callers must pass a tx.
func (s *Store) ClaimDueReminders(ctx context.Context, tx Querier, limit int) ([]InterviewReminder, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, dialogue_id, recruiter_id, interview_datetime_utc,
		       scheduled_send_time_utc, notification_type, status, processed_at
		FROM interview_reminders
		WHERE status = 'pending' AND scheduled_send_time_utc <= now()
		ORDER BY scheduled_send_time_utc
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: failed to claim reminders: %w", err)
	}
	defer rows.Close()

	var out []InterviewReminder
	for rows.Next() {
		var (
			r           InterviewReminder
			processedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&r.ID, &r.DialogueID, &r.RecruiterID, &r.InterviewAtUTC,
			&r.ScheduledSendAtUTC, &r.Type, &r.Status, &processedAt); err != nil {
			return nil, fmt.Errorf("store: failed to scan reminder: %w", err)
		}
		if processedAt.Valid {
			at := processedAt.Time
			r.ProcessedAt = &at
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkReminder transitions a reminder out of pending.
func (s *Store) MarkReminder(ctx context.Context, q Querier, id int64, status string) error {
	ct, err := q.Exec(ctx, `
		UPDATE interview_reminders
		SET status = $2, processed_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: failed to mark reminder: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
