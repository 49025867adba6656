package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const dialogueColumns = `id, external_response_id, candidate_id, vacancy_id, recruiter_id,
	status, dialogue_state, reminder_level, history, pending_messages,
	last_updated, created_at, response_created_at, interview_datetime_utc,
	total_prompt_tokens, total_completion_tokens, total_cached_tokens, total_cost::float8`

func scanDialogue(row pgx.Row) (*Dialogue, error) {
	var (
		d           Dialogue
		history     []byte
		pending     []byte
		responseAt  pgtype.Timestamptz
		interviewAt pgtype.Timestamptz
	)
	err := row.Scan(&d.ID, &d.ExternalResponseID, &d.CandidateID, &d.VacancyID, &d.RecruiterID,
		&d.Status, &d.State, &d.ReminderLevel, &history, &pending,
		&d.LastUpdated, &d.CreatedAt, &responseAt, &interviewAt,
		&d.TotalPromptTokens, &d.TotalCompletionTokens, &d.TotalCachedTokens, &d.TotalCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to scan dialogue: %w", err)
	}
	if d.History, err = unmarshalEntries(history); err != nil {
		return nil, err
	}
	if d.Pending, err = unmarshalEntries(pending); err != nil {
		return nil, err
	}
	if responseAt.Valid {
		t := responseAt.Time
		d.ResponseCreatedAt = &t
	}
	if interviewAt.Valid {
		t := interviewAt.Time
		d.InterviewAtUTC = &t
	}
	return &d, nil
}

func collectDialogues(rows pgx.Rows) ([]Dialogue, error) {
	defer rows.Close()
	var out []Dialogue
	for rows.Next() {
		d, err := scanDialogue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DialogueExists reports whether a response id has already been ingested.
func (s *Store) DialogueExists(ctx context.Context, q Querier, externalResponseID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM dialogues WHERE external_response_id = $1)
	`, externalResponseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: failed to check dialogue: %w", err)
	}
	return exists, nil
}

// InsertDialogue creates a dialogue row for a freshly ingested response.
func (s *Store) InsertDialogue(ctx context.Context, q Querier, d *Dialogue) error {
	if d == nil {
		return errors.New("store: dialogue cannot be nil")
	}
	pending, err := marshalEntries(d.Pending)
	if err != nil {
		return err
	}
	history, err := marshalEntries(d.History)
	if err != nil {
		return err
	}
	row := q.QueryRow(ctx, `
		INSERT INTO dialogues (
			external_response_id, candidate_id, vacancy_id, recruiter_id,
			status, dialogue_state, history, pending_messages, response_created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, last_updated
	`, d.ExternalResponseID, d.CandidateID, d.VacancyID, d.RecruiterID,
		d.Status, d.State, history, pending, d.ResponseCreatedAt)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.LastUpdated); err != nil {
		return fmt.Errorf("store: failed to insert dialogue: %w", err)
	}
	return nil
}

// GetDialogue fetches one dialogue by local id.
func (s *Store) GetDialogue(ctx context.Context, q Querier, id int64) (*Dialogue, error) {
	row := q.QueryRow(ctx, `SELECT `+dialogueColumns+` FROM dialogues WHERE id = $1`, id)
	return scanDialogue(row)
}

// LockDialogue fetches a dialogue and takes its row lock for the length of
// the transaction. A row already locked by another worker is skipped and
// reported as ErrNotFound.
func (s *Store) LockDialogue(ctx context.Context, tx Querier, id int64) (*Dialogue, error) {
	row := tx.QueryRow(ctx, `SELECT `+dialogueColumns+` FROM dialogues WHERE id = $1 FOR UPDATE SKIP LOCKED`, id)
	return scanDialogue(row)
}

// GetDialogueByResponseID fetches one dialogue by its job-board response id.
func (s *Store) GetDialogueByResponseID(ctx context.Context, q Querier, externalResponseID string) (*Dialogue, error) {
	row := q.QueryRow(ctx, `SELECT `+dialogueColumns+` FROM dialogues WHERE external_response_id = $1`, externalResponseID)
	return scanDialogue(row)
}

// LatestDialogueForCandidate returns the candidate's most recently updated
// dialogue; the qualified queue is keyed by candidate.
func (s *Store) LatestDialogueForCandidate(ctx context.Context, q Querier, candidateID int64) (*Dialogue, error) {
	row := q.QueryRow(ctx, `
		SELECT `+dialogueColumns+` FROM dialogues
		WHERE candidate_id = $1
		ORDER BY last_updated DESC
		LIMIT 1
	`, candidateID)
	return scanDialogue(row)
}

// ClaimPending locks up to limit dialogues whose mailbox is non-empty and
// whose last update predates the debounce window. Callers must pass a tx;
// SKIP LOCKED keeps concurrent workers off each other's rows.
func (s *Store) ClaimPending(ctx context.Context, tx Querier, limit int, debounce time.Duration, recruiterIDs []int64) ([]Dialogue, error) {
	cutoff := time.Now().UTC().Add(-debounce)
	query := `
		SELECT ` + dialogueColumns + ` FROM dialogues
		WHERE jsonb_typeof(pending_messages) = 'array'
		  AND jsonb_array_length(pending_messages) > 0
		  AND last_updated <= $1`
	args := []any{cutoff}
	if len(recruiterIDs) > 0 {
		query += ` AND recruiter_id = ANY($2)`
		args = append(args, recruiterIDs)
	}
	query += fmt.Sprintf(`
		ORDER BY last_updated
		LIMIT $%d
		FOR UPDATE SKIP LOCKED`, len(args)+1)
	args = append(args, limit)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to claim pending dialogues: %w", err)
	}
	return collectDialogues(rows)
}

// ClaimDojimCandidates locks the recruiter's in-progress dialogues still
// eligible for the silent-candidate ladder.
func (s *Store) ClaimDojimCandidates(ctx context.Context, tx Querier, recruiterID int64, excludedStates []string) ([]Dialogue, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+dialogueColumns+` FROM dialogues
		WHERE recruiter_id = $1
		  AND status = 'in_progress'
		  AND reminder_level < 6
		  AND dialogue_state <> ALL($2)
		ORDER BY last_updated
		FOR UPDATE SKIP LOCKED
	`, recruiterID, excludedStates)
	if err != nil {
		return nil, fmt.Errorf("store: failed to claim dojim dialogues: %w", err)
	}
	return collectDialogues(rows)
}

// SaveDialogue writes back the mutable dialogue fields after a turn.
func (s *Store) SaveDialogue(ctx context.Context, q Querier, d *Dialogue) error {
	if d == nil {
		return errors.New("store: dialogue cannot be nil")
	}
	history, err := marshalEntries(d.History)
	if err != nil {
		return err
	}
	pending, err := marshalEntries(d.Pending)
	if err != nil {
		return err
	}
	ct, err := q.Exec(ctx, `
		UPDATE dialogues
		SET status = $2,
		    dialogue_state = $3,
		    reminder_level = $4,
		    history = $5,
		    pending_messages = $6,
		    last_updated = $7,
		    interview_datetime_utc = $8,
		    total_prompt_tokens = $9,
		    total_completion_tokens = $10,
		    total_cached_tokens = $11,
		    total_cost = $12
		WHERE id = $1
	`, d.ID, d.Status, d.State, d.ReminderLevel, history, pending,
		d.LastUpdated, d.InterviewAtUTC, d.TotalPromptTokens,
		d.TotalCompletionTokens, d.TotalCachedTokens, d.TotalCost)
	if err != nil {
		return fmt.Errorf("store: failed to save dialogue: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearStaleHistories nulls the history column on dialogues untouched since
// the cutoff. Returns the number of rows cleared.
func (s *Store) ClearStaleHistories(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE dialogues
		SET history = NULL
		WHERE last_updated < $1 AND history IS NOT NULL
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: failed to clear stale histories: %w", err)
	}
	return ct.RowsAffected(), nil
}
