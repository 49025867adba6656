package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const recruiterColumns = `id, name, external_id, refresh_token, access_token, token_expires_at,
	vacancies_last_synced_at, telegram_chat_id, topic_qualified_id,
	topic_rejected_id, topic_timeout_id, created_at`

func scanRecruiter(row pgx.Row) (*Recruiter, error) {
	var (
		r        Recruiter
		external pgtype.Text
		access   pgtype.Text
		expires  pgtype.Timestamptz
		synced   pgtype.Timestamptz
		chatID   pgtype.Int8
		topicQ   pgtype.Int4
		topicR   pgtype.Int4
		topicT   pgtype.Int4
	)
	err := row.Scan(&r.ID, &r.Name, &external, &r.RefreshToken, &access, &expires,
		&synced, &chatID, &topicQ, &topicR, &topicT, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to scan recruiter: %w", err)
	}
	if external.Valid {
		r.ExternalID = external.String
	}
	if access.Valid {
		r.AccessToken = access.String
	}
	if expires.Valid {
		t := expires.Time
		r.TokenExpiresAt = &t
	}
	if synced.Valid {
		t := synced.Time
		r.VacanciesLastSyncedAt = &t
	}
	if chatID.Valid {
		v := chatID.Int64
		r.TelegramChatID = &v
	}
	if topicQ.Valid {
		v := topicQ.Int32
		r.TopicQualifiedID = &v
	}
	if topicR.Valid {
		v := topicR.Int32
		r.TopicRejectedID = &v
	}
	if topicT.Valid {
		v := topicT.Int32
		r.TopicTimeoutID = &v
	}
	return &r, nil
}

// ListRecruiters returns all recruiters, or the subset named by ids.
func (s *Store) ListRecruiters(ctx context.Context, ids []int64) ([]Recruiter, error) {
	query := `SELECT ` + recruiterColumns + ` FROM recruiters ORDER BY id`
	args := []any{}
	if len(ids) > 0 {
		query = `SELECT ` + recruiterColumns + ` FROM recruiters WHERE id = ANY($1) ORDER BY id`
		args = append(args, ids)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list recruiters: %w", err)
	}
	defer rows.Close()

	var out []Recruiter
	for rows.Next() {
		r, err := scanRecruiter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRecruiter fetches one recruiter.
func (s *Store) GetRecruiter(ctx context.Context, q Querier, id int64) (*Recruiter, error) {
	row := q.QueryRow(ctx, `SELECT `+recruiterColumns+` FROM recruiters WHERE id = $1`, id)
	return scanRecruiter(row)
}

// LockRecruiter fetches a recruiter under FOR UPDATE; callers must pass a tx.
// It is the database half of the token-refresh serialisation.
func (s *Store) LockRecruiter(ctx context.Context, tx Querier, id int64) (*Recruiter, error) {
	row := tx.QueryRow(ctx, `SELECT `+recruiterColumns+` FROM recruiters WHERE id = $1 FOR UPDATE`, id)
	return scanRecruiter(row)
}

// UpdateRecruiterTokens persists a refreshed token pair.
func (s *Store) UpdateRecruiterTokens(ctx context.Context, q Querier, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	ct, err := q.Exec(ctx, `
		UPDATE recruiters
		SET access_token = $2, refresh_token = $3, token_expires_at = $4
		WHERE id = $1
	`, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("store: failed to update recruiter tokens: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExtendRecruiterToken pushes the expiry forward without changing tokens.
// Used when the provider reports the current token is still valid.
func (s *Store) ExtendRecruiterToken(ctx context.Context, q Querier, id int64, expiresAt time.Time) error {
	if _, err := q.Exec(ctx, `
		UPDATE recruiters SET token_expires_at = $2 WHERE id = $1
	`, id, expiresAt); err != nil {
		return fmt.Errorf("store: failed to extend recruiter token: %w", err)
	}
	return nil
}

// SetRecruiterExternalID persists the job-board employer id so later
// vacancy syncs skip the /me lookup.
func (s *Store) SetRecruiterExternalID(ctx context.Context, id int64, externalID string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE recruiters SET external_id = $2 WHERE id = $1
	`, id, externalID); err != nil {
		return fmt.Errorf("store: failed to set recruiter external id: %w", err)
	}
	return nil
}

// TouchVacancySync records a completed vacancy reconciliation.
func (s *Store) TouchVacancySync(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE recruiters SET vacancies_last_synced_at = $2 WHERE id = $1
	`, id, at); err != nil {
		return fmt.Errorf("store: failed to touch vacancy sync: %w", err)
	}
	return nil
}
