package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

func scanVacancy(row pgx.Row) (*Vacancy, error) {
	var (
		v         Vacancy
		city      pgtype.Text
		recruiter pgtype.Int8
	)
	if err := row.Scan(&v.ID, &v.ExternalID, &v.Title, &city, &recruiter); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to scan vacancy: %w", err)
	}
	if city.Valid {
		v.City = city.String
	}
	if recruiter.Valid {
		id := recruiter.Int64
		v.RecruiterID = &id
	}
	return &v, nil
}

// UpsertVacancy inserts or refreshes a vacancy keyed by its external id and
// returns the local row.
func (s *Store) UpsertVacancy(ctx context.Context, externalID, title, city string, recruiterID int64) (*Vacancy, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO vacancies (external_id, title, city, recruiter_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_id)
		DO UPDATE SET title = EXCLUDED.title, city = EXCLUDED.city, recruiter_id = EXCLUDED.recruiter_id
		RETURNING id, external_id, title, city, recruiter_id
	`, externalID, title, city, recruiterID)
	return scanVacancy(row)
}

// DetachVacancies clears recruiter_id on this recruiter's vacancies that are
// absent from the remote active list. Detached vacancies are kept for
// historical dialogues.
func (s *Store) DetachVacancies(ctx context.Context, recruiterID int64, activeExternalIDs []string) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE vacancies
		SET recruiter_id = NULL
		WHERE recruiter_id = $1 AND NOT (external_id = ANY($2))
	`, recruiterID, activeExternalIDs)
	if err != nil {
		return 0, fmt.Errorf("store: failed to detach vacancies: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ActiveVacancies lists the vacancies currently attached to a recruiter.
func (s *Store) ActiveVacancies(ctx context.Context, recruiterID int64) ([]Vacancy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, external_id, title, city, recruiter_id
		FROM vacancies
		WHERE recruiter_id = $1
		ORDER BY id
	`, recruiterID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list active vacancies: %w", err)
	}
	defer rows.Close()

	var out []Vacancy
	for rows.Next() {
		v, err := scanVacancy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// GetVacancy fetches one vacancy by local id.
func (s *Store) GetVacancy(ctx context.Context, q Querier, id int64) (*Vacancy, error) {
	row := q.QueryRow(ctx, `
		SELECT id, external_id, title, city, recruiter_id FROM vacancies WHERE id = $1
	`, id)
	return scanVacancy(row)
}
