package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const candidateColumns = `id, external_resume_id, full_name, age, citizenship,
	city, phone_number, readiness_to_start, created_at`

func scanCandidate(row pgx.Row) (*Candidate, error) {
	var (
		c           Candidate
		fullName    pgtype.Text
		age         pgtype.Int4
		citizenship pgtype.Text
		city        pgtype.Text
		phone       pgtype.Text
		readiness   pgtype.Text
	)
	err := row.Scan(&c.ID, &c.ExternalResumeID, &fullName, &age, &citizenship,
		&city, &phone, &readiness, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to scan candidate: %w", err)
	}
	if fullName.Valid {
		c.FullName = fullName.String
	}
	if age.Valid {
		v := int(age.Int32)
		c.Age = &v
	}
	if citizenship.Valid {
		c.Citizenship = citizenship.String
	}
	if city.Valid {
		c.City = city.String
	}
	if phone.Valid {
		c.PhoneNumber = phone.String
	}
	if readiness.Valid {
		c.ReadinessToStart = readiness.String
	}
	return &c, nil
}

// GetOrCreateCandidate resolves a candidate by resume id, creating the row
// when it is first seen.
func (s *Store) GetOrCreateCandidate(ctx context.Context, q Querier, externalResumeID, fullName string) (*Candidate, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO candidates (external_resume_id, full_name)
		VALUES ($1, $2)
		ON CONFLICT (external_resume_id)
		DO UPDATE SET full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), candidates.full_name)
		RETURNING `+candidateColumns+`
	`, externalResumeID, fullName)
	return scanCandidate(row)
}

// GetCandidate fetches one candidate by local id.
func (s *Store) GetCandidate(ctx context.Context, q Querier, id int64) (*Candidate, error) {
	row := q.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id)
	return scanCandidate(row)
}

// UpdateCandidateProfile persists the fields collected during qualification.
// Empty strings and nil age leave the stored values untouched.
func (s *Store) UpdateCandidateProfile(ctx context.Context, q Querier, c *Candidate) error {
	if c == nil {
		return errors.New("store: candidate cannot be nil")
	}
	var age *int32
	if c.Age != nil {
		v := int32(*c.Age)
		age = &v
	}
	if _, err := q.Exec(ctx, `
		UPDATE candidates
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    age = COALESCE($3, age),
		    citizenship = COALESCE(NULLIF($4, ''), citizenship),
		    city = COALESCE(NULLIF($5, ''), city),
		    phone_number = COALESCE(NULLIF($6, ''), phone_number),
		    readiness_to_start = COALESCE(NULLIF($7, ''), readiness_to_start)
		WHERE id = $1
	`, c.ID, c.FullName, age, c.Citizenship, c.City, c.PhoneNumber, c.ReadinessToStart); err != nil {
		return fmt.Errorf("store: failed to update candidate: %w", err)
	}
	return nil
}

// SetCandidatePhone stores an extracted phone number if none is present yet.
func (s *Store) SetCandidatePhone(ctx context.Context, q Querier, id int64, phone string) error {
	if _, err := q.Exec(ctx, `
		UPDATE candidates
		SET phone_number = $2
		WHERE id = $1 AND (phone_number IS NULL OR phone_number = '')
	`, id, phone); err != nil {
		return fmt.Errorf("store: failed to set candidate phone: %w", err)
	}
	return nil
}
