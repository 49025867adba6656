package store

import (
	"context"
	"fmt"
	"time"
)

// Statistic counter columns.
const (
	StatResponses      = "responses_count"
	StatStartedDialogs = "started_dialogs_count"
	StatQualified      = "qualified_count"
)

// BumpStatistic increments one daily per-vacancy counter.
func (s *Store) BumpStatistic(ctx context.Context, q Querier, day time.Time, vacancyID int64, column string) error {
	switch column {
	case StatResponses, StatStartedDialogs, StatQualified:
	default:
		return fmt.Errorf("store: unknown statistic column %q", column)
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO statistics (date, vacancy_id, `+column+`)
		VALUES ($1, $2, 1)
		ON CONFLICT (date, vacancy_id)
		DO UPDATE SET `+column+` = statistics.`+column+` + 1
	`, day.Format("2006-01-02"), vacancyID); err != nil {
		return fmt.Errorf("store: failed to bump statistic: %w", err)
	}
	return nil
}

// ListAlertChats returns the chat ids that receive balance broadcasts;
// adminOnly restricts to operators.
func (s *Store) ListAlertChats(ctx context.Context, adminOnly bool) ([]int64, error) {
	query := `SELECT chat_id FROM telegram_users`
	if adminOnly {
		query += ` WHERE is_admin`
	}
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list alert chats: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("store: failed to scan alert chat: %w", err)
		}
		out = append(out, chatID)
	}
	return out, rows.Err()
}
