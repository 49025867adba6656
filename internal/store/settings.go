package store

import (
	"context"
	"fmt"
)

const settingsColumns = `balance::float8, cost_per_dialogue::float8, cost_per_long_reminder::float8,
	low_balance_threshold::float8, low_limit_notified,
	total_spent_on_dialogues::float8, total_spent_on_reminders::float8`

// LockSettings reads the single ledger row under FOR UPDATE. All balance
// check-and-debit sequences happen while this lock is held.
func (s *Store) LockSettings(ctx context.Context, tx Querier) (*AppSettings, error) {
	var a AppSettings
	err := tx.QueryRow(ctx, `
		SELECT `+settingsColumns+` FROM app_settings WHERE id = 1 FOR UPDATE
	`).Scan(&a.Balance, &a.CostPerDialogue, &a.CostPerLongReminder,
		&a.LowBalanceThreshold, &a.LowLimitNotified,
		&a.TotalSpentOnDialogues, &a.TotalSpentOnReminders)
	if err != nil {
		return nil, fmt.Errorf("store: failed to lock settings: %w", err)
	}
	return &a, nil
}

// GetSettings reads the ledger row without locking.
func (s *Store) GetSettings(ctx context.Context) (*AppSettings, error) {
	var a AppSettings
	err := s.db.QueryRow(ctx, `
		SELECT `+settingsColumns+` FROM app_settings WHERE id = 1
	`).Scan(&a.Balance, &a.CostPerDialogue, &a.CostPerLongReminder,
		&a.LowBalanceThreshold, &a.LowLimitNotified,
		&a.TotalSpentOnDialogues, &a.TotalSpentOnReminders)
	if err != nil {
		return nil, fmt.Errorf("store: failed to read settings: %w", err)
	}
	return &a, nil
}

// DebitDialogue decrements the balance by cost_per_dialogue. The settings
// row must already be locked; the WHERE guard keeps the balance from going
// negative even so.
func (s *Store) DebitDialogue(ctx context.Context, tx Querier) error {
	ct, err := tx.Exec(ctx, `
		UPDATE app_settings
		SET balance = balance - cost_per_dialogue,
		    total_spent_on_dialogues = total_spent_on_dialogues + cost_per_dialogue
		WHERE id = 1 AND balance >= cost_per_dialogue
	`)
	if err != nil {
		return fmt.Errorf("store: failed to debit dialogue: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// DebitLongReminder decrements the balance by cost_per_long_reminder.
func (s *Store) DebitLongReminder(ctx context.Context, tx Querier) error {
	ct, err := tx.Exec(ctx, `
		UPDATE app_settings
		SET balance = balance - cost_per_long_reminder,
		    total_spent_on_reminders = total_spent_on_reminders + cost_per_long_reminder
		WHERE id = 1 AND balance >= cost_per_long_reminder
	`)
	if err != nil {
		return fmt.Errorf("store: failed to debit long reminder: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// SetLowLimitNotified flips the once-per-crossing low-balance alert flag.
func (s *Store) SetLowLimitNotified(ctx context.Context, q Querier, notified bool) error {
	if _, err := q.Exec(ctx, `
		UPDATE app_settings SET low_limit_notified = $1 WHERE id = 1
	`, notified); err != nil {
		return fmt.Errorf("store: failed to set low limit flag: %w", err)
	}
	return nil
}
