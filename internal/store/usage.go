package store

import (
	"context"
	"errors"
	"fmt"
)

// InsertUsageLog records one LLM call ledger row.
func (s *Store) InsertUsageLog(ctx context.Context, q Querier, u *UsageLog) error {
	if u == nil {
		return errors.New("store: usage log cannot be nil")
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO llm_usage_logs (
			dialogue_id, state_at_call, prompt_tokens, completion_tokens,
			cached_tokens, total_tokens, cost
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.DialogueID, u.StateAtCall, u.PromptTokens, u.CompletionTokens,
		u.CachedTokens, u.TotalTokens, u.Cost); err != nil {
		return fmt.Errorf("store: failed to insert usage log: %w", err)
	}
	return nil
}

// InsertFailedAttempts logs one zero-token row per failed or retried LLM
// attempt so the ledger accounts for every call made.
func (s *Store) InsertFailedAttempts(ctx context.Context, q Querier, dialogueID int64, state string, attempts int) error {
	for i := 0; i < attempts; i++ {
		if err := s.InsertUsageLog(ctx, q, &UsageLog{
			DialogueID:  dialogueID,
			StateAtCall: state + " (failed_attempt)",
		}); err != nil {
			return err
		}
	}
	return nil
}
