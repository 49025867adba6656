package reminders

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

type stubBoard struct {
	folder    string
	folderErr error
	sendErr   error
	sent      []string
}

func (b *stubBoard) SendMessage(_ context.Context, _ *store.Recruiter, _, text string) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, text)
	return nil
}

func (b *stubBoard) CurrentFolder(context.Context, *store.Recruiter, string) (string, error) {
	return b.folder, b.folderErr
}

func newTestDojim(t *testing.T, board JobBoard) (*Dojim, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	fixed := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	d := &Dojim{
		store:       store.New(mock, logging.Default()),
		board:       board,
		metrics:     metrics.NewPipelineMetrics(prometheus.NewRegistry()),
		logger:      logging.Default(),
		loc:         moscow(t),
		startHour:   9,
		endHour:     21,
		concurrency: 2,
		now:         func() time.Time { return fixed },
	}
	return d, mock
}

func expectNudgeLock(mock pgxmock.PgxPoolIface, level int) {
	lastSeen := time.Date(2026, 8, 26, 7, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, external_response_id").WithArgs(pgxmock.AnyArg()).WillReturnRows(pgxmock.NewRows([]string{
		"id", "external_response_id", "candidate_id", "vacancy_id", "recruiter_id",
		"status", "dialogue_state", "reminder_level", "history", "pending_messages",
		"last_updated", "created_at", "response_created_at", "interview_datetime_utc",
		"total_prompt_tokens", "total_completion_tokens", "total_cached_tokens", "total_cost",
	}).AddRow(int64(7), "resp-7", int64(2), int64(3), int64(4),
		dialog.StatusInProgress, dialog.StateAwaitingAge, level, []byte(`[]`), []byte(`[]`),
		lastSeen, lastSeen, nil, nil, 0, 0, 0, 0.0))
}

func TestNudgeStopsWhenRecruiterMovedResponse(t *testing.T) {
	board := &stubBoard{folder: hh.FolderInterview}
	d, mock := newTestDojim(t, board)

	expectNudgeLock(mock, 1)
	mock.ExpectExec("UPDATE inactive_notification_queue").
		WithArgs(int64(7), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusRecruiterHandled, dialog.StateAwaitingAge, 3,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			0, 0, 0, 0.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, d.nudge(context.Background(), &store.Recruiter{ID: 4}, 7))
	assert.Empty(t, board.sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNudgeStopsWhenResponseGone(t *testing.T) {
	board := &stubBoard{folderErr: hh.ErrResponseGone}
	d, mock := newTestDojim(t, board)

	expectNudgeLock(mock, 2)
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusTimedOut, dialog.StateAwaitingAge, 6,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			0, 0, 0, 0.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, d.nudge(context.Background(), &store.Recruiter{ID: 4}, 7))
	assert.Empty(t, board.sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNudgeSendsShortChainMessage(t *testing.T) {
	board := &stubBoard{folder: hh.FolderConsider}
	d, mock := newTestDojim(t, board)

	// Level 1 after an hour of silence advances to level 2.
	expectNudgeLock(mock, 1)
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusInProgress, dialog.StateAwaitingAge, 2,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			0, 0, 0, 0.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, d.nudge(context.Background(), &store.Recruiter{ID: 4}, 7))
	require.Len(t, board.sent, 1)
	assert.Equal(t, levelOneNudge, board.sent[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
