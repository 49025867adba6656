package poller

import (
	"context"
	"errors"
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

type fakeBoard struct {
	employerID  string
	meCalls     int
	messages    []hh.Message
	messagesErr error
}

func (f *fakeBoard) Me(context.Context, *store.Recruiter) (string, error) {
	f.meCalls++
	return f.employerID, nil
}
func (f *fakeBoard) ActiveVacancies(context.Context, *store.Recruiter, string) ([]hh.VacancyItem, error) {
	return nil, nil
}
func (f *fakeBoard) ResponsesFromFolder(context.Context, *store.Recruiter, string, []string, time.Time, bool) ([]hh.NegotiationItem, error) {
	return nil, nil
}
func (f *fakeBoard) Messages(context.Context, *store.Recruiter, string) ([]hh.Message, error) {
	return f.messages, f.messagesErr
}
func (f *fakeBoard) MoveResponse(context.Context, *store.Recruiter, string, string) error {
	return nil
}
func (f *fakeBoard) Stopped(int64) bool { return false }

func newTestPoller(t *testing.T, board JobBoard) *Poller {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	fixed := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	return &Poller{
		board:   board,
		metrics: metrics.NewPipelineMetrics(prometheus.NewRegistry()),
		logger:  logging.Default(),
		loc:     loc,
		now:     func() time.Time { return fixed },
	}
}

func TestFormatMSK(t *testing.T) {
	p := newTestPoller(t, &fakeBoard{})
	assert.Equal(t, "2026-08-26 12:30:00 MSK", p.formatMSK("2026-08-26T09:30:00+00:00"))
	assert.Equal(t, "время не определено", p.formatMSK("not a timestamp"))
	assert.Equal(t, "время не определено", p.formatMSK(""))
}

func TestFetchPendingCoverLetter(t *testing.T) {
	board := &fakeBoard{messages: []hh.Message{
		{ID: "m1", Text: "Здравствуйте, хочу у вас работать", CreatedAt: "2026-08-26T08:00:00+00:00"},
		{ID: "m2", Text: ""},
	}}
	p := newTestPoller(t, board)

	entries := p.fetchPending(context.Background(), &store.Recruiter{}, hh.NegotiationItem{ID: "r1"})
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].MessageID)
	assert.Equal(t, dialog.RoleUser, entries[0].Role)
	assert.Equal(t, "2026-08-26 11:00:00 MSK", entries[0].TimestampMSK)
}

func TestFetchPendingWithoutCoverLetter(t *testing.T) {
	p := newTestPoller(t, &fakeBoard{})

	item := hh.NegotiationItem{ID: "r2", CreatedAt: "2026-08-26T08:00:00+00:00"}
	entries := p.fetchPending(context.Background(), &store.Recruiter{}, item)
	require.Len(t, entries, 1)
	assert.Equal(t, "no_msg_r2", entries[0].MessageID)
	assert.True(t, dialog.IsSystemCommand(entries[0].Content))
	assert.Contains(t, entries[0].Content, "без сопроводительного письма")
}

func TestFetchPendingThreadErrorFallsBack(t *testing.T) {
	p := newTestPoller(t, &fakeBoard{messagesErr: errors.New("api down")})

	entries := p.fetchPending(context.Background(), &store.Recruiter{}, hh.NegotiationItem{ID: "r3"})
	require.Len(t, entries, 1)
	assert.True(t, dialog.IsSystemCommand(entries[0].Content))
}

func TestSyncVacanciesCachesEmployerID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	board := &fakeBoard{employerID: "emp-1"}
	p := newTestPoller(t, board)
	p.store = store.New(mock, logging.Default())
	rec := &store.Recruiter{ID: 7}

	// First sync resolves the employer id via /me and persists it.
	mock.ExpectExec("UPDATE recruiters SET external_id").
		WithArgs(int64(7), "emp-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE vacancies").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE recruiters SET vacancies_last_synced_at").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	_, err = p.syncVacancies(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, board.meCalls)
	assert.Equal(t, "emp-1", rec.ExternalID)

	// The next full sync reuses the stored id without another /me call.
	mock.ExpectExec("UPDATE vacancies").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE recruiters SET vacancies_last_synced_at").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	_, err = p.syncVacancies(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, board.meCalls)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCutoff(t *testing.T) {
	p := newTestPoller(t, &fakeBoard{})

	created := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, created, p.cutoff(&store.Recruiter{CreatedAt: created}))

	fallback := p.cutoff(&store.Recruiter{})
	assert.Equal(t, time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC), fallback)
}
