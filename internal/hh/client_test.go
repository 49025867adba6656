package hh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

type fakeCreds struct {
	mock      pgxmock.PgxPoolIface
	locked    *store.Recruiter
	updatedTo string
	extended  bool
}

func (f *fakeCreds) Begin(ctx context.Context) (pgx.Tx, error) {
	return f.mock.Begin(ctx)
}

func (f *fakeCreds) LockRecruiter(ctx context.Context, tx store.Querier, id int64) (*store.Recruiter, error) {
	cp := *f.locked
	return &cp, nil
}

func (f *fakeCreds) UpdateRecruiterTokens(ctx context.Context, q store.Querier, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	f.updatedTo = accessToken
	return nil
}

func (f *fakeCreds) ExtendRecruiterToken(ctx context.Context, q store.Querier, id int64, expiresAt time.Time) error {
	f.extended = true
	return nil
}

func newTestClient(t *testing.T, api, token string, creds CredentialStore) *Client {
	t.Helper()
	cfg := &config.Config{
		JobBoardTimeout:     5 * time.Second,
		JobBoardRateLimit:   100,
		JobBoardConcurrency: 8,
		JobBoardRetries:     1,
		JobBoardRetryWait:   time.Millisecond,
		JobBoardUserAgent:   "hragent-test/1.0",
		JobBoardSiteURL:     "https://hh.ru",
		TokenRefreshLeeway:  300 * time.Second,
		TokenNotExpiredSkew: 5 * time.Minute,
	}
	c := NewClient(cfg, creds, nil, logging.New("error"))
	c.baseURL = api
	c.tokenURL = token
	c.sleep = func(ctx context.Context, d time.Duration) {}
	return c
}

func validRecruiter() *store.Recruiter {
	exp := time.Now().UTC().Add(time.Hour)
	return &store.Recruiter{ID: 1, Name: "test", AccessToken: "tok", RefreshToken: "ref", TokenExpiresAt: &exp}
}

func TestSendMessageFatal403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"type": "negotiations", "value": "invalid_vacancy"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL+"/token", &fakeCreds{})
	err := c.SendMessage(context.Background(), validRecruiter(), "resp-1", "привет")
	assert.ErrorIs(t, err, ErrVacancyClosed)
}

func TestMoveResponseToleratesFatal403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"type": "negotiations", "value": "resume_not_found"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL+"/token", &fakeCreds{})
	err := c.MoveResponse(context.Background(), validRecruiter(), FolderInterview, "resp-1")
	assert.NoError(t, err)
}

func TestCurrentFolderGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL+"/token", &fakeCreds{})
	_, err := c.CurrentFolder(context.Background(), validRecruiter(), "resp-1")
	assert.ErrorIs(t, err, ErrResponseGone)
}

func TestNonJSON403IsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL+"/token", &fakeCreds{})
	_, err := c.Me(context.Background(), validRecruiter())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestResponsesFromFolderSinceFilter(t *testing.T) {
	since := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("show_only_new_responses"))
		assert.Equal(t, "created_at", r.URL.Query().Get("order_by"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pages": 1,
			"items": []map[string]any{
				{"id": "new", "created_at": "2026-08-21T10:00:00+03:00"},
				{"id": "boundary", "created_at": "2026-08-20T15:00:00+03:00"},
				{"id": "old", "created_at": "2026-08-19T10:00:00+03:00"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL+"/token", &fakeCreds{})
	items, err := c.ResponsesFromFolder(context.Background(), validRecruiter(), FolderResponse, []string{"v1"}, since, true)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, "v1", items[0].VacancyID)
	// A response created exactly at the cutoff is part of the window.
	assert.Equal(t, "boundary", items[1].ID)
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
			assert.Equal(t, "ref", r.FormValue("refresh_token"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh", "refresh_token": "ref2", "expires_in": 1209600,
			})
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"employer": map[string]string{"id": "777"}})
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	expired := time.Now().UTC().Add(-time.Minute)
	rec := &store.Recruiter{ID: 1, Name: "test", AccessToken: "tok", RefreshToken: "ref", TokenExpiresAt: &expired}
	creds := &fakeCreds{mock: mock, locked: rec}

	c := newTestClient(t, srv.URL, srv.URL+"/token", creds)
	employerID, err := c.Me(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "777", employerID)
	assert.Equal(t, "Bearer fresh", gotAuth)
	assert.Equal(t, "fresh", creds.updatedTo)
	assert.Equal(t, "fresh", rec.AccessToken)
	assert.Equal(t, "ref2", rec.RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotExpiredExtendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "token not expired"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"employer": map[string]string{"id": "777"}})
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	expired := time.Now().UTC().Add(-time.Minute)
	rec := &store.Recruiter{ID: 1, Name: "test", AccessToken: "tok", RefreshToken: "ref", TokenExpiresAt: &expired}
	creds := &fakeCreds{mock: mock, locked: rec}

	c := newTestClient(t, srv.URL, srv.URL+"/token", creds)
	employerID, err := c.Me(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "777", employerID)
	assert.True(t, creds.extended)
	assert.Equal(t, "tok", rec.AccessToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokedTokenStopsRecruiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error_description": "token deactivated"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"employer": map[string]string{"id": "777"}})
	}))
	defer srv.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	expired := time.Now().UTC().Add(-time.Minute)
	rec := &store.Recruiter{ID: 1, Name: "test", AccessToken: "tok", RefreshToken: "ref", TokenExpiresAt: &expired}
	creds := &fakeCreds{mock: mock, locked: rec}

	c := newTestClient(t, srv.URL, srv.URL+"/token", creds)
	_, err = c.Me(context.Background(), rec)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.True(t, c.Stopped(rec.ID))

	// Subsequent calls fail fast without touching the network.
	_, err = c.Me(context.Background(), rec)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
