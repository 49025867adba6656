package hh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/northstaff/hragent/internal/store"
)

// CredentialStore is the persistence surface the token refresh needs. The
// row lock makes the refresh correct across workers; the per-recruiter
// mutex in the client collapses duplicate refreshes within one process.
type CredentialStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockRecruiter(ctx context.Context, tx store.Querier, id int64) (*store.Recruiter, error)
	UpdateRecruiterTokens(ctx context.Context, q store.Querier, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	ExtendRecruiterToken(ctx context.Context, q store.Querier, id int64, expiresAt time.Time) error
}

// AdminAlerter delivers operator-only alerts, e.g. on revoked credentials.
type AdminAlerter interface {
	AdminAlert(ctx context.Context, text string)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *Client) recruiterLock(id int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recruiterMu[id] == nil {
		c.recruiterMu[id] = &sync.Mutex{}
	}
	return c.recruiterMu[id]
}

func (c *Client) markAuthFailed(id int64) {
	c.mu.Lock()
	c.authFailed[id] = true
	c.mu.Unlock()
}

func (c *Client) isAuthFailed(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authFailed[id]
}

func tokenValid(access string, expiresAt *time.Time, now time.Time) bool {
	return access != "" && expiresAt != nil && expiresAt.After(now)
}

// accessToken returns a valid bearer token for the recruiter, refreshing
// and persisting it when the cached one expired. The recruiter struct is
// updated in place so subsequent calls reuse the fresh pair. force skips
// the expiry checks, used after the API rejected a nominally valid token.
func (c *Client) accessToken(ctx context.Context, r *store.Recruiter, force bool) (string, error) {
	now := time.Now().UTC()
	if !force && tokenValid(r.AccessToken, r.TokenExpiresAt, now) {
		return r.AccessToken, nil
	}
	if c.isAuthFailed(r.ID) {
		return "", ErrTokenRevoked
	}

	lock := c.recruiterLock(r.ID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := c.creds.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	locked, err := c.creds.LockRecruiter(ctx, tx, r.ID)
	if err != nil {
		return "", err
	}

	// Another worker may have refreshed while we waited for the lock. In
	// the forced case only a token different from the rejected one counts.
	if tokenValid(locked.AccessToken, locked.TokenExpiresAt, now) && (!force || locked.AccessToken != r.AccessToken) {
		r.AccessToken = locked.AccessToken
		r.RefreshToken = locked.RefreshToken
		r.TokenExpiresAt = locked.TokenExpiresAt
		return r.AccessToken, tx.Commit(ctx)
	}

	if locked.RefreshToken == "" {
		c.alertAdmin(ctx, fmt.Sprintf("Рекрутер %s (ID %d): отсутствует refresh_token, операции остановлены.", locked.Name, locked.ID))
		c.markAuthFailed(r.ID)
		return "", ErrTokenRevoked
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", locked.RefreshToken)
	if c.clientID != "" {
		form.Set("client_id", c.clientID)
		form.Set("client_secret", c.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("hh: failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HH-User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("hh: token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hh: failed to read token response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var tokens tokenResponse
		if err := json.Unmarshal(body, &tokens); err != nil {
			return "", fmt.Errorf("hh: failed to parse token response: %w", err)
		}
		refresh := locked.RefreshToken
		if tokens.RefreshToken != "" {
			refresh = tokens.RefreshToken
		}
		expiresAt := now.Add(time.Duration(tokens.ExpiresIn)*time.Second - c.refreshLeeway)
		if err := c.creds.UpdateRecruiterTokens(ctx, tx, r.ID, tokens.AccessToken, refresh, expiresAt); err != nil {
			return "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("hh: failed to commit token refresh: %w", err)
		}
		r.AccessToken = tokens.AccessToken
		r.RefreshToken = refresh
		r.TokenExpiresAt = &expiresAt
		c.logger.Info("access token refreshed", "recruiter_id", r.ID)
		return r.AccessToken, nil
	}

	parsed, _ := parseErrorBody(body)
	switch {
	case parsed.ErrorDescription == "token not expired":
		// The provider insists the current token is still good; trust it
		// for a short window instead of hammering the token endpoint.
		expiresAt := now.Add(c.notExpiredSkew)
		if err := c.creds.ExtendRecruiterToken(ctx, tx, r.ID, expiresAt); err != nil {
			return "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("hh: failed to commit token extension: %w", err)
		}
		r.AccessToken = locked.AccessToken
		r.TokenExpiresAt = &expiresAt
		return r.AccessToken, nil
	case parsed.ErrorDescription == "password invalidated",
		parsed.ErrorDescription == "token deactivated",
		parsed.OauthError == "token-revoked":
		c.alertAdmin(ctx, fmt.Sprintf("Рекрутер %s (ID %d): авторизация отозвана (%s). Требуется повторный вход.", locked.Name, locked.ID, parsed.ErrorDescription))
		c.markAuthFailed(r.ID)
		return "", ErrTokenRevoked
	default:
		return "", &APIError{Status: resp.StatusCode, Body: body}
	}
}

func (c *Client) alertAdmin(ctx context.Context, text string) {
	if c.alerts == nil {
		return
	}
	c.alerts.AdminAlert(ctx, text)
}
