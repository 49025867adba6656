package hh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

const pageSize = 20

// Client talks to the job board API on behalf of recruiters. It owns the
// global rate limit and concurrency cap shared by all pipelines in the
// process, and refreshes recruiter tokens through the credential store.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	tokenURL       string
	siteURL        string
	clientID       string
	clientSecret   string
	userAgent      string
	retries        int
	retryWait      time.Duration
	refreshLeeway  time.Duration
	notExpiredSkew time.Duration
	rateLimitWait  time.Duration

	limiter *rate.Limiter
	sem     *semaphore.Weighted

	creds  CredentialStore
	alerts AdminAlerter
	logger *logging.Logger

	mu          sync.Mutex
	recruiterMu map[int64]*sync.Mutex
	authFailed  map[int64]bool

	// test hook
	sleep func(ctx context.Context, d time.Duration)
}

// NewClient builds a job board client from configuration. alerts may be nil.
func NewClient(cfg *config.Config, creds CredentialStore, alerts AdminAlerter, logger *logging.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.JobBoardTimeout},
		baseURL:        cfg.JobBoardBaseURL,
		tokenURL:       cfg.JobBoardTokenURL,
		siteURL:        cfg.JobBoardSiteURL,
		clientID:       cfg.JobBoardClientID,
		clientSecret:   cfg.JobBoardSecret,
		userAgent:      cfg.JobBoardUserAgent,
		retries:        cfg.JobBoardRetries,
		retryWait:      cfg.JobBoardRetryWait,
		refreshLeeway:  cfg.TokenRefreshLeeway,
		notExpiredSkew: cfg.TokenNotExpiredSkew,
		rateLimitWait:  30 * time.Second,
		limiter:        rate.NewLimiter(rate.Limit(cfg.JobBoardRateLimit), cfg.JobBoardRateLimit),
		sem:            semaphore.NewWeighted(int64(cfg.JobBoardConcurrency)),
		creds:          creds,
		alerts:         alerts,
		logger:         logger.Named("hh"),
		recruiterMu:    make(map[int64]*sync.Mutex),
		authFailed:     make(map[int64]bool),
		sleep:          sleepCtx,
	}
}

// ResumeURL renders the public resume link for transcripts and captions.
func (c *Client) ResumeURL(resumeID string) string {
	return c.siteURL + "/resume/" + resumeID
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// do runs one authorised request, retrying transport timeouts a fixed
// number of times and refreshing the token once when the API rejects it.
func (c *Client) do(ctx context.Context, r *store.Recruiter, method, path string, query url.Values, body any) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	refreshed := false
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		token, err := c.accessToken(ctx, r, refreshed)
		if err != nil {
			return nil, err
		}

		data, err := c.roundTrip(ctx, token, method, path, query, body)
		if err == nil {
			return data, nil
		}

		if isTimeout(err) && attempt < c.retries {
			c.logger.Warn("request timed out, retrying", "method", method, "path", path, "attempt", attempt+1)
			c.sleep(ctx, c.retryWait)
			continue
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
			parsed, ok := parseErrorBody(apiErr.Body)
			switch {
			case !ok:
				// A non-JSON 403 is the board throttling us.
				c.logger.Warn("rate limited by job board", "recruiter_id", r.ID)
				c.sleep(ctx, c.rateLimitWait)
				return nil, ErrRateLimited
			case (parsed.OauthError == "token-revoked" || parsed.OauthError == "token-expired") && !refreshed:
				refreshed = true
				continue
			}
		}
		return nil, err
	}
}

func (c *Client) roundTrip(ctx context.Context, token, method, path string, query url.Values, body any) ([]byte, error) {
	u := path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("hh: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+u, reader)
	if err != nil {
		return nil, fmt.Errorf("hh: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("HH-User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: data}
	}
	return data, nil
}

// Me returns the employer id attached to the recruiter's account.
func (c *Client) Me(ctx context.Context, r *store.Recruiter) (string, error) {
	data, err := c.do(ctx, r, http.MethodGet, "/me", nil, nil)
	if err != nil {
		return "", err
	}
	var me meResponse
	if err := json.Unmarshal(data, &me); err != nil {
		return "", fmt.Errorf("hh: failed to parse me response: %w", err)
	}
	if me.Employer.ID == "" {
		return "", fmt.Errorf("hh: account has no employer")
	}
	return me.Employer.ID, nil
}

// ActiveVacancies pages through the employer's active vacancy list.
func (c *Client) ActiveVacancies(ctx context.Context, r *store.Recruiter, employerID string) ([]VacancyItem, error) {
	var items []VacancyItem
	for page := 0; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(pageSize))
		data, err := c.do(ctx, r, http.MethodGet, "/employers/"+employerID+"/vacancies/active", query, nil)
		if err != nil {
			return nil, err
		}
		var pageData vacanciesPage
		if err := json.Unmarshal(data, &pageData); err != nil {
			return nil, fmt.Errorf("hh: failed to parse vacancies page: %w", err)
		}
		items = append(items, pageData.Items...)
		if page >= pageData.Pages-1 {
			return items, nil
		}
	}
}

// ResponsesFromFolder lists responses for the given vacancies, newest
// first, keeping only those created at or after since. updatesOnly narrows the
// listing to rows with unread candidate activity.
func (c *Client) ResponsesFromFolder(ctx context.Context, r *store.Recruiter, folder string, vacancyIDs []string, since time.Time, updatesOnly bool) ([]NegotiationItem, error) {
	var items []NegotiationItem
	for _, vacancyID := range vacancyIDs {
	pages:
		for page := 0; ; page++ {
			query := url.Values{}
			query.Set("vacancy_id", vacancyID)
			query.Set("page", strconv.Itoa(page))
			query.Set("per_page", strconv.Itoa(pageSize))
			query.Set("order_by", "created_at")
			query.Set("order", "desc")
			if updatesOnly {
				if folder == FolderResponse {
					query.Set("show_only_new_responses", "true")
				} else {
					query.Set("show_only_new", "true")
				}
			}
			data, err := c.do(ctx, r, http.MethodGet, "/negotiations/"+folder, query, nil)
			if err != nil {
				return nil, err
			}
			var pageData negotiationsPage
			if err := json.Unmarshal(data, &pageData); err != nil {
				return nil, fmt.Errorf("hh: failed to parse negotiations page: %w", err)
			}
			for _, item := range pageData.Items {
				item.VacancyID = vacancyID
				items = append(items, item)
				// The listing is newest first, so the first item strictly
				// before the cutoff ends this vacancy. The cutoff itself
				// still belongs to the window.
				if !since.IsZero() {
					if created, err := time.Parse(time.RFC3339, item.CreatedAt); err == nil && created.Before(since) {
						break pages
					}
				}
			}
			if page >= pageData.Pages-1 {
				break
			}
		}
	}
	if since.IsZero() {
		return items, nil
	}
	filtered := items[:0]
	for _, item := range items {
		created, err := time.Parse(time.RFC3339, item.CreatedAt)
		if err != nil || !created.Before(since) {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// Messages fetches the whole message thread of a response in
// chronological order. messagesURL comes from the negotiation listing.
func (c *Client) Messages(ctx context.Context, r *store.Recruiter, messagesURL string) ([]Message, error) {
	path, err := c.relativePath(messagesURL)
	if err != nil {
		return nil, err
	}
	var items []Message
	for page := 0; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(pageSize))
		data, err := c.do(ctx, r, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}
		var pageData messagesPage
		if err := json.Unmarshal(data, &pageData); err != nil {
			return nil, fmt.Errorf("hh: failed to parse messages page: %w", err)
		}
		items = append(items, pageData.Items...)
		if page >= pageData.Pages-1 {
			break
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
	return items, nil
}

// SendMessage posts a reply into the response thread. A fatal 403 maps to
// ErrVacancyClosed so the caller can close the dialogue.
func (c *Client) SendMessage(ctx context.Context, r *store.Recruiter, responseID, text string) error {
	_, err := c.do(ctx, r, http.MethodPost, "/negotiations/"+responseID+"/messages", nil, map[string]string{"message": text})
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
		if parsed, ok := parseErrorBody(apiErr.Body); ok && parsed.isFatal403() {
			return fmt.Errorf("%w: %s", ErrVacancyClosed, truncate(string(apiErr.Body), 300))
		}
	}
	return err
}

// MoveResponse puts the response into the given folder. A fatal 403 is
// logged and swallowed: the vacancy is gone but the local state transition
// must still happen.
func (c *Client) MoveResponse(ctx context.Context, r *store.Recruiter, folder, responseID string) error {
	_, err := c.do(ctx, r, http.MethodPut, "/negotiations/"+folder+"/"+responseID, nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
		if parsed, ok := parseErrorBody(apiErr.Body); ok && parsed.isFatal403() {
			c.logger.Warn("move skipped, vacancy gone", "response_id", responseID, "folder", folder)
			return nil
		}
	}
	return err
}

// CurrentFolder returns the folder the response sits in. 404 maps to
// ErrResponseGone.
func (c *Client) CurrentFolder(ctx context.Context, r *store.Recruiter, responseID string) (string, error) {
	data, err := c.do(ctx, r, http.MethodGet, "/negotiations/"+responseID, nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return "", ErrResponseGone
		}
		return "", err
	}
	var details negotiationDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return "", fmt.Errorf("hh: failed to parse negotiation details: %w", err)
	}
	return details.EmployerState.ID, nil
}

// Stopped reports whether operations for the recruiter were halted after a
// credential revocation.
func (c *Client) Stopped(recruiterID int64) bool {
	return c.isAuthFailed(recruiterID)
}

func (c *Client) relativePath(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("hh: bad messages url: %w", err)
	}
	return u.Path, nil
}
