package prompt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/pkg/logging"
)

const libraryCacheKey = "hragent:prompt_library"

// Source fetches the knowledge document over HTTP and caches the raw text
// in Redis so the pipelines share one copy. The parsed library is held in
// memory for the same TTL; on fetch failure the last good copy is served.
type Source struct {
	httpClient *http.Client
	docURL     string
	redis      *redis.Client
	ttl        time.Duration
	logger     *logging.Logger

	mu       sync.Mutex
	cached   *Library
	cachedAt time.Time
}

// NewSource builds a knowledge document source. redisClient may be nil,
// leaving only the in-memory cache.
func NewSource(cfg *config.Config, redisClient *redis.Client, logger *logging.Logger) *Source {
	return &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		docURL:     cfg.KnowledgeDocURL,
		redis:      redisClient,
		ttl:        cfg.KnowledgeCacheTTL,
		logger:     logger.Named("prompt"),
	}
}

// Library returns the current prompt library, refreshing caches as needed.
// It never fails hard: without any copy it falls back to a minimal role
// block so dialogues keep moving.
func (s *Source) Library(ctx context.Context) *Library {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && time.Since(s.cachedAt) < s.ttl {
		return s.cached
	}

	text, err := s.fetchText(ctx)
	if err != nil {
		s.logger.Error("failed to load knowledge document", "error", err)
		if s.cached != nil {
			return s.cached
		}
		return FallbackLibrary()
	}

	s.cached = ParseLibrary(text)
	s.cachedAt = time.Now()
	s.logger.Debug("prompt library refreshed", "blocks", len(s.cached.Blocks), "vacancies", len(s.cached.Vacancies))
	return s.cached
}

func (s *Source) fetchText(ctx context.Context) (string, error) {
	if s.redis != nil {
		if text, err := s.redis.Get(ctx, libraryCacheKey).Result(); err == nil && text != "" {
			return text, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.docURL, nil)
	if err != nil {
		return "", fmt.Errorf("prompt: failed to build document request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("prompt: failed to fetch document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt: document fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("prompt: failed to read document: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, libraryCacheKey, body, s.ttl).Err(); err != nil {
			s.logger.Warn("failed to cache knowledge document", "error", err)
		}
	}
	return string(body), nil
}
