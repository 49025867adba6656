package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/northstaff/hragent/pkg/logging"
)

const defaultAPIBase = "https://api.telegram.org"

// Bot is a thin Telegram Bot API client covering the calls the notifier
// and alerting need.
type Bot struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
}

func New(token string, logger *logging.Logger) *Bot {
	return &Bot{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultAPIBase,
		token:      token,
		logger:     logger.Named("telegram"),
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

var markdownEscapePattern = regexp.MustCompile("([_*`\\[])")

// EscapeMarkdown escapes the characters the legacy Markdown parse mode
// treats as formatting.
func EscapeMarkdown(text string) string {
	return markdownEscapePattern.ReplaceAllString(text, `\$1`)
}

// SendMessage posts a text message. threadID selects a forum topic when
// non-zero.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, threadID int64, text string, markdown bool) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	if markdown {
		payload["parse_mode"] = "Markdown"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return b.execute(req)
}

// SendDocument uploads a file with a Markdown caption. threadID selects a
// forum topic when non-zero.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, threadID int64, filename string, content []byte, caption string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram: failed to write form field: %w", err)
	}
	if threadID != 0 {
		if err := writer.WriteField("message_thread_id", strconv.FormatInt(threadID, 10)); err != nil {
			return fmt.Errorf("telegram: failed to write form field: %w", err)
		}
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("telegram: failed to write form field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "Markdown"); err != nil {
			return fmt.Errorf("telegram: failed to write form field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("telegram: failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("telegram: failed to write document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("telegram: failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.methodURL("sendDocument"), &buf)
	if err != nil {
		return fmt.Errorf("telegram: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return b.execute(req)
}

func (b *Bot) methodURL(method string) string {
	return b.baseURL + "/bot" + b.token + "/" + method
}

func (b *Bot) execute(req *http.Request) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: failed to read response: %w", err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("telegram: failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram: api error (status %d): %s", resp.StatusCode, parsed.Description)
	}
	return nil
}
