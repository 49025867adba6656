package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/northstaff/hragent/pkg/logging"
)

type scriptedChat struct {
	failures  int
	calls     int
	responses []openai.ChatCompletionResponse
}

func (s *scriptedChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	if s.calls <= s.failures {
		return openai.ChatCompletionResponse{}, errors.New("upstream unavailable")
	}
	return s.responses[0], nil
}

func newTestLLM(chat chatClient, retries int) *Client {
	return &Client{
		api:         chat,
		model:       "gpt-4o-mini",
		temperature: 0.3,
		maxTokens:   2500,
		retries:     retries,
		sem:         semaphore.NewWeighted(4),
		logger:      logging.New("error"),
	}
}

func completionResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		Usage: openai.Usage{
			PromptTokens:        1000,
			CompletionTokens:    200,
			PromptTokensDetails: &openai.PromptTokensDetails{CachedTokens: 400},
		},
	}
}

func TestCompleteRetriesAndTracksAttempts(t *testing.T) {
	chat := &scriptedChat{failures: 2, responses: []openai.ChatCompletionResponse{completionResponse(`{"response_text":"ок","new_state":"qualification"}`)}}
	c := newTestLLM(chat, 3)

	result, attempts, err := c.Complete(context.Background(), []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "привет"}})
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
	assert.Equal(t, 3, chat.calls)
	assert.Equal(t, 1000, result.Usage.PromptTokens)
	assert.Equal(t, 400, result.Usage.CachedTokens)
}

func TestCompleteGivesUpAfterRetries(t *testing.T) {
	chat := &scriptedChat{failures: 10}
	c := newTestLLM(chat, 3)

	_, attempts, err := c.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Len(t, attempts, 3)
	assert.Equal(t, 3, chat.calls)
}

func TestCompletionCost(t *testing.T) {
	u := Usage{PromptTokens: 1_000_000, CachedTokens: 400_000, CompletionTokens: 100_000}
	// 600k fresh at 0.150 + 400k cached at 0.075 + 100k completion at 0.600.
	assert.InDelta(t, 0.6*0.150+0.4*0.075+0.1*0.600, CompletionCost(u), 1e-9)
}

func TestParseTurnReply(t *testing.T) {
	reply, err := ParseTurnReply("```json\n{\"response_text\":\"Здравствуйте!\",\"new_state\":\"qualification\",\"extracted_data\":{\"age\":35,\"city\":\"Санкт-Петербург\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Здравствуйте!", reply.ResponseText)
	assert.Equal(t, "qualification", reply.NewState)
	age, ok := reply.IntField("age")
	require.True(t, ok)
	assert.Equal(t, 35, age)
	assert.Equal(t, "Санкт-Петербург", reply.StringField("city"))

	_, err = ParseTurnReply("{}")
	assert.Error(t, err)
}

func TestParseVerificationReply(t *testing.T) {
	reply, err := ParseVerificationReply(`{"answer":"Yes"}`)
	require.NoError(t, err)
	assert.True(t, reply.Declined())

	reply, err = ParseVerificationReply(`{"answer":"no"}`)
	require.NoError(t, err)
	assert.False(t, reply.Declined())
}

func TestParseCitizenshipReply(t *testing.T) {
	reply, err := ParseCitizenshipReply(`{"is":true,"citizenship":"РФ"}`)
	require.NoError(t, err)
	assert.True(t, reply.Is)
	assert.Equal(t, "РФ", reply.Citizenship)
}
