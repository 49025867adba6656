package processor

import (
	"context"
	"strings"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northstaff/hragent/internal/dialog"
	"github.com/northstaff/hragent/internal/hh"
	"github.com/northstaff/hragent/internal/llm"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/prompt"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

func intPtr(v int) *int { return &v }

func TestProfileComplete(t *testing.T) {
	full := &store.Candidate{PhoneNumber: "+79001234567", Citizenship: "РФ", Age: intPtr(30)}
	assert.True(t, profileComplete(full))

	assert.False(t, profileComplete(&store.Candidate{Citizenship: "РФ", Age: intPtr(30)}))
	assert.False(t, profileComplete(&store.Candidate{PhoneNumber: "+79001234567", Age: intPtr(30)}))
	assert.False(t, profileComplete(&store.Candidate{PhoneNumber: "+79001234567", Citizenship: "РФ"}))
}

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name        string
		age         int
		citizenship string
		want        bool
	}{
		{"russian adult", 30, "РФ", true},
		{"eaeu", 25, "ЕАЭС", true},
		{"residence permit", 40, "внж рф", true},
		{"temporary permit", 40, "рвп рф", true},
		{"residence keyword only", 35, "есть вид на жительство", true},
		{"lower age bound", 18, "рф", true},
		{"upper age bound", 58, "рф", true},
		{"too young", 17, "рф", false},
		{"too old", 59, "рф", false},
		{"foreign without permit", 30, "Узбекистан", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &store.Candidate{Age: intPtr(tt.age), Citizenship: tt.citizenship}
			assert.Equal(t, tt.want, isEligible(c))
		})
	}
}

func TestIsSPB(t *testing.T) {
	assert.True(t, isSPB("Санкт-Петербург"))
	assert.True(t, isSPB("г. Санкт-Петербург, Невский пр."))
	assert.False(t, isSPB("Москва"))
	assert.False(t, isSPB(""))
}

func TestIsExcludedSPBTitle(t *testing.T) {
	assert.True(t, isExcludedSPBTitle("Повар"))
	assert.True(t, isExcludedSPBTitle("  БАРИСТА "))
	assert.True(t, isExcludedSPBTitle("Уборщица"))
	assert.False(t, isExcludedSPBTitle("Продавец-кассир"))
}

func TestBuildMessages(t *testing.T) {
	history := []dialog.Entry{
		{Role: dialog.RoleUser, Content: "Здравствуйте"},
		{Role: dialog.RoleAssistant, Content: "Добрый день!"},
	}
	messages := buildMessages("система", history, "Мне 25 лет")

	require.Len(t, messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, "система", messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[2].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[3].Role)
	assert.Equal(t, "Мне 25 лет", messages[3].Content)
}

func TestBotEntry(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	fixed := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	w := &Worker{loc: loc, now: func() time.Time { return fixed }}

	entry := w.botEntry("Добрый день!", dialog.StateAwaitingAge, map[string]any{"age": 25})

	assert.Equal(t, dialog.RoleAssistant, entry.Role)
	assert.Equal(t, "Добрый день!", entry.Content)
	assert.Equal(t, "2026-08-26 12:30:00 MSK", entry.TimestampMSK)
	assert.Equal(t, dialog.StateAwaitingAge, entry.State)
	assert.Contains(t, entry.MessageID, "bot_")
	assert.Equal(t, 25, entry.ExtractedData["age"])
}

type stubBoard struct {
	sendErr error
	sent    []string
	moved   []string
}

func (b *stubBoard) SendMessage(_ context.Context, _ *store.Recruiter, _, text string) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, text)
	return nil
}

func (b *stubBoard) MoveResponse(_ context.Context, _ *store.Recruiter, folder, _ string) error {
	b.moved = append(b.moved, folder)
	return nil
}

type stubModel struct {
	replies []string
	calls   int
}

func (m *stubModel) Complete(context.Context, []openai.ChatCompletionMessage) (*llm.Result, []llm.Attempt, error) {
	reply := m.replies[m.calls]
	m.calls++
	return &llm.Result{
		Content: reply,
		Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 20},
		Cost:    0.01,
	}, nil, nil
}

type stubPrompts struct{ lib *prompt.Library }

func (s stubPrompts) Library(context.Context) *prompt.Library { return s.lib }

type stubScheduler struct{ booked []string }

func (s *stubScheduler) ScheduleInterviewReminders(_ context.Context, _ store.Querier, _ *store.Dialogue, dateStr, timeStr string) error {
	s.booked = append(s.booked, dateStr+" "+timeStr)
	return nil
}

// argContains matches a []byte or string query argument containing every
// listed substring.
type argContains []string

func (a argContains) Match(v any) bool {
	var s string
	switch val := v.(type) {
	case []byte:
		s = string(val)
	case string:
		s = val
	default:
		return false
	}
	for _, part := range a {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}

var turnClock = time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

func newTurnWorker(t *testing.T, board *stubBoard, model *stubModel) (*Worker, pgxmock.PgxPoolIface, *stubScheduler) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	lib := &prompt.Library{
		Blocks: map[string]string{prompt.BlockRoleAndStyle: "Ты - HR компании."},
		Vacancies: []prompt.Vacancy{{
			Titles:      []string{"Продавец-кассир"},
			Cities:      []string{"Санкт-Петербург", "Москва"},
			Description: "Работа в магазине у дома.",
		}},
	}
	sched := &stubScheduler{}
	w := &Worker{
		store:     store.New(mock, logging.Default()),
		board:     board,
		model:     model,
		prompts:   stubPrompts{lib: lib},
		missing:   prompt.NewMissingLog(""),
		scheduler: sched,
		metrics:   metrics.NewPipelineMetrics(prometheus.NewRegistry()),
		logger:    logging.Default(),
		batchSize: 4,
		loc:       loc,
		now:       func() time.Time { return turnClock },
	}
	return w, mock, sched
}

type turnSeed struct {
	status      string
	state       string
	history     string
	pending     string
	age         any
	citizenship any
	phone       any
	vacCity     string
	vacTitle    string
}

// expectTurnReads queues the row reads processTurn performs before the
// model call, plus the usage ledger insert that follows it.
func expectTurnReads(mock pgxmock.PgxPoolIface, seed turnSeed) {
	loaded := time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, external_response_id").WithArgs(pgxmock.AnyArg()).WillReturnRows(pgxmock.NewRows([]string{
		"id", "external_response_id", "candidate_id", "vacancy_id", "recruiter_id",
		"status", "dialogue_state", "reminder_level", "history", "pending_messages",
		"last_updated", "created_at", "response_created_at", "interview_datetime_utc",
		"total_prompt_tokens", "total_completion_tokens", "total_cached_tokens", "total_cost",
	}).AddRow(int64(7), "resp-7", int64(2), int64(3), int64(4),
		seed.status, seed.state, 0, []byte(seed.history), []byte(seed.pending),
		loaded, loaded, nil, nil, 0, 0, 0, 0.0))
	mock.ExpectQuery("SELECT id, name, external_id").WithArgs(pgxmock.AnyArg()).WillReturnRows(pgxmock.NewRows([]string{
		"id", "name", "external_id", "refresh_token", "access_token", "token_expires_at",
		"vacancies_last_synced_at", "telegram_chat_id", "topic_qualified_id",
		"topic_rejected_id", "topic_timeout_id", "created_at",
	}).AddRow(int64(4), "hr", nil, "ref", nil, nil, nil, nil, nil, nil, nil, loaded))
	mock.ExpectQuery("SELECT id, external_resume_id").WithArgs(pgxmock.AnyArg()).WillReturnRows(pgxmock.NewRows([]string{
		"id", "external_resume_id", "full_name", "age", "citizenship",
		"city", "phone_number", "readiness_to_start", "created_at",
	}).AddRow(int64(2), "resume-2", "Иван", seed.age, seed.citizenship,
		nil, seed.phone, "завтра", loaded))
	mock.ExpectQuery("SELECT id, external_id, title").WithArgs(pgxmock.AnyArg()).WillReturnRows(pgxmock.NewRows([]string{
		"id", "external_id", "title", "city", "recruiter_id",
	}).AddRow(int64(3), "v-3", seed.vacTitle, seed.vacCity, int64(4)))
	mock.ExpectExec("INSERT INTO llm_usage_logs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func TestProcessTurnHardCriteriaRejection(t *testing.T) {
	board := &stubBoard{}
	model := &stubModel{replies: []string{`{"response_text":"Отлично, вы подходите!","new_state":"qualification_complete"}`}}
	w, mock, _ := newTurnWorker(t, board, model)

	expectTurnReads(mock, turnSeed{
		status:  dialog.StatusInProgress,
		state:   dialog.StateAwaitingAge,
		history: `[{"message_id":"m1","role":"user","content":"привет"}]`,
		pending: `[{"message_id":"m2","role":"user","content":"Мне 30 лет"}]`,
		age:     int64(30), citizenship: "Узбекистан", phone: "79001234567",
		vacCity: "Москва", vacTitle: "Продавец-кассир",
	})
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO rejected_notification_queue").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusRejected, dialog.StateQualificationFailed, 0,
			argContains{"Мне 30 лет", rejectionText}, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), 100, 20, 0, 0.01).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, w.processTurn(context.Background(), 7))
	require.Len(t, board.sent, 1)
	assert.Equal(t, rejectionText, board.sent[0])
	assert.Equal(t, []string{hh.FolderAssessment}, board.moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTurnSPBSwapsMailboxForScheduling(t *testing.T) {
	board := &stubBoard{}
	model := &stubModel{replies: []string{`{"response_text":"Отлично, вы подходите!","new_state":"qualification_complete"}`}}
	w, mock, sched := newTurnWorker(t, board, model)

	expectTurnReads(mock, turnSeed{
		status:  dialog.StatusInProgress,
		state:   dialog.StateAwaitingAge,
		history: `[{"message_id":"m1","role":"user","content":"привет"}]`,
		pending: `[{"message_id":"m2","role":"user","content":"Готов выйти сразу"}]`,
		age:     int64(30), citizenship: "РФ", phone: "79001234567",
		vacCity: "Санкт-Петербург", vacTitle: "Продавец-кассир",
	})
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusInProgress, dialog.StateInitSchedulingSPB, 0,
			argContains{"привет", "Готов выйти сразу"},
			argContains{dialog.SystemCommandPrefix, "Начни запись на собеседование"},
			pgxmock.AnyArg(), pgxmock.AnyArg(), 100, 20, 0, 0.01).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, w.processTurn(context.Background(), 7))
	assert.Empty(t, board.sent)
	assert.Empty(t, board.moved)
	assert.Empty(t, sched.booked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTurnUnconfirmedDeclineKeepsDialogueOpen(t *testing.T) {
	board := &stubBoard{}
	model := &stubModel{replies: []string{
		`{"response_text":"Очень жаль!","new_state":"declined_vacancy"}`,
		`{"answer":"no"}`,
	}}
	w, mock, _ := newTurnWorker(t, board, model)

	expectTurnReads(mock, turnSeed{
		status:  dialog.StatusInProgress,
		state:   dialog.StateAwaitingAge,
		history: `[{"message_id":"m1","role":"user","content":"привет"}]`,
		pending: `[{"message_id":"m2","role":"user","content":"пока не знаю"}]`,
		age:     int64(30), citizenship: "РФ", phone: "79001234567",
		vacCity: "Москва", vacTitle: "Продавец-кассир",
	})
	// The clarification call writes its own ledger row.
	mock.ExpectExec("INSERT INTO llm_usage_logs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusInProgress, dialog.StateAwaitingAge, 0,
			argContains{"привет"},
			argContains{"пока не знаю", "кандидат не отказывается"},
			pgxmock.AnyArg(), pgxmock.AnyArg(), 200, 40, 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, w.processTurn(context.Background(), 7))
	assert.Equal(t, 2, model.calls)
	assert.Empty(t, board.sent)
	assert.Empty(t, board.moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTurnClosedVacancyDropsPendingOnly(t *testing.T) {
	board := &stubBoard{sendErr: hh.ErrVacancyClosed}
	model := &stubModel{replies: []string{`{"response_text":"Какое у вас гражданство?","new_state":"awaiting_citizenship"}`}}
	w, mock, _ := newTurnWorker(t, board, model)

	history := `[{"message_id":"m1","role":"user","content":"привет"}]`
	expectTurnReads(mock, turnSeed{
		status:  dialog.StatusInProgress,
		state:   dialog.StateAwaitingAge,
		history: history,
		pending: `[{"message_id":"m2","role":"user","content":"Мне 30 лет"}]`,
		age:     int64(30), citizenship: nil, phone: "79001234567",
		vacCity: "Москва", vacTitle: "Продавец-кассир",
	})
	// State and history stay as loaded; only the mailbox is dropped.
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusInProgress, dialog.StateAwaitingAge, 0,
			[]byte(history), []byte(nil),
			pgxmock.AnyArg(), pgxmock.AnyArg(), 100, 20, 0, 0.01).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, w.processTurn(context.Background(), 7))
	assert.Empty(t, board.sent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessTurnAppendsHistoryAndClearsMailbox(t *testing.T) {
	board := &stubBoard{}
	model := &stubModel{replies: []string{`{"response_text":"Хорошо, какое у вас гражданство?","new_state":"awaiting_citizenship","extracted_data":{"age":30}}`}}
	w, mock, _ := newTurnWorker(t, board, model)

	expectTurnReads(mock, turnSeed{
		status:  dialog.StatusNew,
		state:   dialog.StateAwaitingAge,
		history: `[{"message_id":"m1","role":"user","content":"привет"}]`,
		pending: `[{"message_id":"m2","role":"user","content":"Мне 30 лет"}]`,
		age:     nil, citizenship: nil, phone: "79001234567",
		vacCity: "Москва", vacTitle: "Продавец-кассир",
	})
	mock.ExpectExec("UPDATE candidates").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE dialogues").
		WithArgs(int64(7), dialog.StatusInProgress, dialog.StateAwaitingCitizenship, 0,
			argContains{"привет", "Мне 30 лет", "Хорошо, какое у вас гражданство?"},
			[]byte(nil),
			pgxmock.AnyArg(), pgxmock.AnyArg(), 100, 20, 0, 0.01).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, w.processTurn(context.Background(), 7))
	require.Len(t, board.sent, 1)
	assert.Equal(t, "Хорошо, какое у вас гражданство?", board.sent[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
