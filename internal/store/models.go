package store

import (
	"time"

	"github.com/northstaff/hragent/internal/dialog"
)

// Recruiter owns vacancies and dialogues and carries the OAuth credentials
// plus the reviewer-chat routing configuration.
type Recruiter struct {
	ID                    int64
	Name                  string
	ExternalID            string
	RefreshToken          string
	AccessToken           string
	TokenExpiresAt        *time.Time
	VacanciesLastSyncedAt *time.Time
	TelegramChatID        *int64
	TopicQualifiedID      *int32
	TopicRejectedID       *int32
	TopicTimeoutID        *int32
	CreatedAt             time.Time
}

// Vacancy mirrors a job-board vacancy. A nil RecruiterID means the vacancy
// was observed to have become inactive and is detached, not deleted.
type Vacancy struct {
	ID          int64
	ExternalID  string
	Title       string
	City        string
	RecruiterID *int64
}

type Candidate struct {
	ID               int64
	ExternalResumeID string
	FullName         string
	Age              *int
	Citizenship      string
	City             string
	PhoneNumber      string
	ReadinessToStart string
	CreatedAt        time.Time
}

type Dialogue struct {
	ID                    int64
	ExternalResponseID    string
	CandidateID           int64
	VacancyID             int64
	RecruiterID           int64
	Status                string
	State                 string
	ReminderLevel         int
	History               []dialog.Entry
	Pending               []dialog.Entry
	LastUpdated           time.Time
	CreatedAt             time.Time
	ResponseCreatedAt     *time.Time
	InterviewAtUTC        *time.Time
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalCachedTokens     int
	TotalCost             float64
}

// AppSettings is the single-row ledger (id=1).
type AppSettings struct {
	Balance               float64
	CostPerDialogue       float64
	CostPerLongReminder   float64
	LowBalanceThreshold   float64
	LowLimitNotified      bool
	TotalSpentOnDialogues float64
	TotalSpentOnReminders float64
}

// UsageLog is one LLM call's ledger row. Retries and failures are logged
// with zero tokens for auditability.
type UsageLog struct {
	DialogueID       int64
	StateAtCall      string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	TotalTokens      int
	Cost             float64
}

// Outbound queue row statuses.
const (
	TaskPending       = "pending"
	TaskSent          = "sent"
	TaskError         = "error"
	TaskCancelled     = "cancelled"
	TaskSkippedNoChat = "skipped_no_chat"
)

// QueueTask is a row in one of the three outbound notification queues.
// CandidateID is set for the qualified queue, DialogueID for the others.
type QueueTask struct {
	ID          int64
	DialogueID  int64
	CandidateID int64
	Status      string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type InterviewReminder struct {
	ID                 int64
	DialogueID         int64
	RecruiterID        int64
	InterviewAtUTC     time.Time
	ScheduledSendAtUTC time.Time
	Type               string
	Status             string
	ProcessedAt        *time.Time
}

type TelegramUser struct {
	ID       int64
	ChatID   int64
	Username string
	IsAdmin  bool
}
