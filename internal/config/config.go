package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Env         string
	LogLevel    string
	OpsPort     string
	DatabaseURL string
	RedisAddr   string

	// Operating timezone for candidate-facing wall-clock logic
	TimezoneName string

	// Job-board API
	JobBoardBaseURL     string
	JobBoardTokenURL    string
	JobBoardSiteURL     string
	JobBoardClientID    string
	JobBoardSecret      string
	JobBoardUserAgent   string
	JobBoardTimeout     time.Duration
	JobBoardRateLimit   int
	JobBoardConcurrency int
	JobBoardRetries     int
	JobBoardRetryWait   time.Duration

	// LLM API
	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMProxyURL    string
	LLMTimeout     time.Duration
	LLMConcurrency int
	LLMRetries     int
	LLMTemperature float64
	LLMMaxTokens   int

	// Knowledge base document
	KnowledgeDocURL      string
	KnowledgeCacheTTL    time.Duration
	MissingVacanciesPath string

	// Telegram notifier
	TelegramBotToken string

	// Poller
	PollInterval      time.Duration
	VacancyCacheTTL   time.Duration
	PollerConcurrency int

	// Processor
	ProcessorBatchSize  int
	ProcessorDebounce   time.Duration
	ProcessorIdleSleep  time.Duration
	ProcessorBusySleep  time.Duration
	TokenRefreshLeeway  time.Duration
	TokenNotExpiredSkew time.Duration

	// Reminders
	DojimConcurrency     int
	DojimWindowStartHour int
	DojimWindowEndHour   int
	ReminderBatchSize    int
	ReminderSendPause    time.Duration

	// Notifier
	NotifierBatchSize     int
	NotifierIdleSleep     time.Duration
	WatchdogInterval      time.Duration
	WatchdogStuckAfter    time.Duration
	HistoryRetentionDays  int
	HistoryCleanupHourUTC int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		OpsPort:     getEnv("OPS_PORT", "9090"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),

		TimezoneName: getEnv("OPERATING_TZ", "Europe/Moscow"),

		JobBoardBaseURL:     getEnv("JOB_BOARD_BASE_URL", "https://api.hh.ru"),
		JobBoardTokenURL:    getEnv("JOB_BOARD_TOKEN_URL", "https://api.hh.ru/token"),
		JobBoardSiteURL:     getEnv("JOB_BOARD_SITE_URL", "https://hh.ru"),
		JobBoardClientID:    getEnv("JOB_BOARD_CLIENT_ID", ""),
		JobBoardSecret:      getEnv("JOB_BOARD_CLIENT_SECRET", ""),
		JobBoardUserAgent:   getEnv("JOB_BOARD_USER_AGENT", "hragent/1.0"),
		JobBoardTimeout:     getEnvAsDuration("JOB_BOARD_TIMEOUT", 60*time.Second),
		JobBoardRateLimit:   getEnvAsInt("JOB_BOARD_RATE_LIMIT", 100),
		JobBoardConcurrency: getEnvAsInt("JOB_BOARD_CONCURRENCY", 80),
		JobBoardRetries:     getEnvAsInt("JOB_BOARD_RETRIES", 3),
		JobBoardRetryWait:   getEnvAsDuration("JOB_BOARD_RETRY_WAIT", 5*time.Second),

		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMProxyURL:    getEnv("LLM_PROXY_URL", ""),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 600*time.Second),
		LLMConcurrency: getEnvAsInt("LLM_CONCURRENCY", 40),
		LLMRetries:     getEnvAsInt("LLM_RETRIES", 3),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 2500),

		KnowledgeDocURL:      getEnv("KNOWLEDGE_DOC_URL", ""),
		KnowledgeCacheTTL:    getEnvAsDuration("KNOWLEDGE_CACHE_TTL", 120*time.Second),
		MissingVacanciesPath: getEnv("MISSING_VACANCIES_PATH", "missing_vacancies.txt"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
		VacancyCacheTTL:   getEnvAsDuration("VACANCY_CACHE_TTL", 2*time.Minute),
		PollerConcurrency: getEnvAsInt("POLLER_CONCURRENCY", 10),

		ProcessorBatchSize:  getEnvAsInt("PROCESSOR_BATCH_SIZE", 40),
		ProcessorDebounce:   getEnvAsDuration("PROCESSOR_DEBOUNCE", 15*time.Second),
		ProcessorIdleSleep:  getEnvAsDuration("PROCESSOR_IDLE_SLEEP", 2*time.Second),
		ProcessorBusySleep:  getEnvAsDuration("PROCESSOR_BUSY_SLEEP", 500*time.Millisecond),
		TokenRefreshLeeway:  getEnvAsDuration("TOKEN_REFRESH_LEEWAY", 300*time.Second),
		TokenNotExpiredSkew: getEnvAsDuration("TOKEN_NOT_EXPIRED_SKEW", 5*time.Minute),

		DojimConcurrency:     getEnvAsInt("DOJIM_CONCURRENCY", 20),
		DojimWindowStartHour: getEnvAsInt("DOJIM_WINDOW_START_HOUR", 9),
		DojimWindowEndHour:   getEnvAsInt("DOJIM_WINDOW_END_HOUR", 20),
		ReminderBatchSize:    getEnvAsInt("REMINDER_BATCH_SIZE", 20),
		ReminderSendPause:    getEnvAsDuration("REMINDER_SEND_PAUSE", 30*time.Second),

		NotifierBatchSize:     getEnvAsInt("NOTIFIER_BATCH_SIZE", 10),
		NotifierIdleSleep:     getEnvAsDuration("NOTIFIER_IDLE_SLEEP", 10*time.Second),
		WatchdogInterval:      getEnvAsDuration("WATCHDOG_INTERVAL", 60*time.Second),
		WatchdogStuckAfter:    getEnvAsDuration("WATCHDOG_STUCK_AFTER", 10*time.Minute),
		HistoryRetentionDays:  getEnvAsInt("HISTORY_RETENTION_DAYS", 30),
		HistoryCleanupHourUTC: getEnvAsInt("HISTORY_CLEANUP_HOUR_UTC", 3),
	}
}

// RecruiterIDs parses the --recruiters style comma-separated id list.
// An empty input means no restriction.
func RecruiterIDs(raw string) []int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
