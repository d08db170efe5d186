package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	ChatModel        string
	ExtractorModel   string
	LLMTimeoutSec    int
	ReplyMaxTokens   int
	ReplyTemperature float64

	TelegramToken   string
	TelegramAPIBase string

	ClubWebsiteURL      string
	ClubInfoTTLHours    int
	KnowledgeDir        string
	KnowledgeWatch      bool
	ClubFetchRetries    int
	ClubFetchTimeoutSec int

	HistoryLimit              int
	TrainingLookbackDays      int
	TrainingRecentItems       int
	RunsRecentItems           int
	DuplicateWindowMinutes    int
	SummaryRefreshMinChars    int
	SummaryHistoryWindowChars int
	ReplyMaxChars             int

	WeeklyReportCron    string
	WeeklyReportEnabled bool
}

func FromEnv() Config {
	dataDir := stringOrDefault("NORTE_DATA_DIR", "/data")
	dbPath := stringOrDefault("NORTE_DB_PATH", filepath.Join(dataDir, "norte", "norte.sqlite"))

	return Config{
		Environment: stringOrDefault("NORTE_ENV", "development"),
		HTTPAddr:    stringOrDefault("NORTE_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,

		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:    stringOrDefault("NORTE_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ChatModel:        stringOrDefault("NORTE_CHAT_MODEL", "gpt-4o-mini"),
		ExtractorModel:   stringOrDefault("NORTE_EXTRACTOR_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec:    intOrDefault("NORTE_LLM_TIMEOUT_SECONDS", 60),
		ReplyMaxTokens:   intOrDefault("NORTE_REPLY_MAX_TOKENS", 450),
		ReplyTemperature: floatOrDefault("NORTE_REPLY_TEMPERATURE", 0.6),

		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase: stringOrDefault("NORTE_TELEGRAM_API_BASE", "https://api.telegram.org"),

		ClubWebsiteURL:      stringOrDefault("CLUB_WEBSITE_URL", "https://www.northhybridclub.com"),
		ClubInfoTTLHours:    intOrDefault("NORTE_CLUB_INFO_TTL_HOURS", 6),
		KnowledgeDir:        stringOrDefault("NORTE_KNOWLEDGE_DIR", filepath.Join(dataDir, "norte", "knowledge")),
		KnowledgeWatch:      boolOrDefault("NORTE_KNOWLEDGE_WATCH", true),
		ClubFetchRetries:    intOrDefault("NORTE_CLUB_FETCH_RETRIES", 2),
		ClubFetchTimeoutSec: intOrDefault("NORTE_CLUB_FETCH_TIMEOUT_SECONDS", 15),

		HistoryLimit:              intOrDefault("NORTE_HISTORY_LIMIT", 20),
		TrainingLookbackDays:      intOrDefault("NORTE_TRAINING_LOOKBACK_DAYS", 60),
		TrainingRecentItems:       intOrDefault("NORTE_TRAINING_RECENT_ITEMS", 10),
		RunsRecentItems:           intOrDefault("NORTE_RUNS_RECENT_ITEMS", 3),
		DuplicateWindowMinutes:    intOrDefault("NORTE_DUPLICATE_WINDOW_MINUTES", 30),
		SummaryRefreshMinChars:    intOrDefault("NORTE_SUMMARY_REFRESH_MIN_CHARS", 1200),
		SummaryHistoryWindowChars: intOrDefault("NORTE_SUMMARY_HISTORY_WINDOW_CHARS", 6000),
		ReplyMaxChars:             intOrDefault("NORTE_REPLY_MAX_CHARS", 4000),

		WeeklyReportCron:    stringOrDefault("NORTE_WEEKLY_REPORT_CRON", "0 9 * * 1"),
		WeeklyReportEnabled: boolOrDefault("NORTE_WEEKLY_REPORT_ENABLED", false),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func floatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
