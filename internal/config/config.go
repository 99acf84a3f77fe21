package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string

	// Source discovery
	CursorHistoryDir string
	ClaudeExportDir  string
	MaxHistoryDays   int

	// Analysis
	MinConfidence     float64
	AnalysisBatchSize int
	EnableReprocess   bool
	ReprocessDays     int
	ReprocessBatch    int

	// Schedules
	AnalyzeEvery  time.Duration
	SyncEvery     time.Duration
	WatchDebounce time.Duration

	// Notion (optional; anderson works without it, just no outbound sync)
	NotionToken      string
	NotionParentPage string
	NotionSyncDays   int
	NotionSyncBatch  int
}

func Load() Config {
	return Config{
		Port:        envInt("ANDERSON_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		CursorHistoryDir: envStr("CURSOR_HISTORY_DIR", ""),
		ClaudeExportDir:  envStr("CLAUDE_EXPORT_DIR", ""),
		MaxHistoryDays:   envInt("ANDERSON_MAX_HISTORY_DAYS", 30),

		MinConfidence:     envFloat("ANDERSON_MIN_CONFIDENCE", 0.7),
		AnalysisBatchSize: envInt("ANDERSON_ANALYSIS_BATCH", 100),
		EnableReprocess:   envBool("ANDERSON_ENABLE_REPROCESS", true),
		ReprocessDays:     envInt("ANDERSON_REPROCESS_DAYS", 30),
		ReprocessBatch:    envInt("ANDERSON_REPROCESS_BATCH", 20),

		AnalyzeEvery:  envDuration("ANDERSON_ANALYZE_EVERY", 2*time.Hour),
		SyncEvery:     envDuration("ANDERSON_SYNC_EVERY", 30*time.Minute),
		WatchDebounce: envDuration("ANDERSON_WATCH_DEBOUNCE", 5*time.Second),

		NotionToken:      envStr("NOTION_TOKEN", ""),
		NotionParentPage: envStr("NOTION_PARENT_PAGE", ""),
		NotionSyncDays:   envInt("NOTION_SYNC_DAYS", 7),
		NotionSyncBatch:  envInt("NOTION_SYNC_BATCH", 50),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
