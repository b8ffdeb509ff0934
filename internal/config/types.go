package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Wiki       WikiConfig       `json:"wiki"`
	Classifier ClassifierConfig `json:"classifier"`
	Pages      PagesConfig      `json:"pages"`
	Format     FormatConfig     `json:"format"`
	Publisher  PublisherConfig  `json:"publisher"`
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Status     StatusConfig     `json:"status"`
}

// WikiConfig names the wiki being watched and where its feeds live.
//
// Defaults (when fields are omitted/zero):
//   - id: "enwiki"
//   - stream_url: the Wikimedia recentchange stream
//   - api_url: https://en.wikipedia.org/w/api.php
//   - diff_link: https://en.wikipedia.org/w/index.php?diff={revision}
//   - reconnect_max: "30s"
type WikiConfig struct {
	ID           string `json:"id"`
	StreamURL    string `json:"stream_url,omitempty"`
	APIURL       string `json:"api_url,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	DiffLink     string `json:"diff_link,omitempty"`
	ReconnectMax string `json:"reconnect_max,omitempty"`
}

// ClassifierConfig tunes which reverts are reported. Empty lists keep the
// built-in defaults; exempt_markers extend the defaults.
type ClassifierConfig struct {
	ExemptEditors  []string `json:"exempt_editors,omitempty"`
	ExemptMarkers  []string `json:"exempt_markers,omitempty"`
	KeywordPattern string   `json:"keyword_pattern,omitempty"`
}

// PagesConfig selects the monitored-page source.
//
// source is one of "static" (titles), "category" (category) or
// "embeddedin" (template). refresh accepts cron ("@every 10m", "0 */5 * * * *"),
// "HH:MM" or a plain duration.
type PagesConfig struct {
	Source     string   `json:"source"`
	Titles     []string `json:"titles,omitempty"`
	Category   string   `json:"category,omitempty"`
	Template   string   `json:"template,omitempty"`
	Namespaces []int    `json:"namespaces,omitempty"`
	Refresh    string   `json:"refresh,omitempty"`
	Timeout    string   `json:"timeout,omitempty"`
}

// FormatConfig bounds the message length. link_length 0 counts the link at
// its real width; a positive value counts it at that fixed width.
type FormatConfig struct {
	Limit      int `json:"limit,omitempty"`
	LinkLength int `json:"link_length,omitempty"`
}

// PublisherConfig controls the async publish queue.
//
// driver is "telegram" or "log" (dry run).
type PublisherConfig struct {
	Driver          string  `json:"driver"`
	QueueSize       int     `json:"queue_size,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
	Burst           int     `json:"burst,omitempty"`
	DedupWindow     string  `json:"dedup_window,omitempty"`
	DedupMaxEntries int     `json:"dedup_max_entries,omitempty"`
	SendTimeout     string  `json:"send_timeout,omitempty"`
	HistorySize     int     `json:"history_size,omitempty"`
}

// TelegramConfig is used when publisher.driver is "telegram". An empty token
// is filled from REVERTBOT_TELEGRAM_TOKEN.
type TelegramConfig struct {
	Token          string `json:"token,omitempty"`
	ChatID         string `json:"chat_id"`
	ThreadID       int    `json:"thread_id,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	APIURL         string `json:"api_url,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFileCfg `json:"file"`
}

type LoggingFileCfg struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StatusConfig enables the HTTP status server.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof. Keep addr on loopback.
	Pprof bool `json:"pprof,omitempty"`
}

// TokenEnv is the environment variable consulted for an empty telegram.token.
const TokenEnv = "REVERTBOT_TELEGRAM_TOKEN"

const (
	PagesStatic     = "static"
	PagesCategory   = "category"
	PagesEmbeddedIn = "embeddedin"

	DriverTelegram = "telegram"
	DriverLog      = "log"
)
