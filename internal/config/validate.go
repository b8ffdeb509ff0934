package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Validate checks the config for values no component could accept. Deeper
// checks (schedule syntax, keyword regexp) happen when components are built.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Pages.Source)) {
	case PagesStatic:
		if len(cfg.Pages.Titles) == 0 {
			add("pages.titles: required for source %q", PagesStatic)
		}
	case PagesCategory:
		if strings.TrimSpace(cfg.Pages.Category) == "" {
			add("pages.category: required for source %q", PagesCategory)
		}
	case PagesEmbeddedIn:
		if strings.TrimSpace(cfg.Pages.Template) == "" {
			add("pages.template: required for source %q", PagesEmbeddedIn)
		}
	case "":
		add("pages.source: required")
	default:
		add("pages.source: unknown source %q", cfg.Pages.Source)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Publisher.Driver)) {
	case DriverTelegram:
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			add("telegram.token: required (or set %s)", TokenEnv)
		}
		if strings.TrimSpace(cfg.Telegram.ChatID) == "" {
			add("telegram.chat_id: required")
		}
	case DriverLog:
	case "":
		add("publisher.driver: required")
	default:
		add("publisher.driver: unknown driver %q", cfg.Publisher.Driver)
	}

	if cfg.Format.Limit < 0 {
		add("format.limit: must be >= 0")
	}
	if cfg.Format.LinkLength < 0 {
		add("format.link_length: must be >= 0")
	}
	if cfg.Publisher.RatePerSec < 0 {
		add("publisher.rate_per_sec: must be >= 0")
	}
	if cfg.Publisher.QueueSize < 0 || cfg.Publisher.Burst < 0 || cfg.Publisher.HistorySize < 0 {
		add("publisher: queue_size, burst and history_size must be >= 0")
	}
	if cfg.Status.Enabled && strings.TrimSpace(cfg.Status.Addr) == "" {
		add("status.addr: required when status is enabled")
	}

	for _, f := range []struct{ path, raw string }{
		{"wiki.reconnect_max", cfg.Wiki.ReconnectMax},
		{"pages.timeout", cfg.Pages.Timeout},
		{"publisher.dedup_window", cfg.Publisher.DedupWindow},
		{"publisher.send_timeout", cfg.Publisher.SendTimeout},
		{"telegram.timeout", cfg.Telegram.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// applyEnv fills secrets that are allowed to live outside the file.
func applyEnv(cfg *Config) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = strings.TrimSpace(os.Getenv(TokenEnv))
	}
}
