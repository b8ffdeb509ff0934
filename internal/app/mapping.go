package app

import (
	"fmt"
	"strings"
	"time"

	"revertbot/internal/config"
	"revertbot/internal/mediawiki"
	"revertbot/internal/notifier"
	"revertbot/internal/pages"
	"revertbot/internal/revert"
	"revertbot/internal/stream"
	"revertbot/internal/transport"
	"revertbot/internal/transport/telegram"
	logx "revertbot/pkg/logx"
)

const (
	defaultWiki      = "enwiki"
	defaultUserAgent = "revertbot/1.0 (https://github.com/revertbot/revertbot)"
)

func wikiID(cfg *config.Config) string {
	if id := strings.TrimSpace(cfg.Wiki.ID); id != "" {
		return id
	}
	return defaultWiki
}

func userAgent(cfg *config.Config) string {
	if ua := strings.TrimSpace(cfg.Wiki.UserAgent); ua != "" {
		return ua
	}
	return defaultUserAgent
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func buildClassifier(cfg *config.Config) (*revert.Classifier, error) {
	return revert.NewClassifier(revert.ClassifierConfig{
		Wiki:           wikiID(cfg),
		ExemptEditors:  cfg.Classifier.ExemptEditors,
		ExemptMarkers:  cfg.Classifier.ExemptMarkers,
		KeywordPattern: cfg.Classifier.KeywordPattern,
	}, nil)
}

func buildFormatter(cfg *config.Config) (*revert.Formatter, error) {
	return revert.NewFormatter(revert.FormatConfig{
		Limit:        cfg.Format.Limit,
		LinkLength:   cfg.Format.LinkLength,
		LinkTemplate: strings.TrimSpace(cfg.Wiki.DiffLink),
	})
}

func mapSourceConfig(cfg *config.Config) pages.SourceConfig {
	return pages.SourceConfig{
		Kind:       strings.ToLower(strings.TrimSpace(cfg.Pages.Source)),
		Titles:     cfg.Pages.Titles,
		Category:   cfg.Pages.Category,
		Template:   cfg.Pages.Template,
		Namespaces: cfg.Pages.Namespaces,
	}
}

func mapRefresherOptions(cfg *config.Config) (pages.RefresherOptions, error) {
	timeout, err := config.ParseDurationOrDefault("pages.timeout", cfg.Pages.Timeout, time.Minute)
	if err != nil {
		return pages.RefresherOptions{}, err
	}
	sched := strings.TrimSpace(cfg.Pages.Refresh)
	if sched == "" {
		sched = pages.DefaultSchedule
	}
	if _, err := pages.ParseSchedule(sched); err != nil {
		return pages.RefresherOptions{}, fmt.Errorf("pages.refresh: %w", err)
	}
	return pages.RefresherOptions{Schedule: sched, Timeout: timeout}, nil
}

func newWikiClient(cfg *config.Config) *mediawiki.Client {
	api := strings.TrimSpace(cfg.Wiki.APIURL)
	if api == "" {
		api = mediawiki.DefaultAPIURL
	}
	return mediawiki.New(api, mediawiki.WithUserAgent(userAgent(cfg)))
}

func mapStreamOptions(cfg *config.Config) (stream.Options, error) {
	wait, err := config.ParseDurationOrDefault("wiki.reconnect_max", cfg.Wiki.ReconnectMax, 30*time.Second)
	if err != nil {
		return stream.Options{}, err
	}
	return stream.Options{
		URL:              strings.TrimSpace(cfg.Wiki.StreamURL),
		UserAgent:        userAgent(cfg),
		Wiki:             wikiID(cfg),
		MaxReconnectWait: wait,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	dedup, err := config.ParseDurationOrDefault("publisher.dedup_window", cfg.Publisher.DedupWindow, 10*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("publisher.send_timeout", cfg.Publisher.SendTimeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		QueueSize:       cfg.Publisher.QueueSize,
		RatePerSec:      cfg.Publisher.RatePerSec,
		Burst:           cfg.Publisher.Burst,
		DedupWindow:     dedup,
		DedupMaxEntries: cfg.Publisher.DedupMaxEntries,
		SendTimeout:     sendTimeout,
		HistorySize:     cfg.Publisher.HistorySize,
	}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		ChatID:         cfg.Telegram.ChatID,
		ThreadID:       cfg.Telegram.ThreadID,
		DisablePreview: cfg.Telegram.DisablePreview,
		APIURL:         cfg.Telegram.APIURL,
		Timeout:        timeout,
	}, nil
}

// newPublisher builds the publisher named by publisher.driver.
func newPublisher(cfg *config.Config, log logx.Logger) (transport.Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Publisher.Driver)) {
	case config.DriverTelegram:
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		return telegram.New(tc, log)
	case config.DriverLog:
		return transport.NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("publisher.driver: unknown driver %q", cfg.Publisher.Driver)
	}
}
