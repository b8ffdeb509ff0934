package config

import (
	"reflect"
	"sort"
	"strings"

	logx "revertbot/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging. Secrets (the telegram token) are reported
// only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Wiki, newCfg.Wiki) {
		changed = append(changed, "wiki")
		attrs = append(attrs,
			logx.String("wiki.id", strings.TrimSpace(newCfg.Wiki.ID)),
			logx.String("wiki.stream_url", strings.TrimSpace(newCfg.Wiki.StreamURL)),
			logx.String("wiki.api_url", strings.TrimSpace(newCfg.Wiki.APIURL)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Classifier, newCfg.Classifier) {
		changed = append(changed, "classifier")
		attrs = append(attrs,
			logx.Int("classifier.exempt_editors", len(newCfg.Classifier.ExemptEditors)),
			logx.Int("classifier.exempt_markers", len(newCfg.Classifier.ExemptMarkers)),
			logx.Bool("classifier.keyword_pattern_set", strings.TrimSpace(newCfg.Classifier.KeywordPattern) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Pages, newCfg.Pages) {
		changed = append(changed, "pages")
		attrs = append(attrs,
			logx.String("pages.source", strings.TrimSpace(newCfg.Pages.Source)),
			logx.Int("pages.titles", len(newCfg.Pages.Titles)),
			logx.String("pages.refresh", strings.TrimSpace(newCfg.Pages.Refresh)),
		)
	}

	if oldCfg.Format != newCfg.Format {
		changed = append(changed, "format")
		attrs = append(attrs,
			logx.Int("format.limit", newCfg.Format.Limit),
			logx.Int("format.link_length", newCfg.Format.LinkLength),
		)
	}

	if oldCfg.Publisher != newCfg.Publisher {
		changed = append(changed, "publisher")
		attrs = append(attrs,
			logx.String("publisher.driver", strings.TrimSpace(newCfg.Publisher.Driver)),
			logx.Int("publisher.queue_size", newCfg.Publisher.QueueSize),
			logx.Any("publisher.rate_per_sec", newCfg.Publisher.RatePerSec),
			logx.Int("publisher.burst", newCfg.Publisher.Burst),
			logx.String("publisher.dedup_window", strings.TrimSpace(newCfg.Publisher.DedupWindow)),
		)
	}

	// Telegram (never log token)
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.String("telegram.chat_id", strings.TrimSpace(newCfg.Telegram.ChatID)),
			logx.Int("telegram.thread_id", newCfg.Telegram.ThreadID),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", newCfg.Status.Enabled),
			logx.String("status.addr", strings.TrimSpace(newCfg.Status.Addr)),
			logx.Bool("status.pprof", newCfg.Status.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
