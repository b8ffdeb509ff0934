package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
wiki:
  id: enwiki
classifier:
  exempt_editors: ["ClueBot NG", "SomeBot"]
pages:
  source: static
  titles: ["Alan Turing", "Ada Lovelace"]
  refresh: "@every 10m"
format:
  limit: 280
publisher:
  driver: log
  rate_per_sec: 0.5
  dedup_window: 10m
logging:
  level: debug
  console: true
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wiki.ID != "enwiki" || cfg.Pages.Source != PagesStatic || len(cfg.Pages.Titles) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Publisher.RatePerSec != 0.5 || cfg.Logging.Level != "debug" {
		t.Fatalf("publisher/logging = %+v %+v", cfg.Publisher, cfg.Logging)
	}
	if !slices.Equal(cfg.Classifier.ExemptEditors, []string{"ClueBot NG", "SomeBot"}) {
		t.Fatalf("exempt editors = %v", cfg.Classifier.ExemptEditors)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	body := `{"wiki":{"id":"dewiki"},"pages":{"source":"category","category":"Watched"},"publisher":{"driver":"log"}}`
	cfg, err := NewConfigManager(writeFile(t, "config.json", body)).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wiki.ID != "dewiki" || cfg.Pages.Category != "Watched" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, body, want string
	}{
		{name: "unknown field", file: "c.json", body: `{"wiki":{"id":"enwiki","bogus":1}}`, want: "unknown field"},
		{name: "trailing data", file: "c.json", body: `{"wiki":{}} {"wiki":{}}`, want: "trailing data"},
		{name: "bad yaml", file: "c.yaml", body: "wiki: [", want: "yaml"},
	}
	for _, tt := range tests {
		_, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Wiki:      WikiConfig{ID: "enwiki"},
			Pages:     PagesConfig{Source: PagesStatic, Titles: []string{"A"}},
			Publisher: PublisherConfig{Driver: DriverLog},
		}
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "no source", mutate: func(c *Config) { c.Pages.Source = "" }, want: "pages.source"},
		{name: "static without titles", mutate: func(c *Config) { c.Pages.Titles = nil }, want: "pages.titles"},
		{name: "category without name", mutate: func(c *Config) { c.Pages.Source = PagesCategory }, want: "pages.category"},
		{name: "embeddedin without template", mutate: func(c *Config) { c.Pages.Source = PagesEmbeddedIn }, want: "pages.template"},
		{name: "unknown driver", mutate: func(c *Config) { c.Publisher.Driver = "mastodon" }, want: "publisher.driver"},
		{name: "telegram without chat", mutate: func(c *Config) {
			c.Publisher.Driver = DriverTelegram
			c.Telegram.Token = "123:abc"
		}, want: "telegram.chat_id"},
		{name: "negative limit", mutate: func(c *Config) { c.Format.Limit = -1 }, want: "format.limit"},
		{name: "bad duration", mutate: func(c *Config) { c.Publisher.DedupWindow = "soon" }, want: "publisher.dedup_window"},
		{name: "negative duration", mutate: func(c *Config) { c.Pages.Timeout = "-1s" }, want: "pages.timeout"},
		{name: "status without addr", mutate: func(c *Config) { c.Status.Enabled = true }, want: "status.addr"},
	}
	for _, tt := range tests {
		c := base()
		tt.mutate(c)
		err := Validate(c)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "999:env")
	body := `{"pages":{"source":"static","titles":["A"]},"publisher":{"driver":"telegram"},"telegram":{"chat_id":"@feed"}}`
	cfg, err := NewConfigManager(writeFile(t, "c.json", body)).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "999:env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}

	body = `{"pages":{"source":"static","titles":["A"]},"publisher":{"driver":"telegram"},"telegram":{"token":"1:file","chat_id":"@feed"}}`
	cfg, err = NewConfigManager(writeFile(t, "c.json", body)).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "1:file" {
		t.Fatalf("file token overridden: %q", cfg.Telegram.Token)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Minute},
		{raw: "0s", want: time.Minute},
		{raw: "15s", want: 15 * time.Second},
		{raw: "-2s", wantErr: true},
		{raw: "fast", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x", tt.raw, time.Minute)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v", tt.raw, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("%q = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{
		Wiki:      WikiConfig{ID: "enwiki"},
		Publisher: PublisherConfig{Driver: DriverTelegram, RatePerSec: 1},
		Telegram:  TelegramConfig{Token: "1:a", ChatID: "@feed"},
		Logging:   LoggingConfig{Level: "info"},
	}
	next := *old
	next.Telegram.Token = "2:b"
	next.Logging.Level = "debug"
	next.Publisher.RatePerSec = 2

	changed, attrs := SummarizeConfigChange(old, &next)
	if !slices.Equal(changed, []string{"logging", "publisher", "telegram"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if changed, _ := SummarizeConfigChange(old, old); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", sampleYAML)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return nil })
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	changed := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-updates:
			if cfg.Logging.Level != "warn" {
				t.Fatalf("published level %q", cfg.Logging.Level)
			}
			if m.Get() != cfg {
				t.Fatal("published config not committed")
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte(changed), 0o600); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatal("no config update published")
		}
	}
}
