package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const jsonConfig = `{
  "telegram": { "token": "123:abc", "poll_timeout": "10s", "group_log": "-100200" },
  "logging": { "level": "debug", "console": true, "file": { "enabled": false, "path": "" },
               "telegram": { "enabled": false, "min_level": "error", "rate_per_sec": 1 } },
  "sweeper": { "interval": "5s", "send_timeout": "10s", "max_attempts": 3, "timezone": "UTC" },
  "storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
}`

const yamlConfig = `
telegram:
  token: "123:abc"
  poll_timeout: 10s
  group_log: "-100200"
logging:
  level: debug
  console: true
  file: { enabled: false, path: "" }
  telegram: { enabled: false, min_level: error, rate_per_sec: 1 }
sweeper:
  interval: 5s
  send_timeout: 10s
  max_attempts: 3
  timezone: UTC
storage:
  driver: sqlite
  path: ./data/remindbot.db
`

const tomlConfig = `
[telegram]
token = "123:abc"
poll_timeout = "10s"
group_log = "-100200"

[logging]
level = "debug"
console = true

[logging.file]
enabled = false
path = ""

[logging.telegram]
enabled = false
min_level = "error"
rate_per_sec = 1

[sweeper]
interval = "5s"
send_timeout = "10s"
max_attempts = 3
timezone = "UTC"

[storage]
driver = "sqlite"
path = "./data/remindbot.db"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFormatsAgree(t *testing.T) {
	t.Parallel()
	var want *Config
	for _, tc := range []struct{ name, body string }{
		{"config.json", jsonConfig},
		{"config.yaml", yamlConfig},
		{"config.toml", tomlConfig},
	} {
		cfg, err := NewConfigManager(writeConfig(t, tc.name, tc.body)).Load()
		if err != nil {
			t.Fatalf("%s: Load: %v", tc.name, err)
		}
		if cfg.Sweeper.MaxAttempts != 3 || cfg.Storage.Driver != "sqlite" || cfg.Telegram.Token != "123:abc" {
			t.Fatalf("%s: unexpected config %+v", tc.name, cfg)
		}
		if want == nil {
			want = cfg
			continue
		}
		if !reflect.DeepEqual(want, cfg) {
			t.Fatalf("%s decoded differently:\nwant %+v\ngot  %+v", tc.name, want, cfg)
		}
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	body := strings.Replace(jsonConfig, `"max_attempts": 3`, `"max_attempts": 3, "retries": 5`, 1)
	if _, err := NewConfigManager(writeConfig(t, "config.json", body)).Parse(); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := NewConfigManager(writeConfig(t, "config.json", jsonConfig+"{}")).Parse(); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Sweeper:  SweeperConfig{Interval: "5s"},
			Storage:  StorageConfig{Driver: "memory"},
		}
	}
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: "telegram.token"},
		{name: "bad poll timeout", mutate: func(c *Config) { c.Telegram.PollTimeout = "soon" }, wantErr: "telegram.poll_timeout"},
		{name: "bad group log", mutate: func(c *Config) { c.Telegram.GroupLog = "@channel" }, wantErr: "telegram.group_log"},
		{name: "sub-second interval", mutate: func(c *Config) { c.Sweeper.Interval = "500ms" }, wantErr: "sweeper.interval"},
		{name: "negative interval", mutate: func(c *Config) { c.Sweeper.Interval = "-5s" }, wantErr: "sweeper.interval"},
		{name: "negative max attempts", mutate: func(c *Config) { c.Sweeper.MaxAttempts = -1 }, wantErr: "sweeper.max_attempts"},
		{name: "unknown timezone", mutate: func(c *Config) { c.Sweeper.Timezone = "Mars/Olympus" }, wantErr: "sweeper.timezone"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "storage.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: "storage.path"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestSweeperLocation(t *testing.T) {
	t.Parallel()
	for _, tz := range []string{"", "Local", "local"} {
		loc, err := SweeperConfig{Timezone: tz}.Location()
		if err != nil || loc != time.Local {
			t.Fatalf("Location(%q) = %v, %v; want time.Local", tz, loc, err)
		}
	}
	loc, err := SweeperConfig{Timezone: "UTC"}.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("Location(UTC) = %v, %v", loc, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{
		Telegram: TelegramConfig{Token: "a"},
		Logging:  LoggingConfig{Level: "info"},
		Sweeper:  SweeperConfig{Interval: "5s"},
		Storage:  StorageConfig{Driver: "sqlite", Path: "a.db"},
	}

	next := *old
	next.Logging.Level = "debug"
	next.Sweeper.Interval = "10s"
	changed, _, restart := SummarizeConfigChange(old, &next)
	if !reflect.DeepEqual(changed, []string{"logging", "sweeper"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(restart) != 0 {
		t.Fatalf("hot-reloadable change reported restart: %v", restart)
	}

	next = *old
	next.Telegram.Token = "b"
	next.Storage.Path = "b.db"
	next.Sweeper.Timezone = "UTC"
	changed, _, restart = SummarizeConfigChange(old, &next)
	if !reflect.DeepEqual(changed, []string{"storage", "sweeper", "telegram"}) {
		t.Fatalf("changed = %v", changed)
	}
	if !reflect.DeepEqual(restart, []string{"telegram", "sweeper.timezone", "storage"}) {
		t.Fatalf("restart = %v", restart)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", jsonConfig)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)

	// An invalid edit is not published.
	bad := strings.Replace(jsonConfig, `"token": "123:abc"`, `"token": ""`, 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		t.Fatalf("invalid config published: %+v", cfg)
	case <-time.After(time.Second):
	}

	good := strings.Replace(jsonConfig, `"level": "debug"`, `"level": "warn"`, 1)
	if err := os.WriteFile(path, []byte(good), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q, want warn", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatalf("Get() not updated: %q", m.Get().Logging.Level)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("empty = %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "2m", 5*time.Second)
	if err != nil || d != 2*time.Minute {
		t.Fatalf("2m = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", 0); err == nil {
		t.Fatal("negative duration accepted")
	}
}
