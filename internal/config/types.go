package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Sweeper  SweeperConfig  `json:"sweeper"`
	Storage  StorageConfig  `json:"storage"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout    string `json:"poll_timeout"`
	SendRatePerSec int    `json:"send_rate_per_sec,omitempty"`
	// GroupLog is the chat ID that receives mirrored error logs.
	GroupLog string `json:"group_log,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SweeperConfig controls the delivery loop.
//
// Defaults (when fields are omitted/zero):
//   - interval: "5s"
//   - send_timeout: "10s"
//   - max_attempts: 0 (retry forever)
//   - timezone: the host's local zone
type SweeperConfig struct {
	Interval    string `json:"interval"`
	SendTimeout string `json:"send_timeout,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	// Timezone is an IANA name used to read command timestamps.
	Timezone string `json:"timezone,omitempty"`
}

// StorageConfig selects the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// GroupLogChatID parses telegram.group_log. Empty means unset.
func (c TelegramConfig) GroupLogChatID() (int64, error) {
	s := strings.TrimSpace(c.GroupLog)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: invalid chat id %q", c.GroupLog)
	}
	return id, nil
}

// Location resolves sweeper.timezone. Empty means time.Local.
func (c SweeperConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("sweeper.timezone: %w", err)
	}
	return loc, nil
}

// Validate checks every field that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Telegram.SendRatePerSec < 0 {
		errs = append(errs, errors.New("telegram.send_rate_per_sec must be >= 0"))
	}
	if _, err := c.Telegram.GroupLogChatID(); err != nil {
		errs = append(errs, err)
	}

	interval, err := ParseDurationField("sweeper.interval", c.Sweeper.Interval)
	if err != nil {
		errs = append(errs, err)
	} else if interval != 0 && interval < time.Second {
		errs = append(errs, errors.New("sweeper.interval must be at least 1s"))
	}
	if _, err := ParseDurationField("sweeper.send_timeout", c.Sweeper.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Sweeper.MaxAttempts < 0 {
		errs = append(errs, errors.New("sweeper.max_attempts must be >= 0"))
	}
	if _, err := c.Sweeper.Location(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
