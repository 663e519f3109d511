package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSweeperConfig(cfg *config.Config) (reminder.SweeperConfig, error) {
	interval, err := config.ParseDurationOrDefault("sweeper.interval", cfg.Sweeper.Interval, reminder.DefaultSweepInterval)
	if err != nil {
		return reminder.SweeperConfig{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("sweeper.send_timeout", cfg.Sweeper.SendTimeout, reminder.DefaultSendTimeout)
	if err != nil {
		return reminder.SweeperConfig{}, err
	}
	return reminder.SweeperConfig{
		Interval:    interval,
		SendTimeout: sendTimeout,
		MaxAttempts: cfg.Sweeper.MaxAttempts,
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	chatID, _ := cfg.Telegram.GroupLogChatID()
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// OpenStore loads the config at path and opens its task store without
// starting the bot. Used by the operator CLI. A read-only store can be opened
// next to a running bot; a writable file store cannot.
func OpenStore(cfgPath string, readOnly bool, log logx.Logger) (storage.Store, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if sc.Driver == "memory" {
		return nil, fmt.Errorf("storage.driver=memory keeps tasks inside the running bot only")
	}
	sc.ReadOnly = readOnly
	st, err := storage.Open(sc, log)
	if errors.Is(err, storage.ErrLocked) {
		return nil, fmt.Errorf("%w: stop the bot first or use storage.driver=sqlite", err)
	}
	return st, err
}
