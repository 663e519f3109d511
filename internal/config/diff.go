package config

import (
	"sort"
	"strings"

	logx "remindbot/pkg/logx"
)

// SummarizeConfigChange returns (1) the sorted list of changed sections,
// (2) safe structured attrs for logging (never the bot token), and
// (3) the changed settings that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)
	restart := make([]string, 0, 4)

	oT, nT := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := strings.TrimSpace(oT.Token) != strings.TrimSpace(nT.Token)
	if tokenChanged ||
		strings.TrimSpace(oT.PollTimeout) != strings.TrimSpace(nT.PollTimeout) ||
		oT.SendRatePerSec != nT.SendRatePerSec ||
		strings.TrimSpace(oT.GroupLog) != strings.TrimSpace(nT.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.String("telegram.poll_timeout", strings.TrimSpace(nT.PollTimeout)),
			logx.Int("telegram.send_rate_per_sec", nT.SendRatePerSec),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nT.GroupLog) != ""),
		)
		restart = append(restart, "telegram")
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	oS, nS := oldCfg.Sweeper, newCfg.Sweeper
	if oS != nS {
		changed = append(changed, "sweeper")
		attrs = append(attrs,
			logx.String("sweeper.interval", strings.TrimSpace(nS.Interval)),
			logx.String("sweeper.send_timeout", strings.TrimSpace(nS.SendTimeout)),
			logx.Int("sweeper.max_attempts", nS.MaxAttempts),
			logx.String("sweeper.timezone", strings.TrimSpace(nS.Timezone)),
		)
		if strings.TrimSpace(oS.Timezone) != strings.TrimSpace(nS.Timezone) {
			restart = append(restart, "sweeper.timezone")
		}
	}

	oSt, nSt := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(oSt.Driver) != strings.TrimSpace(nSt.Driver) ||
		strings.TrimSpace(oSt.Path) != strings.TrimSpace(nSt.Path) ||
		strings.TrimSpace(oSt.BusyTimeout) != strings.TrimSpace(nSt.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nSt.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nSt.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nSt.BusyTimeout)),
		)
		restart = append(restart, "storage")
	}

	sort.Strings(changed)
	return changed, attrs, restart
}
