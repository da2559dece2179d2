package config

import (
	"reflect"
	"sort"
	"strings"

	logx "postpilot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (app secrets, tokens) never appear in
// the attrs, only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.Int("scheduler.retry_max", newCfg.Scheduler.RetryMax),
			logx.String("scheduler.policy", strings.TrimSpace(newCfg.Scheduler.Policy)),
			logx.Int("scheduler.log_retention", newCfg.Scheduler.LogRetention),
			logx.Int("scheduler.metric_retention", newCfg.Scheduler.MetricRetention),
		)
	}

	if oldCfg.API != newCfg.API {
		changed = append(changed, "api")
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", strings.TrimSpace(newCfg.API.Addr)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Compliance, newCfg.Compliance) {
		changed = append(changed, "compliance")
		attrs = append(attrs,
			logx.Int("compliance.word_count", len(newCfg.Compliance.SensitiveWords)),
		)
	}

	// Platforms (never log secrets)
	if platformsChanged(oldCfg.Platforms, newCfg.Platforms) {
		changed = append(changed, "platforms")
		realCount := 0
		for _, p := range newCfg.Platforms {
			if strings.EqualFold(strings.TrimSpace(p.Mode), "real") {
				realCount++
			}
		}
		attrs = append(attrs,
			logx.Int("platforms.count", len(newCfg.Platforms)),
			logx.Int("platforms.real_count", realCount),
		)
	}

	if alertsChanged(oldCfg.Alerts, newCfg.Alerts) {
		changed = append(changed, "alerts")
		attrs = append(attrs,
			logx.Int("alerts.channel_count", len(newCfg.Alerts.Channels)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func platformsChanged(oldP, newP []PlatformConfig) bool {
	if len(oldP) != len(newP) {
		return true
	}
	for i := range oldP {
		if oldP[i] != newP[i] {
			return true
		}
	}
	return false
}

func alertsChanged(oldA, newA AlertsConfig) bool {
	if len(oldA.Channels) != len(newA.Channels) {
		return true
	}
	for i := range oldA.Channels {
		if oldA.Channels[i] != newA.Channels[i] {
			return true
		}
	}
	return false
}
