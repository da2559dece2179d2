package config

import (
	"fmt"
	"strings"
)

// Config is the whole on-disk configuration surface. YAML and JSON are both
// accepted; the decoder is strict, so unknown keys fail the load.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	API        APIConfig        `json:"api,omitempty"`
	Compliance ComplianceConfig `json:"compliance,omitempty"`
	Platforms  []PlatformConfig `json:"platforms,omitempty"`
	Alerts     AlertsConfig     `json:"alerts,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver. An empty driver means the
// in-memory store.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the publish cycle.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "10s"
//   - retry_max: 2 (three attempts total)
//   - retry_delay: "30s"
//   - suspend_delay: "30m"
//   - log_retention / metric_retention: 500
//   - policy: "uniform"
type SchedulerConfig struct {
	Enabled         bool   `json:"enabled"`
	PollInterval    string `json:"poll_interval,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryDelay      string `json:"retry_delay,omitempty"`
	SuspendDelay    string `json:"suspend_delay,omitempty"`
	LogRetention    int    `json:"log_retention,omitempty"`
	MetricRetention int    `json:"metric_retention,omitempty"`

	// Policy selects retry behavior: "uniform" retries every error kind,
	// "kind" maps each error kind to retry/no-retry/suspend.
	Policy string `json:"policy,omitempty"`
}

// APIConfig controls the HTTP management server.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8787"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type ComplianceConfig struct {
	SensitiveWords []string `json:"sensitive_words,omitempty"`
}

// PlatformConfig is one platform block. Fields left empty here may still be
// filled from environment variables; see ResolvePlatforms.
type PlatformConfig struct {
	Platform    string `json:"platform"`
	Mode        string `json:"mode,omitempty"` // "mock" | "real"
	AppID       string `json:"app_id,omitempty"`
	AppSecret   string `json:"app_secret,omitempty"`
	PublishURL  string `json:"publish_url,omitempty"`
	AuthURL     string `json:"auth_url,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
	MinInterval string `json:"min_interval,omitempty"` // Go duration string
}

// AlertsConfig lists outbound alert channels. All of them are optional; with
// none configured the reporter degrades to a no-op.
type AlertsConfig struct {
	Channels []AlertChannelConfig `json:"channels,omitempty"`
}

// AlertChannelConfig is one alert sink.
//
// Types:
//   - "webhook": raw JSON POST of the alert payload to URL
//   - "chat": chat-style webhook wrapping a text summary
//   - "telegram": bot token + chat id
type AlertChannelConfig struct {
	Type   string `json:"type"`
	URL    string `json:"url,omitempty"`
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// Validate rejects configurations the services would refuse at construction.
// It checks shape only; platform credential checks happen in the adapter.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Scheduler.Policy)) {
	case "", "uniform", "kind":
	default:
		return fmt.Errorf("scheduler.policy: unknown policy %q", c.Scheduler.Policy)
	}
	if c.Scheduler.RetryMax < 0 {
		return fmt.Errorf("scheduler.retry_max: must be >= 0")
	}
	for _, p := range []struct{ name, raw string }{
		{"scheduler.poll_interval", c.Scheduler.PollInterval},
		{"scheduler.retry_delay", c.Scheduler.RetryDelay},
		{"scheduler.suspend_delay", c.Scheduler.SuspendDelay},
		{"api.read_timeout", c.API.ReadTimeout},
		{"api.write_timeout", c.API.WriteTimeout},
		{"api.idle_timeout", c.API.IdleTimeout},
	} {
		if _, err := ParseDurationField(p.name, p.raw); err != nil {
			return err
		}
	}
	seen := map[string]bool{}
	for i, p := range c.Platforms {
		name := strings.ToLower(strings.TrimSpace(p.Platform))
		if name == "" {
			return fmt.Errorf("platforms[%d]: platform name required", i)
		}
		if seen[name] {
			return fmt.Errorf("platforms[%d]: duplicate platform %q", i, name)
		}
		seen[name] = true
		switch strings.ToLower(strings.TrimSpace(p.Mode)) {
		case "", "mock", "real":
		default:
			return fmt.Errorf("platforms[%d]: unknown mode %q", i, p.Mode)
		}
		if _, err := ParseDurationField(fmt.Sprintf("platforms[%d].min_interval", i), p.MinInterval); err != nil {
			return err
		}
	}
	for i, ch := range c.Alerts.Channels {
		switch strings.ToLower(strings.TrimSpace(ch.Type)) {
		case "webhook", "chat":
			if strings.TrimSpace(ch.URL) == "" {
				return fmt.Errorf("alerts.channels[%d]: url required", i)
			}
		case "telegram":
			if strings.TrimSpace(ch.Token) == "" || ch.ChatID == 0 {
				return fmt.Errorf("alerts.channels[%d]: token and chat_id required", i)
			}
		default:
			return fmt.Errorf("alerts.channels[%d]: unknown type %q", i, ch.Type)
		}
	}
	return nil
}
