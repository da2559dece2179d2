package app

import (
	"time"

	"postpilot/internal/alert"
	"postpilot/internal/config"
	"postpilot/internal/platform"
	"postpilot/internal/scheduler"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapEngineConfig(cfg *config.Config) (scheduler.Config, error) {
	retryDelay, err := config.ParseDurationField("scheduler.retry_delay", cfg.Scheduler.RetryDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	suspendDelay, err := config.ParseDurationField("scheduler.suspend_delay", cfg.Scheduler.SuspendDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		RetryMax:        cfg.Scheduler.RetryMax,
		LogRetention:    cfg.Scheduler.LogRetention,
		MetricRetention: cfg.Scheduler.MetricRetention,
		RetryDelay:      retryDelay,
		SuspendDelay:    suspendDelay,
	}, nil
}

func mapPolicy(cfg *config.Config) scheduler.RetryPolicy {
	if cfg.Scheduler.Policy == "kind" {
		return scheduler.KindPolicy{}
	}
	return scheduler.UniformPolicy{}
}

func pollInterval(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 10*time.Second)
}

func mapPlatformConfigs(cfg *config.Config) ([]platform.Config, error) {
	resolved, err := cfg.ResolvePlatforms()
	if err != nil {
		return nil, err
	}
	out := make([]platform.Config, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, platform.Config{
			Platform:    r.Platform,
			Mode:        platform.Mode(r.Mode),
			AppID:       r.AppID,
			AppSecret:   r.AppSecret,
			PublishURL:  r.PublishURL,
			AuthURL:     r.AuthURL,
			Timeout:     r.Timeout,
			MinInterval: r.MinInterval,
		})
	}
	return out, nil
}

func buildAlertChannels(cfg *config.Config) ([]alert.Channel, error) {
	channels := make([]alert.Channel, 0, len(cfg.Alerts.Channels))
	for _, c := range cfg.Alerts.Channels {
		switch c.Type {
		case "webhook":
			channels = append(channels, alert.NewWebhook(c.URL))
		case "chat":
			channels = append(channels, alert.NewChatWebhook(c.URL))
		case "telegram":
			ch, err := alert.NewTelegram(c.Token, c.ChatID)
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		}
	}
	return channels, nil
}
