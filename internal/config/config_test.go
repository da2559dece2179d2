package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data.db
scheduler:
  enabled: true
  poll_interval: 5s
  retry_max: 2
  policy: kind
compliance:
  sensitive_words: ["gambling", "scam"]
platforms:
  - platform: xiaohongshu
    mode: mock
  - platform: weibo
    mode: real
    app_id: id-1
    app_secret: sec-1
    publish_url: https://api.example.com/publish
    auth_url: https://api.example.com/auth
    timeout_ms: 3000
alerts:
  channels:
    - type: webhook
      url: https://hooks.example.com/alerts
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Scheduler.Enabled || cfg.Scheduler.Policy != "kind" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Platforms) != 2 || cfg.Platforms[1].TimeoutMS != 3000 {
		t.Fatalf("platforms not parsed: %+v", cfg.Platforms)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get should return the committed config")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: info
shceduler:
  enabled: true
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatalf("misspelled section must fail the load")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		ok   bool
	}{
		{"empty", func(*Config) {}, true},
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }, false},
		{"bad policy", func(c *Config) { c.Scheduler.Policy = "aggressive" }, false},
		{"bad duration", func(c *Config) { c.Scheduler.PollInterval = "soon" }, false},
		{"duplicate platform", func(c *Config) {
			c.Platforms = []PlatformConfig{{Platform: "weibo"}, {Platform: "Weibo"}}
		}, false},
		{"bad mode", func(c *Config) {
			c.Platforms = []PlatformConfig{{Platform: "weibo", Mode: "sandbox"}}
		}, false},
		{"webhook without url", func(c *Config) {
			c.Alerts.Channels = []AlertChannelConfig{{Type: "webhook"}}
		}, false},
		{"telegram without chat", func(c *Config) {
			c.Alerts.Channels = []AlertChannelConfig{{Type: "telegram", Token: "tok"}}
		}, false},
		{"valid chat channel", func(c *Config) {
			c.Alerts.Channels = []AlertChannelConfig{{Type: "chat", URL: "https://x"}}
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			tc.mut(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	old := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = old })
}

func TestResolvePlatformsDefaults(t *testing.T) {
	withEnv(t, nil)
	var cfg Config
	got, err := cfg.ResolvePlatforms()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != len(DefaultPlatforms) {
		t.Fatalf("expected %d default platforms, got %d", len(DefaultPlatforms), len(got))
	}
	for _, p := range got {
		if p.Mode != "mock" || p.Timeout != defaultTimeout {
			t.Fatalf("default platform should be mock/%v, got %+v", defaultTimeout, p)
		}
	}
}

func TestResolvePlatformsPrecedence(t *testing.T) {
	withEnv(t, map[string]string{
		"WEIBO_MODE":          "real",
		"WEIBO_APP_ID":        "env-id",
		"PLATFORM_MODE":       "mock",
		"PLATFORM_TIMEOUT_MS": "2500",
		"DOUYIN_TIMEOUT_MS":   "1000",
	})
	cfg := Config{Platforms: []PlatformConfig{
		{Platform: "weibo", Mode: "mock", AppID: "file-id", AppSecret: "file-secret"},
		{Platform: "douyin", TimeoutMS: 9000},
		{Platform: "xiaohongshu"},
	}}
	got, err := cfg.ResolvePlatforms()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	byName := map[string]ResolvedPlatform{}
	for _, p := range got {
		byName[p.Platform] = p
	}

	weibo := byName["weibo"]
	if weibo.Mode != "real" || weibo.AppID != "env-id" || weibo.AppSecret != "file-secret" {
		t.Fatalf("per-platform env must beat global and file: %+v", weibo)
	}
	if weibo.Timeout != 2500*time.Millisecond {
		t.Fatalf("global timeout env should apply to weibo, got %v", weibo.Timeout)
	}

	douyin := byName["douyin"]
	if douyin.Timeout != time.Second {
		t.Fatalf("per-platform timeout env must beat global env and file, got %v", douyin.Timeout)
	}

	xhs := byName["xiaohongshu"]
	if xhs.Mode != "mock" {
		t.Fatalf("global mode env should apply, got %+v", xhs)
	}
}

func TestSummarizeChange(t *testing.T) {
	oldCfg := &Config{}
	newCfg := &Config{
		Logging:    LoggingConfig{Level: "debug"},
		Compliance: ComplianceConfig{SensitiveWords: []string{"scam"}},
		Alerts:     AlertsConfig{Channels: []AlertChannelConfig{{Type: "webhook", URL: "https://x"}}},
	}
	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"alerts", "compliance", "logging"}
	if len(changed) != len(want) {
		t.Fatalf("changed sections: got %v want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed sections: got %v want %v", changed, want)
		}
	}
}
