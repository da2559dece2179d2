package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPlatforms are the platforms materialized when the file lists none.
// They run in mock mode until credentials arrive via file or environment.
var DefaultPlatforms = []string{"xiaohongshu", "douyin", "weibo"}

const (
	defaultTimeout = 10 * time.Second

	envGlobalMode    = "PLATFORM_MODE"
	envGlobalTimeout = "PLATFORM_TIMEOUT_MS"
)

// swappable for tests
var lookupEnv = os.LookupEnv

// ResolvedPlatform is a platform block with every field settled: per-platform
// environment variables win over global environment defaults, which win over
// the file block, which wins over the mock default.
type ResolvedPlatform struct {
	Platform    string
	Mode        string
	AppID       string
	AppSecret   string
	PublishURL  string
	AuthURL     string
	Timeout     time.Duration
	MinInterval time.Duration
}

// ResolvePlatforms settles the platform list. Never returns an empty slice:
// with no file blocks, DefaultPlatforms are materialized in mock mode.
func (c *Config) ResolvePlatforms() ([]ResolvedPlatform, error) {
	blocks := c.Platforms
	if len(blocks) == 0 {
		blocks = make([]PlatformConfig, 0, len(DefaultPlatforms))
		for _, name := range DefaultPlatforms {
			blocks = append(blocks, PlatformConfig{Platform: name})
		}
	}

	out := make([]ResolvedPlatform, 0, len(blocks))
	for _, b := range blocks {
		name := strings.ToLower(strings.TrimSpace(b.Platform))
		prefix := envPrefix(name)

		r := ResolvedPlatform{
			Platform:   name,
			Mode:       pick(prefix+"_MODE", envGlobalMode, b.Mode, "mock"),
			AppID:      pick(prefix+"_APP_ID", "", b.AppID, ""),
			AppSecret:  pick(prefix+"_APP_SECRET", "", b.AppSecret, ""),
			PublishURL: pick(prefix+"_PUBLISH_URL", "", b.PublishURL, ""),
			AuthURL:    pick(prefix+"_AUTH_URL", "", b.AuthURL, ""),
		}
		r.Mode = strings.ToLower(r.Mode)

		ms, err := pickInt(prefix+"_TIMEOUT_MS", envGlobalTimeout, b.TimeoutMS)
		if err != nil {
			return nil, err
		}
		r.Timeout = defaultTimeout
		if ms > 0 {
			r.Timeout = time.Duration(ms) * time.Millisecond
		}

		if b.MinInterval != "" {
			d, err := ParseDurationField(name+".min_interval", b.MinInterval)
			if err != nil {
				return nil, err
			}
			r.MinInterval = d
		}
		out = append(out, r)
	}
	return out, nil
}

func envPrefix(platform string) string {
	up := strings.ToUpper(platform)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, up)
}

// pick resolves one string field: specific env var, then global env var,
// then the file value, then the fallback.
func pick(envKey, globalKey, fileVal, fallback string) string {
	if v, ok := lookupEnv(envKey); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if globalKey != "" {
		if v, ok := lookupEnv(globalKey); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if strings.TrimSpace(fileVal) != "" {
		return strings.TrimSpace(fileVal)
	}
	return fallback
}

func pickInt(envKey, globalKey string, fileVal int) (int, error) {
	for _, key := range []string{envKey, globalKey} {
		if key == "" {
			continue
		}
		if v, ok := lookupEnv(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return 0, err
			}
			return n, nil
		}
	}
	return fileVal, nil
}
