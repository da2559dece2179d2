// Package compliance validates content payloads against per-platform format
// limits and a sensitive-word list before any publish attempt.
package compliance

import (
	"fmt"
	"strings"
	"sync"

	"postpilot/internal/faults"
	"postpilot/internal/store"
)

// Limits are the static per-platform format constraints.
type Limits struct {
	MaxTitle  int
	MaxBody   int
	MinImages int
	MaxImages int
}

// DefaultLimits covers the supported platforms.
func DefaultLimits() map[string]Limits {
	return map[string]Limits{
		"xiaohongshu": {MaxTitle: 55, MaxBody: 2000, MinImages: 1, MaxImages: 9},
		"douyin":      {MaxTitle: 55, MaxBody: 4000, MinImages: 0, MaxImages: 0},
		"weibo":       {MaxTitle: 100, MaxBody: 5000, MinImages: 0, MaxImages: 18},
	}
}

// Checker holds the limits table and a mutable sensitive-word list.
//
// The word list is injected at construction; SetWords exists for ops/test
// reconfiguration (config hot reload), not for general runtime mutation.
type Checker struct {
	limits map[string]Limits

	mu    sync.RWMutex
	words []string
}

func New(words []string) *Checker {
	return NewWithLimits(words, DefaultLimits())
}

func NewWithLimits(words []string, limits map[string]Limits) *Checker {
	c := &Checker{limits: limits}
	c.SetWords(words)
	return c
}

func (c *Checker) SetWords(words []string) {
	clean := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			clean = append(clean, w)
		}
	}
	c.mu.Lock()
	c.words = clean
	c.mu.Unlock()
}

func (c *Checker) Words() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.words...)
}

// CheckSensitiveWords substring-scans text against the word list.
// Empty text never matches.
func (c *Checker) CheckSensitiveWords(text string) []string {
	if text == "" {
		return nil
	}
	c.mu.RLock()
	words := c.words
	c.mu.RUnlock()

	var found []string
	for _, w := range words {
		if strings.Contains(text, w) {
			found = append(found, w)
		}
	}
	return found
}

// ValidateFormat checks the asset against the platform's limits.
// An unknown platform is itself a format error.
func (c *Checker) ValidateFormat(asset store.ContentAsset, platform string) []string {
	lim, ok := c.limits[platform]
	if !ok {
		return []string{"unsupported platform: " + platform}
	}

	var errs []string
	if n := len([]rune(asset.Title)); n > lim.MaxTitle {
		errs = append(errs, fmt.Sprintf("title too long: %d > %d", n, lim.MaxTitle))
	}
	if n := len([]rune(asset.Body)); n > lim.MaxBody {
		errs = append(errs, fmt.Sprintf("body too long: %d > %d", n, lim.MaxBody))
	}
	if n := len(asset.Images); n < lim.MinImages || n > lim.MaxImages {
		errs = append(errs, fmt.Sprintf("image count %d outside [%d,%d]", n, lim.MinImages, lim.MaxImages))
	}
	return errs
}

// Validate composes both checks. Sensitive words win over format errors.
func (c *Checker) Validate(asset store.ContentAsset, platform string) error {
	if found := c.CheckSensitiveWords(asset.Title + "\n" + asset.Body); len(found) > 0 {
		return faults.Newf(faults.ContentViolation, "sensitive words: %s", strings.Join(found, ", "))
	}
	if errs := c.ValidateFormat(asset, platform); len(errs) > 0 {
		return faults.New(faults.InvalidPayload, strings.Join(errs, "; "))
	}
	return nil
}
