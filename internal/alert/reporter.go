// Package alert fans publish alerts out to zero or more notification
// channels. Alerting is best-effort: callers log reporter failures and move
// on; task state never depends on delivery.
package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "postpilot/pkg/logx"
)

// Payload is one alert event.
type Payload struct {
	Event     string         `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Result reports what Notify did.
type Result struct {
	OK       bool `json:"ok"`
	Skipped  bool `json:"skipped,omitempty"`
	Channels int  `json:"channels,omitempty"`
}

// Channel delivers one alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// Reporter is the fan-out notifier. With no channels configured it degrades
// to an inert skip, which is not an error.
type Reporter struct {
	mu       sync.Mutex
	channels []Channel
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(channels []Channel, log logx.Logger) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{
		channels: channels,
		// Alert storms help nobody downstream.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		log:     log,
	}
}

// Apply swaps the channel set (config hot reload).
func (r *Reporter) Apply(channels []Channel) {
	r.mu.Lock()
	r.channels = channels
	r.mu.Unlock()
}

// Notify delivers p to every configured channel concurrently. Any channel
// failure fails the whole call.
func (r *Reporter) Notify(ctx context.Context, p Payload) (Result, error) {
	r.mu.Lock()
	channels := r.channels
	r.mu.Unlock()

	if len(channels) == 0 {
		return Result{OK: false, Skipped: true}, nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	var wg sync.WaitGroup
	errs := make([]error, len(channels))
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, p); err != nil {
				errs[i] = fmt.Errorf("%s: %w", ch.Name(), err)
			}
		}(i, ch)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Result{}, err
		}
	}
	return Result{OK: true, Channels: len(channels)}, nil
}

// summary renders a short human-readable text for chat-style channels.
func summary(p Payload) string {
	var b strings.Builder
	b.WriteString("[postpilot] ")
	b.WriteString(p.Event)
	b.WriteString("\nat: ")
	b.WriteString(p.CreatedAt.Format(time.RFC3339))

	keys := make([]string, 0, len(p.Details))
	for k := range p.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, p.Details[k])
	}
	return b.String()
}
