package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"postpilot/internal/compliance"
	"postpilot/internal/faults"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// tokenEarlyExpiry is subtracted from a real token's reported lifetime to
// avoid races right at the expiry boundary.
const tokenEarlyExpiry = 5 * time.Minute

const mockTokenLifetime = 2 * time.Hour

// adapter implements Adapter for both mock and real modes; per-platform
// behavior differences are data (see variants.go), not subclasses.
type adapter struct {
	cfg     Config
	v       variant
	checker *compliance.Checker
	log     logx.Logger
	client  *http.Client

	// token state; authenticate() is the only transition trigger.
	tokenMu      sync.Mutex
	accessToken  string
	refreshToken string
	tokenExpiry  time.Time

	// cooperative per-instance rate limiter.
	rlMu     sync.Mutex
	lastCall time.Time
}

// newAdapter validates cfg and builds the instance. Invalid adapters are not
// constructible; the error carries INVALID_CONFIG.
func newAdapter(cfg Config, checker *compliance.Checker, log logx.Logger) (*adapter, error) {
	if cfg.Platform == "" {
		return nil, faults.New(faults.InvalidConfig, "platform name is required")
	}
	if cfg.Mode != ModeMock && cfg.Mode != ModeReal {
		return nil, faults.Newf(faults.InvalidConfig, "%s: mode must be mock or real, got %q", cfg.Platform, cfg.Mode)
	}
	if cfg.Timeout <= 0 {
		return nil, faults.Newf(faults.InvalidConfig, "%s: timeout must be positive", cfg.Platform)
	}
	if cfg.Mode == ModeReal {
		u, err := url.Parse(cfg.PublishURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, faults.Newf(faults.InvalidConfig, "%s: publish url %q is not a valid URL", cfg.Platform, cfg.PublishURL)
		}
		if cfg.AppID == "" || cfg.AppID == PlaceholderAppID ||
			cfg.AppSecret == "" || cfg.AppSecret == PlaceholderAppSecret {
			return nil, faults.Newf(faults.InvalidConfig, "%s: real mode requires non-placeholder credentials", cfg.Platform)
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &adapter{
		cfg:     cfg,
		v:       variantFor(cfg.Platform),
		checker: checker,
		log:     log.With(logx.String("platform", cfg.Platform)),
		client:  &http.Client{},
	}, nil
}

func (a *adapter) Name() string { return a.cfg.Platform }

// enforceRateLimit serializes calls on this instance to at least MinInterval
// apart. The mutex is held across the wait so a burst of N calls takes
// >= (N-1)*MinInterval wall time.
func (a *adapter) enforceRateLimit(ctx context.Context) error {
	if a.cfg.MinInterval <= 0 {
		return nil
	}
	a.rlMu.Lock()
	defer a.rlMu.Unlock()

	if !a.lastCall.IsZero() {
		wait := a.cfg.MinInterval - time.Since(a.lastCall)
		if wait > 0 {
			tmr := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return ctx.Err()
			case <-tmr.C:
			}
		}
	}
	a.lastCall = time.Now()
	return nil
}

// ensureAuthenticated is a no-op while the cached token is unexpired.
func (a *adapter) ensureAuthenticated(ctx context.Context) error {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return nil
	}
	return a.authenticateLocked(ctx)
}

func (a *adapter) authenticateLocked(ctx context.Context) error {
	if a.cfg.Mode == ModeMock {
		a.accessToken = "mock-token-" + uuid.NewString()
		a.tokenExpiry = time.Now().Add(mockTokenLifetime)
		return nil
	}

	tok, err := a.exchangeCredentials(ctx)
	if err != nil {
		return err
	}
	a.accessToken = tok.AccessToken
	a.refreshToken = tok.RefreshToken
	lifetime := time.Duration(tok.ExpiresIn)*time.Second - tokenEarlyExpiry
	if lifetime < 0 {
		lifetime = 0
	}
	a.tokenExpiry = time.Now().Add(lifetime)
	a.log.Debug("token refreshed", logx.Time("expires", a.tokenExpiry))
	return nil
}

// Publish is the public entry point: rate limit -> auth -> compliance ->
// content-shape routing -> remote (or mock) call.
func (a *adapter) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := a.enforceRateLimit(ctx); err != nil {
		return nil, faults.Wrap(faults.Timeout, "rate limit wait interrupted", err)
	}
	if err := a.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	if req.Account.Status == store.AccountDisabled {
		return nil, faults.Newf(faults.InvalidPayload, "account %s is disabled", req.Account.ID)
	}

	// Compliance gate runs before every attempt, mock mode included.
	// A schedule without a bound asset has nothing to validate.
	if req.Asset != nil && a.checker != nil {
		if err := a.checker.Validate(*req.Asset, a.cfg.Platform); err != nil {
			return nil, err
		}
	}

	if err := validateShape(req); err != nil {
		return nil, err
	}

	if a.cfg.Mode == ModeMock {
		return a.publishMock(req)
	}
	return a.publishSigned(ctx, req)
}

// validateShape re-checks shape-specific required fields per content type.
func validateShape(req PublishRequest) error {
	switch req.ContentType {
	case "image_text":
		if req.Asset == nil || len(req.Asset.Images) == 0 {
			return faults.New(faults.InvalidPayload, "image_text content requires at least one image")
		}
	case "video":
		if req.Asset == nil || strings.TrimSpace(req.Asset.VideoURL) == "" {
			return faults.New(faults.InvalidPayload, "video content requires a video url")
		}
	}
	return nil
}

// Mock content types of the form mock_fail_<kind> force a classified failure
// so retry behavior can be exercised end to end without a remote platform.
var mockFailures = map[string]faults.Code{
	"mock_fail_auth":      faults.AuthFailed,
	"mock_fail_ratelimit": faults.RateLimit,
	"mock_fail_payload":   faults.InvalidPayload,
	"mock_fail_timeout":   faults.Timeout,
	"mock_fail_captcha":   faults.CaptchaRequired,
	"mock_fail_violation": faults.ContentViolation,
	"mock_fail_request":   faults.RequestFailed,
}

func (a *adapter) publishMock(req PublishRequest) (*PublishResult, error) {
	if code, ok := mockFailures[req.ContentType]; ok {
		return nil, faults.Newf(code, "mock failure forced by content type %s", req.ContentType)
	}
	return &PublishResult{
		Platform:    a.cfg.Platform,
		RemoteID:    "mock-" + uuid.NewString(),
		ContentType: req.ContentType,
		PublishTime: time.Now(),
	}, nil
}
