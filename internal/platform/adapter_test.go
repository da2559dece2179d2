package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postpilot/internal/compliance"
	"postpilot/internal/faults"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

func mockCfg(platform string) Config {
	return Config{Platform: platform, Mode: ModeMock, Timeout: time.Second}
}

func activeAccount() store.Account {
	return store.Account{ID: "acc-1", Platform: "xiaohongshu", Status: store.AccountActive}
}

func imageAsset() *store.ContentAsset {
	return &store.ContentAsset{
		Title:  "weekend plans",
		Body:   "a short list",
		Images: []string{"https://cdn.example.com/a.jpg"},
	}
}

func TestConstructionValidation(t *testing.T) {
	checker := compliance.New(nil)
	cases := []struct {
		name string
		cfg  Config
	}{
		{"bad mode", Config{Platform: "xiaohongshu", Mode: "dry-run", Timeout: time.Second}},
		{"zero timeout", Config{Platform: "xiaohongshu", Mode: ModeMock}},
		{"real with placeholder creds", Config{
			Platform: "xiaohongshu", Mode: ModeReal, Timeout: time.Second,
			AppID: PlaceholderAppID, AppSecret: "s3cret", PublishURL: "https://api.example.com/publish",
		}},
		{"real with bad url", Config{
			Platform: "xiaohongshu", Mode: ModeReal, Timeout: time.Second,
			AppID: "id", AppSecret: "s3cret", PublishURL: "not a url",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newAdapter(tc.cfg, checker, logx.Nop())
			if faults.CodeOf(err) != faults.InvalidConfig {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

func TestMockPublishSuccess(t *testing.T) {
	a, err := newAdapter(mockCfg("xiaohongshu"), compliance.New(nil), logx.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	res, err := a.Publish(context.Background(), PublishRequest{
		Account: activeAccount(), ContentType: "image_text", Asset: imageAsset(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Platform != "xiaohongshu" || !strings.HasPrefix(res.RemoteID, "mock-") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestMockForcedFailures(t *testing.T) {
	a, _ := newAdapter(mockCfg("xiaohongshu"), compliance.New(nil), logx.Nop())
	for contentType, want := range mockFailures {
		_, err := a.Publish(context.Background(), PublishRequest{
			Account: activeAccount(), ContentType: contentType,
		})
		if faults.CodeOf(err) != want {
			t.Fatalf("%s: expected %s, got %v", contentType, want, err)
		}
	}
}

func TestComplianceGateRunsInMockMode(t *testing.T) {
	a, _ := newAdapter(mockCfg("xiaohongshu"), compliance.New([]string{"forbidden"}), logx.Nop())
	asset := imageAsset()
	asset.Body = "a forbidden word"
	_, err := a.Publish(context.Background(), PublishRequest{
		Account: activeAccount(), ContentType: "image_text", Asset: asset,
	})
	if faults.CodeOf(err) != faults.ContentViolation {
		t.Fatalf("expected CONTENT_VIOLATION from compliance gate, got %v", err)
	}
}

func TestShapeValidation(t *testing.T) {
	a, _ := newAdapter(mockCfg("douyin"), compliance.New(nil), logx.Nop())
	_, err := a.Publish(context.Background(), PublishRequest{
		Account:     store.Account{ID: "acc-2", Platform: "douyin", Status: store.AccountActive},
		ContentType: "video",
		Asset:       &store.ContentAsset{Title: "clip", Body: "no url set"},
	})
	if faults.CodeOf(err) != faults.InvalidPayload {
		t.Fatalf("video without url should be INVALID_PAYLOAD, got %v", err)
	}
}

func TestDisabledAccountRejected(t *testing.T) {
	a, _ := newAdapter(mockCfg("xiaohongshu"), compliance.New(nil), logx.Nop())
	acc := activeAccount()
	acc.Status = store.AccountDisabled
	_, err := a.Publish(context.Background(), PublishRequest{Account: acc, ContentType: "note"})
	if faults.CodeOf(err) != faults.InvalidPayload {
		t.Fatalf("expected INVALID_PAYLOAD for disabled account, got %v", err)
	}
}

func TestRateLimitSpacing(t *testing.T) {
	cfg := mockCfg("xiaohongshu")
	cfg.MinInterval = 30 * time.Millisecond
	a, _ := newAdapter(cfg, compliance.New(nil), logx.Nop())

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := a.Publish(context.Background(), PublishRequest{Account: activeAccount(), ContentType: "note"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*cfg.MinInterval {
		t.Fatalf("3 calls finished in %v, want >= %v", elapsed, 2*cfg.MinInterval)
	}
}

func TestClassifyCodeTableBeatsSubstrings(t *testing.T) {
	codes := variantFor("xiaohongshu").codes
	// 30001 maps to RATE_LIMIT even though the message smells like auth.
	err := classify(codes, &apiError{Code: 30001, Message: "token bucket exhausted"})
	if faults.CodeOf(err) != faults.RateLimit {
		t.Fatalf("code table should win, got %v", err)
	}
}

func TestClassifySubstrings(t *testing.T) {
	cases := map[string]faults.Code{
		"invalid access token":        faults.AuthFailed,
		"captcha required to proceed": faults.CaptchaRequired,
		"request frequency exceeded":  faults.RateLimit,
		"upstream timed out":          faults.Timeout,
		"content violates policy":     faults.ContentViolation,
		"missing required field":      faults.InvalidPayload,
		"something else entirely":     faults.RequestFailed,
	}
	for msg, want := range cases {
		err := classify(nil, &apiError{Message: msg})
		if faults.CodeOf(err) != want {
			t.Fatalf("%q: expected %s, got %v", msg, want, err)
		}
	}
}

func realTestAdapter(t *testing.T, publishURL, authURL string) *adapter {
	t.Helper()
	a, err := newAdapter(Config{
		Platform: "xiaohongshu", Mode: ModeReal,
		AppID: "app-1", AppSecret: "s3cret",
		PublishURL: publishURL, AuthURL: authURL,
		Timeout: 2 * time.Second,
	}, compliance.New(nil), logx.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestRealPublishSignedRoundTrip(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(authResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer auth.Close()

	var gotSignature string
	var gotBody publishBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("x-signature")
		raw, _ := json.Marshal(map[string]any{"ok": true, "remoteId": "remote-42"})
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	a := realTestAdapter(t, srv.URL, auth.URL)
	res, err := a.Publish(context.Background(), PublishRequest{
		Account: activeAccount(), ContentType: "image_text", Asset: imageAsset(),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.RemoteID != "remote-42" {
		t.Fatalf("expected remote-42, got %q", res.RemoteID)
	}
	if gotSignature == "" {
		t.Fatalf("publish request must carry x-signature")
	}
	if gotBody.AppID != "app-1" || gotBody.Platform != "xiaohongshu" || gotBody.AccountID != "acc-1" {
		t.Fatalf("unexpected wire body: %+v", gotBody)
	}
}

func TestRealPublishErrorClassified(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(authResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer auth.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(publishResponse{OK: false, ErrorCode: 20002, Message: "verification needed"})
	}))
	defer srv.Close()

	a := realTestAdapter(t, srv.URL, auth.URL)
	_, err := a.Publish(context.Background(), PublishRequest{Account: activeAccount(), ContentType: "note"})
	if faults.CodeOf(err) != faults.CaptchaRequired {
		t.Fatalf("expected CAPTCHA_REQUIRED via code table, got %v", err)
	}
}

func TestRealAuthFailure(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(authResponse{Message: "bad credentials"})
	}))
	defer auth.Close()

	a := realTestAdapter(t, "https://unused.example.com", auth.URL)
	_, err := a.Publish(context.Background(), PublishRequest{Account: activeAccount(), ContentType: "note"})
	if faults.CodeOf(err) != faults.AuthFailed {
		t.Fatalf("expected AUTH_FAILED, got %v", err)
	}
}

func TestTokenReuseUntilExpiry(t *testing.T) {
	var authCalls int
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCalls++
		_ = json.NewEncoder(w).Encode(authResponse{AccessToken: "tok", ExpiresIn: 3600})
	}))
	defer auth.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(publishResponse{OK: true, RemoteID: "r"})
	}))
	defer srv.Close()

	a := realTestAdapter(t, srv.URL, auth.URL)
	for i := 0; i < 3; i++ {
		if _, err := a.Publish(context.Background(), PublishRequest{Account: activeAccount(), ContentType: "note"}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if authCalls != 1 {
		t.Fatalf("expected a single credential exchange, got %d", authCalls)
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry([]Config{mockCfg("xiaohongshu"), mockCfg("douyin")}, compliance.New(nil), logx.Nop())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, ok := r.Get("xiaohongshu"); !ok {
		t.Fatalf("expected xiaohongshu adapter")
	}
	if _, ok := r.Get("myspace"); ok {
		t.Fatalf("unknown platform must not resolve")
	}
}

func TestRegistryConstructionFailsLoudly(t *testing.T) {
	_, err := NewRegistry([]Config{{Platform: "xiaohongshu", Mode: "nope", Timeout: time.Second}}, compliance.New(nil), logx.Nop())
	if faults.CodeOf(err) != faults.InvalidConfig {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}
