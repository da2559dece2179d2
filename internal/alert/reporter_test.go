package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "postpilot/pkg/logx"
)

func TestNotifySkipsWithoutChannels(t *testing.T) {
	r := New(nil, logx.Nop())
	res, err := r.Notify(context.Background(), Payload{Event: "publish_failed_final"})
	if err != nil {
		t.Fatalf("skip must not be an error: %v", err)
	}
	if res.OK || !res.Skipped {
		t.Fatalf("expected {ok:false, skipped:true}, got %+v", res)
	}
}

func TestNotifyFansOutToEveryChannel(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	r := New([]Channel{NewWebhook(srv.URL), NewChatWebhook(srv.URL)}, logx.Nop())
	res, err := r.Notify(context.Background(), Payload{
		Event:   "publish_failed_final",
		Details: map[string]any{"taskId": "t1", "platform": "douyin", "errorCode": "AUTH_FAILED"},
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !res.OK || res.Channels != 2 {
		t.Fatalf("expected ok with 2 channels, got %+v", res)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected exactly one call per channel, got %d", got)
	}
}

func TestNotifyFailsWhenAnyChannelFails(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	r := New([]Channel{NewWebhook(good.URL), NewWebhook(bad.URL)}, logx.Nop())
	if _, err := r.Notify(context.Background(), Payload{Event: "publish_failed_final"}); err == nil {
		t.Fatalf("expected failure when one channel fails")
	}
}

func TestGenericWebhookCarriesRawPayload(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	r := New([]Channel{NewWebhook(srv.URL)}, logx.Nop())
	_, err := r.Notify(context.Background(), Payload{
		Event:     "publish_failed_missing_account",
		Details:   map[string]any{"taskId": "t9"},
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Event != "publish_failed_missing_account" || got.Details["taskId"] != "t9" {
		t.Fatalf("unexpected webhook body: %+v", got)
	}
}

func TestChatWebhookWrapsTextEnvelope(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	r := New([]Channel{NewChatWebhook(srv.URL)}, logx.Nop())
	if _, err := r.Notify(context.Background(), Payload{Event: "publish_failed_final"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["msgtype"] != "text" {
		t.Fatalf("expected text envelope, got %+v", got)
	}
	text, _ := got["text"].(map[string]any)
	content, _ := text["content"].(string)
	if !strings.Contains(content, "publish_failed_final") {
		t.Fatalf("summary should mention the event, got %q", content)
	}
}
