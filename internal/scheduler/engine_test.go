package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"postpilot/internal/alert"
	"postpilot/internal/compliance"
	"postpilot/internal/platform"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// recordingChannel captures alert payloads in-process.
type recordingChannel struct {
	payloads []alert.Payload
	fail     bool
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(_ context.Context, p alert.Payload) error {
	c.payloads = append(c.payloads, p)
	if c.fail {
		return errors.New("channel down")
	}
	return nil
}

type fixture struct {
	engine *Engine
	store  store.Store
	rec    *recordingChannel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	checker := compliance.New([]string{"forbidden"})
	reg, err := platform.NewRegistry([]platform.Config{
		{Platform: "xiaohongshu", Mode: platform.ModeMock, Timeout: time.Second},
		{Platform: "douyin", Mode: platform.ModeMock, Timeout: time.Second},
	}, checker, logx.Nop())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	rec := &recordingChannel{}
	reporter := alert.New([]alert.Channel{rec}, logx.Nop())
	eng := NewEngine(Config{}, st, reg, reporter, logx.Nop())
	return &fixture{engine: eng, store: st, rec: rec}
}

func (f *fixture) addAccount(t *testing.T, platformName string) store.Account {
	t.Helper()
	a, err := f.store.AddAccount(context.Background(), store.Account{Platform: platformName, Nickname: "tester"})
	if err != nil {
		t.Fatalf("add account: %v", err)
	}
	return a
}

func (f *fixture) addDueTask(t *testing.T, accountID, contentType string) store.PublishTask {
	t.Helper()
	task, err := f.store.CreateTask(context.Background(), store.PublishTask{
		AccountID:   accountID,
		ContentType: contentType,
		PublishAt:   time.Now().Add(-2 * time.Second),
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (f *fixture) events() []string {
	out := make([]string, 0, len(f.rec.payloads))
	for _, p := range f.rec.payloads {
		out = append(out, p.Event)
	}
	return out
}

func hasLogLevel(t *testing.T, st store.Store, level store.LogLevel) bool {
	t.Helper()
	logs, err := st.ListTaskLogs(context.Background(), 500)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	for _, l := range logs {
		if l.Level == level {
			return true
		}
	}
	return false
}

func TestSuccessPathSingleCycle(t *testing.T) {
	f := newFixture(t)
	acc := f.addAccount(t, "xiaohongshu")
	task := f.addDueTask(t, acc.ID, "note")

	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskSuccess {
		t.Fatalf("expected success, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if !strings.HasPrefix(got.RemoteID, "mock-") {
		t.Fatalf("remoteId should come from the adapter, got %q", got.RemoteID)
	}
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Fatalf("expected started/completed stamps, got %+v", got)
	}

	metrics, _ := f.store.ListPublishMetrics(context.Background(), 100)
	if len(metrics) != 1 || !metrics[0].Success {
		t.Fatalf("expected exactly one success metric, got %+v", metrics)
	}
}

func TestRetryBoundThreeAttemptsThenFailed(t *testing.T) {
	f := newFixture(t)
	acc := f.addAccount(t, "xiaohongshu")
	task := f.addDueTask(t, acc.ID, "mock_fail_auth")

	for i := 0; i < 3; i++ {
		if err := f.engine.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}

	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskFailed || got.RetryCount != 3 {
		t.Fatalf("expected failed with retryCount 3, got %s/%d", got.Status, got.RetryCount)
	}

	metrics, _ := f.store.ListPublishMetrics(context.Background(), 100)
	if len(metrics) != 3 {
		t.Fatalf("expected 3 failure metrics, got %d", len(metrics))
	}
	for _, m := range metrics {
		if m.Success || m.ErrorCode != "AUTH_FAILED" {
			t.Fatalf("expected AUTH_FAILED failure metrics, got %+v", m)
		}
	}

	if !hasLogLevel(t, f.store, store.LogAlert) {
		t.Fatalf("expected an alert-level task log")
	}
	events := f.events()
	if len(events) != 1 || events[0] != EventFailedFinal {
		t.Fatalf("expected a single %s alert, got %v", EventFailedFinal, events)
	}

	// A fourth cycle must not touch the terminal task.
	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle 4: %v", err)
	}
	again, _ := f.store.GetTask(context.Background(), task.ID)
	if again.RetryCount != 3 || again.Status != store.TaskFailed {
		t.Fatalf("terminal task must stay put, got %+v", again)
	}
}

func TestMissingAccountFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	task := f.addDueTask(t, "nobody-home", "note")

	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskFailed || got.RetryCount != 0 {
		t.Fatalf("expected terminal failure with retryCount 0, got %s/%d", got.Status, got.RetryCount)
	}
	if !hasLogLevel(t, f.store, store.LogAlert) {
		t.Fatalf("expected an alert-level task log")
	}
	events := f.events()
	if len(events) != 1 || events[0] != EventFailedMissingAccount {
		t.Fatalf("expected %s alert, got %v", EventFailedMissingAccount, events)
	}
}

func TestAbsentAdapterGoesThroughFailurePath(t *testing.T) {
	f := newFixture(t)
	acc := f.addAccount(t, "unknown-platform")
	task := f.addDueTask(t, acc.ID, "note")

	for i := 0; i < 3; i++ {
		_ = f.engine.RunCycle(context.Background())
	}
	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskFailed || got.RetryCount != 3 {
		t.Fatalf("expected failed/3 via dispatch error, got %s/%d", got.Status, got.RetryCount)
	}
	metrics, _ := f.store.ListPublishMetrics(context.Background(), 100)
	if len(metrics) == 0 || metrics[0].ErrorCode != "INVALID_CONFIG" {
		t.Fatalf("expected INVALID_CONFIG metrics, got %+v", metrics)
	}
}

func TestNotYetDueTaskUntouched(t *testing.T) {
	f := newFixture(t)
	acc := f.addAccount(t, "xiaohongshu")
	task, _ := f.store.CreateTask(context.Background(), store.PublishTask{
		AccountID: acc.ID, ContentType: "note", PublishAt: time.Now().Add(time.Hour),
	})

	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskScheduled {
		t.Fatalf("future task must stay scheduled, got %s", got.Status)
	}
}

func TestAlertFailureNeverBlocksTaskState(t *testing.T) {
	f := newFixture(t)
	f.rec.fail = true
	task := f.addDueTask(t, "nobody-home", "note")

	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle must swallow alert errors: %v", err)
	}
	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskFailed {
		t.Fatalf("task state must progress despite alert failure, got %s", got.Status)
	}
}

func TestCancelRetryExecuteNow(t *testing.T) {
	f := newFixture(t)
	acc := f.addAccount(t, "xiaohongshu")
	ctx := context.Background()

	task, _ := f.store.CreateTask(ctx, store.PublishTask{
		AccountID: acc.ID, ContentType: "note", PublishAt: time.Now().Add(time.Hour),
	})

	got, err := f.engine.Cancel(ctx, task.ID)
	if err != nil || got.Status != store.TaskCancelled || got.CompletedAt == nil {
		t.Fatalf("cancel: %+v err=%v", got, err)
	}

	// Cancel on a terminal task is a no-op.
	again, err := f.engine.Cancel(ctx, task.ID)
	if err != nil || again.Status != store.TaskCancelled {
		t.Fatalf("cancel no-op: %+v err=%v", again, err)
	}

	got, err = f.engine.Retry(ctx, task.ID)
	if err != nil || got.Status != store.TaskScheduled || got.RetryCount != 0 || got.CompletedAt != nil || got.ErrorMessage != "" {
		t.Fatalf("retry: %+v err=%v", got, err)
	}

	got, err = f.engine.ExecuteNow(ctx, task.ID)
	if err != nil || got.Status != store.TaskScheduled || !got.PublishAt.Before(time.Now()) {
		t.Fatalf("executeNow should force a past publishAt: %+v err=%v", got, err)
	}

	// And the next cycle picks it up.
	if err := f.engine.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	final, _ := f.store.GetTask(ctx, task.ID)
	if final.Status != store.TaskSuccess {
		t.Fatalf("executeNow task should publish on next cycle, got %s", final.Status)
	}
}

func TestOverlappingCycleSkipped(t *testing.T) {
	f := newFixture(t)
	acc := f.addAccount(t, "xiaohongshu")
	task := f.addDueTask(t, acc.ID, "note")

	f.engine.running.Store(true)
	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("skipped cycle: %v", err)
	}
	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskScheduled {
		t.Fatalf("skipped cycle must not touch tasks, got %s", got.Status)
	}

	f.engine.running.Store(false)
	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got, _ = f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskSuccess {
		t.Fatalf("expected success after real cycle, got %s", got.Status)
	}
}

func TestKindPolicyNoRetryOnAuthFailure(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPolicy(KindPolicy{})
	acc := f.addAccount(t, "xiaohongshu")
	task := f.addDueTask(t, acc.ID, "mock_fail_auth")

	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskFailed || got.RetryCount != 1 {
		t.Fatalf("kind policy should fail auth errors immediately, got %s/%d", got.Status, got.RetryCount)
	}
}

func TestKindPolicySuspendsCaptcha(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPolicy(KindPolicy{})
	acc := f.addAccount(t, "xiaohongshu")
	task := f.addDueTask(t, acc.ID, "mock_fail_captcha")

	if err := f.engine.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	got, _ := f.store.GetTask(context.Background(), task.ID)
	if got.Status != store.TaskRetrying {
		t.Fatalf("captcha should suspend, got %s", got.Status)
	}
	if got.RetryCount != 0 {
		t.Fatalf("suspension must not spend retry budget, got %d", got.RetryCount)
	}
	if !got.PublishAt.After(time.Now()) {
		t.Fatalf("suspended task must be parked in the future, got %v", got.PublishAt)
	}
	if !hasLogLevel(t, f.store, store.LogAlert) {
		t.Fatalf("suspension should raise an alert-level log")
	}
}
