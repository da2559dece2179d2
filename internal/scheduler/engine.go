package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"postpilot/internal/alert"
	"postpilot/internal/faults"
	"postpilot/internal/platform"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

const (
	EventFailedFinal          = "publish_failed_final"
	EventFailedMissingAccount = "publish_failed_missing_account"
)

// Config controls the retry engine.
type Config struct {
	// RetryMax is the number of retries after the first failed attempt.
	// The default of 2 gives 3 total attempts before terminal failure.
	RetryMax int

	LogRetention    int
	MetricRetention int

	// RetryDelay spaces DecideRetryDelayed re-attempts; SuspendDelay parks
	// DecideSuspend tasks. Both only matter with a non-uniform policy.
	RetryDelay   time.Duration
	SuspendDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.RetryMax <= 0 {
		c.RetryMax = 2
	}
	if c.LogRetention <= 0 {
		c.LogRetention = 500
	}
	if c.MetricRetention <= 0 {
		c.MetricRetention = 500
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.SuspendDelay <= 0 {
		c.SuspendDelay = 30 * time.Minute
	}
}

// Engine is the poll-driven publish scheduler and retry state machine.
//
// A single mutex serializes poll cycles and manual operator calls; the
// cooperative model needs no finer locking since the store is the only
// shared mutable resource.
type Engine struct {
	mu      sync.Mutex
	running atomic.Bool

	store  store.Store
	reg    *platform.Registry
	alerts *alert.Reporter
	policy RetryPolicy
	log    logx.Logger
	cfg    Config

	now func() time.Time // test hook
}

func NewEngine(cfg Config, st store.Store, reg *platform.Registry, alerts *alert.Reporter, log logx.Logger) *Engine {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		store:  st,
		reg:    reg,
		alerts: alerts,
		policy: UniformPolicy{},
		log:    log,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SetPolicy swaps the retry policy. Call before Start; not synchronized
// against running cycles.
func (e *Engine) SetPolicy(p RetryPolicy) {
	if p != nil {
		e.policy = p
	}
}

// Apply updates runtime knobs (config hot reload).
func (e *Engine) Apply(cfg Config) {
	cfg.applyDefaults()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// RunCycle runs one poll cycle. A cycle that arrives while a previous one is
// still in flight is skipped, never overlapped.
func (e *Engine) RunCycle(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("cycle skipped, previous still in flight")
		return nil
	}
	defer e.running.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	tasks, err := e.store.ListDueTasks(ctx, now)
	if err != nil {
		return fmt.Errorf("list due tasks: %w", err)
	}

	for _, t := range tasks {
		// The store already filtered, but never fire early on a bad row.
		if !t.Due(now) {
			continue
		}
		e.processTask(ctx, t)
	}

	if len(tasks) > 0 {
		e.log.Debug("cycle done", logx.Int("tasks", len(tasks)))
	}
	if err := e.store.TrimLogs(ctx, e.cfg.LogRetention); err != nil {
		e.log.Warn("trim logs failed", logx.Err(err))
	}
	if err := e.store.TrimMetrics(ctx, e.cfg.MetricRetention); err != nil {
		e.log.Warn("trim metrics failed", logx.Err(err))
	}
	return nil
}

func (e *Engine) processTask(ctx context.Context, t store.PublishTask) {
	log := e.log.With(logx.String("task", t.ID), logx.String("account", t.AccountID))

	account, err := e.store.GetAccount(ctx, t.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		// Not transient: no retry, straight to terminal failure.
		e.failMissingAccount(ctx, t, log)
		return
	}
	if err != nil {
		log.Error("account lookup failed", logx.Err(err))
		return
	}

	startedAt := e.now()
	running := store.TaskRunning
	if _, err := e.store.UpdateTask(ctx, t.ID, store.TaskUpdate{Status: &running, StartedAt: &startedAt}); err != nil {
		log.Error("mark running failed", logx.Err(err))
		return
	}

	result, publishErr, latency := e.dispatch(ctx, t, account)
	if publishErr != nil {
		e.handleFailure(ctx, t, account, publishErr, latency, log)
		return
	}
	e.handleSuccess(ctx, t, account, result, latency, log)
}

// dispatch resolves adapter and asset, then times the publish call. An
// absent adapter or unresolvable bound asset surfaces as a classified
// dispatch error through the normal failure path.
func (e *Engine) dispatch(ctx context.Context, t store.PublishTask, account store.Account) (*platform.PublishResult, error, time.Duration) {
	adapter, ok := e.reg.Get(account.Platform)
	if !ok {
		return nil, faults.Newf(faults.InvalidConfig, "no adapter for platform %s", account.Platform), 0
	}

	var asset *store.ContentAsset
	if t.ContentAssetID != "" {
		a, err := e.store.GetContentAsset(ctx, t.ContentAssetID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, faults.Newf(faults.InvalidPayload, "content asset %s not found", t.ContentAssetID), 0
		}
		if err != nil {
			return nil, faults.Wrap(faults.RequestFailed, "content asset lookup failed", err), 0
		}
		asset = &a
	}

	start := e.now()
	res, err := adapter.Publish(ctx, platform.PublishRequest{
		Account:     account,
		ContentType: t.ContentType,
		Asset:       asset,
	})
	return res, err, time.Since(start)
}

func (e *Engine) handleSuccess(ctx context.Context, t store.PublishTask, account store.Account, res *platform.PublishResult, latency time.Duration, log logx.Logger) {
	success := store.TaskSuccess
	completedAt := e.now()
	clear := ""
	if _, err := e.store.UpdateTask(ctx, t.ID, store.TaskUpdate{
		Status: &success, CompletedAt: &completedAt, ErrorMessage: &clear, RemoteID: &res.RemoteID,
	}); err != nil {
		log.Error("mark success failed", logx.Err(err))
		return
	}

	e.appendLog(ctx, t.ID, store.LogInfo, fmt.Sprintf("published to %s as %s", res.Platform, res.RemoteID))
	e.recordMetric(ctx, t.ID, account.Platform, true, "", latency)
	log.Info("publish succeeded", logx.String("remote_id", res.RemoteID), logx.Duration("took", latency))
}

func (e *Engine) handleFailure(ctx context.Context, t store.PublishTask, account store.Account, publishErr error, latency time.Duration, log logx.Logger) {
	code := faults.CodeOf(publishErr)
	newCount := t.RetryCount + 1
	decision := e.policy.Decide(code, newCount)

	if decision == DecideSuspend {
		e.suspend(ctx, t, account, publishErr, code, latency, log)
		return
	}

	withinBudget := newCount <= e.cfg.RetryMax
	if decision != DecideNoRetry && withinBudget {
		retrying := store.TaskRetrying
		msg := publishErr.Error()
		upd := store.TaskUpdate{Status: &retrying, ErrorMessage: &msg, RetryCount: &newCount}
		if decision == DecideRetryDelayed {
			next := e.now().Add(e.cfg.RetryDelay)
			upd.PublishAt = &next
		}
		if _, err := e.store.UpdateTask(ctx, t.ID, upd); err != nil {
			log.Error("mark retrying failed", logx.Err(err))
			return
		}
		e.appendLog(ctx, t.ID, store.LogWarn, fmt.Sprintf("attempt %d failed (%s), will retry", newCount, code))
		e.recordMetric(ctx, t.ID, account.Platform, false, string(code), latency)
		log.Warn("publish failed, retrying", logx.String("code", string(code)), logx.Int("retry_count", newCount), logx.Err(publishErr))
		return
	}

	failed := store.TaskFailed
	completedAt := e.now()
	msg := publishErr.Error()
	if _, err := e.store.UpdateTask(ctx, t.ID, store.TaskUpdate{
		Status: &failed, CompletedAt: &completedAt, ErrorMessage: &msg, RetryCount: &newCount,
	}); err != nil {
		log.Error("mark failed failed", logx.Err(err))
		return
	}

	e.appendLog(ctx, t.ID, store.LogError, fmt.Sprintf("attempt %d failed (%s): %s", newCount, code, msg))
	e.appendLog(ctx, t.ID, store.LogAlert, fmt.Sprintf("task failed terminally after %d attempts (%s)", newCount, code))
	e.recordMetric(ctx, t.ID, account.Platform, false, string(code), latency)
	log.Error("publish failed terminally", logx.String("code", string(code)), logx.Int("attempts", newCount), logx.Err(publishErr))

	e.notify(ctx, alert.Payload{
		Event: EventFailedFinal,
		Details: map[string]any{
			"taskId":    t.ID,
			"platform":  account.Platform,
			"errorCode": string(code),
		},
	}, log)
}

// suspend parks a task for human attention without spending retry budget.
func (e *Engine) suspend(ctx context.Context, t store.PublishTask, account store.Account, publishErr error, code faults.Code, latency time.Duration, log logx.Logger) {
	retrying := store.TaskRetrying
	msg := publishErr.Error()
	next := e.now().Add(e.cfg.SuspendDelay)
	if _, err := e.store.UpdateTask(ctx, t.ID, store.TaskUpdate{
		Status: &retrying, ErrorMessage: &msg, PublishAt: &next,
	}); err != nil {
		log.Error("suspend update failed", logx.Err(err))
		return
	}
	e.appendLog(ctx, t.ID, store.LogAlert, fmt.Sprintf("suspended until %s, needs human attention (%s)", next.Format(time.RFC3339), code))
	e.recordMetric(ctx, t.ID, account.Platform, false, string(code), latency)
	log.Warn("task suspended for human attention", logx.String("code", string(code)), logx.Time("resume", next))
}

func (e *Engine) failMissingAccount(ctx context.Context, t store.PublishTask, log logx.Logger) {
	failed := store.TaskFailed
	completedAt := e.now()
	msg := fmt.Sprintf("account %s not found", t.AccountID)
	if _, err := e.store.UpdateTask(ctx, t.ID, store.TaskUpdate{
		Status: &failed, CompletedAt: &completedAt, ErrorMessage: &msg,
	}); err != nil {
		log.Error("mark failed failed", logx.Err(err))
		return
	}

	e.appendLog(ctx, t.ID, store.LogError, msg)
	e.appendLog(ctx, t.ID, store.LogAlert, "task failed: owning account is missing")
	log.Error("publish failed, missing account")

	e.notify(ctx, alert.Payload{
		Event:   EventFailedMissingAccount,
		Details: map[string]any{"taskId": t.ID, "accountId": t.AccountID},
	}, log)
}

// notify is best-effort: reporter failures become a warning log, never
// task-state changes.
func (e *Engine) notify(ctx context.Context, p alert.Payload, log logx.Logger) {
	p.CreatedAt = e.now()
	if _, err := e.alerts.Notify(ctx, p); err != nil {
		log.Warn("alert delivery failed", logx.String("event", p.Event), logx.Err(err))
	}
}

func (e *Engine) appendLog(ctx context.Context, taskID string, level store.LogLevel, msg string) {
	err := e.store.AppendTaskLog(ctx, store.TaskLog{
		TaskID: taskID, Level: level, Message: msg, CreatedAt: e.now(),
	})
	if err != nil {
		e.log.Warn("append task log failed", logx.Err(err))
	}
}

func (e *Engine) recordMetric(ctx context.Context, taskID, platformName string, success bool, code string, latency time.Duration) {
	err := e.store.AppendPublishMetric(ctx, store.PublishMetric{
		TaskID: taskID, Platform: platformName, Success: success,
		ErrorCode: code, LatencyMS: latency.Milliseconds(), CreatedAt: e.now(),
	})
	if err != nil {
		e.log.Warn("append metric failed", logx.Err(err))
	}
}
