package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"postpilot/internal/alert"
	"postpilot/internal/api"
	"postpilot/internal/compliance"
	"postpilot/internal/config"
	"postpilot/internal/platform"
	"postpilot/internal/scheduler"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

// App wires config, storage, the adapter registry, the retry engine, the
// poll trigger and the management API into one lifecycle.
type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store    store.Store
	checker  *compliance.Checker
	registry *platform.Registry
	reporter *alert.Reporter
	engine   *scheduler.Engine
	poller   *scheduler.Service
	api      *api.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	checker := compliance.New(cfg.Compliance.SensitiveWords)

	platCfgs, err := mapPlatformConfigs(cfg)
	if err != nil {
		return nil, err
	}
	registry, err := platform.NewRegistry(platCfgs, checker, log.With(logx.String("comp", "platform")))
	if err != nil {
		return nil, err
	}

	channels, err := buildAlertChannels(cfg)
	if err != nil {
		return nil, err
	}
	reporter := alert.New(channels, log.With(logx.String("comp", "alert")))

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engine := scheduler.NewEngine(engCfg, st, registry, reporter, log.With(logx.String("comp", "scheduler")))
	engine.SetPolicy(mapPolicy(cfg))

	interval, err := pollInterval(cfg)
	if err != nil {
		return nil, err
	}
	poller := scheduler.NewService(engine, interval, log.With(logx.String("comp", "scheduler")))

	handler := api.NewHandler(st, engine, checker, registry, log.With(logx.String("comp", "api")))
	readTO, _ := config.ParseDurationField("api.read_timeout", cfg.API.ReadTimeout)
	writeTO, _ := config.ParseDurationField("api.write_timeout", cfg.API.WriteTimeout)
	idleTO, _ := config.ParseDurationField("api.idle_timeout", cfg.API.IdleTimeout)
	apiSrv := api.NewServer(api.ServerConfig{
		Enabled:      cfg.API.Enabled,
		Addr:         cfg.API.Addr,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
		IdleTimeout:  idleTO,
	}, api.NewRouter(handler), log.With(logx.String("comp", "api")))

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    st,
		checker:  checker,
		registry: registry,
		reporter: reporter,
		engine:   engine,
		poller:   poller,
		api:      apiSrv,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Validation beyond Config.Validate: mappings that can fail must fail
	// before commit so a bad reload never half-applies.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := pollInterval(cfg); err != nil {
			return err
		}
		if _, err := mapPlatformConfigs(cfg); err != nil {
			return err
		}
		if _, err := buildAlertChannels(cfg); err != nil {
			return err
		}
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if cfg.Scheduler.Enabled {
		if err := a.poller.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}
	if err := a.api.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := cfg
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(runCtx, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.checker.SetWords(newCfg.Compliance.SensitiveWords)

	if engCfg, err := mapEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(engCfg)
		a.engine.SetPolicy(mapPolicy(newCfg))
	}

	if channels, err := buildAlertChannels(newCfg); err != nil {
		a.log.Warn("invalid alert config; keeping previous", logx.Err(err))
	} else {
		a.reporter.Apply(channels)
	}

	prevEnabled := oldCfg.Scheduler.Enabled
	if prevEnabled && !newCfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.poller.Stop(stopCtx)
		cancel()
	}
	if !prevEnabled && newCfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		if err := a.poller.Start(ctx); err != nil {
			a.log.Warn("scheduler start failed", logx.Err(err))
		}
	}

	// The driver, the platform set and the listen address are fixed at boot.
	for _, s := range sections {
		if s == "storage" || s == "platforms" || s == "api" {
			a.log.Warn("config changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.poller.Stop(stopCtx)
	cancel()

	stopCtx, cancel = context.WithTimeout(ctx, 2*time.Second)
	a.api.Stop(stopCtx)
	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop deadline reached before background loops exited")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
