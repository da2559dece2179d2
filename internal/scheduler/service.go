package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "postpilot/pkg/logx"
)

// Service drives the engine with a fixed-interval cron trigger. The engine
// itself stays trigger-agnostic; tests call RunCycle directly.
type Service struct {
	mu sync.Mutex

	engine   *Engine
	interval time.Duration
	log      logx.Logger

	c       *cron.Cron
	baseCtx context.Context
}

func NewService(engine *Engine, interval time.Duration, log logx.Logger) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{engine: engine, interval: interval, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx = ctx

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register poll trigger: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started", logx.Duration("interval", s.interval))
	return nil
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if err := s.engine.RunCycle(ctx); err != nil {
		s.log.Error("poll cycle failed", logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("scheduler stopped")
}
