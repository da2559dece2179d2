package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryStore keeps everything in process. It is the default driver and the
// one the engine tests run against.
type memoryStore struct {
	mu sync.Mutex

	accounts map[string]Account
	hotspots map[string]Hotspot
	assets   map[string]ContentAsset
	tasks    map[string]PublishTask

	logs    []TaskLog
	metrics []PublishMetric
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		accounts: map[string]Account{},
		hotspots: map[string]Hotspot{},
		assets:   map[string]ContentAsset{},
		tasks:    map[string]PublishTask{},
	}
}

func (s *memoryStore) Close() error { return nil }

func newID() string { return uuid.NewString() }

// ---- accounts ----

func (s *memoryStore) AddAccount(_ context.Context, a Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = AccountActive
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *memoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *memoryStore) ListAccounts(_ context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) SetAccountStatus(_ context.Context, id string, status AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	s.accounts[id] = a
	return nil
}

func (s *memoryStore) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

// ---- hotspots ----

func (s *memoryStore) ReplaceHotspots(_ context.Context, items []Hotspot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hotspots = make(map[string]Hotspot, len(items))
	for _, h := range items {
		if h.ID == "" {
			h.ID = newID()
		}
		s.hotspots[h.ID] = h
	}
	return nil
}

func (s *memoryStore) ImportHotspots(ctx context.Context, items []Hotspot, mode ImportMode) error {
	if mode == ImportReplace {
		return s.ReplaceHotspots(ctx, items)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range items {
		if h.ID == "" {
			h.ID = newID()
		}
		s.hotspots[h.ID] = h
	}
	return nil
}

func (s *memoryStore) ListHotspots(_ context.Context) ([]Hotspot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hotspot, 0, len(s.hotspots))
	for _, h := range s.hotspots {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Heat > out[j].Heat })
	return out, nil
}

// ---- content assets ----

func (s *memoryStore) PutContentAsset(_ context.Context, a ContentAsset) (ContentAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.assets[a.ID] = a
	return a, nil
}

func (s *memoryStore) GetContentAsset(_ context.Context, id string) (ContentAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return ContentAsset{}, ErrNotFound
	}
	return a, nil
}

func (s *memoryStore) ListContentAssets(_ context.Context) ([]ContentAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ContentAsset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- tasks ----

func (s *memoryStore) CreateTask(_ context.Context, t PublishTask) (PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = TaskScheduled
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *memoryStore) GetTask(_ context.Context, id string) (PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return PublishTask{}, ErrNotFound
	}
	return t, nil
}

func (s *memoryStore) ListTasks(_ context.Context) ([]PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PublishTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) ListDueTasks(_ context.Context, now time.Time) ([]PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PublishTask, 0)
	for _, t := range s.tasks {
		if t.Due(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishAt.Before(out[j].PublishAt) })
	return out, nil
}

func (s *memoryStore) UpdateTask(_ context.Context, id string, u TaskUpdate) (PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return PublishTask{}, ErrNotFound
	}
	applyTaskUpdate(&t, u)
	s.tasks[id] = t
	return t, nil
}

func applyTaskUpdate(t *PublishTask, u TaskUpdate) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.PublishAt != nil {
		t.PublishAt = *u.PublishAt
	}
	if u.StartedAt != nil {
		at := *u.StartedAt
		t.StartedAt = &at
	}
	if u.ClearCompletedAt {
		t.CompletedAt = nil
	} else if u.CompletedAt != nil {
		at := *u.CompletedAt
		t.CompletedAt = &at
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.RetryCount != nil {
		t.RetryCount = *u.RetryCount
	}
	if u.RemoteID != nil {
		t.RemoteID = *u.RemoteID
	}
}

// ---- logs & metrics ----

func (s *memoryStore) AppendTaskLog(_ context.Context, l TaskLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, l)
	return nil
}

func (s *memoryStore) ListTaskLogs(_ context.Context, limit int) ([]TaskLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	// Most recent first.
	out := make([]TaskLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.logs[i])
	}
	return out, nil
}

func (s *memoryStore) AppendPublishMetric(_ context.Context, m PublishMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *memoryStore) ListPublishMetrics(_ context.Context, limit int) ([]PublishMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.metrics)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]PublishMetric, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.metrics[i])
	}
	return out, nil
}

func (s *memoryStore) TrimLogs(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep >= 0 && len(s.logs) > keep {
		s.logs = append([]TaskLog(nil), s.logs[len(s.logs)-keep:]...)
	}
	return nil
}

func (s *memoryStore) TrimMetrics(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep >= 0 && len(s.metrics) > keep {
		s.metrics = append([]PublishMetric(nil), s.metrics[len(s.metrics)-keep:]...)
	}
	return nil
}
