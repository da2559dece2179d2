package platform

import (
	"context"
	"time"

	"postpilot/internal/store"
)

type Mode string

const (
	ModeMock Mode = "mock"
	ModeReal Mode = "real"
)

// Placeholder credentials shipped in example configs. Real-mode adapters
// refuse to start with these.
const (
	PlaceholderAppID     = "your-app-id"
	PlaceholderAppSecret = "your-app-secret"
)

// Config describes one platform adapter instance.
type Config struct {
	Platform    string
	Mode        Mode
	AppID       string
	AppSecret   string
	PublishURL  string
	AuthURL     string
	Timeout     time.Duration
	MinInterval time.Duration // spacing between calls on this adapter instance
}

// PublishRequest carries everything an adapter needs for one attempt.
// Asset is nil when the schedule carries only a content type.
type PublishRequest struct {
	Account     store.Account
	ContentType string
	Asset       *store.ContentAsset
}

// PublishResult is a successful publish.
type PublishResult struct {
	Platform    string    `json:"platform"`
	RemoteID    string    `json:"remoteId"`
	ContentType string    `json:"contentType"`
	PublishTime time.Time `json:"publishTime"`
}

// Adapter publishes content to one platform. Implementations own their
// token lifecycle and rate limiting; every error they return is classified
// into the faults taxonomy.
type Adapter interface {
	Name() string
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}
