package platform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"postpilot/internal/faults"
	"postpilot/internal/store"
	logx "postpilot/pkg/logx"
)

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

// exchangeCredentials performs the real-mode credential exchange at AuthURL.
func (a *adapter) exchangeCredentials(ctx context.Context) (*authResponse, error) {
	body, err := json.Marshal(map[string]string{
		"appId":     a.cfg.AppID,
		"appSecret": a.cfg.AppSecret,
	})
	if err != nil {
		return nil, faults.Wrap(faults.AuthFailed, "encode auth request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.AuthURL, bytes.NewReader(body))
	if err != nil {
		return nil, faults.Wrap(faults.AuthFailed, "build auth request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, faults.Wrap(faults.Timeout, "auth call timed out", err)
		}
		return nil, faults.Wrap(faults.AuthFailed, "auth call failed", err)
	}
	defer resp.Body.Close()

	var out authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, faults.Wrap(faults.AuthFailed, "decode auth response", err)
	}
	if resp.StatusCode != http.StatusOK || out.AccessToken == "" {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("auth endpoint returned %d", resp.StatusCode)
		}
		return nil, faults.New(faults.AuthFailed, msg)
	}
	return &out, nil
}

type publishBody struct {
	AppID        string              `json:"appId"`
	Platform     string              `json:"platform"`
	AccountID    string              `json:"accountId"`
	ContentType  string              `json:"contentType"`
	ContentAsset *store.ContentAsset `json:"contentAsset"`
	Timestamp    int64               `json:"timestamp"`
}

type publishResponse struct {
	OK        bool   `json:"ok"`
	RemoteID  string `json:"remoteId"`
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
}

// publishSigned performs the generic signed HTTP publish call.
func (a *adapter) publishSigned(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	body, err := json.Marshal(publishBody{
		AppID:        a.cfg.AppID,
		Platform:     a.cfg.Platform,
		AccountID:    req.Account.ID,
		ContentType:  req.ContentType,
		ContentAsset: req.Asset,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, faults.Wrap(faults.InvalidPayload, "encode publish request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.PublishURL, bytes.NewReader(body))
	if err != nil {
		return nil, faults.Wrap(faults.RequestFailed, "build publish request", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("x-signature", sign(body, a.cfg.AppSecret))

	started := time.Now()
	resp, err := a.client.Do(hreq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, faults.Wrap(faults.Timeout, "publish call timed out", err)
		}
		return nil, faults.Wrap(faults.RequestFailed, "publish call failed", err)
	}
	defer resp.Body.Close()

	var out publishResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, faults.Wrap(faults.RequestFailed, "decode publish response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !out.OK {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("publish endpoint returned %d", resp.StatusCode)
		}
		return nil, classify(a.v.codes, &apiError{Code: out.ErrorCode, Message: msg})
	}

	a.log.Debug("publish call ok", logx.String("remote_id", out.RemoteID), logx.Duration("took", time.Since(started)))
	return &PublishResult{
		Platform:    a.cfg.Platform,
		RemoteID:    out.RemoteID,
		ContentType: req.ContentType,
		PublishTime: time.Now(),
	}, nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
