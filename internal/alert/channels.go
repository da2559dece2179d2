package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"
)

const channelTimeout = 10 * time.Second

// WebhookChannel POSTs the raw payload JSON to a generic webhook.
type WebhookChannel struct {
	URL    string
	client *http.Client
}

func NewWebhook(url string) *WebhookChannel {
	return &WebhookChannel{URL: url, client: &http.Client{Timeout: channelTimeout}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, p Payload) error {
	return postJSON(ctx, c.client, c.URL, p)
}

// ChatWebhookChannel POSTs a chat-bot text envelope (DingTalk/WeCom style)
// wrapping a readable summary.
type ChatWebhookChannel struct {
	URL    string
	client *http.Client
}

func NewChatWebhook(url string) *ChatWebhookChannel {
	return &ChatWebhookChannel{URL: url, client: &http.Client{Timeout: channelTimeout}}
}

func (c *ChatWebhookChannel) Name() string { return "chat_webhook" }

func (c *ChatWebhookChannel) Send(ctx context.Context, p Payload) error {
	body := map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": summary(p)},
	}
	return postJSON(ctx, c.client, c.URL, body)
}

func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// TelegramChannel sends the summary to a chat through the bot API.
type TelegramChannel struct {
	bot  *tele.Bot
	chat tele.ChatID
}

func NewTelegram(token string, chatID int64) (*TelegramChannel, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &TelegramChannel{bot: bot, chat: tele.ChatID(chatID)}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(_ context.Context, p Payload) error {
	_, err := c.bot.Send(c.chat, summary(p), &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
