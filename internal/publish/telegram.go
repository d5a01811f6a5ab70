package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/mnadigest/internal/digest"
	"github.com/deusflow/mnadigest/internal/logger"
)

const telegramAPI = "https://api.telegram.org"

// Telegram posts through the Bot API with HTML parse mode.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewTelegram(token string, timeout time.Duration) *Telegram {
	return &Telegram{
		token:   token,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithBaseURL points the publisher at another Bot API host.
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

func (t *Telegram) Style() digest.Style { return digest.HTML }

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// ResolveChannel accepts a numeric chat id as is. Anything else is looked up
// with getChat as a public @username.
func (t *Telegram) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if isChatID(name) {
		return name, nil
	}
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}

	var chat struct {
		ID int64 `json:"id"`
	}
	if err := t.call(ctx, "getChat", map[string]interface{}{"chat_id": name}, &chat); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrChannelNotFound, name, err)
	}
	return fmt.Sprintf("%d", chat.ID), nil
}

func (t *Telegram) PostMessage(ctx context.Context, channelID, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  channelID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if err := t.call(ctx, "sendMessage", payload, nil); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	logger.Info("message sent to telegram", "chat", channelID)
	return nil
}

func (t *Telegram) call(ctx context.Context, method string, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	var r telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || !r.OK {
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, r.Description)
	}
	if out != nil {
		if err := json.Unmarshal(r.Result, out); err != nil {
			return fmt.Errorf("failed to decode telegram %s result: %w", method, err)
		}
	}
	return nil
}

func isChatID(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
