package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNoToken      = errors.New("telegram bot token is not configured")
	ErrUnauthorized = errors.New("telegram rejected the bot token")
)

// Client speaks the Bot API over plain JSON POSTs.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

type APIError struct {
	Method string
	Status int
	Code   int
	Desc   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d/%d): %s", e.Method, e.Status, e.Code, e.Desc)
}

func NewClient(httpClient *http.Client, host, token string) *Client {
	if host == "" {
		host = "https://api.telegram.org"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.token != ""
}

// GetUpdates long-polls for updates after offset. timeout is the server-side
// wait; the HTTP client timeout must exceed it.
func (c *Client) GetUpdates(ctx context.Context, offset int64, limit int, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"allowed_updates": AllowedUpdates,
	}
	if limit > 0 {
		payload["limit"] = limit
	}
	if timeout > 0 {
		payload["timeout"] = int(timeout / time.Second)
	}
	var raws []json.RawMessage
	if err := c.call(ctx, "getUpdates", payload, &raws); err != nil {
		return nil, err
	}
	out := make([]Update, 0, len(raws))
	for _, raw := range raws {
		var u Update
		if err := json.Unmarshal(raw, &u); err != nil {
			// Skip the one bad update but keep the offset moving past it.
			var id struct {
				UpdateID int64 `json:"update_id"`
			}
			_ = json.Unmarshal(raw, &id)
			out = append(out, Update{UpdateID: id.UpdateID, Raw: raw})
			continue
		}
		u.Raw = raw
		out = append(out, u)
	}
	return out, nil
}

// AllowedUpdates are the update kinds the ingestor understands.
var AllowedUpdates = []string{"message", "edited_message", "channel_post", "edited_channel_post"}

func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]any{
		"url":             webhookURL,
		"allowed_updates": AllowedUpdates,
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false}, nil)
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("chat_id is required")
	}
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}, nil)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	if !c.Configured() {
		return ErrNoToken
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.host, url.PathEscape(c.token), method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the endpoint, which carries the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("telegram %s: %w", method, uerr.Err)
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Method: method, Status: resp.StatusCode, Desc: truncate(string(body), 200)}
	}
	if !env.OK || resp.StatusCode != http.StatusOK {
		return &APIError{Method: method, Status: resp.StatusCode, Code: env.ErrorCode, Desc: env.Description}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
