package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL        = "https://slack.com/api"
	defaultCallsPerMinute = 50
)

// Config holds the static configuration for a chat client.
type Config struct {
	BotToken string
	// CallsPerMinute caps outbound API calls. Zero uses the default.
	CallsPerMinute int
}

// Dependencies allow test overrides for HTTP client, base URL, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	BaseURL    string
}

// Client wraps the chat platform Web API: message posting and updating,
// permalinks, and display-name lookup with caching. Outbound calls share a
// rate limiter so bursts of alerts cannot trip the platform's limits.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
	limiter    *rate.Limiter
	logger     *log.Logger

	mu        sync.Mutex
	userNames map[string]string
}

// NewClient builds a chat client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	baseURL := deps.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	callsPerMinute := cfg.CallsPerMinute
	if callsPerMinute <= 0 {
		callsPerMinute = defaultCallsPerMinute
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		botToken:   cfg.BotToken,
		limiter:    rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), callsPerMinute),
		logger:     logger,
		userNames:  make(map[string]string),
	}, nil
}

type apiResponse struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Channel   string `json:"channel"`
	TS        string `json:"ts"`
	Permalink string `json:"permalink"`
	User      struct {
		RealName string `json:"real_name"`
	} `json:"user"`
}

// PostMessage posts a message and returns the channel and timestamp of the
// posted message, which identify it for later updates.
func (c *Client) PostMessage(ctx context.Context, msg Message) (string, string, error) {
	resp, err := c.callJSON(ctx, "chat.postMessage", msg)
	if err != nil {
		return "", "", err
	}
	return resp.Channel, resp.TS, nil
}

// UpdateMessage replaces the content of a previously posted message.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts string, msg Message) error {
	msg.Channel = channel
	payload := struct {
		Message
		TS string `json:"ts"`
	}{Message: msg, TS: ts}
	_, err := c.callJSON(ctx, "chat.update", payload)
	return err
}

// Permalink resolves a permanent link to a message. Failures degrade to an
// empty link; callers substitute their own placeholder text.
func (c *Client) Permalink(ctx context.Context, channel, messageTS string) (string, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("message_ts", messageTS)
	resp, err := c.callGet(ctx, "chat.getPermalink", params)
	if err != nil {
		return "", err
	}
	return resp.Permalink, nil
}

// UserName resolves a user id to a display name, caching results. Lookup
// failures fall back to the raw id, matching how the bot degrades when the
// directory is unavailable.
func (c *Client) UserName(ctx context.Context, userID string) string {
	c.mu.Lock()
	if name, ok := c.userNames[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("user", userID)
	resp, err := c.callGet(ctx, "users.info", params)
	if err != nil || resp.User.RealName == "" {
		c.logger.Printf("user lookup failed for %s: %v", userID, err)
		return userID
	}

	c.mu.Lock()
	c.userNames[userID] = resp.User.RealName
	c.mu.Unlock()
	return resp.User.RealName
}

func (c *Client) callJSON(ctx context.Context, method string, payload any) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	return c.do(req, method)
}

func (c *Client) callGet(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s failed: status %s", method, resp.Status)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%s failed: %s", method, parsed.Error)
	}
	return &parsed, nil
}
