package kb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultBaseURL      = "https://api.getguru.com"
	defaultCardLinkBase = "https://app.getguru.com/card/"
	searchLimit         = 5
)

// Card is one knowledge-base card returned by search.
type Card struct {
	Title string `json:"preferredPhrase"`
	Slug  string `json:"slug"`
}

// URL returns the human-facing link for the card, or "#" when the card has
// no slug to link to.
func (c Card) URL() string {
	if c.Slug == "" {
		return "#"
	}
	return defaultCardLinkBase + c.Slug
}

// Answer is a generated answer to a free-form question.
type Answer struct {
	Text string `json:"answerText"`
}

// Config holds the static configuration for a knowledge-base client.
type Config struct {
	Email    string
	APIToken string
	AgentID  string
	OrgID    string
}

// Dependencies allow test overrides for HTTP client, base URL, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	BaseURL    string
}

// Client queries the knowledge base for cards and generated answers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	agentID    string
	orgID      string
	logger     *log.Logger
}

// NewClient builds a knowledge-base client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("knowledge base credentials are required")
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

	auth := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.APIToken))

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: "Basic " + auth,
		agentID:    cfg.AgentID,
		orgID:      cfg.OrgID,
		logger:     logger,
	}, nil
}

// SearchCards returns up to five cards matching the query.
func (c *Client) SearchCards(ctx context.Context, query string) ([]Card, error) {
	params := url.Values{}
	params.Set("searchTerms", query)
	params.Set("organizationId", c.orgID)
	params.Set("typeFilter", "CARD")
	params.Set("limit", fmt.Sprintf("%d", searchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/search/query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	var cards []Card
	if err := c.do(req, &cards); err != nil {
		return nil, fmt.Errorf("search cards: %w", err)
	}
	if len(cards) > searchLimit {
		cards = cards[:searchLimit]
	}
	return cards, nil
}

// GetAnswer asks the knowledge base to generate an answer for a question.
func (c *Client) GetAnswer(ctx context.Context, question string) (Answer, error) {
	payload, err := json.Marshal(map[string]string{
		"organizationId": c.orgID,
		"agentId":        c.agentID,
		"question":       question,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("marshal answer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/answers", bytes.NewReader(payload))
	if err != nil {
		return Answer{}, fmt.Errorf("build answer request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	var answer Answer
	if err := c.do(req, &answer); err != nil {
		return Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return answer, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
