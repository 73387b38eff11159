package zendesk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/deskwatchhq/deskwatch/pkg/types"
)

const (
	defaultAgentsPath       = "/api/v2/users?role=agent"
	defaultAvailabilityPath = "/api/v2/channels/voice/availabilities"
)

// ProviderError marks a failed status fetch. Callers treat it as "no data
// this cycle", never as "all agents cleared".
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("status provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config holds the static configuration for a Provider.
type Config struct {
	Domain   string
	Email    string
	APIToken string
}

// Dependencies allow test overrides for HTTP client, base URL, and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
	BaseURL    string
}

// Provider fetches the current agent roster and per-agent availability from
// the ticketing platform.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	logger     *log.Logger
}

// NewProvider builds a Provider from configuration and dependencies.
func NewProvider(cfg Config, deps Dependencies) (*Provider, error) {
	if cfg.Domain == "" && deps.BaseURL == "" {
		return nil, fmt.Errorf("zendesk domain is required")
	}
	if cfg.Email == "" || cfg.APIToken == "" {
		return nil, fmt.Errorf("zendesk credentials are required")
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
		baseURL = fmt.Sprintf("https://%s.zendesk.com", cfg.Domain)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(cfg.Email + "/token:" + cfg.APIToken))

	return &Provider{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: "Basic " + auth,
		logger:     logger,
	}, nil
}

type userList struct {
	Users []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"users"`
}

type availabilityResponse struct {
	Availability struct {
		AgentState string `json:"agent_state"`
	} `json:"availability"`
}

// Fetch returns one record per agent with its current availability state.
// A listing failure fails the whole fetch. A single agent's availability
// failure yields an unknown-status record so the caller keeps whatever it
// already tracks for that agent; dropping the agent from the snapshot would
// read as a status change.
func (p *Provider) Fetch(ctx context.Context) ([]types.AgentRecord, error) {
	var list userList
	if err := p.get(ctx, p.baseURL+defaultAgentsPath, &list); err != nil {
		return nil, &ProviderError{Op: "list agents", Err: err}
	}

	records := make([]types.AgentRecord, 0, len(list.Users))
	for _, user := range list.Users {
		var avail availabilityResponse
		url := fmt.Sprintf("%s%s/%d", p.baseURL, defaultAvailabilityPath, user.ID)
		if err := p.get(ctx, url, &avail); err != nil {
			if ctx.Err() != nil {
				return nil, &ProviderError{Op: "fetch availability", Err: ctx.Err()}
			}
			p.logger.Printf("availability fetch failed for agent %d (%s): %v", user.ID, user.Name, err)
			records = append(records, types.AgentRecord{
				ID:     user.ID,
				Name:   user.Name,
				Status: types.StatusUnknown,
			})
			continue
		}
		records = append(records, types.AgentRecord{
			ID:     user.ID,
			Name:   user.Name,
			Status: types.AgentStatus(avail.Availability.AgentState),
		})
	}
	return records, nil
}

func (p *Provider) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", p.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
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
