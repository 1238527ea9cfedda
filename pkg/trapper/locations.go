package trapper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// locationsEndpoint lists every location registered on the platform
const locationsEndpoint = "/api/geomap/api/locations/"

// Client talks to the remote data-management platform's REST API
type Client struct {
	BaseURL  string
	Username string
	Password string
	// Token takes precedence over basic auth when set
	Token      string
	HTTPClient *http.Client
}

// NewClient creates an API client for the given base URL
func NewClient(baseURL, username, password, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Username:   username,
		Password:   password,
		Token:      token,
		HTTPClient: http.DefaultClient,
	}
}

type locationsResponse struct {
	Results []struct {
		LocationID string `json:"locationID"`
	} `json:"results"`
}

// LocationIDs fetches every registered location identifier, lower-cased
// for membership checks. Implements validate.LocationDirectory.
func (c *Client) LocationIDs(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+locationsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build locations request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch locations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("locations request failed: %s", resp.Status)
	}

	var payload locationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode locations response: %w", err)
	}

	ids := make(map[string]bool, len(payload.Results))
	for _, loc := range payload.Results {
		ids[strings.ToLower(loc.LocationID)] = true
	}
	return ids, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Token "+c.Token)
		return
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
}
