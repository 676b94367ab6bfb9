// Package track provides a Go client for the swift-track location relay.
package track

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is a tracking API client bound to one delivery and token.
type Client struct {
	baseURL    string
	deliveryID string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// NewClient creates a tracking client for one delivery. The token must
// have been minted for that delivery.
func NewClient(baseURL, deliveryID, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		deliveryID: deliveryID,
		token:      token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LatestPosition returns the last known position and driver presence.
func (c *Client) LatestPosition(ctx context.Context) (*PositionSnapshot, error) {
	var snapshot PositionSnapshot
	err := c.get(ctx, "/deliveries/"+c.deliveryID+"/position", nil, &snapshot)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Positions replays samples with sequence numbers greater than sinceSeq.
func (c *Client) Positions(ctx context.Context, sinceSeq uint64) (*ReplayPage, error) {
	params := url.Values{}
	if sinceSeq > 0 {
		params.Set("since_seq", strconv.FormatUint(sinceSeq, 10))
	}

	var page ReplayPage
	err := c.get(ctx, "/deliveries/"+c.deliveryID+"/positions", params, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// ETA estimates distance and travel time from the latest fix to the
// destination.
func (c *Client) ETA(ctx context.Context, destLat, destLng float64) (*ETA, error) {
	params := url.Values{}
	params.Set("dest_lat", strconv.FormatFloat(destLat, 'f', -1, 64))
	params.Set("dest_lng", strconv.FormatFloat(destLng, 'f', -1, 64))

	var eta ETA
	err := c.get(ctx, "/deliveries/"+c.deliveryID+"/eta", params, &eta)
	if err != nil {
		return nil, err
	}
	return &eta, nil
}

// get executes an authenticated GET and decodes the response.
func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// socketURL converts the client's base URL to the websocket scheme.
func (c *Client) socketURL(path string, params url.Values) string {
	u := c.baseURL
	switch {
	case len(u) > 5 && u[:5] == "https":
		u = "wss" + u[5:]
	case len(u) > 4 && u[:4] == "http":
		u = "ws" + u[4:]
	}
	params.Set("token", c.token)
	return u + path + "?" + params.Encode()
}
