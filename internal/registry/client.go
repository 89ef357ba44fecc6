package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// Client calls the registry HTTP API
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the registry at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "rank-resolver")

	return &Client{http: client}
}

// SetToken sends token as a bearer credential on every request
func (c *Client) SetToken(token string) {
	if token != "" {
		c.http.SetAuthToken(token)
	}
}

// BaseURL returns the registry address
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// ListKeywords fetches pending jobs, optionally for one slot type
func (c *Client) ListKeywords(ctx context.Context, slotType string) ([]types.Keyword, error) {
	var body types.KeywordsResponse
	req := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		SetError(&body)
	if slotType != "" {
		req.SetQueryParam("slot_type", slotType)
	}

	res, err := req.Get("/api/keywords")
	if err != nil {
		return nil, fmt.Errorf("failed to reach registry: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("registry returned %s: %s", res.Status(), body.Error)
	}
	if !body.Success {
		return nil, fmt.Errorf("registry reported failure: %s", body.Error)
	}
	return body.Data, nil
}

// PostResults sends check results and returns the registry's tally
func (c *Client) PostResults(ctx context.Context, results []types.CheckResult) (*types.UpdateResultsResponse, error) {
	var body types.UpdateResultsResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(types.UpdateResultsRequest{Results: results}).
		SetResult(&body).
		SetError(&body).
		Post("/api/ranking-check/update-results")
	if err != nil {
		return nil, fmt.Errorf("failed to post results: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("registry returned %s: %s", res.Status(), body.Error)
	}
	return &body, nil
}

// IsConnectivityError reports whether err came from failing to reach the registry at all
func IsConnectivityError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
