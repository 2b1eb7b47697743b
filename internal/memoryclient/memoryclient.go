// Package memoryclient is the Generator's HTTP client for the Memory Reader
// collaborator: a resty client (base URL, retry count/backoff, JSON
// headers) pointed at the Memory Reader's profile-fetch and vector-search
// endpoints.
package memoryclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chatpipe/chatpipe/internal/config"
	"github.com/chatpipe/chatpipe/internal/errors"
	"github.com/chatpipe/chatpipe/internal/models"
)

// Client calls the Memory Reader binary over HTTP.
type Client struct {
	http *resty.Client
	cfg  config.MemoryConfig
}

func New(cfg config.MemoryConfig) *Client {
	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	c.SetHeader("Content-Type", "application/json")
	c.SetHeader("Accept", "application/json")
	c.SetRetryCount(2)
	c.SetRetryWaitTime(200 * time.Millisecond)
	c.SetRetryMaxWaitTime(1 * time.Second)
	c.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() >= 500
	})
	return &Client{http: c, cfg: cfg}
}

type profileResponse struct {
	Profile models.UserProfile `json:"profile"`
}

// FetchProfile fetches a UserProfile for personalization at turn start. The
// caller is expected to bound ctx to a hard deadline — a timeout here
// degrades to "no profile" rather than failing the turn.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&profileResponse{}).
		Get(fmt.Sprintf("/users/%s/memories", userID))
	if err != nil {
		return nil, errors.New(errors.ErrTimeoutDegraded, fmt.Sprintf("memory reader profile fetch failed: %v", err))
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, errors.New(errors.ErrProfileNotFound, "profile not found")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.New(errors.ErrMemoryServiceError, fmt.Sprintf("memory reader returned status %d", resp.StatusCode()))
	}
	result := resp.Result().(*profileResponse)
	return &result.Profile, nil
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []models.ScoredConversationSummary `json:"results"`
}

// SearchHistory services the Generator's search_conversation_history tool
// call by POSTing to the same /users/{userId}/conversations/search endpoint
// Memory Reader exposes publicly. limit is clamped to [1, cfg.MaxLimit];
// zero/negative falls back to cfg.DefaultLimit.
func (c *Client) SearchHistory(ctx context.Context, userID, query string, limit int) ([]models.ScoredConversationSummary, error) {
	if limit <= 0 {
		limit = c.cfg.DefaultLimit
	}
	if limit > c.cfg.MaxLimit {
		limit = c.cfg.MaxLimit
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(searchRequest{Query: query, Limit: limit}).
		SetResult(&searchResponse{}).
		Post(fmt.Sprintf("/users/%s/conversations/search", userID))
	if err != nil {
		return nil, errors.New(errors.ErrMemoryServiceError, fmt.Sprintf("memory reader search failed: %v", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.New(errors.ErrMemoryServiceError, fmt.Sprintf("memory reader returned status %d", resp.StatusCode()))
	}
	return resp.Result().(*searchResponse).Results, nil
}

// HealthCheck verifies the Memory Reader is reachable by calling its
// /health endpoint. The Generator does not call it at startup.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return errors.New(errors.ErrMemoryServiceError, fmt.Sprintf("memory reader health check failed: %v", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.New(errors.ErrMemoryServiceError, fmt.Sprintf("memory reader unhealthy: status %d", resp.StatusCode()))
	}
	return nil
}
