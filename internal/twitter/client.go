package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"macropulse/internal/logging"
)

const defaultBaseURL = "https://api.twitter.com/2"

// Limiter grants request slots before each upstream call.
type Limiter interface {
	Acquire(ctx context.Context, accountKey string) error
}

// Client wraps the upstream source API. It resolves account handles to ids
// (cached for the client's lifetime), lists recent posts excluding reposts
// and replies, and retries rate-limited calls with exponential backoff.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
	limiter     Limiter
	logger      logging.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	retry      failsafe.Executor[[]Tweet]

	mu         sync.RWMutex
	accountIDs map[string]string
}

// NewClient constructs a fetch client with sane defaults.
func NewClient(bearerToken string, limiter Limiter, logger logging.Logger, opts ...func(*Client)) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		bearerToken: bearerToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter:    limiter,
		logger:     logger,
		maxRetries: 5,
		baseDelay:  60 * time.Second,
		maxDelay:   3600 * time.Second,
		accountIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	policy := retrypolicy.NewBuilder[[]Tweet]().
		WithBackoff(c.baseDelay, c.maxDelay).
		WithMaxRetries(c.maxRetries).
		HandleIf(func(_ []Tweet, err error) bool {
			return IsRateLimit(err)
		}).
		ReturnLastFailure().
		Build()
	c.retry = failsafe.With(policy)

	return c
}

// WithBaseURL overrides the default API base URL (useful for tests).
func WithBaseURL(u string) func(*Client) {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the internal HTTP client.
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry overrides the rate-limit retry schedule.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) func(*Client) {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// ResolveAccount maps a handle to the upstream account id. The first
// successful resolution is cached; the same handle is never re-resolved.
func (c *Client) ResolveAccount(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(handle, "@")

	c.mu.RLock()
	id, ok := c.accountIDs[handle]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	if err := c.limiter.Acquire(ctx, handle); err != nil {
		return "", err
	}

	var payload struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/users/by/username/%s", c.baseURL, url.PathEscape(handle))
	if err := c.doGet(ctx, handle, endpoint, &payload); err != nil {
		return "", fmt.Errorf("resolve @%s: %w", handle, err)
	}
	if payload.Data.ID == "" {
		return "", fmt.Errorf("resolve @%s: account not found", handle)
	}

	c.mu.Lock()
	c.accountIDs[handle] = payload.Data.ID
	c.mu.Unlock()

	return payload.Data.ID, nil
}

// FetchRecent returns the account's posts newer than since, excluding reposts
// and direct replies. Rate-limit rejections are retried with exponential
// backoff up to the configured ceiling; any other upstream error fails the
// call immediately.
func (c *Client) FetchRecent(ctx context.Context, handle string, since time.Time) ([]Tweet, error) {
	handle = strings.TrimPrefix(handle, "@")
	return c.retry.WithContext(ctx).Get(func() ([]Tweet, error) {
		return c.fetchOnce(ctx, handle, since)
	})
}

func (c *Client) fetchOnce(ctx context.Context, handle string, since time.Time) ([]Tweet, error) {
	accountID, err := c.ResolveAccount(ctx, handle)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Acquire(ctx, handle); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("start_time", since.UTC().Format(time.RFC3339))
	query.Set("exclude", "retweets,replies")
	query.Set("max_results", "100")
	query.Set("tweet.fields", "created_at,public_metrics,conversation_id")
	endpoint := fmt.Sprintf("%s/users/%s/tweets?%s", c.baseURL, url.PathEscape(accountID), query.Encode())

	var payload struct {
		Data []struct {
			ID             string    `json:"id"`
			Text           string    `json:"text"`
			CreatedAt      time.Time `json:"created_at"`
			ConversationID string    `json:"conversation_id"`
			PublicMetrics  struct {
				RetweetCount int `json:"retweet_count"`
				ReplyCount   int `json:"reply_count"`
				LikeCount    int `json:"like_count"`
				QuoteCount   int `json:"quote_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := c.doGet(ctx, handle, endpoint, &payload); err != nil {
		if IsRateLimit(err) && c.logger != nil {
			c.logger.WithFields(logging.Fields{"account": handle}).Warn("rate limited by upstream, backing off")
		}
		return nil, fmt.Errorf("list posts for @%s: %w", handle, err)
	}

	tweets := make([]Tweet, 0, len(payload.Data))
	for _, raw := range payload.Data {
		tweets = append(tweets, Tweet{
			ID:             raw.ID,
			Text:           raw.Text,
			AuthorHandle:   handle,
			AuthorID:       accountID,
			ConversationID: raw.ConversationID,
			CreatedAt:      raw.CreatedAt.UTC(),
			Metrics: Metrics{
				Likes:   raw.PublicMetrics.LikeCount,
				Reposts: raw.PublicMetrics.RetweetCount,
				Replies: raw.PublicMetrics.ReplyCount,
				Quotes:  raw.PublicMetrics.QuoteCount,
			},
		})
	}

	return tweets, nil
}

func (c *Client) doGet(ctx context.Context, handle, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &RateLimitError{Handle: handle}
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
