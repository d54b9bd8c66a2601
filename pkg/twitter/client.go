package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"likesync/pkg/config"
	errs "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/metrics"
	"likesync/pkg/ratelimit"
	"likesync/pkg/retry"
)

const userAgent = "likesync/1.0"

// Client is an X API v2 client authenticated with an app bearer token
type Client struct {
	httpClient  *http.Client
	mediaClient *http.Client
	baseURL     string
	bearerToken string
	pageSize    int
	limiter     ratelimit.Limiter
	retryConfig *retry.Config
	logger      logger.Logger
}

// NewClient creates a new X API client
func NewClient(bearerToken string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// Media bodies are bounded only by the caller's context.
		mediaClient: &http.Client{},
		baseURL:     DefaultBaseURL,
		bearerToken: bearerToken,
		pageSize:    DefaultPageSize,
		limiter:     ratelimit.NewPerMinute(60, 5),
		retryConfig: &retry.Config{
			MaxAttempts: 4,
			Backoff:     retry.Exponential(time.Second, 30*time.Second),
			RetryIf:     retry.DefaultRetryIf,
			Logger:      log,
		},
		logger: log,
	}
}

// NewClientFromConfig creates a client using the twitter and rate_limit sections
func NewClientFromConfig(cfg *config.Config, log logger.Logger) *Client {
	c := NewClient(cfg.Twitter.BearerToken, cfg.Twitter.RequestTimeout, log)
	c.SetBaseURL(cfg.Twitter.APIBaseURL)
	c.SetPageSize(cfg.Twitter.PageSize)
	c.SetLimiter(ratelimit.NewPerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize))
	c.retryConfig.MaxAttempts = cfg.RateLimit.MaxRetries + 1
	if cfg.RateLimit.RetryDelay > 0 {
		c.retryConfig.Backoff = retry.Exponential(cfg.RateLimit.RetryDelay, 30*cfg.RateLimit.RetryDelay)
	}
	return c
}

// SetBaseURL overrides the API root (used by tests and proxies)
func (c *Client) SetBaseURL(baseURL string) {
	if baseURL != "" {
		c.baseURL = baseURL
	}
}

// SetPageSize sets max_results for liked_tweets; it is clamped to the API range
func (c *Client) SetPageSize(n int) {
	c.pageSize = ClampPageSize(n)
}

// SetLimiter replaces the request limiter
func (c *Client) SetLimiter(l ratelimit.Limiter) {
	if l == nil {
		l = ratelimit.Unlimited{}
	}
	c.limiter = l
}

// SetRetryConfig replaces the retry policy for API calls
func (c *Client) SetRetryConfig(cfg *retry.Config) {
	c.retryConfig = cfg
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// doRequest performs a GET; authenticated requests carry the bearer token
func (c *Client) doRequest(ctx context.Context, rawURL string, authenticated bool) (*http.Response, error) {
	hc := c.httpClient
	if !authenticated {
		hc = c.mediaClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// getJSON performs a rate limited, retried API GET and decodes the body
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, target interface{}) error {
	cfg := retry.Config{MaxAttempts: 1}
	if c.retryConfig != nil {
		cfg = *c.retryConfig
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.IncAPIRetry(endpoint)
	}

	return retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.doRequest(ctx, rawURL, true)
		if err != nil {
			metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
			return err
		}
		defer resp.Body.Close()
		metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
		}

		if err := json.Unmarshal(body, target); err != nil {
			bodyPreview := string(body)
			if len(bodyPreview) > 200 {
				bodyPreview = bodyPreview[:200] + "..."
			}

			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"endpoint":     endpoint,
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": bodyPreview,
			})
			return errs.New(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON: %v", err)
		}
		return nil
	}, &cfg)
}

// checkResponseStatus maps an API status code to a typed error
func (c *Client) checkResponseStatus(resp *http.Response) error {
	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.String(),
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.WarnWithFields("authentication error", fields)
		return errs.New(errs.ErrorTypeAuth, resp.StatusCode, "bearer token rejected")
	case resp.StatusCode == http.StatusForbidden:
		c.logger.WarnWithFields("authorization error", fields)
		return errs.New(errs.ErrorTypeAuth, resp.StatusCode, "bearer token lacks access to this endpoint")
	case resp.StatusCode == http.StatusNotFound:
		c.logger.WarnWithFields("resource not found", fields)
		return errs.New(errs.ErrorTypeNotFound, resp.StatusCode, "resource not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		fields["reset"] = resp.Header.Get("x-rate-limit-reset")
		c.logger.WarnWithFields("rate limit exceeded", fields)
		return errs.New(errs.ErrorTypeRateLimit, resp.StatusCode, "rate limit exceeded")
	case resp.StatusCode >= 500:
		c.logger.ErrorWithFields("server error", fields)
		return errs.New(errs.ErrorTypeServerError, resp.StatusCode, "server error")
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
		return errs.New(errs.ErrorTypeUnknown, resp.StatusCode, "unexpected status code: %d", resp.StatusCode)
	}
}

// FetchLikedPosts fetches the most recent page of posts liked by userID
func (c *Client) FetchLikedPosts(ctx context.Context, userID string) (*LikedPage, error) {
	url := LikedTweetsURL(c.baseURL, userID, c.pageSize)

	c.logger.DebugWithFields("fetching liked posts", map[string]interface{}{
		"user_id": userID,
		"url":     url,
	})

	var response LikedTweetsResponse
	if err := c.getJSON(ctx, "liked_tweets", url, &response); err != nil {
		return nil, fmt.Errorf("failed to fetch liked posts for %s: %w", userID, err)
	}

	if len(response.Data) == 0 && len(response.Errors) > 0 {
		first := response.Errors[0]
		return nil, errs.New(errs.ErrorTypeNotFound, http.StatusOK, "%s: %s", first.Title, first.Detail)
	}

	page := NewLikedPage(&response)
	c.logger.DebugWithFields("successfully fetched liked posts", map[string]interface{}{
		"user_id": userID,
		"posts":   len(page.Tweets),
		"media":   len(page.Media),
	})

	return page, nil
}

// FetchUsersByIDs resolves ids to users. Ids the API cannot resolve are
// absent from the result; that is not an error.
func (c *Client) FetchUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	var users []User
	for _, batch := range chunk(ids, MaxUsersPerLookup) {
		var response UsersResponse
		if err := c.getJSON(ctx, "users", UsersByIDsURL(c.baseURL, batch), &response); err != nil {
			return users, fmt.Errorf("failed to look up users: %w", err)
		}
		c.logPartialErrors("users", response.Errors)
		users = append(users, response.Data...)
	}
	return users, nil
}

// FetchUsersByUsernames resolves handles (without @) to users
func (c *Client) FetchUsersByUsernames(ctx context.Context, usernames []string) ([]User, error) {
	var users []User
	for _, batch := range chunk(usernames, MaxUsersPerLookup) {
		var response UsersResponse
		if err := c.getJSON(ctx, "users_by", UsersByUsernamesURL(c.baseURL, batch), &response); err != nil {
			return users, fmt.Errorf("failed to look up usernames: %w", err)
		}
		c.logPartialErrors("users_by", response.Errors)
		users = append(users, response.Data...)
	}
	return users, nil
}

func (c *Client) logPartialErrors(endpoint string, apiErrors []APIError) {
	for _, e := range apiErrors {
		c.logger.DebugWithFields("partial lookup error", map[string]interface{}{
			"endpoint": endpoint,
			"value":    e.Value,
			"title":    e.Title,
			"detail":   e.Detail,
		})
	}
}

// DownloadMedia downloads a media asset. The request is unauthenticated and
// bypasses the API limiter; any non-2xx status is a non-fatal error. The
// request timeout does not apply, so ctx must carry the item deadline.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error) {
	c.logger.DebugWithFields("downloading media", map[string]interface{}{
		"url": mediaURL,
	})

	resp, err := c.doRequest(ctx, mediaURL, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errType := errs.ErrorTypeUnknown
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			errType = errs.ErrorTypeNotFound
		case resp.StatusCode >= 500:
			errType = errs.ErrorTypeServerError
		}
		return nil, errs.New(errType, resp.StatusCode, "media download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read media body: %v", err)
	}

	c.logger.DebugWithFields("successfully downloaded media", map[string]interface{}{
		"url":  mediaURL,
		"size": len(data),
	})

	return data, nil
}
