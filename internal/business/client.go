package business

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/pkg/cache"
	"github.com/profile-agent/pkg/logger"
	"github.com/profile-agent/pkg/ratelimit"
)

// Reviews and local posts still live on the v4 surface; the newer
// per-resource APIs do not cover them.
const baseURL = "https://mybusiness.googleapis.com/v4"

// Client handles Business Profile API requests for reviews, replies and
// local posts. Read results go through the shared TTL cache.
type Client struct {
	httpClient   *http.Client
	oauthManager *OAuthManager
	rateLimiter  *ratelimit.MultiLimiter
	cache        *cache.Cache
	accountID    string // accounts/{id}
	log          *logger.Logger
}

// NewClient creates a new Business Profile API client
func NewClient(oauth *OAuthManager, limiter *ratelimit.MultiLimiter, c *cache.Cache, accountID string, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		oauthManager: oauth,
		rateLimiter:  limiter,
		cache:        c,
		accountID:    accountID,
		log:          log.WithComponent("business"),
	}
}

// do performs an HTTP request with authentication and rate limiting.
// Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterBusiness); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	token, err := c.oauthManager.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("authentication error: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Business Profile API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Path: path, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) locationPath(locationID string) string {
	return fmt.Sprintf("/%s/locations/%s", c.accountID, locationID)
}

// InvalidateLocation drops every cached read for a location. Location
// keys end in ":{locationID}".
func (c *Client) InvalidateLocation(locationID string) {
	pattern := ":" + regexp.QuoteMeta(locationID) + "$"
	removed, err := c.cache.InvalidateByPattern(pattern)
	if err != nil {
		c.log.Error().Err(err).Str("location_id", locationID).Msg("Cache sweep failed")
		return
	}
	if removed > 0 {
		c.log.Debug().
			Str("location_id", locationID).
			Int("removed", removed).
			Msg("Location cache swept")
	}
}

// sweepIfGone clears a location's cache when the upstream no longer
// knows it; stale reads for a deleted location must not outlive the 404.
func (c *Client) sweepIfGone(locationID string, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		c.InvalidateLocation(locationID)
	}
}

// ListReviews returns the current review set for a location, newest
// first, paging through the API. Results are cached in the short tier.
func (c *Client) ListReviews(ctx context.Context, locationID string) ([]Review, error) {
	key := cache.Key("reviews", locationID)
	if data, ok := c.cache.Get(key); ok {
		var reviews []Review
		if err := json.Unmarshal(data, &reviews); err == nil {
			return reviews, nil
		}
		c.cache.Invalidate(key)
	}

	var reviews []Review
	pageToken := ""
	for {
		path := c.locationPath(locationID) + "/reviews?pageSize=50"
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page struct {
			Reviews       []Review `json:"reviews"`
			NextPageToken string   `json:"nextPageToken"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			c.sweepIfGone(locationID, err)
			return nil, fmt.Errorf("list reviews: %w", err)
		}

		reviews = append(reviews, page.Reviews...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if data, err := json.Marshal(reviews); err == nil {
		c.cache.Set(key, data, cache.TTLShort)
	}

	c.log.Debug().
		Str("location_id", locationID).
		Int("count", len(reviews)).
		Msg("Fetched reviews")
	return reviews, nil
}

// CachedReviews returns the last cached review set without touching the
// upstream, for fail-fast paths during a suspension.
func (c *Client) CachedReviews(locationID string) ([]Review, bool) {
	data, ok := c.cache.Get(cache.Key("reviews", locationID))
	if !ok {
		return nil, false
	}
	var reviews []Review
	if err := json.Unmarshal(data, &reviews); err != nil {
		return nil, false
	}
	return reviews, true
}

// PostReply puts the owner reply on a review. The reviews cache for the
// location is invalidated so the reply shows up on the next fetch.
func (c *Client) PostReply(ctx context.Context, locationID, reviewID, comment string) error {
	path := c.locationPath(locationID) + "/reviews/" + reviewID + "/reply"
	body := map[string]string{"comment": comment}
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}

	c.cache.Invalidate(cache.Key("reviews", locationID))

	c.log.Info().
		Str("location_id", locationID).
		Str("review_id", reviewID).
		Msg("Review reply posted")
	return nil
}

// CreateLocalPost publishes a post on a location and returns its
// upstream name.
func (c *Client) CreateLocalPost(ctx context.Context, locationID string, post LocalPost) (*PublishedPost, error) {
	if post.LanguageCode == "" {
		post.LanguageCode = "en"
	}
	if post.TopicType == "" {
		post.TopicType = "STANDARD"
	}

	var published PublishedPost
	path := c.locationPath(locationID) + "/localPosts"
	if err := c.do(ctx, http.MethodPost, path, post, &published); err != nil {
		c.sweepIfGone(locationID, err)
		return nil, fmt.Errorf("create local post: %w", err)
	}

	c.cache.Invalidate(cache.Key("posts", locationID))

	c.log.Info().
		Str("location_id", locationID).
		Str("post_name", published.Name).
		Msg("Local post published")
	return &published, nil
}

// CallToActionFor maps a config button to the API's call-to-action,
// or nil when the button is disabled or set to none. Auto picks a
// sensible default from the available URL.
func CallToActionFor(cfg *models.AutomationConfig) *CallToAction {
	if !cfg.ButtonEnabled || cfg.ButtonType == models.ButtonNone {
		return nil
	}

	buttonURL := cfg.ButtonURL
	if buttonURL == "" {
		buttonURL = cfg.WebsiteURL
	}

	switch cfg.ButtonType {
	case models.ButtonBook:
		return &CallToAction{ActionType: "BOOK", URL: buttonURL}
	case models.ButtonOrder:
		return &CallToAction{ActionType: "ORDER", URL: buttonURL}
	case models.ButtonBuy:
		return &CallToAction{ActionType: "SHOP", URL: buttonURL}
	case models.ButtonLearnMore:
		return &CallToAction{ActionType: "LEARN_MORE", URL: buttonURL}
	case models.ButtonSignUp:
		return &CallToAction{ActionType: "SIGN_UP", URL: buttonURL}
	case models.ButtonCallNow:
		return &CallToAction{ActionType: "CALL"}
	case models.ButtonAuto:
		if buttonURL == "" {
			return nil
		}
		return &CallToAction{ActionType: "LEARN_MORE", URL: buttonURL}
	default:
		return nil
	}
}
