package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"herald/internal/config"
	"herald/internal/types"
)

const (
	lookupUserAgent = "v2UserLookupJS"
	tweetsUserAgent = "v2UserTweetsJS"
)

type Tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type twitterUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type userLookupResponse struct {
	Data []twitterUser `json:"data"`
}

type userTweetsResponse struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// TwitterClient talks to the v2 timeline API with an app bearer token.
type TwitterClient struct {
	baseURL     string
	bearerToken string
	maxResults  int
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewTwitterClient returns nil when no bearer token is configured; callers
// treat a nil client as the timeline variant being disabled.
func NewTwitterClient(cfg config.TimelineConfig, logger *slog.Logger) *TwitterClient {
	if !cfg.HasCredential() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	return &TwitterClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken: strings.TrimSpace(cfg.BearerToken),
		maxResults:  maxResults,
		httpClient: &http.Client{
			Timeout: cfg.TimeoutDuration(),
		},
		logger: logger,
	}
}

func (c *TwitterClient) Validate() error {
	if c.baseURL == "" {
		return fmt.Errorf("twitter client: base_url is required")
	}
	return nil
}

func (c *TwitterClient) Initialize(ctx context.Context) error {
	return nil
}

func (c *TwitterClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *TwitterClient) newRequest(ctx context.Context, endpoint string, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	return req, nil
}

// LookupUserID resolves a handle to the account's opaque ID.
func (c *TwitterClient) LookupUserID(ctx context.Context, handle string) (string, error) {
	params := url.Values{}
	params.Set("usernames", handle)
	params.Set("user.fields", "created_at,description")
	params.Set("expansions", "pinned_tweet_id")

	req, err := c.newRequest(ctx, c.baseURL+"/2/users/by?"+params.Encode(), lookupUserAgent)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", handle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s returned status %d: %s", types.ErrLookupFailed, handle, resp.StatusCode, string(body))
	}

	var lookup userLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return "", fmt.Errorf("failed to decode lookup response: %w", err)
	}

	if len(lookup.Data) == 0 || lookup.Data[0].ID == "" {
		return "", fmt.Errorf("%w: no account for %s", types.ErrLookupFailed, handle)
	}

	return lookup.Data[0].ID, nil
}

// RecentTweets returns the latest posts of userID ordered oldest first. A
// non-200 response is reported as types.ErrTimelineRejected so the caller
// keeps what it already knows about the source.
func (c *TwitterClient) RecentTweets(ctx context.Context, userID string) ([]Tweet, error) {
	params := url.Values{}
	params.Set("max_results", strconv.Itoa(c.maxResults))
	params.Set("tweet.fields", "created_at")
	params.Set("expansions", "author_id")

	endpoint := fmt.Sprintf("%s/2/users/%s/tweets?%s", c.baseURL, url.PathEscape(userID), params.Encode())
	req, err := c.newRequest(ctx, endpoint, tweetsUserAgent)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: user %s returned status %d: %s", types.ErrTimelineRejected, userID, resp.StatusCode, string(body))
	}

	var page userTweetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode timeline response: %w", err)
	}

	if page.Meta.ResultCount == 0 || len(page.Data) == 0 {
		return []Tweet{}, nil
	}

	tweets := page.Data
	sort.SliceStable(tweets, func(i, j int) bool {
		return tweets[i].CreatedAt.Before(tweets[j].CreatedAt)
	})

	return tweets, nil
}
