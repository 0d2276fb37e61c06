package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/socialkit/crosspost/internal/domain/social"
)

// Client speaks the Twitter v2 API for tweet creation.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client against the given API base URL.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

// CreateTweet publishes a text tweet and returns its id.
func (c *Client) CreateTweet(ctx context.Context, accessToken, text string) (string, error) {
	payload, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal tweet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build tweet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", social.WrapShareError(social.NetworkTwitter, "publish tweet", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", social.WrapShareError(social.NetworkTwitter, "publish tweet", err)
	}
	if resp.StatusCode >= 300 {
		return "", social.NewShareError(social.NetworkTwitter, "publish tweet", resp.StatusCode, string(body))
	}

	var decoded struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Data.ID == "" {
		return "", social.ErrMissingPostID
	}
	return decoded.Data.ID, nil
}

// TweetURL renders the public URL for a tweet id.
func TweetURL(id string) string {
	return "https://twitter.com/i/web/status/" + id
}
