package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/socialkit/crosspost/internal/domain/social"
)

// DefaultVersion is the LinkedIn-Version header sent on REST calls.
const DefaultVersion = "202411"

const restliIDHeader = "x-restli-id"

// Client speaks the LinkedIn REST API (posts, comments, asset uploads).
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
}

// NewClient constructs a client against the given API base URL.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    DefaultVersion,
		httpClient: client,
	}
}

// CreatePost publishes the composed payload and returns the new post URN
// from the x-restli-id response header.
func (c *Client) CreatePost(ctx context.Context, accessToken string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal post payload: %w", err)
	}

	resp, respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/rest/posts", accessToken, body)
	if err != nil {
		return "", social.WrapShareError(social.NetworkLinkedIn, "publish post", err)
	}
	if resp.StatusCode >= 300 {
		return "", social.NewShareError(social.NetworkLinkedIn, "publish post", resp.StatusCode, string(respBody))
	}

	postURN := strings.TrimSpace(resp.Header.Get(restliIDHeader))
	if postURN == "" {
		return "", social.ErrMissingPostID
	}
	return postURN, nil
}

// CreateComment posts a comment under an existing post. Provider rejections
// come back as a ShareError carrying the HTTP status, so callers can retry
// the propagation-delay 404s specifically.
func (c *Client) CreateComment(ctx context.Context, accessToken, postURN, actorURN, text string) error {
	payload := map[string]any{
		"actor":   actorURN,
		"object":  postURN,
		"message": map[string]any{"text": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal comment payload: %w", err)
	}

	endpoint := c.baseURL + "/rest/socialActions/" + url.PathEscape(postURN) + "/comments"
	resp, respBody, err := c.do(ctx, http.MethodPost, endpoint, accessToken, body)
	if err != nil {
		return social.WrapShareError(social.NetworkLinkedIn, "post comment", err)
	}
	if resp.StatusCode >= 300 {
		return social.NewShareError(social.NetworkLinkedIn, "post comment", resp.StatusCode, string(respBody))
	}
	return nil
}

// PostURL renders the public feed URL for a post URN.
func PostURL(postURN string) string {
	return "https://www.linkedin.com/feed/update/" + postURN
}

// DownloadAsset fetches the source bytes of a media attachment.
func (c *Client) DownloadAsset(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build asset request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch asset: status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, body []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", c.version)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, respBody, nil
}
