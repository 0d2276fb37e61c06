package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/socialkit/crosspost/internal/config"
)

// TokenResponse models the provider token endpoint payload.
type TokenResponse struct {
	AccessToken           string
	RefreshToken          string
	ExpiresIn             int64
	RefreshTokenExpiresIn int64
	Scope                 string
	TokenType             string
}

// Identity is the normalized authenticated profile returned by providers.
type Identity struct {
	ID   string
	Name string
}

// ProviderClient encapsulates outbound HTTP calls to the providers' OAuth
// endpoints.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, provider config.ProviderConfig, code, codeVerifier string) (*TokenResponse, error)
	// Refresh returns (nil, nil) when the provider rejects the grant so the
	// caller decides the fallback policy.
	Refresh(ctx context.Context, provider config.ProviderConfig, refreshToken string) (*TokenResponse, error)
	FetchIdentity(ctx context.Context, provider config.ProviderConfig, accessToken string) (*Identity, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode performs the authorization-code grant.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, provider config.ProviderConfig, code, codeVerifier string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", provider.RedirectURI)
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}

	token, status, err := c.postTokenForm(ctx, provider.TokenURL, data)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("code exchange failed: status=%d", status)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("code exchange returned no access token")
	}
	return token, nil
}

// Refresh performs the refresh-token grant. Provider rejections (non-2xx or
// an empty access token) yield (nil, nil); only transport failures error.
func (c *HTTPProviderClient) Refresh(ctx context.Context, provider config.ProviderConfig, refreshToken string) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}

	token, status, err := c.postTokenForm(ctx, provider.TokenURL, data)
	if err != nil {
		return nil, err
	}
	if status >= 300 || strings.TrimSpace(token.AccessToken) == "" {
		return nil, nil
	}
	return token, nil
}

// FetchIdentity loads the authenticated profile from the userinfo endpoint.
func (c *HTTPProviderClient) FetchIdentity(ctx context.Context, provider config.ProviderConfig, accessToken string) (*Identity, error) {
	if strings.TrimSpace(provider.UserInfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	// Twitter wraps the profile in a data envelope.
	if data, ok := raw["data"].(map[string]any); ok {
		raw = data
	}

	identity := &Identity{
		ID:   stringValue(coalesce(raw["sub"], raw["id"])),
		Name: stringValue(coalesce(raw["name"], raw["localizedFirstName"], raw["username"])),
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("userinfo returned no subject")
	}
	return identity, nil
}

func (c *HTTPProviderClient) postTokenForm(ctx context.Context, tokenURL string, data url.Values) (*TokenResponse, int, error) {
	if strings.TrimSpace(tokenURL) == "" {
		return nil, 0, fmt.Errorf("token url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("read token response: %w", err)
	}

	var raw map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil && resp.StatusCode < 300 {
			return nil, 0, fmt.Errorf("decode token response: %w", err)
		}
	}

	token := &TokenResponse{
		AccessToken:           stringValue(raw["access_token"]),
		RefreshToken:          stringValue(raw["refresh_token"]),
		ExpiresIn:             int64Value(raw["expires_in"]),
		RefreshTokenExpiresIn: int64Value(raw["refresh_token_expires_in"]),
		Scope:                 stringValue(raw["scope"]),
		TokenType:             stringValue(raw["token_type"]),
	}
	return token, resp.StatusCode, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
