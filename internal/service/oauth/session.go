package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	oauthadapter "github.com/socialkit/crosspost/internal/adapter/oauth"
	"github.com/socialkit/crosspost/internal/config"
	"github.com/socialkit/crosspost/internal/domain/social"
	"github.com/socialkit/crosspost/internal/repository"
)

// Fallback refresh-token lifetime for providers that issue one without an
// expiry of its own.
const defaultRefreshTokenTTL = 30 * 24 * time.Hour

// Session manages the token lifecycle for one network and one pre-authorized
// account.
type Session interface {
	Network() social.Network
	// BuildLoginURL generates the authorization URL and a single-use nonce
	// persisted with a short TTL.
	BuildLoginURL(ctx context.Context) (loginURL string, nonce string, err error)
	// MatchNonce reports whether state matches a stored, unexpired nonce and
	// returns the PKCE verifier persisted beside it. The nonce is consumed.
	MatchNonce(ctx context.Context, state string) (matched bool, codeVerifier string, err error)
	// ExchangeCode trades the authorization code for tokens and persists
	// them. Callers must have matched the nonce first.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (social.Token, error)
	// EnsureValidToken returns a usable access token, refreshing at most once
	// when the stored one has expired. Terminal failure clears stored tokens.
	EnsureValidToken(ctx context.Context) (string, error)
	// ValidateIdentity verifies the token resolves to the allowed account and
	// purges stored tokens when it does not.
	ValidateIdentity(ctx context.Context, accessToken string) error
}

type session struct {
	network  social.Network
	provider config.ProviderConfig
	store    repository.TokenStore
	client   oauthadapter.ProviderClient
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewSession wires a per-network session.
func NewSession(network social.Network, provider config.ProviderConfig, store repository.TokenStore, client oauthadapter.ProviderClient, logger *zap.Logger) Session {
	if logger == nil {
		logger = zap.L()
	}
	return &session{
		network:  network,
		provider: provider,
		store:    store,
		client:   client,
		logger:   logger.With(zap.String("network", string(network))),
		now:      time.Now,
	}
}

func (s *session) Network() social.Network { return s.network }

func (s *session) BuildLoginURL(ctx context.Context) (string, string, error) {
	nonce, err := secureRandomString(32)
	if err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}

	var codeVerifier string
	authURL, err := url.Parse(s.provider.AuthURL)
	if err != nil {
		return "", "", fmt.Errorf("parse auth url: %w", err)
	}

	params := authURL.Query()
	params.Set("response_type", "code")
	params.Set("client_id", s.provider.ClientID)
	params.Set("redirect_uri", s.provider.RedirectURI)
	params.Set("state", nonce)
	params.Set("scope", strings.Join(s.provider.Scopes, " "))
	if s.provider.UsePKCE {
		codeVerifier, err = secureRandomString(64)
		if err != nil {
			return "", "", fmt.Errorf("generate pkce verifier: %w", err)
		}
		params.Set("code_challenge", pkceChallenge(codeVerifier))
		params.Set("code_challenge_method", "S256")
	}
	authURL.RawQuery = params.Encode()

	if err := s.store.SaveNonce(ctx, s.network, nonce, codeVerifier, social.NonceTTL); err != nil {
		return "", "", fmt.Errorf("persist nonce: %w", err)
	}

	// The provider rejects '+' as a space in the scope list.
	return strings.ReplaceAll(authURL.String(), "+", "%20"), nonce, nil
}

func (s *session) MatchNonce(ctx context.Context, state string) (bool, string, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return false, "", nil
	}
	codeVerifier, ok, err := s.store.ConsumeNonce(ctx, s.network, state)
	if err != nil {
		return false, "", fmt.Errorf("match nonce: %w", err)
	}
	return ok, codeVerifier, nil
}

func (s *session) ExchangeCode(ctx context.Context, code, codeVerifier string) (social.Token, error) {
	resp, err := s.client.ExchangeCode(ctx, s.provider, code, codeVerifier)
	if err != nil {
		return social.Token{}, fmt.Errorf("exchange code: %w", err)
	}

	token := s.tokenFromResponse(resp)
	if err := s.store.SaveToken(ctx, s.network, token); err != nil {
		return social.Token{}, fmt.Errorf("persist token: %w", err)
	}
	return token, nil
}

func (s *session) EnsureValidToken(ctx context.Context) (string, error) {
	result, err, _ := s.group.Do(string(s.network), func() (any, error) {
		return s.ensureValidToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// ensureValidToken attempts at most one refresh, expressed as a bounded loop
// rather than recursion so the retry ceiling is structural.
func (s *session) ensureValidToken(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		accessToken, err := s.store.GetAccessToken(ctx, s.network)
		if err != nil {
			return "", fmt.Errorf("load access token: %w", err)
		}
		if accessToken != "" {
			return accessToken, nil
		}
		if attempt > 0 {
			break
		}

		refreshToken, err := s.store.GetRefreshToken(ctx, s.network)
		if err != nil {
			return "", fmt.Errorf("load refresh token: %w", err)
		}
		if refreshToken == "" {
			break
		}
		refreshed := s.refresh(ctx, refreshToken)
		if refreshed == nil {
			break
		}
		if err := s.store.SaveToken(ctx, s.network, *refreshed); err != nil {
			return "", fmt.Errorf("persist refreshed token: %w", err)
		}
	}

	if err := s.store.DeleteTokens(ctx, s.network); err != nil {
		s.logger.Warn("failed to clear tokens", zap.Error(err))
	}
	return "", social.ErrExpiredToken
}

// refresh returns nil on any failure so the caller decides the fallback.
func (s *session) refresh(ctx context.Context, refreshToken string) *social.Token {
	resp, err := s.client.Refresh(ctx, s.provider, refreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", zap.Error(err))
		return nil
	}
	if resp == nil {
		s.logger.Info("token refresh rejected by provider")
		return nil
	}
	token := s.tokenFromResponse(resp)
	return &token
}

func (s *session) ValidateIdentity(ctx context.Context, accessToken string) error {
	identity, err := s.client.FetchIdentity(ctx, s.provider, accessToken)
	if err != nil {
		return fmt.Errorf("fetch identity: %w", err)
	}
	if identity.ID != s.provider.AllowedAccountID {
		s.logger.Warn("token resolves to unexpected account", zap.String("subject", identity.ID))
		if err := s.store.DeleteTokens(ctx, s.network); err != nil {
			s.logger.Warn("failed to purge tokens", zap.Error(err))
		}
		return social.ErrWrongToken
	}
	return nil
}

func (s *session) tokenFromResponse(resp *oauthadapter.TokenResponse) social.Token {
	now := s.now()
	token := social.Token{
		AccessToken:          resp.AccessToken,
		AccessTokenExpiresAt: now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.RefreshToken != "" {
		token.RefreshToken = resp.RefreshToken
		if resp.RefreshTokenExpiresIn > 0 {
			token.RefreshTokenExpiresAt = now.Add(time.Duration(resp.RefreshTokenExpiresIn) * time.Second)
		} else {
			token.RefreshTokenExpiresAt = now.Add(defaultRefreshTokenTTL)
		}
	}
	return token
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
