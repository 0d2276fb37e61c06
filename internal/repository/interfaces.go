package repository

import (
	"context"
	"time"

	"github.com/socialkit/crosspost/internal/domain/social"
)

// TokenStore persists per-network credentials and login nonces with expiry.
// The OAuth session is the single writer for a given network.
type TokenStore interface {
	// GetAccessToken returns the stored access token, or "" once its TTL lapsed.
	GetAccessToken(ctx context.Context, network social.Network) (string, error)
	// GetRefreshToken returns the stored refresh token, or "" once its TTL lapsed.
	GetRefreshToken(ctx context.Context, network social.Network) (string, error)
	// SaveToken writes both tokens, each with TTL equal to its remaining lifetime.
	SaveToken(ctx context.Context, network social.Network, token social.Token) error
	// DeleteTokens removes access and refresh tokens for the network.
	DeleteTokens(ctx context.Context, network social.Network) error
	// SaveNonce stores a login nonce under its own key. The value holds the
	// PKCE code verifier for networks that use one, "" otherwise.
	SaveNonce(ctx context.Context, network social.Network, nonce, codeVerifier string, ttl time.Duration) error
	// ConsumeNonce reports whether the nonce is stored and unexpired, returns
	// the stored code verifier, and discards the nonce so it cannot be
	// replayed.
	ConsumeNonce(ctx context.Context, network social.Network, nonce string) (codeVerifier string, ok bool, err error)
}

// ShareRecordRepo is the append-style audit log of publish attempts.
type ShareRecordRepo interface {
	Create(ctx context.Context, record social.ShareRecord) (social.ShareRecord, error)
	SetStatus(ctx context.Context, id int64, status social.ShareStatus, externalRef, errorMessage string) error
	ListRecent(ctx context.Context, network social.Network, limit int) ([]social.ShareRecord, error)
}
