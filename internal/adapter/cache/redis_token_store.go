package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/socialkit/crosspost/internal/domain/social"
	"github.com/socialkit/crosspost/internal/repository"
)

const keyPrefix = "crosspost:"

// RedisTokenStore implements TokenStore backed by Redis. Expiry is delegated
// to Redis TTLs so an expired token simply reads as absent.
type RedisTokenStore struct {
	client redis.UniversalClient
}

var _ repository.TokenStore = (*RedisTokenStore)(nil)

// NewRedisTokenStore constructs a Redis-backed token store.
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// GetAccessToken loads the access token for the network.
func (s *RedisTokenStore) GetAccessToken(ctx context.Context, network social.Network) (string, error) {
	return s.get(ctx, accessTokenKey(network))
}

// GetRefreshToken loads the refresh token for the network.
func (s *RedisTokenStore) GetRefreshToken(ctx context.Context, network social.Network) (string, error) {
	return s.get(ctx, refreshTokenKey(network))
}

// SaveToken writes both tokens with TTLs equal to their remaining lifetimes.
// Tokens already past expiry are not written at all.
func (s *RedisTokenStore) SaveToken(ctx context.Context, network social.Network, token social.Token) error {
	now := time.Now()
	if ttl := token.AccessTokenExpiresAt.Sub(now); token.AccessToken != "" && ttl > 0 {
		if err := s.client.Set(ctx, accessTokenKey(network), token.AccessToken, ttl).Err(); err != nil {
			return fmt.Errorf("persist access token: %w", err)
		}
	}
	if ttl := token.RefreshTokenExpiresAt.Sub(now); token.RefreshToken != "" && ttl > 0 {
		if err := s.client.Set(ctx, refreshTokenKey(network), token.RefreshToken, ttl).Err(); err != nil {
			return fmt.Errorf("persist refresh token: %w", err)
		}
	}
	return nil
}

// DeleteTokens removes both token keys.
func (s *RedisTokenStore) DeleteTokens(ctx context.Context, network social.Network) error {
	if err := s.client.Del(ctx, accessTokenKey(network), refreshTokenKey(network)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

// SaveNonce stores a login nonce with TTL. The stored value is the PKCE code
// verifier, or a marker when the network does not use one.
func (s *RedisTokenStore) SaveNonce(ctx context.Context, network social.Network, nonce, codeVerifier string, ttl time.Duration) error {
	value := codeVerifier
	if value == "" {
		value = "1"
	}
	if err := s.client.Set(ctx, nonceKey(network, nonce), value, ttl).Err(); err != nil {
		return fmt.Errorf("persist nonce: %w", err)
	}
	return nil
}

// ConsumeNonce atomically reads and deletes the nonce key.
func (s *RedisTokenStore) ConsumeNonce(ctx context.Context, network social.Network, nonce string) (string, bool, error) {
	value, err := s.client.GetDel(ctx, nonceKey(network, nonce)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("consume nonce: %w", err)
	}
	if value == "1" {
		value = ""
	}
	return value, true, nil
}

func (s *RedisTokenStore) get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return value, nil
}

func accessTokenKey(network social.Network) string {
	return keyPrefix + string(network) + ":accessToken"
}

func refreshTokenKey(network social.Network) string {
	return keyPrefix + string(network) + ":refreshToken"
}

func nonceKey(network social.Network, nonce string) string {
	return keyPrefix + string(network) + ":nonces:" + nonce
}
