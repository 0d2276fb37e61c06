package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig holds the per-network OAuth application settings.
type ProviderConfig struct {
	ClientID         string
	ClientSecret     string
	AuthURL          string
	TokenURL         string
	UserInfoURL      string
	APIBaseURL       string
	RedirectURI      string
	Scopes           []string
	AllowedAccountID string
	AuthorURN        string
	UsePKCE          bool
}

// Enabled reports whether the provider has credentials configured.
func (p ProviderConfig) Enabled() bool {
	return strings.TrimSpace(p.ClientID) != ""
}

// Config contains runtime configuration values.
type Config struct {
	Environment       string
	HTTPPort          string
	ServiceName       string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	LinkedIn          ProviderConfig
	Twitter           ProviderConfig
	EnrichTimeout     time.Duration
	UploadGracePeriod time.Duration
	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:   getEnv("APP_ENV", "development"),
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		ServiceName:   getEnv("SERVICE_NAME", "crosspost"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		LinkedIn: ProviderConfig{
			ClientID:         strings.TrimSpace(os.Getenv("LINKEDIN_CLIENT_ID")),
			ClientSecret:     os.Getenv("LINKEDIN_CLIENT_SECRET"),
			AuthURL:          getEnv("LINKEDIN_AUTH_URL", "https://www.linkedin.com/oauth/v2/authorization"),
			TokenURL:         getEnv("LINKEDIN_TOKEN_URL", "https://www.linkedin.com/oauth/v2/accessToken"),
			UserInfoURL:      getEnv("LINKEDIN_USERINFO_URL", "https://api.linkedin.com/v2/userinfo"),
			APIBaseURL:       getEnv("LINKEDIN_API_BASE_URL", "https://api.linkedin.com"),
			RedirectURI:      strings.TrimSpace(os.Getenv("LINKEDIN_REDIRECT_URI")),
			Scopes:           getList("LINKEDIN_SCOPES", []string{"openid", "profile", "w_member_social"}),
			AllowedAccountID: strings.TrimSpace(os.Getenv("LINKEDIN_ALLOWED_ACCOUNT_ID")),
			AuthorURN:        strings.TrimSpace(os.Getenv("LINKEDIN_AUTHOR_URN")),
		},
		Twitter: ProviderConfig{
			ClientID:         strings.TrimSpace(os.Getenv("TWITTER_CLIENT_ID")),
			ClientSecret:     os.Getenv("TWITTER_CLIENT_SECRET"),
			AuthURL:          getEnv("TWITTER_AUTH_URL", "https://twitter.com/i/oauth2/authorize"),
			TokenURL:         getEnv("TWITTER_TOKEN_URL", "https://api.twitter.com/2/oauth2/token"),
			UserInfoURL:      getEnv("TWITTER_USERINFO_URL", "https://api.twitter.com/2/users/me"),
			APIBaseURL:       getEnv("TWITTER_API_BASE_URL", "https://api.twitter.com"),
			RedirectURI:      strings.TrimSpace(os.Getenv("TWITTER_REDIRECT_URI")),
			Scopes:           getList("TWITTER_SCOPES", []string{"tweet.read", "tweet.write", "users.read", "offline.access"}),
			AllowedAccountID: strings.TrimSpace(os.Getenv("TWITTER_ALLOWED_ACCOUNT_ID")),
			UsePKCE:          true,
		},
		EnrichTimeout:     getDuration("ENRICH_TIMEOUT", 3*time.Second),
		UploadGracePeriod: getDuration("UPLOAD_GRACE_PERIOD", 500*time.Millisecond),
		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.LinkedIn.Enabled() {
		return Config{}, fmt.Errorf("LINKEDIN_CLIENT_ID is required")
	}
	if cfg.LinkedIn.RedirectURI == "" {
		return Config{}, fmt.Errorf("LINKEDIN_REDIRECT_URI is required")
	}
	if cfg.LinkedIn.AllowedAccountID == "" {
		return Config{}, fmt.Errorf("LINKEDIN_ALLOWED_ACCOUNT_ID is required")
	}
	if cfg.LinkedIn.AuthorURN == "" {
		cfg.LinkedIn.AuthorURN = "urn:li:person:" + cfg.LinkedIn.AllowedAccountID
	}
	if cfg.Twitter.Enabled() && cfg.Twitter.RedirectURI == "" {
		return Config{}, fmt.Errorf("TWITTER_REDIRECT_URI is required when TWITTER_CLIENT_ID is set")
	}

	return cfg, nil
}

// Provider returns the config block for the named network.
func (c Config) Provider(network string) (ProviderConfig, bool) {
	switch strings.ToLower(network) {
	case "linkedin":
		return c.LinkedIn, c.LinkedIn.Enabled()
	case "twitter":
		return c.Twitter, c.Twitter.Enabled()
	}
	return ProviderConfig{}, false
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
