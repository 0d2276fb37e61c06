package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/socialkit/crosspost/internal/adapter/cache"
	"github.com/socialkit/crosspost/internal/adapter/linkedin"
	oauthadapter "github.com/socialkit/crosspost/internal/adapter/oauth"
	"github.com/socialkit/crosspost/internal/adapter/scraper"
	"github.com/socialkit/crosspost/internal/adapter/twitter"
	"github.com/socialkit/crosspost/internal/config"
	"github.com/socialkit/crosspost/internal/domain/social"
	httptransport "github.com/socialkit/crosspost/internal/http"
	"github.com/socialkit/crosspost/internal/http/handler"
	httpmiddleware "github.com/socialkit/crosspost/internal/http/middleware"
	"github.com/socialkit/crosspost/internal/repository"
	"github.com/socialkit/crosspost/internal/repository/postgres"
	"github.com/socialkit/crosspost/internal/server"
	oauthsvc "github.com/socialkit/crosspost/internal/service/oauth"
	"github.com/socialkit/crosspost/internal/service/publish"
	"github.com/socialkit/crosspost/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newShareRepo,
			newRedisClient,
			newTokenStore,
			newProviderClient,
			newLinkedInClient,
			newTwitterClient,
			newScraper,
			newSessions,
			newAssetUploader,
			newArticleEnricher,
			newOrchestrator,
			newTweetPublisher,
			newRateLimiter,
			newSocialHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, ensureSchema, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newShareRepo(pool *pgxpool.Pool, node *snowflake.Node) *postgres.ShareRepo {
	return postgres.NewShareRepo(pool, node)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTokenStore(client redis.UniversalClient) repository.TokenStore {
	return cacheadapter.NewRedisTokenStore(client)
}

func newProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newLinkedInClient(cfg config.Config) *linkedin.Client {
	return linkedin.NewClient(cfg.LinkedIn.APIBaseURL, nil)
}

func newTwitterClient(cfg config.Config) *twitter.Client {
	return twitter.NewClient(cfg.Twitter.APIBaseURL, nil)
}

func newScraper(cfg config.Config) *scraper.Scraper {
	return scraper.New(nil, cfg.EnrichTimeout)
}

func newSessions(cfg config.Config, store repository.TokenStore, client oauthadapter.ProviderClient, logger *zap.Logger) map[social.Network]oauthsvc.Session {
	sessions := map[social.Network]oauthsvc.Session{
		social.NetworkLinkedIn: oauthsvc.NewSession(social.NetworkLinkedIn, cfg.LinkedIn, store, client, logger),
	}
	if cfg.Twitter.Enabled() {
		sessions[social.NetworkTwitter] = oauthsvc.NewSession(social.NetworkTwitter, cfg.Twitter, store, client, logger)
	}
	return sessions
}

func newAssetUploader(cfg config.Config, client *linkedin.Client, logger *zap.Logger) *publish.AssetUploader {
	return publish.NewAssetUploader(client, cfg.LinkedIn.AuthorURN, cfg.UploadGracePeriod, logger)
}

func newArticleEnricher(s *scraper.Scraper, uploader *publish.AssetUploader, logger *zap.Logger) *publish.ArticleEnricher {
	return publish.NewArticleEnricher(s, uploader, logger)
}

func newOrchestrator(
	cfg config.Config,
	sessions map[social.Network]oauthsvc.Session,
	client *linkedin.Client,
	uploader *publish.AssetUploader,
	enricher *publish.ArticleEnricher,
	shares *postgres.ShareRepo,
	logger *zap.Logger,
) *publish.Orchestrator {
	return publish.NewOrchestrator(
		sessions[social.NetworkLinkedIn],
		client,
		uploader,
		enricher,
		shares,
		cfg.LinkedIn.AuthorURN,
		logger,
	)
}

func newTweetPublisher(
	sessions map[social.Network]oauthsvc.Session,
	client *twitter.Client,
	shares *postgres.ShareRepo,
	logger *zap.Logger,
) *publish.TweetPublisher {
	session, ok := sessions[social.NetworkTwitter]
	if !ok {
		return nil
	}
	return publish.NewTweetPublisher(session, client, shares, logger)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newSocialHandler(
	sessions map[social.Network]oauthsvc.Session,
	orchestrator *publish.Orchestrator,
	tweets *publish.TweetPublisher,
	shares *postgres.ShareRepo,
	logger *zap.Logger,
) *handler.SocialHandler {
	return handler.NewSocialHandler(sessions, orchestrator, tweets, shares, logger)
}

func ensureSchema(shares *postgres.ShareRepo) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return shares.EnsureSchema(ctx)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
