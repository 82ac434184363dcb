package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/dexlens/dexlens/internal/blob/s3"
	"github.com/dexlens/dexlens/internal/cache/redis"
	"github.com/dexlens/dexlens/internal/config"
	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/notify"
	"github.com/dexlens/dexlens/internal/platform/dexapi"
	"github.com/dexlens/dexlens/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	StatStore   domain.StatStore
	TradeStore  domain.TradeStore

	// Caches
	PriceCache  domain.PriceCache
	BookCache   domain.OrderbookCache
	TradeCache  domain.TradeTapeCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage (nil in server mode)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Exchange API clients
	MarketAPI *dexapi.RestClient
	StatsAPI  *dexapi.RestClient

	// Operational alerting
	Notifier *notify.Notifier

	// Liveness checks for the health endpoint.
	PgPing    func(ctx context.Context) error
	RedisPing func(ctx context.Context) error
	S3Ping    func(ctx context.Context) error
}

// needsS3 returns true for modes that run the archiver.
func needsS3(cfg *config.Config) bool {
	return cfg.Pipeline.Enabled && strings.ToLower(cfg.Mode) != "server"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.StatStore = postgres.NewStatStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.PgPing = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.BookCache = redis.NewOrderbookCache(redisClient)
	deps.TradeCache = redis.NewTradeTapeCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RedisPing = redisClient.Ping

	// --- S3 blob storage (only for modes that run the archiver) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.StatStore, deps.TradeStore, slog.Default())
		deps.S3Ping = s3Client.Health
	}

	// --- Exchange API clients ---
	deps.MarketAPI = dexapi.NewRestClient(cfg.Gateway.RestHost, cfg.Gateway.APIKey)
	deps.StatsAPI = dexapi.NewRestClient(cfg.Gateway.StatsHost, cfg.Gateway.APIKey)

	// --- Alerting ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, slog.Default())

	return deps, cleanup, nil
}
