package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DEXLENS_* environment variable overrides, and
// returns the final Config. Unrecognised TOML keys are rejected so typos do
// not silently fall back to defaults. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEXLENS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Gateway ──
	setStr(&cfg.Gateway.RestHost, "DEXLENS_GATEWAY_REST_HOST")
	setStr(&cfg.Gateway.StatsHost, "DEXLENS_GATEWAY_STATS_HOST")
	setStr(&cfg.Gateway.WsHost, "DEXLENS_GATEWAY_WS_HOST")
	setStr(&cfg.Gateway.APIKey, "DEXLENS_GATEWAY_API_KEY")
	setInt(&cfg.Gateway.MaxMarkets, "DEXLENS_GATEWAY_MAX_MARKETS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DEXLENS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEXLENS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEXLENS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEXLENS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEXLENS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEXLENS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEXLENS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEXLENS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEXLENS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEXLENS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DEXLENS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEXLENS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEXLENS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEXLENS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEXLENS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEXLENS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DEXLENS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DEXLENS_S3_REGION")
	setStr(&cfg.S3.Bucket, "DEXLENS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DEXLENS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DEXLENS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DEXLENS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DEXLENS_S3_FORCE_PATH_STYLE")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.Enabled, "DEXLENS_PIPELINE_ENABLED")
	setDuration(&cfg.Pipeline.MarketSyncInterval, "DEXLENS_PIPELINE_MARKET_SYNC_INTERVAL")
	setDuration(&cfg.Pipeline.StatsScrapeInterval, "DEXLENS_PIPELINE_STATS_SCRAPE_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "DEXLENS_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Pipeline.ArchiveCron, "DEXLENS_PIPELINE_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DEXLENS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DEXLENS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEXLENS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DEXLENS_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitRPM, "DEXLENS_SERVER_RATE_LIMIT_RPM")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEXLENS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEXLENS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEXLENS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEXLENS_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "DEXLENS_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "DEXLENS_MODE")
	setStr(&cfg.LogLevel, "DEXLENS_LOG_LEVEL")
}

// envValue returns the trimmed value of key when it is set and non-empty.
// Every typed setter below goes through it, so a variable set to whitespace
// behaves the same as an unset one.
func envValue(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := envValue(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := envValue(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	v, ok := envValue(key)
	if !ok {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func setDuration(dst *duration, key string) {
	v, ok := envValue(key)
	if !ok {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		dst.Duration = d
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := envValue(key)
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
