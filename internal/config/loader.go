package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DUALHEDGE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DUALHEDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "DUALHEDGE_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.APIKey, "DUALHEDGE_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "DUALHEDGE_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "DUALHEDGE_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "DUALHEDGE_EXCHANGE_SECRET_PASSWORD")
	setBool(&cfg.Exchange.Mock, "DUALHEDGE_EXCHANGE_MOCK")
	setInt(&cfg.Exchange.RateLimitPerMinute, "DUALHEDGE_EXCHANGE_RATE_LIMIT_PER_MINUTE")

	// ── Selection ──
	setStringSlice(&cfg.Selection.Assets, "DUALHEDGE_SELECTION_ASSETS")
	setStr(&cfg.Selection.StableCoin, "DUALHEDGE_SELECTION_STABLE_COIN")
	setFloat64(&cfg.Selection.ShortTermBoundaryHours, "DUALHEDGE_SELECTION_SHORT_TERM_BOUNDARY_HOURS")
	setFloat64(&cfg.Selection.AbsRatioThreshold, "DUALHEDGE_SELECTION_ABS_RATIO_THRESHOLD")
	setFloat64(&cfg.Selection.PressureStepPercent, "DUALHEDGE_SELECTION_PRESSURE_STEP_PERCENT")
	setInt(&cfg.Selection.MaxTotalPositions, "DUALHEDGE_SELECTION_MAX_TOTAL_POSITIONS")
	setInt(&cfg.Selection.MaxPositionsPerPair, "DUALHEDGE_SELECTION_MAX_POSITIONS_PER_PAIR")
	setInt(&cfg.Selection.MaxShortTermPerPair, "DUALHEDGE_SELECTION_MAX_SHORT_TERM_PER_PAIR")
	setStringSlice(&cfg.Selection.VolatilityDates, "DUALHEDGE_SELECTION_VOLATILITY_DATES")

	// ── Hedge ──
	setDuration(&cfg.Hedge.ConfirmationWindow, "DUALHEDGE_HEDGE_CONFIRMATION_WINDOW")
	setDuration(&cfg.Hedge.Cooldown, "DUALHEDGE_HEDGE_COOLDOWN")
	setFloat64(&cfg.Hedge.Step1Fraction, "DUALHEDGE_HEDGE_STEP1_FRACTION")
	setFloat64(&cfg.Hedge.EscalationThreshold, "DUALHEDGE_HEDGE_ESCALATION_THRESHOLD")
	setDuration(&cfg.Hedge.SnapshotMaxAge, "DUALHEDGE_HEDGE_SNAPSHOT_MAX_AGE")
	setInt(&cfg.Hedge.MaxHedgedPositions, "DUALHEDGE_HEDGE_MAX_HEDGED_POSITIONS")

	// ── Execution ──
	setFloat64(&cfg.Execution.AllocationFraction, "DUALHEDGE_EXECUTION_ALLOCATION_FRACTION")
	setFloat64(&cfg.Execution.MinSubscribe, "DUALHEDGE_EXECUTION_MIN_SUBSCRIBE")
	setFloat64(&cfg.Execution.MaxSubscribe, "DUALHEDGE_EXECUTION_MAX_SUBSCRIBE")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "DUALHEDGE_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Path, "DUALHEDGE_LEDGER_PATH")
	setBool(&cfg.Ledger.ArchiveEnabled, "DUALHEDGE_LEDGER_ARCHIVE_ENABLED")
	setDuration(&cfg.Ledger.ArchiveRetention, "DUALHEDGE_LEDGER_ARCHIVE_RETENTION")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DUALHEDGE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DUALHEDGE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DUALHEDGE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DUALHEDGE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DUALHEDGE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DUALHEDGE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DUALHEDGE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DUALHEDGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DUALHEDGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DUALHEDGE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DUALHEDGE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DUALHEDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DUALHEDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DUALHEDGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DUALHEDGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DUALHEDGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DUALHEDGE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "DUALHEDGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DUALHEDGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "DUALHEDGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DUALHEDGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DUALHEDGE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DUALHEDGE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DUALHEDGE_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setDuration(&cfg.Engine.Interval, "DUALHEDGE_ENGINE_INTERVAL")
	setDuration(&cfg.Engine.CycleTimeout, "DUALHEDGE_ENGINE_CYCLE_TIMEOUT")
	setInt(&cfg.Engine.FetchConcurrency, "DUALHEDGE_ENGINE_FETCH_CONCURRENCY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DUALHEDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DUALHEDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DUALHEDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DUALHEDGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DUALHEDGE_MODE")
	setStr(&cfg.LogLevel, "DUALHEDGE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
