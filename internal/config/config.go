// Package config defines the top-level configuration for the dual-investment
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DUALHEDGE_* environment
// variables. The loaded Config is immutable for the lifetime of the process;
// every pipeline stage receives it read-only.
type Config struct {
	Exchange   ExchangeConfig   `toml:"exchange"`
	Selection  SelectionConfig  `toml:"selection"`
	Hedge      HedgeConfig      `toml:"hedge"`
	Execution  ExecutionConfig  `toml:"execution"`
	Collateral CollateralConfig `toml:"collateral"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Engine     EngineConfig     `toml:"engine"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ExchangeConfig holds exchange API endpoints and credentials.
type ExchangeConfig struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	APISecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	// Mock disables order submission: subscriptions, borrows, and margin
	// opens are logged but not sent.
	Mock bool `toml:"mock"`
	// RateLimitPerMinute bounds signed REST calls via the Redis sliding
	// window limiter. Zero disables the limiter.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// SelectionConfig holds the filter and scoring pipeline parameters.
type SelectionConfig struct {
	// Assets are the underlyings scanned for products, e.g. ["BTC", "ETH"].
	Assets []string `toml:"assets"`
	// StableCoin is the quote/invest side for PUT products, e.g. "USDT".
	StableCoin string `toml:"stable_coin"`
	// ShortTermBoundaryHours partitions products into short- and long-term.
	ShortTermBoundaryHours float64 `toml:"short_term_boundary_hours"`

	// Short-term target curve: max(Base, Base*Growth^days), capped.
	ShortTermBase   float64 `toml:"short_term_base"`
	ShortTermGrowth float64 `toml:"short_term_growth"`
	ShortTermCap    float64 `toml:"short_term_cap"`

	// Long-term target curve: SqrtCoeff*sqrt(days)+LogCoeff*ln(days), capped.
	LongTermSqrtCoeff float64 `toml:"long_term_sqrt_coeff"`
	LongTermLogCoeff  float64 `toml:"long_term_log_coeff"`
	LongTermCap       float64 `toml:"long_term_cap"`

	// Minimum ROI floor: FloorBase + FloorSlope*days, capped at FloorCap.
	FloorBase  float64 `toml:"floor_base"`
	FloorSlope float64 `toml:"floor_slope"`
	FloorCap   float64 `toml:"floor_cap"`

	// AbsRatioThreshold bounds |bufferPercent| / actualRoi. Products at the
	// threshold are accepted; strictly above are rejected.
	AbsRatioThreshold float64 `toml:"abs_ratio_threshold"`

	// PressureStepPercent is added to the required ROI per unit of
	// concentration pressure.
	PressureStepPercent float64 `toml:"pressure_step_percent"`

	// Caps.
	MaxTotalPositions    int `toml:"max_total_positions"`
	MaxPositionsPerPair  int `toml:"max_positions_per_pair"`
	MaxShortTermPerPair  int `toml:"max_short_term_per_pair"`

	// VolatilityDates lists calendar dates ("2006-01-02") on which products
	// must not settle.
	VolatilityDates []string `toml:"volatility_dates"`
}

// HedgeConfig holds the hedge state machine parameters.
type HedgeConfig struct {
	ConfirmationWindow  Duration `toml:"confirmation_window"`
	Cooldown            Duration `toml:"cooldown"`
	Step1Fraction       float64  `toml:"step1_fraction"`
	EscalationThreshold float64  `toml:"escalation_threshold"`
	// SnapshotMaxAge is the staleness guard: hedge evaluation is skipped
	// when the market snapshot is older than this.
	SnapshotMaxAge Duration `toml:"snapshot_max_age"`
	// MaxHedgedPositions is a process-level stop condition: when this many
	// positions are fully hedged the loop halts.
	MaxHedgedPositions int `toml:"max_hedged_positions"`
}

// ExecutionConfig holds subscription dispatch parameters.
type ExecutionConfig struct {
	// AllocationFraction is the share of the free invest-coin balance
	// committed per subscription.
	AllocationFraction float64 `toml:"allocation_fraction"`
	MinSubscribe       float64 `toml:"min_subscribe"`
	MaxSubscribe       float64 `toml:"max_subscribe"`
}

// CollateralConfig holds the borrowing source registry.
type CollateralConfig struct {
	Assets []CollateralAssetConfig `toml:"assets"`
}

// CollateralAssetConfig is one configured collateral candidate.
type CollateralAssetConfig struct {
	Coin      string  `toml:"coin"`
	Enabled   bool    `toml:"enabled"`
	MinAmount float64 `toml:"min_amount"`
	MaxAmount float64 `toml:"max_amount"`
	LTV       float64 `toml:"ltv"`
	Priority  int     `toml:"priority"`
}

// LedgerConfig selects and parameterizes the durable position ledger.
type LedgerConfig struct {
	// Backend is "file" or "postgres".
	Backend string `toml:"backend"`
	// Path is the ledger file location for the file backend.
	Path string `toml:"path"`
	// ArchiveEnabled turns on S3 cold-storage archival of closed entries.
	ArchiveEnabled bool `toml:"archive_enabled"`
	// ArchiveRetention is how long closed entries stay in the primary store
	// before archival.
	ArchiveRetention Duration `toml:"archive_retention"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// Enabled gates the whole Redis layer; when false the bot runs with an
	// in-process price cache and lock only.
	Enabled bool `toml:"enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds the cycle scheduler parameters.
type EngineConfig struct {
	Interval Duration `toml:"interval"`
	// CycleTimeout is the per-cycle hard deadline. A cycle exceeding it is
	// abandoned and the run guard is released.
	CycleTimeout Duration `toml:"cycle_timeout"`
	// FetchConcurrency bounds the per-pair fan-out of price and product
	// fetches.
	FetchConcurrency int `toml:"fetch_concurrency"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:            "https://api.binance.com",
			Mock:               false,
			RateLimitPerMinute: 1100,
		},
		Selection: SelectionConfig{
			Assets:                 []string{"BTC", "ETH"},
			StableCoin:             "USDT",
			ShortTermBoundaryHours: 48,
			ShortTermBase:          0.0010,
			ShortTermGrowth:        1.15,
			ShortTermCap:           0.0100,
			LongTermSqrtCoeff:      0.0020,
			LongTermLogCoeff:       0.0015,
			LongTermCap:            0.0250,
			FloorBase:              0.0005,
			FloorSlope:             0.0002,
			FloorCap:               0.0080,
			AbsRatioThreshold:      25.0,
			PressureStepPercent:    5.0,
			MaxTotalPositions:      30,
			MaxPositionsPerPair:    4,
			MaxShortTermPerPair:    2,
			VolatilityDates:        []string{},
		},
		Hedge: HedgeConfig{
			ConfirmationWindow:  Duration{5 * time.Minute},
			Cooldown:            Duration{15 * time.Minute},
			Step1Fraction:       0.5,
			EscalationThreshold: 0.01,
			SnapshotMaxAge:      Duration{5 * time.Minute},
			MaxHedgedPositions:  10,
		},
		Execution: ExecutionConfig{
			AllocationFraction: 0.25,
			MinSubscribe:       100,
			MaxSubscribe:       5000,
		},
		Collateral: CollateralConfig{
			Assets: []CollateralAssetConfig{
				{Coin: "USDT", Enabled: true, MinAmount: 10, MaxAmount: 100_000, LTV: 0.85, Priority: 1},
				{Coin: "BTC", Enabled: true, MinAmount: 0.0002, MaxAmount: 5, LTV: 0.75, Priority: 2},
				{Coin: "ETH", Enabled: true, MinAmount: 0.005, MaxAmount: 50, LTV: 0.70, Priority: 3},
			},
		},
		Ledger: LedgerConfig{
			Backend:          "file",
			Path:             "ledger.json",
			ArchiveEnabled:   false,
			ArchiveRetention: Duration{30 * 24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dualhedge",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			Enabled:    false,
		},
		S3: S3Config{
			Endpoint:       "",
			Region:         "us-east-1",
			Bucket:         "dualhedge-data",
			UseSSL:         true,
			ForcePathStyle: false,
		},
		Engine: EngineConfig{
			Interval:         Duration{3 * time.Minute},
			CycleTimeout:     Duration{2 * time.Minute},
			FetchConcurrency: 4,
		},
		Notify: NotifyConfig{
			Events: []string{"subscription_executed", "hedge_escalated", "borrow_failed", "process_stop"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":         true,
	"scan-once":   true,
	"encrypt-key": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, scan-once, encrypt-key)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange — credentials are mandatory for any mode that talks to the
	// API; without them no authenticated call may be attempted.
	if c.Mode == "run" || c.Mode == "scan-once" {
		if c.Exchange.APIKey == "" {
			errs = append(errs, "exchange: api_key must be set")
		}
		if c.Exchange.APISecret == "" && c.Exchange.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or encrypted_secret_path must be set")
		}
		if c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
			errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
		}
		if c.Exchange.BaseURL == "" {
			errs = append(errs, "exchange: base_url must not be empty")
		}
	}

	// Selection
	if len(c.Selection.Assets) == 0 {
		errs = append(errs, "selection: assets must not be empty")
	}
	if c.Selection.StableCoin == "" {
		errs = append(errs, "selection: stable_coin must not be empty")
	}
	if c.Selection.ShortTermBoundaryHours <= 0 {
		errs = append(errs, "selection: short_term_boundary_hours must be > 0")
	}
	if c.Selection.ShortTermGrowth < 1 {
		errs = append(errs, "selection: short_term_growth must be >= 1")
	}
	if c.Selection.AbsRatioThreshold <= 0 {
		errs = append(errs, "selection: abs_ratio_threshold must be > 0")
	}
	if c.Selection.MaxTotalPositions < 1 {
		errs = append(errs, "selection: max_total_positions must be >= 1")
	}
	if c.Selection.MaxPositionsPerPair < 1 {
		errs = append(errs, "selection: max_positions_per_pair must be >= 1")
	}
	for _, d := range c.Selection.VolatilityDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			errs = append(errs, fmt.Sprintf("selection: volatility date %q is not YYYY-MM-DD", d))
		}
	}

	// Hedge
	if c.Hedge.ConfirmationWindow.Duration <= 0 {
		errs = append(errs, "hedge: confirmation_window must be > 0")
	}
	if c.Hedge.Cooldown.Duration < 0 {
		errs = append(errs, "hedge: cooldown must be >= 0")
	}
	if c.Hedge.Step1Fraction <= 0 || c.Hedge.Step1Fraction > 1 {
		errs = append(errs, "hedge: step1_fraction must be in (0,1]")
	}
	if c.Hedge.EscalationThreshold <= 0 {
		errs = append(errs, "hedge: escalation_threshold must be > 0")
	}
	if c.Hedge.SnapshotMaxAge.Duration <= 0 {
		errs = append(errs, "hedge: snapshot_max_age must be > 0")
	}

	// Execution
	if c.Execution.AllocationFraction <= 0 || c.Execution.AllocationFraction > 1 {
		errs = append(errs, "execution: allocation_fraction must be in (0,1]")
	}
	if c.Execution.MinSubscribe < 0 {
		errs = append(errs, "execution: min_subscribe must be >= 0")
	}
	if c.Execution.MaxSubscribe > 0 && c.Execution.MaxSubscribe < c.Execution.MinSubscribe {
		errs = append(errs, "execution: max_subscribe must be >= min_subscribe")
	}

	// Collateral
	for i, a := range c.Collateral.Assets {
		if a.Coin == "" {
			errs = append(errs, fmt.Sprintf("collateral: asset %d has empty coin", i))
		}
		if a.LTV <= 0 || a.LTV > 1 {
			errs = append(errs, fmt.Sprintf("collateral: asset %s ltv must be in (0,1]", a.Coin))
		}
	}

	// Ledger
	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger: path must be set for the file backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: file, postgres)", c.Ledger.Backend))
	}
	if c.Ledger.ArchiveEnabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when ledger archival is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when ledger archival is enabled")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Engine
	if c.Engine.Interval.Duration <= 0 {
		errs = append(errs, "engine: interval must be > 0")
	}
	if c.Engine.CycleTimeout.Duration <= 0 {
		errs = append(errs, "engine: cycle_timeout must be > 0")
	}
	if c.Engine.FetchConcurrency < 1 {
		errs = append(errs, "engine: fetch_concurrency must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
