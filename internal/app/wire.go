package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/dualhedge/internal/blob/s3"
	"github.com/alanyoungcy/dualhedge/internal/cache/memory"
	"github.com/alanyoungcy/dualhedge/internal/cache/redis"
	"github.com/alanyoungcy/dualhedge/internal/collateral"
	"github.com/alanyoungcy/dualhedge/internal/config"
	"github.com/alanyoungcy/dualhedge/internal/crypto"
	"github.com/alanyoungcy/dualhedge/internal/domain"
	"github.com/alanyoungcy/dualhedge/internal/executor"
	"github.com/alanyoungcy/dualhedge/internal/hedge"
	"github.com/alanyoungcy/dualhedge/internal/ledger"
	"github.com/alanyoungcy/dualhedge/internal/notify"
	"github.com/alanyoungcy/dualhedge/internal/platform/binance"
	"github.com/alanyoungcy/dualhedge/internal/selection"
	"github.com/alanyoungcy/dualhedge/internal/snapshot"
	"github.com/alanyoungcy/dualhedge/internal/store/ledgerfile"
	"github.com/alanyoungcy/dualhedge/internal/store/postgres"
)

// Dependencies bundles everything the operating modes need. Constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange    domain.Exchange
	LedgerStore domain.LedgerStore
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	Archiver    domain.Archiver
	Notifier    *notify.Notifier

	Ledger     *ledger.Service
	Assembler  *snapshot.Assembler
	Pipeline   *selection.Pipeline
	Dispatcher *executor.Dispatcher
	Machine    *hedge.Machine
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange credentials ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Exchange.APISecret,
		EncryptedSecretPath: cfg.Exchange.EncryptedSecretPath,
		SecretPassword:      cfg.Exchange.SecretPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exchange secret: %w", err)
	}
	auth := &crypto.HMACAuth{Key: cfg.Exchange.APIKey, Secret: secret}

	// --- Redis (optional) ---
	var rateLimiter domain.RateLimiter
	if cfg.Redis.Enabled {
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
		deps.LockManager = redis.NewLockManager(redisClient)
		rateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		deps.PriceCache = memory.NewPriceCache()
		deps.LockManager = memory.NewLockManager()
	}

	// --- Exchange client ---
	exchangeOpts := []binance.Option{binance.WithMock(cfg.Exchange.Mock)}
	if rateLimiter != nil && cfg.Exchange.RateLimitPerMinute > 0 {
		exchangeOpts = append(exchangeOpts, binance.WithRateLimiter(rateLimiter, cfg.Exchange.RateLimitPerMinute))
	}
	deps.Exchange = binance.NewClient(cfg.Exchange.BaseURL, cfg.Selection.StableCoin, auth, logger, exchangeOpts...)

	// --- Ledger backend ---
	switch cfg.Ledger.Backend {
	case "postgres":
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
		deps.LedgerStore = postgres.NewLedgerStore(pgClient.Pool())
	default:
		store, err := ledgerfile.Open(cfg.Ledger.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger file: %w", err)
		}
		deps.LedgerStore = store
	}

	// --- S3 archival (optional) ---
	if cfg.Ledger.ArchiveEnabled {
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
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = s3blob.NewLedgerArchiver(s3blob.NewWriter(s3Client), deps.LedgerStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Core services ---
	deps.Ledger = ledger.NewService(deps.LedgerStore, logger)
	deps.Assembler = snapshot.NewAssembler(
		deps.Exchange, deps.PriceCache,
		cfg.Selection.Assets, cfg.Selection.StableCoin,
		cfg.Engine.FetchConcurrency, logger,
	)
	deps.Pipeline = selection.NewPipeline(
		cfg.Selection,
		selection.ShortTermCurve(cfg.Selection),
		selection.LongTermCurve(cfg.Selection),
		selection.FloorCurve(cfg.Selection),
		logger,
	)

	collateralAssets := make([]domain.CollateralAsset, len(cfg.Collateral.Assets))
	for i, a := range cfg.Collateral.Assets {
		collateralAssets[i] = domain.CollateralAsset{
			Coin:      a.Coin,
			Enabled:   a.Enabled,
			MinAmount: a.MinAmount,
			MaxAmount: a.MaxAmount,
			LTV:       a.LTV,
			Priority:  a.Priority,
		}
	}
	resolver := collateral.NewResolver(collateralAssets, deps.Exchange, deps.PriceCache, cfg.Selection.StableCoin, logger)

	deps.Dispatcher = executor.NewDispatcher(cfg.Execution, deps.Exchange, resolver, deps.Notifier, logger)
	deps.Machine = hedge.NewMachine(cfg.Hedge, deps.Exchange, deps.Ledger, deps.Notifier, logger)

	return deps, cleanup, nil
}
