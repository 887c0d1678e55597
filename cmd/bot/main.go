package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"
	"github.com/selivandex/regime-bot/internal/adapters/clickhouse"
	"github.com/selivandex/regime-bot/internal/adapters/config"
	"github.com/selivandex/regime-bot/internal/adapters/database"
	"github.com/selivandex/regime-bot/internal/adapters/exchange"
	"github.com/selivandex/regime-bot/internal/adapters/market"
	redisAdapter "github.com/selivandex/regime-bot/internal/adapters/redis"
	"github.com/selivandex/regime-bot/internal/adapters/telegram"
	"github.com/selivandex/regime-bot/internal/health"
	"github.com/selivandex/regime-bot/internal/regime"
	"github.com/selivandex/regime-bot/internal/workers"
	"github.com/selivandex/regime-bot/pkg/logger"
	"github.com/selivandex/regime-bot/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Regime Detection Bot starting...",
		zap.String("symbol", cfg.Market.Symbol),
		zap.Strings("timeframes", cfg.Market.Timeframes()),
	)

	// PostgreSQL holds model snapshots and migration state
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// ClickHouse holds candles and regime history, with PostgreSQL fallback
	chDB, err := initClickHouse(cfg)
	if err != nil {
		logger.Warn("⚠️ ClickHouse not available, using PostgreSQL fallback", zap.Error(err))
		chDB = nil
	}
	if chDB != nil {
		defer chDB.Close()
	}

	historyDB := db
	if chDB != nil {
		historyDB = chDB
		logger.Info("✅ candle and regime history using ClickHouse")
	}

	marketRepo := market.NewRepository(historyDB.DB())
	historyRepo := clickhouse.NewRepository(historyDB.DB())

	candleWriter := clickhouse.NewCandleBatchWriter(historyRepo, 1000, 10*time.Second)
	defer candleWriter.Close()
	regimeWriter := clickhouse.NewRegimeBatchWriter(historyRepo, 100, 10*time.Second)
	defer regimeWriter.Close()

	// Redis is optional: distributed training locks + state pub/sub
	redisClient, err := initRedis(cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher *redisAdapter.StatePublisher
	if redisClient != nil {
		publisher = redisAdapter.NewStatePublisher(redisClient)
	}

	notifier := initNotifier(cfg)

	// Market data source: Binance REST polling, optionally Bybit WebSocket
	ex, err := initExchange(cfg)
	if err != nil {
		return err
	}
	defer ex.Close()

	pipelines := buildPipelines(cfg, db, marketRepo, publisher, regimeWriter)

	// Restore detector state persisted by a previous run
	for _, p := range pipelines.All() {
		if err := p.Restore(ctx); err != nil {
			logger.Warn("snapshot restore failed",
				zap.String("timeframe", p.Timeframe),
				zap.Error(err),
			)
		}
	}

	startStream(ctx, cfg, candleWriter)

	group := worker.NewWorkerGroup(ctx)
	group.Add(workers.NewCandlesWorker(ex, candleWriter, []string{cfg.Market.Symbol}, cfg.Market.Timeframes()), cfg.Workers.CandlesInterval)
	group.Add(workers.NewRetrainWorker(pipelines, redisClient, notifier), cfg.Workers.RetrainInterval)
	group.Add(workers.NewRegimeWorker(pipelines, notifier), cfg.Workers.UpdateInterval)
	group.Start()

	healthServer := startHealthServer(cfg, db, redisClient, pipelines)

	<-ctx.Done()

	return shutdown(healthServer, group, pipelines)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase initializes PostgreSQL connection with sqlx and runs migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established (sqlx)",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initClickHouse initializes ClickHouse connection
func initClickHouse(cfg *config.Config) (*database.DB, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, fmt.Errorf("ClickHouse disabled in config")
	}

	ch, err := database.NewClickHouse(cfg.ClickHouse.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := ch.DB().Ping(); err != nil {
		ch.Close()
		return nil, fmt.Errorf("ClickHouse ping failed: %w", err)
	}

	logger.Info("ClickHouse connection established",
		zap.String("host", cfg.ClickHouse.Host),
		zap.String("database", cfg.ClickHouse.Database),
	)

	return ch, nil
}

// initRedis initializes Redis client with Redlock support. Returns nil
// client when Redis is disabled.
func initRedis(cfg *config.Config) (*redisAdapter.Client, error) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, training locks and state publishing off")
		return nil, nil
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if err := redisClient.Health(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("redis health check failed: %w", err)
	}

	logger.Info("redis connection established (redlock)",
		zap.String("host", cfg.Redis.Host),
		zap.Int("port", cfg.Redis.Port),
	)

	return redisClient, nil
}

// initNotifier initializes Telegram notifier when configured
func initNotifier(cfg *config.Config) *telegram.Notifier {
	if !cfg.Telegram.Enabled() {
		logger.Info("telegram notifications disabled")
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return nil
	}

	logger.Info("📱 Telegram notifier initialized")
	return notifier
}

// initExchange creates the market data source. Falls back to the mock
// exchange when Binance cannot be initialized so the pipeline still runs.
func initExchange(cfg *config.Config) (exchange.Exchange, error) {
	binance, err := exchange.NewBinanceAdapter(&cfg.Exchange)
	if err != nil {
		logger.Warn("⚠️ Binance adapter unavailable, using mock exchange", zap.Error(err))
		return exchange.NewMockExchange("mock", 40000), nil
	}

	logger.Info("✅ Binance adapter initialized", zap.Bool("testnet", cfg.Exchange.Testnet))
	return binance, nil
}

// buildPipelines wires one detector per timeframe around shared storage
func buildPipelines(
	cfg *config.Config,
	db *database.DB,
	marketRepo *market.Repository,
	publisher *redisAdapter.StatePublisher,
	regimeWriter *clickhouse.RegimeBatchWriter,
) *workers.PipelineSet {
	snapshots := regime.NewRepository(db.DB())
	opts := workers.PipelineOptions{
		Snapshots:    snapshots,
		RegimeWriter: regimeWriter,
	}
	// a typed nil pointer inside the interface would dodge the nil checks
	if publisher != nil {
		opts.Publisher = publisher
	}

	newPipeline := func(timeframe, role string) *workers.Pipeline {
		return workers.NewPipeline(
			cfg.Market.Symbol,
			timeframe,
			role,
			regime.NewDetector(&cfg.HMM),
			marketRepo,
			cfg.Market.TrainingCandles,
			cfg.Market.UpdateCandles,
			opts,
		)
	}

	return &workers.PipelineSet{
		Primary:   newPipeline(cfg.Market.PrimaryTimeframe, "primary"),
		Secondary: newPipeline(cfg.Market.SecondaryTimeframe, "secondary"),
		Tertiary:  newPipeline(cfg.Market.TertiaryTimeframe, "tertiary"),
	}
}

// startStream starts the Bybit WebSocket kline bridge when enabled
func startStream(ctx context.Context, cfg *config.Config, candleWriter *clickhouse.CandleBatchWriter) {
	if !cfg.Exchange.Stream {
		return
	}

	stream := exchange.NewKlineStream([]string{cfg.Market.Symbol}, cfg.Market.Timeframes(), cfg.Exchange.Testnet)
	if err := stream.Connect(); err != nil {
		logger.Warn("⚠️ kline stream connect failed, polling only", zap.Error(err))
		return
	}

	workers.NewStreamBridge(stream, candleWriter).Start(ctx)

	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	logger.Info("✅ real-time kline stream started (Bybit WebSocket)")
}

// startHealthServer starts health check server for K8s probes
func startHealthServer(cfg *config.Config, db *database.DB, redisClient *redisAdapter.Client, pipelines *workers.PipelineSet) *health.Server {
	healthServer := health.NewServer(cfg.Workers.HealthPort, db, redisClient, pipelines)

	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	healthServer.SetReady(true)

	logger.Info("🤖 Regime Detection System Ready!",
		zap.String("health_port", cfg.Workers.HealthPort),
	)

	return healthServer
}

// shutdown stops workers and persists detector state
func shutdown(healthServer *health.Server, group *worker.WorkerGroup, pipelines *workers.PipelineSet) error {
	logger.Info("🛑 Shutdown signal received, starting graceful shutdown...")

	healthServer.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	group.Stop(10 * time.Second)

	// Persist detector state so a restart resumes instead of retraining
	for _, p := range pipelines.All() {
		if err := p.SaveSnapshot(shutdownCtx); err != nil {
			logger.Error("failed to persist snapshot on shutdown",
				zap.String("timeframe", p.Timeframe),
				zap.Error(err),
			)
		}
	}

	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server stop error", zap.Error(err))
	}

	logger.Sync()
	logger.Info("✅ shutdown completed successfully")

	return nil
}
