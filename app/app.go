package app

import (
	"context"
	"database/sql"
	"fmt"
	"go-bank-transfers/config"
	"go-bank-transfers/db"
	"go-bank-transfers/events"
	"go-bank-transfers/exchange"
	"go-bank-transfers/handler"
	"go-bank-transfers/lock"
	"go-bank-transfers/logger"
	"go-bank-transfers/model"
	"go-bank-transfers/repository"
	"go-bank-transfers/router"
	"go-bank-transfers/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Dependencies are the external connections the application runs on. A nil
// DB selects the in-memory store; a nil Redis selects in-process locking and
// disables the transaction cache.
type Dependencies struct {
	DB    *sql.DB
	Redis *redis.Client
}

// App is the fully wired HTTP application.
type App struct {
	Router    http.Handler
	Publisher events.Publisher
}

// Close releases what Build opened.
func (a *App) Close() error {
	if kp, ok := a.Publisher.(*events.KafkaPublisher); ok {
		return kp.Close()
	}
	return nil
}

func buildConverter(cfg config.Config) (exchange.Converter, error) {
	var next exchange.Converter
	if cfg.Exchange.BaseURL != "" {
		next = exchange.NewHTTPConverter(cfg.Exchange.BaseURL, &http.Client{Timeout: cfg.Exchange.Timeout})
	} else {
		static, err := exchange.NewStaticConverter(cfg.Exchange.BaseCurrency, cfg.Exchange.Rates)
		if err != nil {
			return nil, fmt.Errorf("invalid exchange rates: %w", err)
		}
		next = static
	}

	settings := exchange.DefaultBreakerSettings()
	settings.Timeout = cfg.Exchange.Timeout
	return exchange.NewBreakerConverter(next, settings), nil
}

// Build wires repositories, services, handlers and the router.
func Build(cfg config.Config, deps Dependencies) (*App, error) {
	var (
		uow          repository.UnitOfWork
		accountRepo  repository.IAccountRepository
		transactions repository.ITransactionRepository
		checks       = map[string]handler.Check{}
	)
	if deps.DB != nil {
		uow = repository.NewTxManager(deps.DB, cfg.Transfer.LockTimeout)
		accountRepo = repository.NewAccountRepository(deps.DB)
		transactions = repository.NewTransactionRepository(deps.DB)
		checks["postgres"] = deps.DB.PingContext
	} else {
		store := repository.NewMemoryStore(cfg.Transfer.LockTimeout)
		uow, accountRepo, transactions = store, store, store
	}

	var (
		locker lock.Locker
		cache  *service.TransactionCache
	)
	if deps.Redis != nil {
		locker = lock.NewRedisLocker(deps.Redis, lock.RedisLockerOptions{
			Expiry:     cfg.Transfer.IdempotencyLockTTL,
			Wait:       cfg.Transfer.LockTimeout,
			RetryDelay: 50 * time.Millisecond,
		})
		cache = service.NewTransactionCache(deps.Redis, cfg.Transfer.CacheTTL)
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	} else {
		locker = lock.NewLocalLocker(cfg.Transfer.LockTimeout)
	}

	converter, err := buildConverter(cfg)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	defaultMode, ok := model.ParseFetchMode(cfg.Transfer.DefaultMode)
	if !ok {
		return nil, fmt.Errorf("invalid transfer.default_mode %q", cfg.Transfer.DefaultMode)
	}

	executor := service.NewTransferExecutor(uow, accountRepo, transactions, converter)
	coordinator := service.NewIdempotencyCoordinator(transactions, executor, locker, cache, publisher, service.RetryPolicy{
		MaxRetries: cfg.Transfer.MaxRetries,
		BaseDelay:  cfg.Transfer.RetryBaseDelay,
	})
	transactionService := service.NewTransactionService(coordinator, accountRepo, transactions, cache, defaultMode)
	accountService := service.NewAccountService(accountRepo)

	r := router.NewRouter(
		handler.NewAccountHandler(accountService),
		handler.NewTransactionHandler(transactionService),
		handler.NewHealthHandler(checks),
		handler.NewAuthMiddleware(cfg.JWT.SecretKey),
	)

	return &App{Router: r, Publisher: publisher}, nil
}

func connect(cfg config.Config) (Dependencies, error) {
	var deps Dependencies

	switch cfg.Storage.Driver {
	case "memory":
		logger.Log.Warn("Using the in-memory store; data is lost on restart")
	case "postgres":
		database, err := db.Connect()
		if err != nil {
			return deps, err
		}
		deps.DB = database
		if cfg.Database.MigrateOnStart {
			if err := db.Migrate(database, cfg.Database.MigrationsPath); err != nil {
				return deps, err
			}
		}
	default:
		return deps, fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}

	rdb, err := db.ConnectRedis()
	if err != nil {
		return deps, err
	}
	deps.Redis = rdb
	return deps, nil
}

func Run() {
	config.LoadConfig(".")
	logger.Init()
	if os.Getenv("LOG_LEVEL") == "" {
		logger.SetLevel(config.AppConfig.Log.Level)
	}
	cfg := config.AppConfig
	logger.Log.WithFields(logrus.Fields{
		"storage":      cfg.Storage.Driver,
		"default_mode": cfg.Transfer.DefaultMode,
	}).Info("Configuration loaded successfully")

	if cfg.JWT.SecretKey == "" {
		logger.Log.Fatal("jwt.secret_key must be set")
	}

	deps, err := connect(cfg)
	if err != nil {
		logger.Log.Fatalf("Error connecting to backing services: %v", err)
	}
	if deps.DB != nil {
		defer deps.DB.Close()
	}
	if deps.Redis != nil {
		defer deps.Redis.Close()
	}

	application, err := Build(cfg, deps)
	if err != nil {
		logger.Log.Fatalf("Error building application: %v", err)
	}
	defer application.Close()

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Log.Info("Server exited properly")
}
