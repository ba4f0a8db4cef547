package container

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/dispatcher"
	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/application/resolver"
	"github.com/garyjia/store-approval/internal/application/workflow"
	"github.com/garyjia/store-approval/internal/config"
	"github.com/garyjia/store-approval/internal/infrastructure/directory"
	"github.com/garyjia/store-approval/internal/infrastructure/external/email"
	"github.com/garyjia/store-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/store-approval/internal/infrastructure/lock"
	"github.com/garyjia/store-approval/internal/infrastructure/persistence/memory"
	"github.com/garyjia/store-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/store-approval/pkg/database"
)

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Templates port.TemplateRepository
	Instances port.InstanceRepository
	Records   port.RecordRepository
}

// DatabaseBundle holds the storage backend. DB is nil for the memory driver.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager port.TransactionManager
	Repos     *RepositoryBundle
}

// ProvideDatabase opens the configured store and, for sqlite, applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg.Driver == "memory" {
		logger.Info("Using in-memory store; data is lost on exit")
		store := memory.NewStore()
		return &DatabaseBundle{
			TxManager: store,
			Repos: &RepositoryBundle{
				Templates: store.Templates(),
				Instances: store.Instances(),
				Records:   store.Records(),
			},
		}, nil
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrator(db, logger).Run(ctx, database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txDB := sqlite.NewDB(db.DB, logger)
	return &DatabaseBundle{
		DB:        db,
		TxManager: txDB,
		Repos: &RepositoryBundle{
			Templates: sqlite.NewTemplateRepository(txDB, logger),
			Instances: sqlite.NewInstanceRepository(txDB, logger),
			Records:   sqlite.NewRecordRepository(txDB, logger),
		},
	}, nil
}

// ProvideLocker creates the per-instance lock. The redis client is nil for the local driver.
func ProvideLocker(ctx context.Context, cfg config.LockConfig, logger *zap.Logger) (port.InstanceLocker, redis.UniversalClient, error) {
	if cfg.Driver != "redis" {
		return lock.NewLocal(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("Using redis instance lock", zap.String("addr", cfg.RedisAddr))
	return lock.NewRedis(client, lock.RedisConfig{
		Prefix: cfg.Prefix,
		TTL:    cfg.TTL,
		Wait:   cfg.Wait,
	}, NewLoggerAdapter(logger)), client, nil
}

// ProvideLarkClient returns nil when no credentials are configured
func ProvideLarkClient(cfg config.LarkConfig, logger *zap.Logger) *lark.SDKClient {
	if !cfg.Enabled() {
		return nil
	}
	return lark.NewSDKClient(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.APITimeout,
		IDType:    cfg.IDType,
	}, logger)
}

// ProvideDirectory creates the organisation directory, de-duplicating concurrent lookups.
func ProvideDirectory(cfg config.DirectoryConfig, larkClient *lark.SDKClient, logger *zap.Logger) (port.Directory, error) {
	var dir port.Directory
	switch cfg.Driver {
	case "lark":
		if larkClient == nil {
			return nil, fmt.Errorf("lark directory requires lark credentials")
		}
		dir = lark.NewDirectory(larkClient, logger)
	default:
		static, err := directory.LoadStatic(cfg.StaticFile)
		if err != nil {
			return nil, err
		}
		dir = static
	}
	logger.Info("Directory configured", zap.String("driver", cfg.Driver))
	return directory.Deduplicate(dir), nil
}

// ProvideSenders returns the enabled notification channels
func ProvideSenders(cfg config.NotificationConfig, larkClient *lark.SDKClient, logger *zap.Logger) []port.MessageSender {
	var senders []port.MessageSender
	if cfg.Lark && larkClient != nil {
		senders = append(senders, lark.NewMessenger(larkClient, logger))
	}
	if cfg.Email {
		senders = append(senders, email.NewSender(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			Domain:   cfg.SMTP.Domain,
		}, logger))
	}
	for _, s := range senders {
		logger.Info("Notification channel enabled", zap.String("channel", s.Name()))
	}
	return senders
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(handlerTimeout time.Duration, logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(NewLoggerAdapter(logger)),
		dispatcher.WithHandlerTimeout(handlerTimeout),
	)
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.InstanceLocker
	Directory  port.Directory
	Dispatcher dispatcher.Dispatcher
	Config     *config.Config
	Logger     *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Locker == nil || deps.Directory == nil {
		return nil, fmt.Errorf("locker and directory are required")
	}

	logger := NewLoggerAdapter(deps.Logger)
	res := resolver.New(deps.Directory, deps.Config.Directory.Timeout, logger)
	return workflow.NewEngine(
		deps.Repos.Templates,
		deps.Repos.Instances,
		deps.Repos.Records,
		deps.TxManager,
		deps.Locker,
		res,
		logger,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithCASRetries(deps.Config.Engine.CASRetries),
	), nil
}
