// Package container wires the approval service together and owns its lifecycle.
package container

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/dispatcher"
	"github.com/garyjia/store-approval/internal/application/monitor"
	"github.com/garyjia/store-approval/internal/application/port"
	"github.com/garyjia/store-approval/internal/application/service"
	"github.com/garyjia/store-approval/internal/application/statistics"
	"github.com/garyjia/store-approval/internal/application/workflow"
	"github.com/garyjia/store-approval/internal/config"
	"github.com/garyjia/store-approval/internal/infrastructure/metrics"
	"github.com/garyjia/store-approval/internal/infrastructure/report"
	"github.com/garyjia/store-approval/internal/infrastructure/worker"
	"github.com/garyjia/store-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db          *database.DB
	txManager   port.TransactionManager
	repos       *RepositoryBundle
	redisClient redis.UniversalClient
	locker      port.InstanceLocker
	directory   port.Directory
	senders     []port.MessageSender
	metrics     *metrics.Recorder
	exporter    *report.XLSXExporter

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.WorkflowEngine
	services   *ServiceBundle

	workers *worker.WorkerManager

	mu      sync.Mutex
	started bool
	closed  bool
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Templates    service.TemplateService
	Notification service.NotificationService
	Monitor      monitor.Monitor
	Statistics   statistics.Service
}

// NewContainer creates a new container from configuration.
// It does not initialize components; call Start to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes all components and starts the workers. A failed start
// releases whatever was already opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("container has been closed")
	}
	if c.started {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"database", c.initDatabase},
		{"infrastructure", c.initInfrastructure},
		{"workflow", c.initWorkflow},
		{"services", c.initServices},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			c.release()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Initialized", zap.String("component", step.name))
	}

	c.started = true
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")
	err := c.release()
	c.closed = true
	c.started = false
	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// release tears down everything opened so far, last first
func (c *Container) release() error {
	var errs []error
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) initDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(ctx, c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TxManager
	c.repos = bundle.Repos
	return nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	locker, client, err := ProvideLocker(ctx, c.config.Lock, c.logger)
	if err != nil {
		return err
	}
	c.locker, c.redisClient = locker, client

	larkClient := ProvideLarkClient(c.config.Lark, c.logger)
	if c.directory, err = ProvideDirectory(c.config.Directory, larkClient, c.logger); err != nil {
		return err
	}
	c.senders = ProvideSenders(c.config.Notification, larkClient, c.logger)

	if c.config.Metrics.Enabled {
		c.metrics = metrics.NewRecorder(metrics.Config{Namespace: c.config.Metrics.Namespace})
	}
	c.exporter = report.NewXLSXExporter(c.logger)
	return nil
}

// initWorkflow creates the dispatcher, subscribes notification and metrics handlers and builds the engine
func (c *Container) initWorkflow(context.Context) error {
	c.dispatcher = ProvideDispatcher(c.config.Notification.Timeout, c.logger)

	notifier := service.NewNotificationService(c.senders, c.config.Notification.Operators, NewLoggerAdapter(c.logger))
	notifier.Register(c.dispatcher)
	if c.metrics != nil {
		c.metrics.Register(c.dispatcher)
	}

	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:      c.repos,
		TxManager:  c.txManager,
		Locker:     c.locker,
		Directory:  c.directory,
		Dispatcher: c.dispatcher,
		Config:     c.config,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	c.services = &ServiceBundle{Notification: notifier}
	return nil
}

func (c *Container) initServices(context.Context) error {
	logger := NewLoggerAdapter(c.logger)
	c.services.Templates = service.NewTemplateService(c.repos.Templates, c.repos.Instances, c.txManager, logger)
	c.services.Monitor = monitor.NewMonitor(c.repos.Instances, c.engine, logger,
		monitor.WithWarningWindow(c.config.Monitor.WarningWindow),
		monitor.WithBatchSize(c.config.Monitor.BatchSize),
	)
	c.services.Statistics = statistics.NewService(c.repos.Instances, c.repos.Records,
		statistics.WithWarningWindow(c.config.Monitor.WarningWindow),
	)
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	c.workers = worker.NewWorkerManager(c.logger)
	if c.config.Monitor.Enabled {
		var observer worker.ScanObserver
		if c.metrics != nil {
			observer = c.metrics
		}
		c.workers.Register(worker.NewTimeoutWorker(worker.TimeoutWorkerConfig{
			Interval:    c.config.Monitor.ScanInterval,
			ScanTimeout: c.config.Monitor.ScanTimeout,
		}, c.services.Monitor, observer, c.logger))
	}
	return c.workers.StartAll(ctx)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Health pings the database; the memory store is always healthy.
func (c *Container) Health(ctx context.Context) error {
	if !c.Ready() {
		return fmt.Errorf("container not started")
	}
	if c.db == nil {
		return nil
	}
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.engine
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repos
}

// Metrics returns the metrics recorder, nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Recorder {
	return c.metrics
}

// Exporter returns the statistics workbook writer.
func (c *Container) Exporter() *report.XLSXExporter {
	return c.exporter
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
