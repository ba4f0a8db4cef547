package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/monitor"
)

// Scanner runs one timeout pass
type Scanner interface {
	Scan(ctx context.Context) (monitor.ScanResult, error)
}

// ScanObserver receives the outcome of every pass
type ScanObserver interface {
	ObserveScan(res monitor.ScanResult, elapsed time.Duration)
}

// TimeoutWorkerConfig holds configuration for the timeout worker
type TimeoutWorkerConfig struct {
	Interval    time.Duration
	ScanTimeout time.Duration
}

// DefaultTimeoutWorkerConfig returns default configuration
func DefaultTimeoutWorkerConfig() TimeoutWorkerConfig {
	return TimeoutWorkerConfig{
		Interval:    time.Minute,
		ScanTimeout: 30 * time.Second,
	}
}

// TimeoutWorker periodically moves overdue instances to timeout
type TimeoutWorker struct {
	config   TimeoutWorkerConfig
	scanner  Scanner
	observer ScanObserver
	logger   *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastScan monitor.ScanResult
	lastErr  error
}

// NewTimeoutWorker creates a timeout worker. observer may be nil.
func NewTimeoutWorker(config TimeoutWorkerConfig, scanner Scanner, observer ScanObserver, logger *zap.Logger) *TimeoutWorker {
	def := DefaultTimeoutWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = def.ScanTimeout
	}
	return &TimeoutWorker{
		config:   config,
		scanner:  scanner,
		observer: observer,
		logger:   logger,
	}
}

func (w *TimeoutWorker) Name() string {
	return "TimeoutWorker"
}

// Start runs one pass immediately, then one per interval
func (w *TimeoutWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("timeout worker already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.logger.Info("TimeoutWorker started", zap.Duration("interval", w.config.Interval))

	go w.pollLoop(ctx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish
func (w *TimeoutWorker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	w.logger.Info("TimeoutWorker stopped")
	return nil
}

// LastScan returns the result and error of the most recent pass
func (w *TimeoutWorker) LastScan() (monitor.ScanResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastScan, w.lastErr
}

func (w *TimeoutWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *TimeoutWorker) runOnce(ctx context.Context) {
	scanCtx, cancel := context.WithTimeout(ctx, w.config.ScanTimeout)
	defer cancel()

	start := time.Now()
	res, err := w.scanner.Scan(scanCtx)
	elapsed := time.Since(start)

	w.mu.Lock()
	w.lastScan, w.lastErr = res, err
	w.mu.Unlock()

	if w.observer != nil {
		w.observer.ObserveScan(res, elapsed)
	}
	if err != nil && ctx.Err() == nil {
		w.logger.Error("Timeout scan failed", zap.Error(err))
		return
	}
	if res.TimedOut > 0 || res.Failed > 0 {
		w.logger.Info("Timeout scan completed",
			zap.Int("checked", res.Checked),
			zap.Int("timed_out", res.TimedOut),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Duration("elapsed", elapsed))
	}
}
