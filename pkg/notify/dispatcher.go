package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DispatcherConfig configures worker pool behaviour.
type DispatcherConfig struct {
	Workers         int
	BufferSize      int
	DefaultDuration time.Duration
	Logger          *zap.Logger
}

// Dispatcher delivers notifications to its handlers on background workers.
// Notify never blocks: when the buffer is full, or the dispatcher is not
// running, the notification is dropped and logged.
type Dispatcher struct {
	handlers        []Handler
	workers         int
	defaultDuration time.Duration
	logger          *zap.Logger

	queue   chan Notification
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher builds a dispatcher fanning out to the provided handlers.
func NewDispatcher(cfg DispatcherConfig, handlers ...Handler) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers:        handlers,
		workers:         cfg.Workers,
		defaultDuration: cfg.DefaultDuration,
		logger:          cfg.Logger,
		queue:           make(chan Notification, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.started = true
	d.logger.Sugar().Infow("notification dispatcher started", "workers", d.workers)
}

// Stop rejects further notifications, drains what is already queued and
// waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.stopped = true
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
	d.cancel()
	d.logger.Sugar().Infow("notification dispatcher stopped")
}

// Notify implements Sink.
func (d *Dispatcher) Notify(message string, severity Severity, duration time.Duration) {
	if !severity.Valid() {
		severity = SeverityInfo
	}
	if duration <= 0 {
		duration = d.defaultDuration
	}
	n := Notification{
		Message:    message,
		Severity:   severity,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.started || d.stopped {
		d.logger.Debug("notification dropped, dispatcher not running", zap.String("message", message))
		return
	}
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification dropped, buffer full", zap.String("message", message))
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		for _, handle := range d.handlers {
			if err := handle(d.ctx, n); err != nil {
				d.logger.Warn("notification handler failed", zap.String("message", n.Message), zap.Error(err))
			}
		}
	}
}
