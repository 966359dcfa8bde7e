package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/authz-core/internal/domain"
)

const defaultWriteTimeout = 3 * time.Second

// AuditStore persists audit events.
type AuditStore interface {
	Insert(ctx context.Context, event *domain.AuditEvent) error
}

// AuditWriter persists audit events off the request path through a bounded queue.
type AuditWriter struct {
	store        AuditStore
	logger       *zap.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan domain.AuditEvent
	done   chan struct{}
	start  sync.Once
}

// NewAuditWriter builds a writer with room for bufferSize pending events.
func NewAuditWriter(store AuditStore, bufferSize int, logger *zap.Logger) *AuditWriter {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditWriter{
		store:        store,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan domain.AuditEvent, bufferSize),
		done:         make(chan struct{}),
	}
}

// Start launches the background writer. Calling it more than once is a no-op.
func (w *AuditWriter) Start(ctx context.Context) {
	w.start.Do(func() {
		go w.run(ctx)
	})
}

// Enqueue hands event to the writer without blocking. It reports false when
// the queue is full or the writer has been stopped.
func (w *AuditWriter) Enqueue(event domain.AuditEvent) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- event:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for pending events to be written or ctx to end.
func (w *AuditWriter) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	// a writer that was never started has nothing to drain
	w.start.Do(func() { close(w.done) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AuditWriter) run(ctx context.Context) {
	defer close(w.done)
	for event := range w.queue {
		w.write(ctx, event)
	}
}

func (w *AuditWriter) write(ctx context.Context, event domain.AuditEvent) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()
	if err := w.store.Insert(writeCtx, &event); err != nil {
		w.logger.Error("persist audit event failed",
			zap.String("audit_id", event.ID),
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err))
	}
}
