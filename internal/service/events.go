// File: internal/service/events.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Vrooli/agent-s2/api/schemas"
	"github.com/Vrooli/agent-s2/internal/audit"
	"github.com/Vrooli/agent-s2/internal/store"
)

const (
	eventBatchSize    = 50
	eventBatchTimeout = 2 * time.Second
	eventQueueDepth   = 1024
)

var (
	// ErrEventQueueFull is returned when the consumer has fallen behind.
	ErrEventQueueFull   = errors.New("security event queue is full")
	ErrEventQueueClosed = errors.New("security event queue is closed")
)

// BatchSink persists security events in bulk.
type BatchSink interface {
	InsertSecurityEvents(ctx context.Context, events []schemas.SecurityEvent) error
}

var _ BatchSink = (*store.Store)(nil)

// EventQueue decouples the security monitor from Postgres latency: events are
// buffered and written in batches by a single consumer goroutine.
type EventQueue struct {
	ch     chan schemas.SecurityEvent
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

var _ audit.EventSink = (*EventQueue)(nil)

// NewEventQueue starts the consumer. Close flushes and stops it.
func NewEventQueue(ctx context.Context, sink BatchSink, logger *zap.Logger) *EventQueue {
	q := &EventQueue{ch: make(chan schemas.SecurityEvent, eventQueueDepth)}
	StartEventConsumer(ctx, &q.wg, q.ch, sink, logger.Named("event_queue"))
	return q
}

// InsertSecurityEvent enqueues e without blocking.
func (q *EventQueue) InsertSecurityEvent(_ context.Context, e schemas.SecurityEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrEventQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// Close stops accepting events and waits for the final batch to be written.
func (q *EventQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
		q.wg.Wait()
	})
}

// StartEventConsumer launches a goroutine that reads from events and persists
// them in batches. It returns after the channel closes or ctx ends, flushing
// what it holds either way.
func StartEventConsumer(ctx context.Context, wg *sync.WaitGroup, events <-chan schemas.SecurityEvent, sink BatchSink, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Security event consumer started")
		defer logger.Debug("Security event consumer stopped")

		batch := make([]schemas.SecurityEvent, 0, eventBatchSize)
		ticker := time.NewTicker(eventBatchTimeout)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			// Shutdown cancels ctx; the final batch still gets written.
			persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sink.InsertSecurityEvents(persistCtx, batch); err != nil {
				logger.Error("Failed to persist security event batch. Events remain in the JSONL audit log.",
					zap.Error(err), zap.Int("batch_size", len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case e, ok := <-events:
				if !ok {
					flush()
					return
				}
				batch = append(batch, e)
				if len(batch) >= eventBatchSize {
					flush()
					ticker.Reset(eventBatchTimeout)
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				drainChannel(events, &batch)
				flush()
				return
			}
		}
	}()
}

// drainChannel moves whatever is buffered in events into batch.
func drainChannel(events <-chan schemas.SecurityEvent, batch *[]schemas.SecurityEvent) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			*batch = append(*batch, e)
		default:
			return
		}
	}
}
