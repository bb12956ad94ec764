// Package audit records field-level changes of committed saves. Recording
// happens off the save path: a full queue or a failed write is logged and
// counted, never returned to the saver.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/dmitrijs2005/intakekeeper/internal/server/repositories/events"
	"github.com/google/uuid"
)

// Record is the set of changes produced by one committed save.
type Record struct {
	IntakeID string
	ActorID  string
	// Prefix is prepended to every field path, e.g. "medical." for section saves.
	Prefix  string
	Changes []document.Change
	At      time.Time
}

type Sink interface {
	Emit(ctx context.Context, rec Record)
}

// Nop discards records.
type Nop struct{}

func (Nop) Emit(context.Context, Record) {}

// AsyncSink queues records and writes them from a single worker.
type AsyncSink struct {
	repo    events.Repository
	log     logging.Logger
	metrics *metrics.Recorder
	newID   func() string

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	done   chan struct{}
}

func NewAsyncSink(repo events.Repository, size int, log logging.Logger, m *metrics.Recorder) *AsyncSink {
	if size <= 0 {
		size = 1
	}
	s := &AsyncSink{
		repo:    repo,
		log:     log.With("module", "audit"),
		metrics: m,
		newID:   func() string { return uuid.NewString() },
		queue:   make(chan Record, size),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit enqueues rec without blocking.
func (s *AsyncSink) Emit(ctx context.Context, rec Record) {
	if len(rec.Changes) == 0 {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(ctx, rec, "sink closed")
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.drop(ctx, rec, "queue full")
	}
}

func (s *AsyncSink) drop(ctx context.Context, rec Record, reason string) {
	s.log.Warn(ctx, "audit record dropped", "intake_id", rec.IntakeID, "changes", len(rec.Changes), "reason", reason)
	s.metrics.AuditDropped(ctx, len(rec.Changes))
}

func (s *AsyncSink) run() {
	defer close(s.done)
	ctx := context.Background()

	for rec := range s.queue {
		for _, ch := range rec.Changes {
			ev := &models.AuditEvent{
				ID:        s.newID(),
				IntakeID:  rec.IntakeID,
				FieldPath: rec.Prefix + ch.Field,
				OldValue:  ch.Old,
				NewValue:  ch.New,
				ActorID:   rec.ActorID,
				CreatedAt: rec.At,
			}
			if err := s.repo.Append(ctx, ev); err != nil {
				s.log.Error(ctx, "audit write failed", "intake_id", rec.IntakeID, "field", ev.FieldPath, "error", err)
				s.metrics.AuditDropped(ctx, 1)
			}
		}
	}
}

// Close stops accepting records and waits until the queue is drained or ctx
// is done.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
