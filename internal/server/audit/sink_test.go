package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/document"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/dmitrijs2005/intakekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEvents struct {
	mu      sync.Mutex
	events  []*models.AuditEvent
	failFor string
	block   chan struct{}
}

func (m *memEvents) Append(ctx context.Context, e *models.AuditEvent) error {
	if m.block != nil {
		<-m.block
	}
	if e.FieldPath == m.failFor {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) snapshot() []*models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditEvent(nil), m.events...)
}

func TestAsyncSink_WritesEveryChange(t *testing.T) {
	repo := &memEvents{}
	s := NewAsyncSink(repo, 4, logging.Nop{}, nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	s.Emit(context.Background(), Record{
		IntakeID: "i1", ActorID: "u1", Prefix: "medical.", At: at,
		Changes: []document.Change{
			{Field: "tobaccoUse", Old: false, New: true},
			{Field: "drugProducts", New: []any{"cannabis"}},
		},
	})
	require.NoError(t, s.Close(context.Background()))

	got := repo.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "medical.tobaccoUse", got[0].FieldPath)
	assert.Equal(t, false, got[0].OldValue)
	assert.Equal(t, true, got[0].NewValue)
	assert.Equal(t, "u1", got[1].ActorID)
	assert.Equal(t, at, got[1].CreatedAt)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestAsyncSink_WriteErrorDoesNotStopWorker(t *testing.T) {
	repo := &memEvents{failFor: "a"}
	s := NewAsyncSink(repo, 4, logging.Nop{}, nil)

	s.Emit(context.Background(), Record{IntakeID: "i1", Changes: []document.Change{{Field: "a"}, {Field: "b"}}})
	require.NoError(t, s.Close(context.Background()))

	got := repo.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].FieldPath)
}

func TestAsyncSink_FullQueueDrops(t *testing.T) {
	repo := &memEvents{block: make(chan struct{})}
	s := NewAsyncSink(repo, 1, logging.Nop{}, nil)

	// The worker takes the first record and blocks in Append; the second
	// fills the queue and the third is dropped.
	for i := 0; i < 3; i++ {
		s.Emit(context.Background(), Record{IntakeID: "i1", Changes: []document.Change{{Field: "f"}}})
		time.Sleep(20 * time.Millisecond)
	}
	close(repo.block)
	require.NoError(t, s.Close(context.Background()))

	assert.Len(t, repo.snapshot(), 2)
}

func TestAsyncSink_EmitAfterCloseAndEmptyRecords(t *testing.T) {
	repo := &memEvents{}
	s := NewAsyncSink(repo, 2, logging.Nop{}, nil)

	s.Emit(context.Background(), Record{IntakeID: "i1"})
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	s.Emit(context.Background(), Record{IntakeID: "i1", Changes: []document.Change{{Field: "x"}}})

	assert.Empty(t, repo.snapshot())
}

func TestAsyncSink_CloseHonoursContext(t *testing.T) {
	repo := &memEvents{block: make(chan struct{})}
	defer close(repo.block)
	s := NewAsyncSink(repo, 1, logging.Nop{}, nil)
	s.Emit(context.Background(), Record{IntakeID: "i1", Changes: []document.Change{{Field: "f"}}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)
}
