package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	bus, err := NewRedisBus(context.Background(), "redis://"+s.Addr(), logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, s
}

func TestNewRedisBus_BadURL(t *testing.T) {
	_, err := NewRedisBus(context.Background(), "://nope", logging.Nop{})
	require.ErrorContains(t, err, "parse redis url")
}

func TestNewRedisBus_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewRedisBus(context.Background(), "redis://"+addr, logging.Nop{})
	require.ErrorContains(t, err, "connect to redis")
}

func TestPublishSubscribe(t *testing.T) {
	bus, _ := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "i1")
	require.NoError(t, err)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(ctx, ChangeEvent{IntakeID: "other", Kind: KindDraftSaved, Version: 9, At: at}))
	require.NoError(t, bus.Publish(ctx, ChangeEvent{IntakeID: "i1", Kind: KindSectionSaved, Section: "medical", Version: 2, At: at}))

	select {
	case ev := <-events:
		assert.Equal(t, ChangeEvent{IntakeID: "i1", Kind: KindSectionSaved, Section: "medical", Version: 2, At: at}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-events
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribe_SkipsMalformedPayloads(t *testing.T) {
	bus, s := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "i2")
	require.NoError(t, err)

	s.Publish(Channel("i2"), "not json")
	require.NoError(t, bus.Publish(ctx, ChangeEvent{IntakeID: "i2", Kind: KindTransitioned, Version: 4}))

	select {
	case ev := <-events:
		assert.Equal(t, KindTransitioned, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), ChangeEvent{IntakeID: "x"}))

	_, err := Nop{}.Subscribe(context.Background(), "x")
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "intake:abc", Channel("abc"))
}
