// Package notify carries intake change notifications over Redis pub/sub.
// Every intake has its own channel; consumers are observers only and never
// write back.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"github.com/dmitrijs2005/intakekeeper/internal/logging"
	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	KindDraftSaved    Kind = "draft_saved"
	KindSectionSaved  Kind = "section_saved"
	KindStatusChanged Kind = "status_changed"
	KindTransitioned  Kind = "transitioned"
)

type ChangeEvent struct {
	IntakeID string    `json:"intake_id"`
	Kind     Kind      `json:"kind"`
	Section  string    `json:"section,omitempty"`
	Version  int64     `json:"version"`
	At       time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

type Subscriber interface {
	// Subscribe delivers events for one intake until ctx is done, then
	// closes the channel.
	Subscribe(ctx context.Context, intakeID string) (<-chan ChangeEvent, error)
}

// Channel returns the pub/sub channel of an intake.
func Channel(intakeID string) string {
	return "intake:" + intakeID
}

// Nop is used when no Redis URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ChangeEvent) error { return nil }

func (Nop) Subscribe(context.Context, string) (<-chan ChangeEvent, error) {
	return nil, fmt.Errorf("notifications disabled: %w", common.ErrUnavailable)
}

type RedisBus struct {
	client *redis.Client
	log    logging.Logger
}

// NewRedisBus connects to redisURL and checks the connection.
func NewRedisBus(ctx context.Context, redisURL string, log logging.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBusWithClient(client, log), nil
}

func NewRedisBusWithClient(client *redis.Client, log logging.Logger) *RedisBus {
	return &RedisBus{client: client, log: log.With("module", "notify")}
}

func (b *RedisBus) Publish(ctx context.Context, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.IntakeID), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, intakeID string) (<-chan ChangeEvent, error) {
	sub := b.client.Subscribe(ctx, Channel(intakeID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(intakeID), err)
	}

	out := make(chan ChangeEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn(ctx, "malformed change event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
