// Package analytics emits tracking events such as share-button clicks.
package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/codec"
)

// ShareButtonClicked is emitted when a learner shares a video.
const ShareButtonClicked = "edx.social.video.share_button.clicked"

// DefaultChannel is the Redis channel RedisSink publishes on.
const DefaultChannel = "videoplayer:analytics"

// Event is one tracking event.
type Event struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data"`
}

// Emitter publishes tracking events.
type Emitter interface {
	Emit(ctx context.Context, name string, data map[string]any) error
}

func newEvent(c clock.Clock, name string, data map[string]any) Event {
	if c == nil {
		c = clock.Real{}
	}
	return Event{ID: uuid.NewString(), Name: name, Time: c.Now().UTC(), Data: data}
}

// LogSink writes events to a zerolog logger at info level.
type LogSink struct {
	Logger zerolog.Logger
	Clock  clock.Clock
}

func (s LogSink) Emit(_ context.Context, name string, data map[string]any) error {
	ev := newEvent(s.Clock, name, data)
	s.Logger.Info().
		Str("event_id", ev.ID).
		Str("event", ev.Name).
		Time("event_time", ev.Time).
		Fields(ev.Data).
		Msg("analytics event")
	return nil
}

// RedisSink publishes events as JSON on a Redis channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
	codec   codec.Codec
	clock   clock.Clock
}

// NewRedisSink returns a sink publishing on channel, or DefaultChannel when
// empty.
func NewRedisSink(client redis.UniversalClient, channel string, c clock.Clock) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel, codec: codec.JSON{}, clock: c}
}

// Channel returns the channel events are published on.
func (s *RedisSink) Channel() string { return s.channel }

func (s *RedisSink) Emit(ctx context.Context, name string, data map[string]any) error {
	b, err := s.codec.Marshal(newEvent(s.clock, name, data))
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, b).Err()
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, name string, data map[string]any) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, name, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, name string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, newEvent(nil, name, data))
	return nil
}

// Events returns a copy of what was emitted.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
