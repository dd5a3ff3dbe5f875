// internal/agent/status/broadcaster.go
// Package status fans agent status events out to subscribers. Delivery is
// fire-and-forget: a slow or absent subscriber never blocks the pipeline.
package status

import (
	"context"
	"encoding/json"
	"sync"

	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

const subscriberBuffer = 16

// Sink receives every published event as marshalled JSON; the Redis sink
// forwards it to the channel the UI's real-time layer subscribes to.
type Sink interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// Broadcaster owns the observer list. Subscribers register and unregister
// explicitly; there is no buffering or replay beyond the courtesy snapshot
// a new subscriber gets on join.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan models.StatusEvent
	nextID int
	last   *models.StatusEvent

	sink        Sink
	sinkChannel string
	log         logger.Logger
}

func NewBroadcaster(log logger.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan models.StatusEvent),
		log:  log.With(map[string]interface{}{"component": "status-broadcaster"}),
	}
}

// WithSink attaches an external sink (e.g. a Redis channel). Sink failures
// are logged and swallowed.
func (b *Broadcaster) WithSink(sink Sink, channel string) *Broadcaster {
	b.sink = sink
	b.sinkChannel = channel
	return b
}

// Subscribe registers a new observer and returns its id and channel. The
// current full status, if any, is delivered immediately as a courtesy.
func (b *Broadcaster) Subscribe() (int, <-chan models.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.StatusEvent, subscriberBuffer)
	b.subs[id] = ch

	if b.last != nil {
		ch <- *b.last
	}
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every current subscriber. Full subscriber
// buffers drop the event for that subscriber only.
func (b *Broadcaster) Publish(ev models.StatusEvent) {
	b.mu.Lock()
	b.last = &ev
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug("subscriber buffer full, dropping event", map[string]interface{}{
				"subscriber": id,
			})
		}
	}
	sink, channel := b.sink, b.sinkChannel
	b.mu.Unlock()

	if sink != nil {
		raw, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err := sink.Publish(context.Background(), channel, raw); err != nil {
			b.log.Warn("status sink publish failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// SubscriberCount returns the number of registered observers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
