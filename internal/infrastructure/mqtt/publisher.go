package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// defaultQueueSize is the number of events buffered before Enqueue drops.
const defaultQueueSize = 256

// Publisher is the subset of Client used by AsyncPublisher.
type Publisher interface {
	PublishDefault(topic string, payload []byte) error
}

type event struct {
	topic   string
	payload []byte
}

// AsyncPublisher decouples request handlers from broker latency: Enqueue
// never blocks, and a single goroutine started by Run drains the queue.
type AsyncPublisher struct {
	pub    Publisher
	queue  chan event
	logger *slog.Logger
}

// NewAsyncPublisher creates a publisher with the given buffer size
// (defaultQueueSize when size <= 0).
func NewAsyncPublisher(pub Publisher, size int, logger *slog.Logger) *AsyncPublisher {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &AsyncPublisher{pub: pub, queue: make(chan event, size), logger: logger}
}

// Enqueue marshals v as JSON and queues it for topic. It returns
// ErrQueueFull instead of blocking when the buffer is full.
func (p *AsyncPublisher) Enqueue(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling event for %s: %w", topic, err)
	}

	select {
	case p.queue <- event{topic: topic, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run publishes queued events until ctx is cancelled. Failed publishes
// are logged and dropped.
func (p *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			if err := p.pub.PublishDefault(ev.topic, ev.payload); err != nil {
				p.logger.Warn("dropping change event", "topic", ev.topic, "error", err)
			}
		}
	}
}
