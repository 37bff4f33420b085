package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher delivers tracker notifications to the layer above.
// Implementations must not block: the tracker publishes from its event
// loop and a stalled publisher would stall call processing.
type Publisher interface {
	// Publish delivers one notification. Best effort; implementations
	// drop rather than block.
	Publish(e Event)

	// Close releases resources.
	Close() error
}

// NoopPublisher discards all notifications.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that silently discards events.
func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

// Publish discards the event.
func (*NoopPublisher) Publish(Event) {}

// Close is a no-op.
func (*NoopPublisher) Close() error { return nil }

// LoggingPublisher logs notifications at debug level.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher creates a publisher that logs events.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event.
func (p *LoggingPublisher) Publish(e Event) {
	p.logger.Debug("notification",
		"type", string(e.Type),
		"phone_state", e.PhoneState.String(),
		"slot", e.SlotRole.String(),
		"connection_id", e.ConnectionID,
	)
}

// Close is a no-op.
func (p *LoggingPublisher) Close() error { return nil }

// ChannelPublisher publishes to a buffered channel for consumers that
// drain Events(). Events are dropped when the buffer is full.
type ChannelPublisher struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Int64
}

// NewChannelPublisher creates a channel-backed publisher.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelPublisher{ch: make(chan Event, bufferSize)}
}

// Publish enqueues the event, dropping it if the buffer is full. The
// read lock is held across the send so Close cannot close the channel
// between the closed check and the send.
func (p *ChannelPublisher) Publish(e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- e:
	default:
		p.dropped.Add(1)
	}
}

// Events returns the channel for consuming notifications.
func (p *ChannelPublisher) Events() <-chan Event { return p.ch }

// DroppedCount returns how many events were dropped on a full buffer.
func (p *ChannelPublisher) DroppedCount() int64 {
	return p.dropped.Load()
}

// Close closes the channel; later publishes are discarded.
func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// MultiPublisher fans out notifications to several publishers.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a publisher that sends to all provided publishers.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish delivers the event to every publisher.
func (p *MultiPublisher) Publish(e Event) {
	for _, pub := range p.publishers {
		pub.Publish(e)
	}
}

// Close closes every publisher, returning the first error.
func (p *MultiPublisher) Close() error {
	var first error
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
