package realtime

import (
	"log/slog"
	"sync"
)

const defaultOutboxSize = 32

// Outbox is a Conn backed by a bounded queue and a single writer goroutine.
// Events are written in the order they were queued. A full queue closes the
// outbox instead of blocking the sender.
type Outbox struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
	write  func(Event) error
	logger *slog.Logger
}

// NewOutbox starts a writer that hands every queued event to write. The outbox
// closes itself when write fails.
func NewOutbox(size int, write func(Event) error, logger *slog.Logger) *Outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Outbox{
		events: make(chan Event, size),
		done:   make(chan struct{}),
		write:  write,
		logger: logger,
	}

	go o.pump()

	return o
}

// Send queues event without blocking.
func (o *Outbox) Send(event Event) bool {
	select {
	case <-o.done:
		return false
	default:
	}

	select {
	case o.events <- event:
		return true
	default:
		o.logger.Warn("outbox full, closing connection", "eventType", event.Type, "capacity", cap(o.events))
		o.Close()
		return false
	}
}

// Close stops the writer. Queued events that were not yet written are discarded.
func (o *Outbox) Close() {
	o.once.Do(func() {
		close(o.done)
	})
}

// Done is closed once the outbox stops accepting events.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

func (o *Outbox) pump() {
	for {
		select {
		case <-o.done:
			return
		case event := <-o.events:
			if err := o.write(event); err != nil {
				o.logger.Warn("write event failed", "eventType", event.Type, "error", err)
				o.Close()
				return
			}
		}
	}
}

var _ Conn = (*Outbox)(nil)
