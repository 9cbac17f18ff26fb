package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/cyclone/pkg/concurrency"
	"github.com/cuemby/cyclone/pkg/metrics"
)

// Bus routes messages to permanent, destination-keyed queueing filters.
// Filters are registered once, at configure time, and stay installed for
// the life of the bus; delivery is addressed point-to-point by
// destination name, not fanned out by topic.
type Bus struct {
	mu      sync.RWMutex
	filters map[string]*concurrency.MessageFilter
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{filters: make(map[string]*concurrency.MessageFilter)}
}

// Register installs a permanent filter for destination and returns it.
// Registering the same destination twice is a configure-time error: a
// filter remains installed on its receiver for that receiver's lifetime.
func (b *Bus) Register(destination string) (*concurrency.MessageFilter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.filters[destination]; exists {
		return nil, fmt.Errorf("messaging: destination %q already registered", destination)
	}
	f := concurrency.NewMessageFilter()
	b.filters[destination] = f
	return f, nil
}

// Send enqueues msg on its destination's filter. If msg.ExpectReply, Send
// blocks for up to msg.Timeout for the recipient to call msg.Reply, and
// returns that Reply; a Timeout of 0 waits until the reply arrives, and
// Close does not release that wait. Otherwise it returns immediately with
// a zero Reply.
func (b *Bus) Send(msg *Message) (Reply, error) {
	b.mu.RLock()
	f, ok := b.filters[msg.Destination]
	b.mu.RUnlock()
	if !ok {
		metrics.MessagesTotal.WithLabelValues("unknown_destination").Inc()
		return Reply{}, fmt.Errorf("messaging: unknown destination %q", msg.Destination)
	}

	if msg.ExpectReply {
		msg.replyCh = make(chan Reply, 1)
	}
	f.Consume(msg)

	if !msg.ExpectReply {
		metrics.MessagesTotal.WithLabelValues("sent").Inc()
		return Reply{}, nil
	}

	if msg.Timeout <= 0 {
		r := <-msg.replyCh
		metrics.MessagesTotal.WithLabelValues(replyOutcome(r)).Inc()
		return r, nil
	}
	timer := time.NewTimer(msg.Timeout)
	defer timer.Stop()
	select {
	case r := <-msg.replyCh:
		metrics.MessagesTotal.WithLabelValues(replyOutcome(r)).Inc()
		return r, nil
	case <-timer.C:
		metrics.MessagesTotal.WithLabelValues("timeout").Inc()
		return Reply{}, fmt.Errorf("messaging: reply from %q timed out after %s", msg.Destination, msg.Timeout)
	}
}

func replyOutcome(r Reply) string {
	if r.Success {
		return "reply_success"
	}
	return "reply_failure"
}

// Close shuts down every registered filter, cancelling any pending Get
// calls (used at application shutdown).
func (b *Bus) Close() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, f := range b.filters {
		f.Close()
	}
}
