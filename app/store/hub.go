package store

import (
	"context"
	"sync"

	log "github.com/go-pkgz/lgr"
)

// subscriberBuffer is the number of pending events kept per subscriber
const subscriberBuffer = 16

// hub delivers events to in-process subscribers. Slow subscribers lose events
// instead of blocking writers, consumers reload the full table anyway.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

// subscribe registers a new subscriber, the channel is closed when ctx is done or hub is closed
func (h *hub) subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}()
	return ch
}

// publish sends event to all subscribers without blocking
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[DEBUG] subscriber buffer full, dropping %s event", ev.Op)
		}
	}
}

// close detaches and closes all subscribers
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.closed = true
}
