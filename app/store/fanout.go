package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Fanout wraps a Backend and mirrors its change events over a redis channel,
// so instances sharing one table learn about each other's writes. Events
// published by this instance are not delivered back through redis, the
// wrapped backend reports those already.
type Fanout struct {
	Backend
	client  *redis.Client
	channel string
	origin  string
}

// NewFanout makes a Fanout publishing into channel
func NewFanout(backend Backend, client *redis.Client, channel string) *Fanout {
	return &Fanout{Backend: backend, client: client, channel: channel, origin: ulid.Make().String()}
}

// DeleteAll removes every row and announces the change
func (f *Fanout) DeleteAll(ctx context.Context) error {
	if err := f.Backend.DeleteAll(ctx); err != nil {
		return err
	}
	f.publish(ctx, OpDelete)
	return nil
}

// Insert adds one row and announces the change
func (f *Fanout) Insert(ctx context.Context, doc []byte) error {
	if err := f.Backend.Insert(ctx, doc); err != nil {
		return err
	}
	f.publish(ctx, OpInsert)
	return nil
}

// Replace overwrites the table and announces the change once
func (f *Fanout) Replace(ctx context.Context, docs [][]byte) error {
	if err := f.Backend.Replace(ctx, docs); err != nil {
		return err
	}
	f.publish(ctx, OpInsert)
	return nil
}

// Subscribe merges events of the wrapped backend with events published by other instances
func (f *Fanout) Subscribe(ctx context.Context) (<-chan Event, error) {
	local, err := f.Backend.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	ps := f.client.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil { // wait for subscription confirmation
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to redis channel %s: %w", f.channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		remote := ps.Channel()
		for {
			var ev Event
			select {
			case <-ctx.Done():
				return
			case e, ok := <-local:
				if !ok {
					return
				}
				ev = e
			case msg, ok := <-remote:
				if !ok {
					return
				}
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("[WARN] invalid change event on %s: %v", f.channel, err)
					continue
				}
				if ev.Origin == f.origin {
					continue
				}
			}
			select {
			case out <- ev:
			default:
				log.Printf("[DEBUG] subscriber buffer full, dropping %s event", ev.Op)
			}
		}
	}()
	return out, nil
}

// Close closes the wrapped backend and the redis client
func (f *Fanout) Close() error {
	backendErr := f.Backend.Close()
	if err := f.client.Close(); err != nil {
		if backendErr != nil {
			return fmt.Errorf("%w (also failed to close redis client: %v)", backendErr, err)
		}
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return backendErr
}

func (f *Fanout) publish(ctx context.Context, op Op) {
	ev := newEvent(op)
	ev.Origin = f.origin
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[WARN] failed to encode change event: %v", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.client.Publish(pubCtx, f.channel, data).Err(); err != nil {
		log.Printf("[WARN] failed to publish change event to %s: %v", f.channel, err)
	}
}
