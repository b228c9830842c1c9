package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/corestate/statecraft/internal/platform/logger"
)

// wireEvent is Event's channel-transport shape, keyed by the owning state
// machine so one Redis channel can carry notifications for every workspace
// sharing a deployment.
type wireEvent struct {
	MachineID string         `json:"machine_id"`
	Phase     string         `json:"phase"` // "before" or "after"
	Name      string         `json:"name"`
	StatePath []string       `json:"state_path"`
	Args      map[string]any `json:"args,omitempty"`
	At        time.Time      `json:"at"`
}

// RedisBus fans a Dispatcher's before/after notifications out over a Redis
// channel so out-of-process observers (a UI, a second smctl instance) see
// the same events a local Subscribe call would.
type RedisBus struct {
	log       *logger.Logger
	rdb       *goredis.Client
	channel   string
	machineID string
}

// NewRedisBus dials addr and verifies connectivity before returning.
func NewRedisBus(ctx context.Context, log *logger.Logger, addr, channel, machineID string) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("observer: redis addr required")
	}
	if channel == "" {
		channel = "statecraft-events"
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("observer: redis ping: %w", err)
	}

	return &RedisBus{log: log, rdb: rdb, channel: channel, machineID: machineID}, nil
}

// Attach subscribes a RedisBus to a Dispatcher's before/after notifications
// and republishes them, returning the same unsubscribe func Subscribe
// returns.
func (b *RedisBus) Attach(d *Dispatcher) func() {
	return d.Subscribe(ObserverFunc{
		Before: func(ev Event) { b.publish(context.Background(), "before", ev) },
		After:  func(ev Event, _ any) { b.publish(context.Background(), "after", ev) },
	})
}

func (b *RedisBus) publish(ctx context.Context, phase string, ev Event) {
	raw, err := json.Marshal(wireEvent{
		MachineID: b.machineID,
		Phase:     phase,
		Name:      ev.Name,
		StatePath: ev.StatePath,
		Args:      ev.Args,
		At:        time.Now(),
	})
	if err != nil {
		if b.log != nil {
			b.log.Warn("observer: marshal event failed", "error", err)
		}
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil && b.log != nil {
		b.log.Warn("observer: publish failed", "error", err)
	}
}

// StartForwarder subscribes to the Redis channel and invokes onMsg for
// every event published by any process, including this one.
func (b *RedisBus) StartForwarder(ctx context.Context, onMsg func(machineID, phase string, ev Event)) error {
	if onMsg == nil {
		return fmt.Errorf("observer: onMsg callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("observer: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var we wireEvent
				if err := json.Unmarshal([]byte(m.Payload), &we); err != nil {
					if b.log != nil {
						b.log.Warn("observer: bad redis payload", "error", err)
					}
					continue
				}
				onMsg(we.MachineID, we.Phase, Event{Name: we.Name, StatePath: we.StatePath, Args: we.Args})
			}
		}
	}()
	return nil
}

// Close releases the underlying Redis connection.
func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
