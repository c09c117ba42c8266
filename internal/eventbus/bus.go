package eventbus

import (
	"sync"
	"time"
)

// Channel names exposed to application listeners.
const (
	ChannelNotification = "bubbl_notification"
	ChannelGeofence     = "bubbl_geofence"
	ChannelDeviceLog    = "bubbl_device_log"

	// ChannelBridgeLog carries the daemon's own warn+ log lines, mirrored
	// from the logging service's forward sink.
	ChannelBridgeLog = "bubbl_bridge_log"
)

// PendingLimit bounds how many notification events are retained while no
// listener is attached. Oldest events are evicted first.
const PendingLimit = 20

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST drain their channels; slow subscribers drop events.
//   - Notification events published with zero subscribers are buffered
//     (bounded) and flushed, in arrival order, to the first subscriber that
//     attaches. Geofence and device-log events are fire-and-forget: these
//     snapshots are re-derivable by re-querying current state, so there is
//     no backlog for them.
//
// Data should be small and JSON-serializable.
type Event struct {
	Channel string
	Time    time.Time
	Data    any
}

type Bus interface {
	Publish(e Event)
	Subscribe(channel string, buffer int) (ch <-chan Event, unsubscribe func())
	SubscriberCount(channel string) int
	Close()
}

// New returns the in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	channel string
	ch      chan Event
}

type memBus struct {
	// One mutex guards both the subscriber set and the pending buffer so a
	// flush on attach is atomic with respect to concurrent publishes: an
	// event arriving during the flush lands after the flushed backlog,
	// never inside it and never twice.
	mu      sync.Mutex
	subs    map[uint64]*subscriber
	seq     uint64
	pending []Event
	closed  bool
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	delivered := false
	for _, sub := range b.subs {
		if sub.channel != e.Channel {
			continue
		}
		delivered = true
		// Non-blocking delivery. If the subscriber is slow, we drop.
		select {
		case sub.ch <- e:
		default:
		}
	}

	if delivered || e.Channel != ChannelNotification {
		return
	}

	// No listener yet: retain the most recent PendingLimit notifications.
	b.pending = append(b.pending, e)
	if n := len(b.pending) - PendingLimit; n > 0 {
		b.pending = append(b.pending[:0], b.pending[n:]...)
	}
}

func (b *memBus) Subscribe(channel string, buffer int) (<-chan Event, func()) {
	// The buffer must be able to absorb a full pending flush.
	if buffer < PendingLimit+8 {
		buffer = PendingLimit + 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}

	b.seq++
	id := b.seq
	b.subs[id] = &subscriber{channel: channel, ch: ch}

	// First notification listener drains the backlog in arrival order.
	if channel == ChannelNotification && len(b.pending) > 0 {
		for _, e := range b.pending {
			ch <- e
		}
		b.pending = nil
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			sub, ok := b.subs[id]
			if ok {
				delete(b.subs, id)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

func (b *memBus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sub := range b.subs {
		if sub.channel == channel {
			n++
		}
	}
	return n
}

// Close tears down all subscriptions and drops any pending backlog.
// Publishing after Close is a no-op.
func (b *memBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.pending = nil
}
