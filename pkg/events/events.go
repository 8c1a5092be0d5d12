// Package events fans out typed domain events from the pool registry and the
// reward distributor to any number of subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// Kind identifies the payload type carried by an Event.
type Kind string

const (
	PoolAdded            Kind = "pool_added"
	PoolRemoved          Kind = "pool_removed"
	Deposited            Kind = "deposited"
	Claimed              Kind = "claimed"
	ClaimIndexUpdated    Kind = "claim_index_updated"
	ClaimIntervalUpdated Kind = "claim_interval_updated"
	RewardStatsUpdated   Kind = "reward_stats_updated"
)

// DefaultRelayBuffer is the number of events queued per subscriber before
// further events for that subscriber are dropped.
const DefaultRelayBuffer = 256

// Event is the envelope delivered to subscribers.
type Event struct {
	Kind Kind      `json:"kind"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// relay queues events for one subscriber.
type relay struct {
	queue chan Event
}

// Feed is a one-to-many event bus. Send never waits on a subscriber: each
// subscription has a bounded queue drained by its own goroutine, and events
// that do not fit are dropped for that subscriber only.
//
// A nil *Feed is valid and drops every event, so components can be built
// without a subscriber.
type Feed struct {
	mu      sync.RWMutex
	relays  map[*relay]struct{}
	buffer  int
	dropped atomic.Uint64
}

// NewFeed creates an empty feed with DefaultRelayBuffer slots per subscriber.
func NewFeed() *Feed {
	return NewFeedWithBuffer(DefaultRelayBuffer)
}

// NewFeedWithBuffer creates an empty feed queueing up to buffer events per
// subscriber.
func NewFeedWithBuffer(buffer int) *Feed {
	return &Feed{
		relays: make(map[*relay]struct{}),
		buffer: max(buffer, 1),
	}
}

// Send queues an event for every current subscriber and returns how many
// accepted it.
func (f *Feed) Send(kind Kind, data any, at time.Time) int {
	if f == nil {
		return 0
	}
	ev := Event{Kind: kind, Data: data, At: at}

	f.mu.RLock()
	defer f.mu.RUnlock()
	sent := 0
	for r := range f.relays {
		select {
		case r.queue <- ev:
			sent++
		default:
			f.dropped.Add(1)
		}
	}
	return sent
}

// Dropped returns how many events were discarded because a subscriber's
// queue was full.
func (f *Feed) Dropped() uint64 {
	if f == nil {
		return 0
	}
	return f.dropped.Load()
}

// Subscribe registers ch to receive events until the subscription is closed.
// Events are delivered to ch in the order they were sent.
func (f *Feed) Subscribe(ch chan<- Event) event.Subscription {
	f.mu.Lock()
	if f.relays == nil {
		f.relays = make(map[*relay]struct{})
	}
	if f.buffer <= 0 {
		f.buffer = DefaultRelayBuffer
	}
	r := &relay{queue: make(chan Event, f.buffer)}
	f.relays[r] = struct{}{}
	f.mu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer f.remove(r)
		for {
			select {
			case ev := <-r.queue:
				select {
				case ch <- ev:
				case <-quit:
					return nil
				}
			case <-quit:
				return nil
			}
		}
	})
}

func (f *Feed) remove(r *relay) {
	f.mu.Lock()
	delete(f.relays, r)
	f.mu.Unlock()
}
