// Package pubsub implements a minimal broadcast broker: publishers
// call Broadcast, subscribers receive every value published after
// they subscribed.
//
// The shape mirrors the teacher's roothash/memory usage of a
// "pubsub.Broker" (Broadcast/Subscribe/SubscribeEx), which this
// repository's vendored example set references but does not ship in
// full — this package is the adapted reconstruction, backed by
// eapache/channels so a slow subscriber cannot block a publisher or
// the other subscribers.
package pubsub

import (
	"sync"

	"github.com/eapache/channels"
)

// Broker fans out broadcast values to any number of subscribers.
type Broker struct {
	mu sync.Mutex

	replayLast bool
	last       interface{}
	haveLast   bool

	subs map[*Subscription]struct{}
}

// NewBroker creates a new Broker. When replayLast is true, a new
// subscriber immediately receives the most recently broadcast value
// (if any) ahead of any subsequent broadcasts.
func NewBroker(replayLast bool) *Broker {
	return &Broker{
		replayLast: replayLast,
		subs:       make(map[*Subscription]struct{}),
	}
}

// Subscription is a single subscriber's handle on a Broker.
type Subscription struct {
	broker *Broker
	ch     *channels.InfiniteChannel
	once   sync.Once
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe() *Subscription {
	return b.SubscribeEx(nil)
}

// SubscribeEx registers a new subscriber, invoking onSubscribe (if
// non-nil) with the subscriber's underlying channel before the
// subscription is registered for future broadcasts — used by callers
// that need to seed replay state beyond the Broker's own replayLast
// value (mirrors roothash's "replay the latest block on subscribe").
func (b *Broker) SubscribeEx(onSubscribe func(*channels.InfiniteChannel)) *Subscription {
	ch := channels.NewInfiniteChannel()

	sub := &Subscription{
		broker: b,
		ch:     ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if onSubscribe != nil {
		onSubscribe(ch)
	}
	if b.replayLast && b.haveLast {
		ch.In() <- b.last
	}
	b.subs[sub] = struct{}{}

	return sub
}

// Broadcast publishes v to every current subscriber. Broadcast never
// blocks on a slow subscriber: each subscriber's channel is unbounded.
func (b *Broker) Broadcast(v interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.replayLast {
		b.last = v
		b.haveLast = true
	}
	for sub := range b.subs {
		sub.ch.In() <- v
	}
}

// NumSubscribers reports the current subscriber count.
func (b *Broker) NumSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C returns the channel of broadcast values for this subscription.
// Values are delivered in broadcast order; the channel is closed once
// Close is called.
func (sub *Subscription) C() <-chan interface{} {
	return sub.ch.Out()
}

// Close terminates the subscription; no further values will be
// delivered and C()'s channel is closed.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.broker.mu.Lock()
		delete(sub.broker.subs, sub)
		sub.broker.mu.Unlock()
		sub.ch.Close()
	})
}
