package eventbus

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// subscriber is one Subscribe call's delivery channel.
type subscriber struct {
	ch     chan interface{}
	closed chan struct{}
}

// Bus fans published events out to every active subscriber. Delivery to a
// single subscriber is ordered: per its contract events for the same action
// are delivered ActionStarted -> (lifecycle pair) -> ActionFinished, which
// falls out naturally here since Publish is only ever called from the
// single goroutine driving that node's handler.
type Bus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	bufferSize  int
}

// New returns an empty Bus. bufferSize sizes each subscriber's channel;
// Publish blocks (subject to ctx) once a slow subscriber's buffer fills.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{subscribers: make(map[*subscriber]struct{}), bufferSize: bufferSize}
}

// Subscribe registers a new listener and returns its event channel plus an
// unsubscribe function. The channel is closed once Unsubscribe runs.
func (b *Bus) Subscribe() (<-chan interface{}, func()) {
	sub := &subscriber{ch: make(chan interface{}, b.bufferSize), closed: make(chan struct{})}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(sub.closed)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Publish delivers event to every current subscriber, waiting for each
// delivery to be accepted (buffered) or for ctx to be cancelled. A
// subscriber that has since unsubscribed is skipped rather than blocking
// the publisher.
func (b *Bus) Publish(ctx context.Context, event interface{}) error {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range subs {
		s := s
		g.Go(func() error {
			select {
			case s.ch <- event:
				return nil
			case <-s.closed:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// SubscriberCount reports the number of active subscribers, for tests and
// diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
