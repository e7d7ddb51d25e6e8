// Package channels holds small channel utilities: an unbounded buffered
// channel and a fan-out broadcaster built on it.
package channels

import "sync"

// CloseChannelIgnorePanic closes ch, suppressing the panic raised when it is
// already closed.
func CloseChannelIgnorePanic[T any](ch chan<- T) {
	if ch == nil {
		return
	}

	defer func() {
		_ = recover()
	}()

	close(ch)
}

// InfiniteChan returns a channel pair with unbounded buffering between them.
// Sends never wait on the receiver; values come out in the order they went in.
// Closing the send side closes the receive side once the queue is drained.
//
// Memory grows without limit if the receiver falls behind.
func InfiniteChan[A any]() (chan<- A, <-chan A) {
	in, out, _ := infiniteChan[A]()

	return in, out
}

// infiniteChan is InfiniteChan with a stop function that discards whatever is
// still queued and closes the receive side right away.
func infiniteChan[A any]() (chan<- A, <-chan A, func()) {
	inputCh := make(chan A)
	outputCh := make(chan A)
	stopCh := make(chan struct{})

	var once sync.Once

	stop := func() {
		once.Do(func() { close(stopCh) })
	}

	go func() {
		defer close(outputCh)

		var queue []A

		input := (<-chan A)(inputCh)

		for len(queue) > 0 || input != nil {
			var (
				send chan A
				head A
			)

			if len(queue) > 0 {
				send = outputCh
				head = queue[0]
			}

			select {
			case <-stopCh:
				// Keep accepting sends until the sender closes, so a
				// racing publisher never blocks forever.
				if input != nil {
					go func(in <-chan A) {
						for range in {
						}
					}(input)
				}

				return
			case v, ok := <-input:
				if !ok {
					input = nil
				} else {
					queue = append(queue, v)
				}
			case send <- head:
				var zero A

				queue[0] = zero
				queue = queue[1:]
			}
		}
	}()

	return inputCh, outputCh, stop
}

// Broadcaster fans values out to any number of subscribers. Each subscriber
// has its own unbounded queue, so a slow subscriber never stalls Publish or
// the other subscribers.
type Broadcaster[A any] struct {
	mut    sync.Mutex
	subs   map[uint64]*subscriber[A]
	nextID uint64
	closed bool
}

type subscriber[A any] struct {
	in   chan<- A
	stop func()
}

// NewBroadcaster creates an open Broadcaster.
func NewBroadcaster[A any]() *Broadcaster[A] {
	return &Broadcaster[A]{subs: make(map[uint64]*subscriber[A])}
}

// Subscribe registers a new receiver. The returned function unsubscribes:
// undelivered values are dropped and the channel is closed. After Close the
// channel is returned already closed.
func (b *Broadcaster[A]) Subscribe() (<-chan A, func()) {
	in, out, stop := infiniteChan[A]()

	b.mut.Lock()
	defer b.mut.Unlock()

	if b.closed {
		close(in)
		stop()

		return out, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber[A]{in: in, stop: stop}

	return out, func() {
		b.mut.Lock()
		sub, ok := b.subs[id]
		delete(b.subs, id)
		b.mut.Unlock()

		if ok {
			sub.stop()
			close(sub.in)
		}
	}
}

// Publish delivers value to every current subscriber, in publication order
// relative to other Publish calls.
func (b *Broadcaster[A]) Publish(value A) {
	b.mut.Lock()
	defer b.mut.Unlock()

	for _, sub := range b.subs {
		sub.in <- value
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[A]) Len() int {
	b.mut.Lock()
	defer b.mut.Unlock()

	return len(b.subs)
}

// Close ends every subscription. Queued values are still delivered before
// each channel closes. Close is idempotent.
func (b *Broadcaster[A]) Close() {
	b.mut.Lock()
	defer b.mut.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, sub := range b.subs {
		close(sub.in)
		delete(b.subs, id)
	}
}
