// Package transport defines the narrow write/subscribe contract that
// RxEngine and TxAssembler are driven through, plus a weak-reference
// subscription handle mirroring the original IInterface's weak
// callback list.
package transport

import (
	"context"
	"sync"
	"weak"
)

// Transport is the boundary between a byte-stream medium (UART, an
// echo loopback, an in-memory pipe) and the protocol layer.
type Transport interface {
	// Write blocks until data is fully written, ctx is done, or the
	// transport fails. The bool return mirrors the original's
	// success_flag; err, when non-nil, carries the reason. A transport
	// that is not open may report false with a nil error.
	Write(ctx context.Context, data []byte) (bool, error)

	// SubscribeOnReceived registers cb to be invoked with every chunk
	// of bytes the transport receives. The returned Subscription is
	// held weakly by the transport; callers must keep a strong
	// reference alive for delivery to continue.
	SubscribeOnReceived(cb ReceiveFunc) *Subscription

	Open() error
	Close() error
	IsOpen() bool
}

// ReceiveFunc is invoked with a chunk of newly received bytes.
type ReceiveFunc func(data []byte)

// Subscription is the handle returned by SubscribeOnReceived.
type Subscription struct {
	fn ReceiveFunc
}

type subscriber struct {
	weak weak.Pointer[Subscription]
}

// Broadcaster is embeddable by concrete transports to implement the
// subscribe/deliver half of the contract; it does not implement
// Write/Open/Close/IsOpen.
type Broadcaster struct {
	mu   sync.Mutex
	subs []subscriber
}

func (b *Broadcaster) Subscribe(cb ReceiveFunc) *Subscription {
	sub := &Subscription{fn: cb}
	b.mu.Lock()
	b.subs = append(b.subs, subscriber{weak: weak.Make(sub)})
	b.mu.Unlock()
	return sub
}

// Deliver invokes every live subscriber with data, pruning expired
// ones. Delivery order is registration order (unlike RxEngine's LIFO
// frame delivery — the original Echo/UartLinux interfaces fan bytes
// out to all listeners, order is not observable).
func (b *Broadcaster) Deliver(data []byte) {
	b.mu.Lock()
	live := make([]subscriber, 0, len(b.subs))
	calls := make([]ReceiveFunc, 0, len(b.subs))
	for _, s := range b.subs {
		if sub := s.weak.Value(); sub != nil {
			live = append(live, s)
			calls = append(calls, sub.fn)
		}
	}
	b.subs = live
	b.mu.Unlock()

	for _, cb := range calls {
		cb(data)
	}
}
