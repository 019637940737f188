// Package echo implements a loopback transport: every Write is
// delivered immediately to all current subscribers. Grounded on the
// original EchoInterface, used as the loopback behind this module's
// endpoint tests (including the Request round trip) and the wireecho
// demo.
package echo

import (
	"context"
	"sync"

	"github.com/danmuck/wireframe/internal/transport"
)

// Transport is an in-process loopback: Write hands the bytes straight
// to Deliver. Safe for concurrent use.
type Transport struct {
	transport.Broadcaster

	mu     sync.Mutex
	open   bool
	closed bool
}

// New returns an unopened echo transport.
func New() *Transport {
	return &Transport{}
}

func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.open = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	t.closed = true
	return nil
}

func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Write loops data back to subscribers and reports success as long as
// the transport is open. ctx cancellation is observed in the typical
// Go fashion even though the echo path never truly blocks.
func (t *Transport) Write(ctx context.Context, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !t.IsOpen() {
		return false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	t.Deliver(cp)
	return true, nil
}

func (t *Transport) SubscribeOnReceived(cb transport.ReceiveFunc) *transport.Subscription {
	return t.Subscribe(cb)
}
