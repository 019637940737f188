// Package endpoint pairs an RxEngine and a TxAssembler over one
// transport with a single dispatch worker, grounded on the teacher's
// channel/context.Done shutdown shape (internal/mirage/service.go's
// Run/Serve) generalized from "accept Ghost connections" to
// "dispatch FrameSnapshots to a receive callback".
package endpoint

import (
	"context"
	"sync"

	"github.com/danmuck/wireframe/internal/observability"
	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/protocol/rx"
	"github.com/danmuck/wireframe/internal/protocol/tx"
	"github.com/danmuck/wireframe/internal/transport"
)

// DefaultQueueCapacity is the bounded dispatch queue size used unless
// overridden with WithQueueCapacity.
const DefaultQueueCapacity = 100

// Option configures an Endpoint at construction time.
type Option func(*Endpoint)

// WithQueueCapacity overrides the dispatch queue's bounded capacity.
func WithQueueCapacity(n int) Option {
	return func(e *Endpoint) {
		if n > 0 {
			e.queue = make(chan protocol.FrameSnapshot, n)
		}
	}
}

// WithDebug enables the RX engine's "BROKEN PACKET" diagnostic dump.
func WithDebug(enabled bool) Option {
	return func(e *Endpoint) { e.debug = enabled }
}

// Endpoint is the thin orchestrator combining an RxEngine, a
// TxAssembler, and a transport behind send/request/receive-callback
// operations and a bounded, drop-oldest dispatch queue.
type Endpoint struct {
	layout    *protocol.FieldLayout
	rxEngine  *rx.RxEngine
	txAsm     *tx.TxAssembler
	transport transport.Transport

	hookSub *rx.Subscription
	rxSub   *transport.Subscription
	debug   bool

	sendMu sync.Mutex

	queue chan protocol.FrameSnapshot

	mu          sync.Mutex
	recvCB      func(protocol.FrameSnapshot)
	inFlight    bool
	pendingCh   chan protocol.FrameSnapshot

	shutdownOnce sync.Once
	done         chan struct{}
	wg           sync.WaitGroup
}

// New builds an Endpoint over layout and crcAlg, bound to t. t must
// already be open (or Open-able by the caller before first use); the
// endpoint does not own the transport's lifetime.
func New(layout *protocol.FieldLayout, crcAlg crc.Algorithm, t transport.Transport, opts ...Option) *Endpoint {
	e := &Endpoint{
		layout:    layout,
		rxEngine:  rx.NewRxEngine(layout, crcAlg),
		txAsm:     tx.NewTxAssembler(layout, crcAlg),
		transport: t,
		queue:     make(chan protocol.FrameSnapshot, DefaultQueueCapacity),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rxEngine.SetDebug(e.debug)
	e.hookSub = e.rxEngine.Subscribe(e.enqueue)
	e.rxSub = t.SubscribeOnReceived(e.rxEngine.Fill)

	e.wg.Add(1)
	go e.dispatchLoop()
	return e
}

// SetReceiveCallback installs cb to be invoked from the dispatch
// worker for every FrameSnapshot, including ones that also satisfy an
// in-flight Request.
func (e *Endpoint) SetReceiveCallback(cb func(protocol.FrameSnapshot)) {
	e.mu.Lock()
	e.recvCB = cb
	e.mu.Unlock()
}

// Send resolves and writes one TX frame; it does not wait for a
// response.
func (e *Endpoint) Send(ctx context.Context, values ...protocol.FieldValue) (int, error) {
	select {
	case <-e.done:
		return 0, protocol.ErrShutdown
	default:
	}
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	return e.txAsm.SendPacket(ctx, e.transport, values...)
}

// Request sends values then waits for the next completed FrameSnapshot
// up to ctx's deadline. Only one request may be in flight at a time;
// a concurrent call returns ErrRequestInFlight immediately.
func (e *Endpoint) Request(ctx context.Context, values ...protocol.FieldValue) (protocol.FrameSnapshot, error) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return protocol.FrameSnapshot{}, protocol.ErrRequestInFlight
	}
	e.inFlight = true
	ch := make(chan protocol.FrameSnapshot, 1)
	e.pendingCh = ch
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.pendingCh = nil
		e.mu.Unlock()
	}()

	if _, err := e.Send(ctx, values...); err != nil {
		return protocol.FrameSnapshot{}, err
	}

	select {
	case snap := <-ch:
		return snap, nil
	case <-ctx.Done():
		return protocol.FrameSnapshot{}, protocol.ErrTimeout
	case <-e.done:
		return protocol.FrameSnapshot{}, protocol.ErrShutdown
	}
}

// Close signals the dispatch worker to drain the queue and join, and
// waits up to ctx's deadline for that to finish.
func (e *Endpoint) Close(ctx context.Context) error {
	e.shutdownOnce.Do(func() { close(e.done) })
	joined := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue is the RxEngine completion hook: it pushes onto the bounded
// queue, dropping the oldest entry on overflow and recording the drop.
func (e *Endpoint) enqueue(snap protocol.FrameSnapshot) {
	select {
	case e.queue <- snap:
		return
	default:
	}
	select {
	case <-e.queue:
		observability.RecordSnapshotDrop()
	default:
	}
	select {
	case e.queue <- snap:
	default:
		observability.RecordSnapshotDrop()
	}
}

func (e *Endpoint) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case snap := <-e.queue:
			e.deliver(snap)
		case <-e.done:
			e.drain()
			return
		}
	}
}

func (e *Endpoint) drain() {
	for {
		select {
		case snap := <-e.queue:
			e.deliver(snap)
		default:
			return
		}
	}
}

func (e *Endpoint) deliver(snap protocol.FrameSnapshot) {
	e.mu.Lock()
	pending := e.pendingCh
	cb := e.recvCB
	e.mu.Unlock()

	if pending != nil {
		select {
		case pending <- snap:
		default:
		}
	}
	if cb != nil {
		cb(snap)
	}
	observability.RecordFrameDispatched()
}
