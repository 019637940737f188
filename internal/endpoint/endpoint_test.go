package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/transport/echo"
)

func dispatchLayout(t *testing.T) *protocol.FieldLayout {
	t.Helper()
	payload, err := protocol.NewPayloadMap(
		protocol.PayloadEntry{TypeCode: 1, Kind: protocol.PayloadFixed(19)},
		protocol.PayloadEntry{TypeCode: 2, Kind: protocol.PayloadFixed(1)},
	)
	if err != nil {
		t.Fatalf("build payload map: %v", err)
	}
	layout, err := protocol.NewFieldLayout("dispatch",
		protocol.Fixed(protocol.NameType, 1, protocol.FlagIsInCRC),
		protocol.Variable(protocol.NameData, 19, payload, protocol.FlagIsInCRC),
		protocol.Fixed(protocol.NameCRC, 2, protocol.FlagNone),
	)
	if err != nil {
		t.Fatalf("build dispatch layout: %v", err)
	}
	return layout
}

func newLoopbackEndpoint(t *testing.T) (*Endpoint, func()) {
	t.Helper()
	layout := dispatchLayout(t)
	transport := echo.New()
	if err := transport.Open(); err != nil {
		t.Fatalf("open echo transport: %v", err)
	}
	ep := New(layout, crc.CRC32IEEE{}, transport)
	return ep, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = ep.Close(ctx)
		_ = transport.Close()
	}
}

func TestRequestReturnsLoopedBackSnapshot(t *testing.T) {
	ep, cleanup := newLoopbackEndpoint(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	snap, err := ep.Request(ctx, protocol.Uint8Value(protocol.NameType, 2), protocol.Uint8Value(protocol.NameData, 0x7A))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	dataVal, ok := snap.Get(protocol.NameData)
	if !ok || len(dataVal.Bytes) != 1 || dataVal.Bytes[0] != 0x7A {
		t.Fatalf("unexpected DATA in looped-back snapshot: %+v", dataVal)
	}
}

func TestRequestRejectsConcurrentInFlight(t *testing.T) {
	ep, cleanup := newLoopbackEndpoint(t)
	defer cleanup()

	// Simulate an in-flight request deterministically rather than racing
	// the loopback's own reply, which would otherwise resolve before a
	// second Request could observe it as pending.
	ep.mu.Lock()
	ep.inFlight = true
	ep.mu.Unlock()
	defer func() {
		ep.mu.Lock()
		ep.inFlight = false
		ep.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := ep.Request(ctx, protocol.Uint8Value(protocol.NameType, 2), protocol.Uint8Value(protocol.NameData, 0x01))

	if err != protocol.ErrRequestInFlight {
		t.Fatalf("expected ErrRequestInFlight, got %v", err)
	}
}

func TestReceiveCallbackFiresForEveryFrame(t *testing.T) {
	ep, cleanup := newLoopbackEndpoint(t)
	defer cleanup()

	received := make(chan protocol.FrameSnapshot, 4)
	ep.SetReceiveCallback(func(s protocol.FrameSnapshot) { received <- s })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := ep.Send(ctx, protocol.Uint8Value(protocol.NameType, 2), protocol.Uint8Value(protocol.NameData, 0x09)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case snap := <-received:
		dataVal, _ := snap.Get(protocol.NameData)
		if len(dataVal.Bytes) != 1 || dataVal.Bytes[0] != 0x09 {
			t.Fatalf("unexpected DATA in callback snapshot: %+v", dataVal)
		}
	case <-time.After(time.Second):
		t.Fatalf("receive callback never fired")
	}
}

func TestSendAfterCloseReturnsErrShutdown(t *testing.T) {
	ep, cleanup := newLoopbackEndpoint(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ep.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := ep.Send(context.Background(), protocol.Uint8Value(protocol.NameType, 2), protocol.Uint8Value(protocol.NameData, 0x01))
	if err != protocol.ErrShutdown {
		t.Fatalf("expected ErrShutdown after Close, got %v", err)
	}
}
