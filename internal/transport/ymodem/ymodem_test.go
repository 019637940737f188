package ymodem

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/danmuck/wireframe/internal/transport"
)

// pipe is a minimal duplex transport.Transport used only by this test:
// writes on one end are delivered directly to the other end's
// subscribers, with no self-delivery, so Sender and Receiver never see
// their own bytes looped back to them (unlike a single shared echo
// transport, which would).
type pipe struct {
	transport.Broadcaster
	peer *pipe
	open bool
}

func newPipePair() (*pipe, *pipe) {
	a := &pipe{open: true}
	b := &pipe{open: true}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *pipe) Open() error  { p.open = true; return nil }
func (p *pipe) Close() error { p.open = false; return nil }
func (p *pipe) IsOpen() bool { return p.open }

func (p *pipe) Write(ctx context.Context, data []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !p.open {
		return false, nil
	}
	cp := append([]byte(nil), data...)
	p.peer.Deliver(cp)
	return true, nil
}

func (p *pipe) SubscribeOnReceived(cb transport.ReceiveFunc) *transport.Subscription {
	return p.Subscribe(cb)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	senderSide, receiverSide := newPipePair()

	var out bytes.Buffer
	receiver, err := NewReceiver(receiverSide, &out)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	sender, err := NewSender(senderSide)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := receiver.Online(ctx); err != nil {
		t.Fatalf("Online: %v", err)
	}

	content := bytes.Repeat([]byte("wireframe-ymodem-payload "), 100)
	if err := sender.Send(ctx, "payload.bin", int64(len(content)), bytes.NewReader(content)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-receiver.Done():
	case <-time.After(time.Second):
		t.Fatalf("receiver never finished")
	}

	if receiver.Filename() != "payload.bin" {
		t.Errorf("Filename = %q, want payload.bin", receiver.Filename())
	}
	if receiver.Filesize() != int64(len(content)) {
		t.Errorf("Filesize = %d, want %d", receiver.Filesize(), len(content))
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Fatalf("received content mismatch: got %d bytes, want %d bytes", out.Len(), len(content))
	}
}

func TestSendWithoutOnlineReceiverTimesOut(t *testing.T) {
	senderSide, _ := newPipePair()
	sender, err := NewSender(senderSide)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = sender.Send(ctx, "x.bin", 1, bytes.NewReader([]byte{0x01}))
	if err == nil {
		t.Fatalf("expected Send to fail when the receiver never comes online")
	}
}

func TestBuildLayoutResolvesDataSizeFromType(t *testing.T) {
	layout, err := BuildLayout()
	if err != nil {
		t.Fatalf("BuildLayout: %v", err)
	}
	if layout.Len() == 0 {
		t.Fatalf("expected a non-empty layout")
	}
}
