package ymodem

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/protocol/rx"
	"github.com/danmuck/wireframe/internal/transport"
)

// Receiver is the RxEngine-driven counterpart of Sender: it decodes
// SOH/STX block frames via the same layout and acknowledges each one,
// writing DATA payloads to an io.Writer. EOT arrives as a single raw
// byte outside the block layout, exactly as the original sender emits
// it, so it is intercepted before reaching the engine.
type Receiver struct {
	transport transport.Transport
	engine    *rx.RxEngine
	sub       *rx.Subscription
	rawSub    *transport.Subscription

	mu       sync.Mutex
	out      io.Writer
	filename string
	filesize int64
	gotEOT   bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewReceiver builds a Receiver writing received file contents to out.
func NewReceiver(t transport.Transport, out io.Writer) (*Receiver, error) {
	layout, err := BuildLayout()
	if err != nil {
		return nil, err
	}
	r := &Receiver{
		transport: t,
		engine:    rx.NewRxEngine(layout, crc.CRC16CCITT{}),
		out:       out,
		done:      make(chan struct{}),
	}
	r.sub = r.engine.Subscribe(r.onFrame)
	r.rawSub = t.SubscribeOnReceived(r.onRaw)
	return r, nil
}

// Done closes once the terminating empty header block has been
// received; EOT alone does not close it.
func (r *Receiver) Done() <-chan struct{} { return r.done }

// Filename and Filesize report the values parsed from the initial
// header block, valid once Done fires.
func (r *Receiver) Filename() string { return r.filename }
func (r *Receiver) Filesize() int64  { return r.filesize }

func (r *Receiver) onRaw(data []byte) {
	for _, b := range data {
		if b == EOT {
			r.mu.Lock()
			r.gotEOT = true
			r.mu.Unlock()
			r.ack(context.Background())
			continue
		}
		r.engine.Fill([]byte{b})
	}
}

func (r *Receiver) onFrame(snap protocol.FrameSnapshot) {
	typeVal, _ := snap.Get(protocol.NameType)
	t, _ := typeVal.Uint8()
	dataVal, _ := snap.Get(protocol.NameData)

	switch t {
	case SOH:
		name, size, terminal := parseHeader(dataVal.Bytes)
		if terminal {
			r.ack(context.Background())
			r.doneOnce.Do(func() { close(r.done) })
			return
		}
		r.mu.Lock()
		r.filename, r.filesize = name, size
		r.mu.Unlock()
		r.ack(context.Background())
	case STX:
		_, _ = r.out.Write(trimPadding(dataVal.Bytes))
		r.ack(context.Background())
	}
}

func (r *Receiver) ack(ctx context.Context) {
	_, _ = r.transport.Write(ctx, []byte{ACK})
}

// Online sends the ONLINE_COMMAND byte the original sender polls for
// before it starts transmitting.
func (r *Receiver) Online(ctx context.Context) error {
	_, err := r.transport.Write(ctx, []byte{OnlineCommand})
	return err
}

func parseHeader(data []byte) (name string, size int64, terminal bool) {
	nul := bytes.IndexByte(data, 0)
	if nul <= 0 {
		return "", 0, true
	}
	name = string(data[:nul])
	rest := data[nul+1:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		end = len(rest)
	}
	size, _ = strconv.ParseInt(string(rest[:end]), 10, 64)
	return name, size, false
}

func trimPadding(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == 0x1A {
		end--
	}
	return data[:end]
}
