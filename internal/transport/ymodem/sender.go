package ymodem

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/protocol/tx"
	"github.com/danmuck/wireframe/internal/transport"
)

// Sender drives a YMODEM file transfer over a transport.Transport,
// waiting for single control bytes (ONLINE_COMMAND, ACK) outside the
// block layout — exactly as the original sender does, since those
// bytes never go through the field/container machinery.
type Sender struct {
	transport transport.Transport
	asm       *tx.TxAssembler
	sub       *transport.Subscription
	received  chan byte
}

// NewSender builds a Sender over an already-open transport.
func NewSender(t transport.Transport) (*Sender, error) {
	layout, err := BuildLayout()
	if err != nil {
		return nil, err
	}
	s := &Sender{
		transport: t,
		asm:       tx.NewTxAssembler(layout, crc.CRC16CCITT{}),
		received:  make(chan byte, 64),
	}
	s.sub = t.SubscribeOnReceived(s.onReceive)
	return s, nil
}

func (s *Sender) onReceive(data []byte) {
	for _, b := range data {
		select {
		case s.received <- b:
		default:
		}
	}
}

func (s *Sender) wait(ctx context.Context, want byte, tries int) bool {
	for i := 0; i < tries; i++ {
		select {
		case b := <-s.received:
			if b == want {
				return true
			}
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

func (s *Sender) sendHeaderBlock(ctx context.Context, filename string, filesize int64) error {
	header := make([]byte, HeaderSize)
	copy(header, []byte(filename))
	if len(filename) < HeaderSize-1 {
		copy(header[len(filename)+1:], []byte(strconv.FormatInt(filesize, 10)))
	}
	_, err := s.asm.SendPacket(ctx, s.transport,
		protocol.Uint8Value(protocol.NameType, SOH),
		protocol.Uint8Value(protocol.NameNumber, 0),
		protocol.Uint8Value(protocol.NameStatus, ^byte(0)),
		protocol.BytesValue(protocol.NameData, header),
	)
	return err
}

func (s *Sender) sendBlock(ctx context.Context, blockNum byte, data []byte) error {
	buf := make([]byte, BlockSize)
	copy(buf, data)
	for i := len(data); i < BlockSize; i++ {
		buf[i] = 0x1A // SUB padding
	}
	_, err := s.asm.SendPacket(ctx, s.transport,
		protocol.Uint8Value(protocol.NameType, STX),
		protocol.Uint8Value(protocol.NameNumber, blockNum),
		protocol.Uint8Value(protocol.NameStatus, ^blockNum),
		protocol.BytesValue(protocol.NameData, buf),
	)
	return err
}

// Send transfers the contents of r under filename/filesize. It waits
// for the receiver's ONLINE_COMMAND, sends the header block, then
// streams BlockSize chunks until r is exhausted, finishing with EOT
// and an empty terminating header block.
func (s *Sender) Send(ctx context.Context, filename string, filesize int64, r io.Reader) error {
	if !s.wait(ctx, OnlineCommand, 400) {
		return fmt.Errorf("ymodem: receiver never came online")
	}
	if err := s.sendHeaderBlock(ctx, filename, filesize); err != nil {
		return err
	}
	if !s.wait(ctx, ACK, 400) {
		return fmt.Errorf("ymodem: no ACK for header block")
	}

	buf := make([]byte, BlockSize)
	var blockNum byte = 1
	for {
		n, err := io.ReadFull(r, buf)
		if n == 0 {
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
		if err := s.sendBlock(ctx, blockNum, buf[:n]); err != nil {
			return err
		}
		if !s.wait(ctx, ACK, 10) {
			_, _ = s.transport.Write(ctx, []byte{Abort1})
			_, _ = s.transport.Write(ctx, []byte{Abort2})
			return fmt.Errorf("ymodem: no ACK for block %d", blockNum)
		}
		blockNum++
		if n < BlockSize {
			break
		}
	}

	if _, err := s.transport.Write(ctx, []byte{EOT}); err != nil {
		return err
	}
	if !s.wait(ctx, ACK, 400) {
		return nil // an unacknowledged EOT ends the transfer without an error
	}
	if err := s.sendHeaderBlock(ctx, "", 0); err != nil {
		return err
	}
	s.wait(ctx, ACK, 400)
	return nil
}
