package rx

import (
	"bytes"
	"context"
	"runtime"
	"testing"

	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/protocol/tx"
)

type bufTransport struct {
	buf bytes.Buffer
}

func (t *bufTransport) Write(_ context.Context, data []byte) (bool, error) {
	t.buf.Write(data)
	return true, nil
}

func simpleLayout(t *testing.T) *protocol.FieldLayout {
	t.Helper()
	layout, err := protocol.NewFieldLayout("simple",
		protocol.Const(protocol.NameID, []byte{0xAA, 0xBB, 0xCC}, protocol.FlagNone),
		protocol.Fixed(protocol.NameLen, 1, protocol.FlagIsInLen|protocol.FlagIsInCRC),
		protocol.Fixed(protocol.NameAlen, 1, protocol.FlagIsInLen|protocol.FlagIsInCRC),
		protocol.FixedArray(protocol.NameData, 19, protocol.FlagIsInLen|protocol.FlagIsInCRC),
		protocol.Fixed(protocol.NameCRC, 2, protocol.FlagIsInLen),
	)
	if err != nil {
		t.Fatalf("build simple layout: %v", err)
	}
	return layout
}

func assembleSimpleFrame(t *testing.T, data []byte) []byte {
	t.Helper()
	layout := simpleLayout(t)
	asm := tx.NewTxAssembler(layout, crc.CRC32IEEE{})
	out := &bufTransport{}
	if _, err := asm.SendPacket(context.Background(), out, protocol.BytesValue(protocol.NameData, data)); err != nil {
		t.Fatalf("assemble frame: %v", err)
	}
	return out.buf.Bytes()
}

func TestFillWholeFrameEmitsOneSnapshot(t *testing.T) {
	layout := simpleLayout(t)
	data := make([]byte, 19)
	for i := range data {
		data[i] = byte(i)
	}
	frame := assembleSimpleFrame(t, data)

	engine := NewRxEngine(layout, crc.CRC32IEEE{})
	var got []protocol.FrameSnapshot
	sub := engine.Subscribe(func(s protocol.FrameSnapshot) { got = append(got, s) })
	defer func() { _ = sub }()

	engine.Fill(frame)

	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(got))
	}
	dataVal, ok := got[0].Get(protocol.NameData)
	if !ok || !bytes.Equal(dataVal.Bytes, data) {
		t.Fatalf("DATA mismatch: got %x want %x", dataVal.Bytes, data)
	}
}

func TestFillByteAtATimeMatchesBulkFill(t *testing.T) {
	layout := simpleLayout(t)
	data := []byte("0123456789abcdefghi") // 19 bytes
	frame := assembleSimpleFrame(t, data)

	bulkEngine := NewRxEngine(layout, crc.CRC32IEEE{})
	var bulkGot []protocol.FrameSnapshot
	bulkSub := bulkEngine.Subscribe(func(s protocol.FrameSnapshot) { bulkGot = append(bulkGot, s) })
	defer func() { _ = bulkSub }()
	bulkEngine.Fill(frame)

	chunkedEngine := NewRxEngine(layout, crc.CRC32IEEE{})
	var chunkedGot []protocol.FrameSnapshot
	chunkedSub := chunkedEngine.Subscribe(func(s protocol.FrameSnapshot) { chunkedGot = append(chunkedGot, s) })
	defer func() { _ = chunkedSub }()
	for _, b := range frame {
		chunkedEngine.Fill([]byte{b})
	}

	if len(bulkGot) != len(chunkedGot) {
		t.Fatalf("snapshot count differs: bulk=%d chunked=%d", len(bulkGot), len(chunkedGot))
	}
	for i := range bulkGot {
		bv, _ := bulkGot[i].Get(protocol.NameData)
		cv, _ := chunkedGot[i].Get(protocol.NameData)
		if !bytes.Equal(bv.Bytes, cv.Bytes) {
			t.Fatalf("snapshot %d DATA differs between bulk and chunked delivery", i)
		}
	}
}

func TestFillRejectsCorruptedCRC(t *testing.T) {
	layout := simpleLayout(t)
	data := make([]byte, 19)
	frame := assembleSimpleFrame(t, data)
	frame[len(frame)-1] ^= 0xFF // corrupt the last CRC byte

	engine := NewRxEngine(layout, crc.CRC32IEEE{})
	var got []protocol.FrameSnapshot
	sub := engine.Subscribe(func(s protocol.FrameSnapshot) { got = append(got, s) })
	defer func() { _ = sub }()

	engine.Fill(frame)
	if len(got) != 0 {
		t.Fatalf("expected no snapshot for corrupted CRC, got %d", len(got))
	}
}

func TestFillRejectsCorruptedLen(t *testing.T) {
	layout := simpleLayout(t)
	data := make([]byte, 19)
	frame := assembleSimpleFrame(t, data)
	frame[3] ^= 0x01 // corrupt the LEN byte

	engine := NewRxEngine(layout, crc.CRC32IEEE{})
	var got []protocol.FrameSnapshot
	sub := engine.Subscribe(func(s protocol.FrameSnapshot) { got = append(got, s) })
	defer func() { _ = sub }()

	engine.Fill(frame)
	if len(got) != 0 {
		t.Fatalf("expected no snapshot for corrupted LEN, got %d", len(got))
	}
}

func TestFillResynchronisesAfterGarbagePrefix(t *testing.T) {
	layout := simpleLayout(t)
	data := make([]byte, 19)
	frame := assembleSimpleFrame(t, data)

	garbage := []byte{0x04, 0x02, 0x06, 0x07, 0x22, 0x43, 0x2C, 0xFF, 0xFF, 0xFF, 0xAA, 0xBB}
	input := append(append([]byte{}, garbage...), frame...)

	engine := NewRxEngine(layout, crc.CRC32IEEE{})
	var got []protocol.FrameSnapshot
	sub := engine.Subscribe(func(s protocol.FrameSnapshot) { got = append(got, s) })
	defer func() { _ = sub }()

	engine.Fill(input)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 snapshot after resync, got %d", len(got))
	}
}

func TestFillDoesNotDeliverAfterSubscriptionIsUnreachable(t *testing.T) {
	layout := simpleLayout(t)
	data := make([]byte, 19)
	frame := assembleSimpleFrame(t, data)

	engine := NewRxEngine(layout, crc.CRC32IEEE{})
	called := false
	func() {
		sub := engine.Subscribe(func(protocol.FrameSnapshot) { called = true })
		_ = sub // goes out of scope with no other strong reference
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
	}

	engine.Fill(frame)
	if called {
		t.Fatalf("callback fired after its Subscription became unreachable")
	}
}

func TestDispatchLayoutTypeResolvesDataSizeWithoutLen(t *testing.T) {
	payload, err := protocol.NewPayloadMap(
		protocol.PayloadEntry{TypeCode: 1, Kind: protocol.PayloadFixed(19)},
		protocol.PayloadEntry{TypeCode: 4, Kind: protocol.PayloadEmpty()},
	)
	if err != nil {
		t.Fatalf("build payload map: %v", err)
	}
	layout, err := protocol.NewFieldLayout("dispatch",
		protocol.Fixed(protocol.NameType, 1, protocol.FlagIsInCRC),
		protocol.Variable(protocol.NameData, 19, payload, protocol.FlagIsInCRC),
		protocol.Fixed(protocol.NameCRC, 2, protocol.FlagReverse),
	)
	if err != nil {
		t.Fatalf("build dispatch layout: %v", err)
	}

	asm := tx.NewTxAssembler(layout, crc.CRC32IEEE{})
	out := &bufTransport{}
	if _, err := asm.SendPacket(context.Background(), out, protocol.Uint8Value(protocol.NameType, 4), protocol.BytesValue(protocol.NameData, nil)); err != nil {
		t.Fatalf("assemble empty-variant frame: %v", err)
	}

	engine := NewRxEngine(layout, crc.CRC32IEEE{})
	var got []protocol.FrameSnapshot
	sub := engine.Subscribe(func(s protocol.FrameSnapshot) { got = append(got, s) })
	defer func() { _ = sub }()

	engine.Fill(out.buf.Bytes())
	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot for empty-variant DATA, got %d", len(got))
	}
	dataVal, _ := got[0].Get(protocol.NameData)
	if len(dataVal.Bytes) != 0 {
		t.Fatalf("expected empty DATA for type=4, got %d bytes", len(dataVal.Bytes))
	}
}
