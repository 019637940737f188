// Package rx implements the incremental receive-side state machine:
// RxEngine walks a FieldLayout field by field as bytes arrive,
// enforces the built-in matchers, resynchronises on mismatch, and
// delivers a FrameSnapshot to weakly-held subscribers on completion.
package rx

import (
	"sync"
	"time"

	"github.com/danmuck/wireframe/internal/logging/debuglog"
	"github.com/danmuck/wireframe/internal/observability"
	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
)

type fieldRuntime struct {
	currentSize int
	bytesRead   int
}

// RxEngine is the incremental RX state machine bound to one layout,
// one CRC algorithm, and zero or more subscribers. Fill is intended to
// be called from a single producer goroutine (the transport's receive
// path); it never blocks and never allocates on a byte-accepted path
// except when a frame completes.
type RxEngine struct {
	layout *protocol.FieldLayout
	crcAlg crc.Algorithm
	debug  debuglog.Logger

	fieldCursor int
	runtime     []fieldRuntime
	bufs        [][]byte

	payload *protocol.PayloadField
	dataIdx int

	lenIdx, alenIdx, typeIdx, crcIdx  int
	hasLen, hasAlen, hasType, hasCRC bool

	mu   sync.Mutex
	subs []subscriber
}

// NewRxEngine builds an engine over layout using crcAlg for CHECK_CRC
// matching. The layout is assumed already validated by
// protocol.NewFieldLayout.
func NewRxEngine(layout *protocol.FieldLayout, crcAlg crc.Algorithm) *RxEngine {
	n := layout.Len()
	e := &RxEngine{
		layout:  layout,
		crcAlg:  crcAlg,
		runtime: make([]fieldRuntime, n),
		bufs:    make([][]byte, n),
	}
	for i, f := range layout.Iter() {
		capacity := f.Size
		if f.Kind == protocol.KindVariable {
			capacity = f.MaxSize
		}
		e.bufs[i] = make([]byte, capacity)
	}
	if idx, ok := layout.IndexOf(protocol.NameData); ok {
		e.dataIdx = idx
		if spec := layout.At(idx); spec.Kind == protocol.KindVariable {
			e.payload = protocol.NewPayloadField(spec)
		}
	} else {
		e.dataIdx = -1
	}
	e.lenIdx, e.hasLen = layout.IndexOf(protocol.NameLen)
	e.alenIdx, e.hasAlen = layout.IndexOf(protocol.NameAlen)
	e.typeIdx, e.hasType = layout.IndexOf(protocol.NameType)
	e.crcIdx, e.hasCRC = layout.IndexOf(protocol.NameCRC)
	e.resetFrame()
	return e
}

// SetDebug toggles the "BROKEN PACKET" diagnostic dump.
func (e *RxEngine) SetDebug(enabled bool) { e.debug.Enabled = enabled }

// Subscribe registers cb for delivery on every completed frame. The
// engine holds only a weak reference to the returned Subscription;
// callers must keep the Subscription itself alive for delivery to
// continue. Delivery order among live
// subscribers is LIFO by registration.
func (e *RxEngine) Subscribe(cb Callback) *Subscription {
	sub := &Subscription{fn: cb}
	e.mu.Lock()
	e.subs = append(e.subs, newSubscriber(sub))
	e.mu.Unlock()
	return sub
}

// Fill feeds data into the state machine. It may be called with
// arbitrarily sized chunks, including one byte at a time, and never
// blocks.
func (e *RxEngine) Fill(data []byte) {
	for len(data) > 0 {
		idx := e.fieldCursor
		spec := e.layout.At(idx)
		rt := &e.runtime[idx]

		if spec.Kind == protocol.KindConst {
			consumed, diverged := e.matchConst(idx, data)
			data = data[consumed:]
			if diverged {
				e.debug.BrokenPacket("Mismatch in constant field", e.fieldDumps())
				observability.RecordResync(e.layout.Name(), "const mismatch")
				e.resetFrame()
				continue
			}
			if rt.bytesRead < rt.currentSize {
				return
			}
		} else {
			n := rt.currentSize - rt.bytesRead
			if n > len(data) {
				n = len(data)
			}
			copy(e.bufs[idx][rt.bytesRead:rt.bytesRead+n], data[:n])
			rt.bytesRead += n
			data = data[n:]
			if rt.bytesRead < rt.currentSize {
				return
			}
		}

		status, reason := e.runMatcher(idx)
		switch status {
		case protocol.StatusMatch:
			e.fieldCursor++
			if e.fieldCursor == e.layout.Len() {
				observability.RecordFrameMatched(e.layout.Name())
				e.emit()
				e.resetFrame()
			}
		case protocol.StatusNoMatch:
			e.debug.BrokenPacket(reason, e.fieldDumps())
			if reason == "Mismatch in CRC field" {
				observability.RecordCrcMismatch(e.layout.Name())
			}
			observability.RecordResync(e.layout.Name(), reason)
			e.resetFrame()
		default:
			// Built-in matchers never return Processing once a field's
			// bytes are fully read; treat it as Match defensively.
			e.fieldCursor++
		}
	}
}

func (e *RxEngine) resetFrame() {
	e.fieldCursor = 0
	for i, f := range e.layout.Iter() {
		e.runtime[i].bytesRead = 0
		if f.Kind == protocol.KindVariable {
			e.runtime[i].currentSize = 0
		} else {
			e.runtime[i].currentSize = f.Size
		}
	}
	if e.dataIdx >= 0 && e.payload != nil {
		e.payload = protocol.NewPayloadField(e.layout.At(e.dataIdx))
	}
}

// matchConst compares up to len(data) bytes against spec's constant
// pattern starting at the field's current bytes_read offset. It
// returns how many bytes of data were consumed and whether a
// divergent byte was found. On divergence the bytes before the
// divergent one are reported consumed; the divergent byte itself is
// consumed only when it was compared against the first byte of a
// frame, otherwise it is left in data so the caller retries it as the
// start of a new frame.
func (e *RxEngine) matchConst(idx int, data []byte) (consumed int, diverged bool) {
	spec := e.layout.At(idx)
	rt := &e.runtime[idx]
	n := rt.currentSize - rt.bytesRead
	if n > len(data) {
		n = len(data)
	}
	for i := 0; i < n; i++ {
		want := constByteAt(spec, rt.bytesRead)
		if data[i] != want {
			if idx == 0 && rt.bytesRead == 0 {
				return i + 1, true
			}
			return i, true
		}
		e.bufs[idx][rt.bytesRead] = data[i]
		rt.bytesRead++
	}
	return n, false
}

func constByteAt(spec protocol.FieldSpec, pos int) byte {
	if spec.Flags.Has(protocol.FlagReverse) {
		return spec.Const[len(spec.Const)-1-pos]
	}
	return spec.Const[pos]
}

func (e *RxEngine) runMatcher(idx int) (protocol.MatchStatus, string) {
	switch e.layout.At(idx).Matcher {
	case protocol.MatcherSetDataLen:
		return e.matchSetDataLen(idx)
	case protocol.MatcherCheckAlen:
		return e.matchCheckAlen(idx)
	case protocol.MatcherCheckType:
		return e.matchCheckType(idx)
	case protocol.MatcherCheckCRC:
		return e.matchCheckCRC(idx)
	default:
		return protocol.StatusMatch, ""
	}
}

func (e *RxEngine) matchSetDataLen(idx int) (protocol.MatchStatus, string) {
	lenVal := bytesToUint(e.bufs[idx][:e.runtime[idx].currentSize])

	total := 0
	for i, f := range e.layout.Iter() {
		if i == e.dataIdx {
			continue
		}
		if f.Flags.Has(protocol.FlagIsInLen) {
			total += e.runtime[i].currentSize
		}
	}

	if e.dataIdx < 0 {
		return protocol.StatusMatch, ""
	}

	dataSize := int(lenVal) - total
	if dataSize < 0 {
		e.debug.MismatchLen(uint64(total), lenVal)
		return protocol.StatusNoMatch, "Mismatch in length field"
	}

	dataSpec := e.layout.At(e.dataIdx)
	if dataSpec.Kind != protocol.KindVariable {
		if dataSize != dataSpec.Size {
			e.debug.MismatchLen(uint64(dataSpec.Size+total), lenVal)
			return protocol.StatusNoMatch, "Mismatch in length field"
		}
		return protocol.StatusMatch, ""
	}
	if dataSize > dataSpec.MaxSize {
		e.debug.MismatchLen(uint64(dataSpec.MaxSize+total), lenVal)
		return protocol.StatusNoMatch, "Mismatch in length field"
	}
	if e.payload != nil {
		if kind, ok := e.payload.Active(); ok && kind.Fixed {
			if kind.Size != dataSize {
				e.debug.MismatchLen(uint64(kind.Size+total), lenVal)
				return protocol.StatusNoMatch, "Mismatch in length field"
			}
		}
	}
	e.runtime[e.dataIdx].currentSize = dataSize
	return protocol.StatusMatch, ""
}

func (e *RxEngine) matchCheckAlen(idx int) (protocol.MatchStatus, string) {
	if !e.hasLen {
		return protocol.StatusMatch, ""
	}
	lenBytes := e.bufs[e.lenIdx][:e.runtime[e.lenIdx].currentSize]
	alenBytes := e.bufs[idx][:e.runtime[idx].currentSize]
	mask := maskForWidth(len(lenBytes))
	want := (^bytesToUint(lenBytes)) & mask
	got := bytesToUint(alenBytes) & mask
	if got != want {
		e.debug.MismatchAlen(want, got)
		return protocol.StatusNoMatch, "Mismatch in ALEN field"
	}
	return protocol.StatusMatch, ""
}

func (e *RxEngine) matchCheckType(idx int) (protocol.MatchStatus, string) {
	code := uint32(bytesToUint(e.bufs[idx][:e.runtime[idx].currentSize]))
	if e.dataIdx < 0 || e.payload == nil {
		return protocol.StatusMatch, ""
	}
	if !e.payload.SetTypeCode(code) {
		e.debug.MismatchType(code)
		return protocol.StatusNoMatch, "Incorrect type received"
	}
	kind, _ := e.payload.Active()
	if kind.Fixed {
		cur := e.runtime[e.dataIdx].currentSize
		if cur != 0 && cur != kind.Size {
			return protocol.StatusNoMatch, "Mismatch in data field size"
		}
		e.runtime[e.dataIdx].currentSize = kind.Size
	}
	return protocol.StatusMatch, ""
}

func (e *RxEngine) matchCheckCRC(idx int) (protocol.MatchStatus, string) {
	e.crcAlg.Reset()
	var state uint32
	for i, f := range e.layout.Iter() {
		if f.Flags.Has(protocol.FlagIsInCRC) {
			state = e.crcAlg.Append(state, e.bufs[i][:e.runtime[i].currentSize])
		}
	}
	mask := maskForWidth(e.runtime[idx].currentSize)
	computed := uint64(state) & mask

	receivedBytes := e.bufs[idx][:e.runtime[idx].currentSize]
	if e.layout.At(idx).Flags.Has(protocol.FlagReverse) {
		receivedBytes = reversedCopy(receivedBytes)
	}
	received := bytesToUint(receivedBytes) & mask

	if computed != received {
		e.debug.MismatchCrc(computed, received, 8*e.runtime[idx].currentSize)
		return protocol.StatusNoMatch, "Mismatch in CRC field"
	}
	return protocol.StatusMatch, ""
}

func (e *RxEngine) emit() {
	values := make(map[protocol.FieldName]protocol.FieldValue, e.layout.Len())
	for i, f := range e.layout.Iter() {
		raw := e.bufs[i][:e.runtime[i].currentSize]
		b := raw
		if f.Flags.Has(protocol.FlagReverse) {
			b = reversedCopy(raw)
		}
		fv := protocol.FieldValue{Name: f.Name, Bytes: b}
		if i == e.dataIdx && e.payload != nil {
			if kind, ok := e.payload.Active(); ok {
				fv.PayloadKind = &kind
			}
		}
		values[f.Name] = fv
	}
	e.deliver(protocol.NewFrameSnapshot(e.layout, time.Now(), values))
}

func (e *RxEngine) deliver(snap protocol.FrameSnapshot) {
	e.mu.Lock()
	live := make([]subscriber, 0, len(e.subs))
	calls := make([]Callback, 0, len(e.subs))
	for i := len(e.subs) - 1; i >= 0; i-- {
		sub := e.subs[i].weak.Value()
		if sub == nil {
			continue
		}
		calls = append(calls, sub.fn)
	}
	for i := len(e.subs) - 1; i >= 0; i-- {
		if e.subs[i].weak.Value() != nil {
			live = append(live, e.subs[i])
		}
	}
	// live was built newest-first during the reverse scan; restore
	// registration order for storage.
	for i, j := 0, len(live)-1; i < j; i, j = i+1, j-1 {
		live[i], live[j] = live[j], live[i]
	}
	e.subs = live
	e.mu.Unlock()

	for _, cb := range calls {
		cb(snap)
	}
}

func (e *RxEngine) fieldDumps() []debuglog.FieldDump {
	out := make([]debuglog.FieldDump, 0, e.fieldCursor+1)
	for i := 0; i <= e.fieldCursor && i < e.layout.Len(); i++ {
		f := e.layout.At(i)
		out = append(out, debuglog.FieldDump{
			Name:  f.Name.String(),
			Bytes: append([]byte(nil), e.bufs[i][:e.runtime[i].bytesRead]...),
		})
	}
	return out
}

func bytesToUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func maskForWidth(byteWidth int) uint64 {
	if byteWidth >= 8 {
		return ^uint64(0)
	}
	if byteWidth <= 0 {
		return 0
	}
	return (uint64(1) << uint(8*byteWidth)) - 1
}

func reversedCopy(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
