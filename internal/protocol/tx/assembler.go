// Package tx implements the transmit-side frame assembler: given a
// bag of user-supplied field values, TxAssembler resolves dynamic
// sizes, computes LEN/ALEN/CRC, and emits the frame field by field to
// a transport.
package tx

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/wireframe/internal/observability"
	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
)

// Transport is the narrow write-side contract TxAssembler depends on.
// internal/transport.Transport satisfies it; kept local so protocol/tx
// does not depend on the transport package.
type Transport interface {
	Write(ctx context.Context, data []byte) (bool, error)
}

// TxAssembler is the TX-side counterpart of rx.RxEngine: one instance
// per layout, reused across SendPacket calls. It is not safe for
// concurrent use; callers serialize sends (Endpoint holds a mutex
// around each send).
type TxAssembler struct {
	layout *protocol.FieldLayout
	crcAlg crc.Algorithm

	sizes   []int
	bufs    [][]byte
	dataIdx int

	lenIdx, alenIdx, typeIdx, crcIdx int
	hasLen, hasAlen, hasType, hasCRC bool
}

// NewTxAssembler builds an assembler over layout using crcAlg for
// SetCrcTx.
func NewTxAssembler(layout *protocol.FieldLayout, crcAlg crc.Algorithm) *TxAssembler {
	n := layout.Len()
	a := &TxAssembler{
		layout: layout,
		crcAlg: crcAlg,
		sizes:  make([]int, n),
		bufs:   make([][]byte, n),
	}
	for i, f := range layout.Iter() {
		capacity := f.Size
		if f.Kind == protocol.KindVariable {
			capacity = f.MaxSize
		}
		a.bufs[i] = make([]byte, capacity)
	}
	if idx, ok := layout.IndexOf(protocol.NameData); ok {
		a.dataIdx = idx
	} else {
		a.dataIdx = -1
	}
	a.lenIdx, a.hasLen = layout.IndexOf(protocol.NameLen)
	a.alenIdx, a.hasAlen = layout.IndexOf(protocol.NameAlen)
	a.typeIdx, a.hasType = layout.IndexOf(protocol.NameType)
	a.crcIdx, a.hasCRC = layout.IndexOf(protocol.NameCRC)
	return a
}

func (a *TxAssembler) reset() {
	for i, f := range a.layout.Iter() {
		if f.Kind == protocol.KindVariable {
			a.sizes[i] = 0
		} else {
			a.sizes[i] = f.Size
		}
	}
}

// SendPacket resolves sizes, fills the frame buffer, computes
// LEN/ALEN/CRC, and writes the frame to transport in declaration
// order. It returns the total bytes written.
func (a *TxAssembler) SendPacket(ctx context.Context, transport Transport, values ...protocol.FieldValue) (int, error) {
	if transport == nil {
		return 0, protocol.ErrNoTransport
	}
	start := time.Now()
	defer func() { observability.RecordTxDuration(a.layout.Name(), time.Since(start)) }()
	a.reset()

	byName := make(map[protocol.FieldName]protocol.FieldValue, len(values))
	for _, v := range values {
		byName[v.Name] = v
	}

	if err := a.resolveType(byName); err != nil {
		return 0, err
	}
	if err := a.resolveSizes(byName); err != nil {
		return 0, err
	}
	if err := a.fillFields(byName); err != nil {
		return 0, err
	}
	a.runTxMatchers()

	total := 0
	for i, f := range a.layout.Iter() {
		if f.Flags.Has(protocol.FlagSuppress) {
			continue
		}
		span := a.bufs[i][:a.sizes[i]]
		ok, err := transport.Write(ctx, span)
		if err != nil {
			return total, err
		}
		if !ok {
			return total, protocol.ErrTransportFailure
		}
		total += len(span)
	}
	return total, nil
}

// resolveType infers the TYPE field's value from the DATA payload's
// concrete variant when the caller supplied DATA but not TYPE.
func (a *TxAssembler) resolveType(byName map[protocol.FieldName]protocol.FieldValue) error {
	if a.dataIdx < 0 || !a.hasType {
		return nil
	}
	if _, gotType := byName[protocol.NameType]; gotType {
		return nil
	}
	dataVal, gotData := byName[protocol.NameData]
	if !gotData {
		return nil
	}
	spec := a.layout.At(a.dataIdx)
	if spec.Payload == nil {
		return nil
	}
	code, err := inferTypeCode(spec.Payload, dataVal)
	if err != nil {
		return err
	}
	typeSpec := a.layout.At(a.typeIdx)
	byName[protocol.NameType] = protocol.FieldValue{
		Name:  protocol.NameType,
		Bytes: uintToBytes(uint64(code), typeSpec.Size),
	}
	return nil
}

func inferTypeCode(m *protocol.PayloadMap, v protocol.FieldValue) (uint32, error) {
	if v.PayloadKind != nil {
		if code, ok := m.CodeForKind(*v.PayloadKind); ok {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: cannot infer TYPE from DATA payload", protocol.ErrUnknownPayloadType)
}

func (a *TxAssembler) resolveSizes(byName map[protocol.FieldName]protocol.FieldValue) error {
	for i, f := range a.layout.Iter() {
		v, ok := byName[f.Name]
		if !ok {
			continue
		}
		switch f.Kind {
		case protocol.KindVariable:
			if f.Payload != nil {
				if typeVal, hasType := byName[protocol.NameType]; hasType && i == a.dataIdx {
					code := uint32(bytesToUintTx(typeVal.Bytes))
					kind, ok := f.Payload.Lookup(code)
					if !ok {
						return fmt.Errorf("%w: type code %d", protocol.ErrUnknownPayloadType, code)
					}
					if kind.Fixed && len(v.Bytes) != kind.Size {
						return fmt.Errorf("%w: field %s", protocol.ErrSizeMismatch, f.Name)
					}
				}
			}
			if len(v.Bytes) > f.MaxSize {
				return fmt.Errorf("%w: field %s", protocol.ErrPayloadTooLarge, f.Name)
			}
			a.sizes[i] = len(v.Bytes)
		default:
			if len(v.Bytes) != f.Size {
				return fmt.Errorf("%w: field %s expects %d bytes, got %d", protocol.ErrSizeMismatch, f.Name, f.Size, len(v.Bytes))
			}
		}
	}
	return nil
}

func (a *TxAssembler) fillFields(byName map[protocol.FieldName]protocol.FieldValue) error {
	for i, f := range a.layout.Iter() {
		if v, ok := byName[f.Name]; ok {
			b := v.Bytes
			if f.Flags.Has(protocol.FlagReverse) {
				b = reversedCopyTx(b)
			}
			copy(a.bufs[i], b)
			continue
		}
		if f.Kind == protocol.KindConst {
			b := f.Const
			if f.Flags.Has(protocol.FlagReverse) {
				b = reversedCopyTx(b)
			}
			copy(a.bufs[i], b)
			continue
		}
		switch f.Matcher {
		case protocol.MatcherSetDataLen, protocol.MatcherCheckAlen, protocol.MatcherCheckCRC:
			continue // filled by runTxMatchers
		}
		if !f.Flags.Has(protocol.FlagSuppress) {
			return protocol.MissingFieldError{Name: f.Name}
		}
	}
	return nil
}

// runTxMatchers writes LEN, ALEN, and CRC once every other field's
// bytes are in place, mirroring the original's SetLenTx/SetAlenTx/
// SetCrcTx.
func (a *TxAssembler) runTxMatchers() {
	if a.hasLen {
		total := 0
		for i, f := range a.layout.Iter() {
			if f.Flags.Has(protocol.FlagIsInLen) {
				total += a.sizes[i]
			}
		}
		a.writeScalar(a.lenIdx, uint64(total))
	}
	if a.hasAlen {
		lenBytes := a.bufs[a.lenIdx][:a.sizes[a.lenIdx]]
		mask := maskForWidthTx(len(lenBytes))
		val := (^bytesToUintTx(lenBytes)) & mask
		a.writeScalar(a.alenIdx, val)
	}
	if a.hasCRC {
		a.crcAlg.Reset()
		var state uint32
		for i, f := range a.layout.Iter() {
			if f.Flags.Has(protocol.FlagIsInCRC) {
				state = a.crcAlg.Append(state, a.bufs[i][:a.sizes[i]])
			}
		}
		a.writeScalar(a.crcIdx, uint64(state)&maskForWidthTx(a.crcAlg.Width()/8))
	}
}

func (a *TxAssembler) writeScalar(idx int, val uint64) {
	width := a.sizes[idx]
	if width == 0 {
		width = a.layout.At(idx).Size
		a.sizes[idx] = width
	}
	b := uintToBytes(val, width)
	if a.layout.At(idx).Flags.Has(protocol.FlagReverse) {
		b = reversedCopyTx(b)
	}
	copy(a.bufs[idx], b)
}

func uintToBytes(v uint64, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func bytesToUintTx(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func maskForWidthTx(byteWidth int) uint64 {
	if byteWidth >= 8 {
		return ^uint64(0)
	}
	if byteWidth <= 0 {
		return 0
	}
	return (uint64(1) << uint(8*byteWidth)) - 1
}

func reversedCopyTx(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
