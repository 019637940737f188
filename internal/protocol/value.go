package protocol

import (
	"encoding/binary"
	"time"
)

// FieldValue is one (name, bytes) pair supplied by a caller to
// TxAssembler.SendPacket, or produced for a FrameSnapshot.
//
// Scalars are stored big-endian in Bytes at their wire width; callers
// never see the width directly, only the typed accessors below.
type FieldValue struct {
	Name  FieldName
	Bytes []byte
	// PayloadKind is set only for the DATA field of a layout that uses
	// a PayloadMap; it records which variant Bytes decodes as.
	PayloadKind *PayloadKind
}

// Uint8Value builds a one-byte scalar FieldValue.
func Uint8Value(name FieldName, v uint8) FieldValue {
	return FieldValue{Name: name, Bytes: []byte{v}}
}

// Uint16Value builds a two-byte big-endian scalar FieldValue.
func Uint16Value(name FieldName, v uint16) FieldValue {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return FieldValue{Name: name, Bytes: buf}
}

// Uint32Value builds a four-byte big-endian scalar FieldValue.
func Uint32Value(name FieldName, v uint32) FieldValue {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return FieldValue{Name: name, Bytes: buf}
}

// Uint64Value builds an eight-byte big-endian scalar FieldValue.
func Uint64Value(name FieldName, v uint64) FieldValue {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return FieldValue{Name: name, Bytes: buf}
}

// BytesValue builds a byte-array FieldValue, copying v.
func BytesValue(name FieldName, v []byte) FieldValue {
	buf := make([]byte, len(v))
	copy(buf, v)
	return FieldValue{Name: name, Bytes: buf}
}

// Uint8 interprets the value as a one-byte scalar.
func (v FieldValue) Uint8() (uint8, bool) {
	if len(v.Bytes) != 1 {
		return 0, false
	}
	return v.Bytes[0], true
}

// Uint16 interprets the value as a big-endian two-byte scalar.
func (v FieldValue) Uint16() (uint16, bool) {
	if len(v.Bytes) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v.Bytes), true
}

// Uint32 interprets the value as a big-endian four-byte scalar.
func (v FieldValue) Uint32() (uint32, bool) {
	if len(v.Bytes) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v.Bytes), true
}

// Uint64 interprets the value as a big-endian eight-byte scalar.
func (v FieldValue) Uint64() (uint64, bool) {
	if len(v.Bytes) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v.Bytes), true
}

// FrameSnapshot is an immutable, named copy of every field's decoded
// value for one completed RX frame.
type FrameSnapshot struct {
	Layout     *FieldLayout
	ReceivedAt time.Time
	values     map[FieldName]FieldValue
}

// NewFrameSnapshot builds a snapshot from a field name -> value map,
// deep-copying byte slices so the snapshot is safe to retain after the
// engine resets and reuses its frame buffer. Called by RxEngine once a
// frame completes.
func NewFrameSnapshot(layout *FieldLayout, receivedAt time.Time, values map[FieldName]FieldValue) FrameSnapshot {
	copied := make(map[FieldName]FieldValue, len(values))
	for name, v := range values {
		buf := make([]byte, len(v.Bytes))
		copy(buf, v.Bytes)
		copied[name] = FieldValue{Name: name, Bytes: buf, PayloadKind: v.PayloadKind}
	}
	return FrameSnapshot{Layout: layout, ReceivedAt: receivedAt, values: copied}
}

// Get returns the decoded value of name, or (zero, false) if the
// layout has no such field.
func (s FrameSnapshot) Get(name FieldName) (FieldValue, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Fields returns the names present in the snapshot, in no particular
// order.
func (s FrameSnapshot) Fields() []FieldName {
	out := make([]FieldName, 0, len(s.values))
	for name := range s.values {
		out = append(out, name)
	}
	return out
}
