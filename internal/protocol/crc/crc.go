// Package crc provides the pluggable checksum interface shared by the
// RX engine's CheckCRC matcher and the TX assembler's SetCrcTx
// matcher, plus three reference algorithms.
package crc

// Algorithm is a stateful, value-semantics checksum policy. Reset and
// Append never do I/O; Append is the incremental primitive, Calc is
// Reset followed by a single Append.
type Algorithm interface {
	Reset()
	// Append folds data into state and returns the new state. The
	// caller passes 0 as the initial state only when Reset has just
	// been called; implementations that need a non-zero seed (e.g.
	// CRC16Modbus's 0xFFFF) apply it inside Reset/Append themselves.
	Append(state uint32, data []byte) uint32
	// Width is the algorithm's native checksum width in bits: 8, 16,
	// or 32. The CRC field's own wire width decides how many low-order
	// bits of the state go on the wire.
	Width() int
}

// Calc resets alg and returns the checksum of data in one call.
func Calc(alg Algorithm, data []byte) uint32 {
	alg.Reset()
	return alg.Append(0, data)
}
