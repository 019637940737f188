// Package protocol owns the field/layout contract shared by the RX engine
// and the TX assembler.
//
// Ownership boundary:
//   - field descriptors and flags (FieldSpec, FieldFlags, FieldName)
//   - layout construction and lookup (FieldLayout)
//   - variable-length payload selection (PayloadField, PayloadMap)
//   - decoded frame snapshots (FrameSnapshot)
//
// The RX state machine lives in protocol/rx, the TX assembler in
// protocol/tx, and CRC policies in protocol/crc. rx and tx both import
// crc for its Algorithm interface but not each other, and crc imports
// neither.
package protocol
