// Package ymodem is a reference consumer of this module's own
// field/layout/matcher machinery: it frames YMODEM SOH/STX blocks as
// a FieldLayout and drives them through TxAssembler/RxEngine, exactly
// as any other protocol built on this library would. Grounded on the
// original YmodemPrerelease sender (protocols/lacte/Ymodem.hpp/.cpp).
//
// It is a boundary consumer, not a core dependency: it imports
// internal/protocol, internal/protocol/rx, internal/protocol/tx, and
// internal/transport, never the reverse.
package ymodem

import "github.com/danmuck/wireframe/internal/protocol"

const (
	SOH           byte = 0x01
	STX           byte = 0x02
	EOT           byte = 0x04
	ACK           byte = 0x06
	NAK           byte = 0x15
	CAN           byte = 0x18
	OnlineCommand byte = 0x43 // 'C'
	Abort1        byte = 0x41 // 'A'
	Abort2        byte = 0x61 // 'a'

	HeaderSize = 128
	BlockSize  = 1024
)

// BuildLayout constructs the block layout shared by Sender and
// Receiver: TYPE (SOH|STX marker) | NUMBER | complement | DATA | CRC.
// The complement byte is carried under NameStatus rather than
// NameAlen: ALEN's built-in matcher (MatcherCheckAlen) verifies a
// field against LEN, and this layout has no LEN field at all — DATA's
// size is resolved entirely from TYPE (both PayloadMap variants are
// fixed-size). Tagging the complement byte ALEN would claim a
// semantic it doesn't have; NameStatus carries a plain value with no
// default matcher bound.
func BuildLayout() (*protocol.FieldLayout, error) {
	payload, err := protocol.NewPayloadMap(
		protocol.PayloadEntry{TypeCode: uint32(SOH), Kind: protocol.PayloadFixed(HeaderSize)},
		protocol.PayloadEntry{TypeCode: uint32(STX), Kind: protocol.PayloadFixed(BlockSize)},
	)
	if err != nil {
		return nil, err
	}
	return protocol.NewFieldLayout("ymodem-block",
		protocol.Fixed(protocol.NameType, 1, protocol.FlagNone),
		protocol.Fixed(protocol.NameNumber, 1, protocol.FlagNone),
		protocol.Fixed(protocol.NameStatus, 1, protocol.FlagNone),
		protocol.Variable(protocol.NameData, BlockSize, payload, protocol.FlagIsInCRC),
		protocol.Fixed(protocol.NameCRC, 2, protocol.FlagNone),
	)
}
