package crc

import "hash/crc32"

// CRC32IEEE is the table-driven 32-bit CRC with the reflected
// polynomial 0xEDB88320, matching the original CrcSoft policy. The
// lookup table is borrowed from the standard library's hash/crc32
// (crc32.IEEETable) rather than hand-transcribed: it is the same
// reflected-CRC32 table CrcSoft builds, and hash/crc32 is the
// ecosystem's idiomatic source for it in Go — see DESIGN.md.
type CRC32IEEE struct{}

func (CRC32IEEE) Reset() {}

func (CRC32IEEE) Append(state uint32, data []byte) uint32 {
	return crc32.Update(state, crc32.IEEETable, data)
}

func (CRC32IEEE) Width() int { return 32 }
