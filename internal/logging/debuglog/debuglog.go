// Package debuglog renders the RX engine's mismatch diagnostics: a
// compact per-field byte dump bracketed by a
// "BROKEN PACKET" delimiter, grounded on the original container's
// std::cout dump but routed through zerolog so it can be silenced,
// captured in tests, and scraped like any other structured log line.
package debuglog

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger gates the diagnostic dump behind an Enabled flag so it costs
// nothing when disabled (no string building, no log call).
type Logger struct {
	Enabled bool
}

// FieldDump is one field's received-bytes snapshot at the point a
// frame was rejected.
type FieldDump struct {
	Name  string
	Bytes []byte
}

// BrokenPacket logs the fields received so far in a rejected frame,
// plus the reason the rejecting field gave.
func (l Logger) BrokenPacket(reason string, fields []FieldDump) {
	if !l.Enabled {
		return
	}
	ev := log.Debug()
	for _, f := range fields {
		ev = ev.Str(f.Name, hex.EncodeToString(f.Bytes))
	}
	ev.Str("delimiter", "BROKEN PACKET").Msg(reason)
}

// MismatchLen logs a LEN mismatch with expected/received values.
func (l Logger) MismatchLen(expected, received uint64) {
	if !l.Enabled {
		return
	}
	log.Debug().
		Str("expected", fmt.Sprintf("%d (0x%X)", expected, expected)).
		Str("received", fmt.Sprintf("%d (0x%X)", received, received)).
		Msg("Mismatch in length field")
}

// MismatchAlen logs an ALEN mismatch.
func (l Logger) MismatchAlen(expected, received uint64) {
	if !l.Enabled {
		return
	}
	log.Debug().
		Str("expected", fmt.Sprintf("0x%X", expected)).
		Str("received", fmt.Sprintf("0x%X", received)).
		Msg("Mismatch in ALEN field")
}

// MismatchType logs an unrecognized TYPE code.
func (l Logger) MismatchType(code uint32) {
	if !l.Enabled {
		return
	}
	log.Debug().Uint32("type", code).Msg("Incorrect type received")
}

// MismatchCrc logs a CRC mismatch.
func (l Logger) MismatchCrc(expected, received uint64, width int) {
	if !l.Enabled {
		return
	}
	log.Debug().
		Str("expected", fmt.Sprintf("0x%0*X", width/4, expected)).
		Str("received", fmt.Sprintf("0x%0*X", width/4, received)).
		Msg("Mismatch in CRC field")
}

var _ = zerolog.Disabled // keep zerolog import meaningful if log level tuning moves here
