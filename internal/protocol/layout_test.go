package protocol

import (
	"errors"
	"testing"
)

func TestNewFieldLayoutRejectsDuplicateField(t *testing.T) {
	_, err := NewFieldLayout("dup",
		Fixed(NameLen, 1, FlagNone),
		Fixed(NameLen, 1, FlagNone),
	)
	var layoutErr *LayoutError
	if !errors.As(err, &layoutErr) {
		t.Fatalf("expected *LayoutError, got %v", err)
	}
}

func TestNewFieldLayoutBindsDefaultMatchers(t *testing.T) {
	layout, err := NewFieldLayout("matchers",
		Fixed(NameLen, 1, FlagIsInLen),
		Fixed(NameAlen, 1, FlagIsInLen),
		FixedArray(NameData, 4, FlagIsInLen),
	)
	if err != nil {
		t.Fatalf("build layout: %v", err)
	}
	if layout.MustGet(NameLen).Matcher != MatcherSetDataLen {
		t.Fatalf("LEN should bind MatcherSetDataLen")
	}
	if layout.MustGet(NameAlen).Matcher != MatcherCheckAlen {
		t.Fatalf("ALEN should bind MatcherCheckAlen")
	}
}

func TestNewFieldLayoutRejectsAlenWithoutLen(t *testing.T) {
	_, err := NewFieldLayout("alen-only",
		Fixed(NameAlen, 1, FlagNone),
	)
	if err == nil {
		t.Fatalf("expected error for ALEN without LEN")
	}
}

func TestNewFieldLayoutRejectsDynamicDataWithoutLenOrType(t *testing.T) {
	payload, err := NewPayloadMap(PayloadEntry{TypeCode: 1, Kind: PayloadBytes(32)})
	if err != nil {
		t.Fatalf("build payload map: %v", err)
	}
	_, err = NewFieldLayout("no-size-route",
		Variable(NameData, 32, payload, FlagNone),
	)
	if err == nil {
		t.Fatalf("expected error: DATA has no LEN and no TYPE to resolve size")
	}
}

func TestNewFieldLayoutAllowsTypeResolvedDataWithoutLen(t *testing.T) {
	payload, err := NewPayloadMap(
		PayloadEntry{TypeCode: 1, Kind: PayloadFixed(19)},
		PayloadEntry{TypeCode: 2, Kind: PayloadFixed(1)},
	)
	if err != nil {
		t.Fatalf("build payload map: %v", err)
	}
	_, err = NewFieldLayout("type-resolved",
		Fixed(NameType, 1, FlagNone),
		Variable(NameData, 19, payload, FlagNone),
	)
	if err != nil {
		t.Fatalf("expected TYPE+all-fixed PayloadMap to satisfy DATA sizing: %v", err)
	}
}

func TestNewFieldLayoutRejectsTypeResolvedDataWithVariableVariant(t *testing.T) {
	payload, err := NewPayloadMap(
		PayloadEntry{TypeCode: 1, Kind: PayloadFixed(19)},
		PayloadEntry{TypeCode: 2, Kind: PayloadBytes(64)},
	)
	if err != nil {
		t.Fatalf("build payload map: %v", err)
	}
	_, err = NewFieldLayout("mixed-variants",
		Fixed(NameType, 1, FlagNone),
		Variable(NameData, 64, payload, FlagNone),
	)
	if err == nil {
		t.Fatalf("expected error: one variant is not fixed-size, TYPE alone cannot size DATA")
	}
}

func TestNewFieldLayoutRejectsCrcWithoutAnyInCrcField(t *testing.T) {
	_, err := NewFieldLayout("crc-no-window",
		FixedArray(NameData, 4, FlagNone),
		Fixed(NameCRC, 2, FlagNone),
	)
	if err == nil {
		t.Fatalf("expected error: CRC field present but no field flagged IS_IN_CRC")
	}
}

func TestNewFieldLayoutRejectsLenDeclaredAfterData(t *testing.T) {
	_, err := NewFieldLayout("bad-order",
		FixedArray(NameData, 4, FlagIsInLen),
		Fixed(NameLen, 1, FlagIsInLen),
	)
	if err == nil {
		t.Fatalf("expected error: LEN declared after DATA")
	}
}

func TestFieldLayoutIndexOfAndSizeOf(t *testing.T) {
	layout, err := NewFieldLayout("sizes",
		Fixed(NameLen, 1, FlagIsInLen),
		FixedArray(NameData, 4, FlagIsInLen),
	)
	if err != nil {
		t.Fatalf("build layout: %v", err)
	}
	if idx, ok := layout.IndexOf(NameData); !ok || idx != 1 {
		t.Fatalf("expected DATA at index 1, got idx=%d ok=%v", idx, ok)
	}
	if size, ok := layout.SizeOf(NameLen); !ok || size != 1 {
		t.Fatalf("expected LEN size 1, got size=%d ok=%v", size, ok)
	}
}
