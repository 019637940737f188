package protocol

// FieldSpec is an immutable description of one field within a layout.
type FieldSpec struct {
	Name    FieldName
	Kind    WireKind
	Flags   FieldFlags
	Size    int // static wire width for KindScalar/KindArray/KindConst
	MaxSize int // upper bound for KindVariable payloads
	Const   []byte
	Matcher MatcherKind
	Payload *PayloadMap // only set for KindVariable
}

// Fixed declares a fixed-width scalar field (e.g. a LEN or ALEN byte,
// a uint16 sequence number).
func Fixed(name FieldName, width int, flags FieldFlags) FieldSpec {
	return FieldSpec{Name: name, Kind: KindScalar, Size: width, Flags: flags | FlagConstSize}
}

// FixedArray declares a fixed-width byte array field.
func FixedArray(name FieldName, width int, flags FieldFlags) FieldSpec {
	return FieldSpec{Name: name, Kind: KindArray, Size: width, Flags: flags | FlagConstSize}
}

// Const declares a constant byte pattern field, such as a frame prefix.
func Const(name FieldName, pattern []byte, flags FieldFlags) FieldSpec {
	buf := make([]byte, len(pattern))
	copy(buf, pattern)
	return FieldSpec{Name: name, Kind: KindConst, Size: len(buf), Const: buf, Flags: flags | FlagConstSize}
}

// Variable declares a variable-length payload field whose concrete
// shape is selected at runtime by a TYPE code via payloadMap.
func Variable(name FieldName, maxSize int, payloadMap *PayloadMap, flags FieldFlags) FieldSpec {
	return FieldSpec{Name: name, Kind: KindVariable, MaxSize: maxSize, Payload: payloadMap, Flags: flags}
}

// WithMatcher returns a copy of the spec bound to the given built-in
// matcher. Layout construction binds the conventional matchers
// (SetDataLen on LEN, CheckAlen on ALEN, CheckType on TYPE, CheckCRC on
// CRC) automatically when the corresponding field is present and has
// no explicit matcher; WithMatcher lets a caller override that.
func (f FieldSpec) WithMatcher(m MatcherKind) FieldSpec {
	f.Matcher = m
	return f
}
