package protocol

import "fmt"

// PayloadKind describes one alternative a PayloadMap can select.
//
// PayloadFixed is a plain type with a known byte length. PayloadBytes
// is a variable-length byte array bounded by MaxSize. PayloadEmpty
// marks a type code that carries no bytes at all.
type PayloadKind struct {
	Fixed   bool
	MaxSize int // meaningful only when !Fixed
	Size    int // meaningful only when Fixed; 0 for PayloadEmpty
	Empty   bool
}

// PayloadFixed declares a fixed-size payload alternative.
func PayloadFixed(size int) PayloadKind { return PayloadKind{Fixed: true, Size: size} }

// PayloadBytes declares a variable-length payload alternative.
func PayloadBytes(maxSize int) PayloadKind { return PayloadKind{Fixed: false, MaxSize: maxSize} }

// PayloadEmpty declares a marker alternative carrying zero bytes.
func PayloadEmpty() PayloadKind { return PayloadKind{Fixed: true, Size: 0, Empty: true} }

func (k PayloadKind) sizeOf() (int, bool) {
	if k.Fixed {
		return k.Size, true
	}
	return 0, false
}

// PayloadEntry binds one runtime type code to a payload alternative.
type PayloadEntry struct {
	TypeCode uint32
	Kind     PayloadKind
}

// PayloadMap is the ordered, finite set of type-code -> payload-kind
// associations for one variable-length field. Two distinct codes may
// map to the same PayloadKind; the deduplicated set of distinct kinds
// is exposed by Variants.
type PayloadMap struct {
	entries []PayloadEntry
	byCode  map[uint32]int // code -> index into entries
}

// NewPayloadMap builds a PayloadMap from entries, rejecting duplicate
// type codes.
func NewPayloadMap(entries ...PayloadEntry) (*PayloadMap, error) {
	byCode := make(map[uint32]int, len(entries))
	for i, e := range entries {
		if _, dup := byCode[e.TypeCode]; dup {
			return nil, fmt.Errorf("protocol: duplicate payload type code %d", e.TypeCode)
		}
		byCode[e.TypeCode] = i
	}
	return &PayloadMap{entries: entries, byCode: byCode}, nil
}

// Lookup returns the payload kind bound to code, if any.
func (m *PayloadMap) Lookup(code uint32) (PayloadKind, bool) {
	i, ok := m.byCode[code]
	if !ok {
		return PayloadKind{}, false
	}
	return m.entries[i].Kind, true
}

// CodeForKind returns the first registered type code whose payload
// kind equals kind. Used by the TX assembler to infer TYPE from a
// caller-supplied DATA value when TYPE was not given explicitly.
func (m *PayloadMap) CodeForKind(kind PayloadKind) (uint32, bool) {
	for _, e := range m.entries {
		if e.Kind == kind {
			return e.TypeCode, true
		}
	}
	return 0, false
}

// Variants returns the deduplicated set of distinct payload kinds in
// the map, plus a code->index map into that deduplicated slice. Layout
// validation uses it to check variant sizes; a FrameSnapshot's DATA
// value carries the active PayloadKind itself, not an index into this
// slice.
func (m *PayloadMap) Variants() ([]PayloadKind, map[uint32]int) {
	variants := make([]PayloadKind, 0, len(m.entries))
	seen := make(map[PayloadKind]int)
	codeToVariant := make(map[uint32]int, len(m.entries))
	for _, e := range m.entries {
		idx, ok := seen[e.Kind]
		if !ok {
			idx = len(variants)
			variants = append(variants, e.Kind)
			seen[e.Kind] = idx
		}
		codeToVariant[e.TypeCode] = idx
	}
	return variants, codeToVariant
}

// PayloadField is the runtime state of a KindVariable FieldSpec: which
// type code (and thus which PayloadKind) is currently active.
type PayloadField struct {
	Spec       FieldSpec
	activeCode uint32
	activeKind PayloadKind
	hasActive  bool
}

// NewPayloadField returns a runtime payload field for spec, which must
// have Kind == KindVariable.
func NewPayloadField(spec FieldSpec) *PayloadField {
	return &PayloadField{Spec: spec}
}

// SetTypeCode selects the active variant by type code. It returns
// false if the code has no PayloadMap entry.
func (p *PayloadField) SetTypeCode(code uint32) bool {
	kind, ok := p.Spec.Payload.Lookup(code)
	if !ok {
		p.hasActive = false
		return false
	}
	p.activeCode = code
	p.activeKind = kind
	p.hasActive = true
	return true
}

// SizeOfActive returns the active variant's size, or (0, false) if the
// variant is dynamically sized (PayloadBytes) or no variant is active.
func (p *PayloadField) SizeOfActive() (int, bool) {
	if !p.hasActive {
		return 0, false
	}
	return p.activeKind.sizeOf()
}

// Active returns the currently selected payload kind and whether one
// has been selected.
func (p *PayloadField) Active() (PayloadKind, bool) {
	return p.activeKind, p.hasActive
}
