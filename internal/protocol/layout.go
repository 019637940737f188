package protocol

import "fmt"

// FieldLayout is an ordered, immutable sequence of FieldSpecs with
// distinct names that together describe one direction of one
// protocol frame.
type FieldLayout struct {
	name   string
	fields []FieldSpec
	index  map[FieldName]int
}

// NewFieldLayout validates specs and builds a FieldLayout. It catches
// at construction time the contradictions that would otherwise need a
// runtime "can't happen" panic deep inside the RX/TX hot path:
// duplicate names, a dynamic DATA field with neither a LEN field nor a
// TYPE field whose PayloadMap variants are all fixed-size to resolve
// its size, and an ALEN/CRC field with no corresponding LEN/
// CRC-window field to check against.
func NewFieldLayout(name string, specs ...FieldSpec) (*FieldLayout, error) {
	index := make(map[FieldName]int, len(specs))
	for i, s := range specs {
		if _, dup := index[s.Name]; dup {
			return nil, &LayoutError{Layout: name, Reason: fmt.Sprintf("duplicate field %s", s.Name)}
		}
		index[s.Name] = i
	}

	fields := make([]FieldSpec, len(specs))
	copy(fields, specs)
	bindDefaultMatchers(fields, index)

	l := &FieldLayout{name: name, fields: fields, index: index}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// bindDefaultMatchers mirrors the original container constructors: if
// LEN/ALEN/TYPE/CRC are present and have no explicit matcher, bind the
// conventional one.
func bindDefaultMatchers(fields []FieldSpec, index map[FieldName]int) {
	bind := func(name FieldName, m MatcherKind) {
		if i, ok := index[name]; ok && fields[i].Matcher == MatcherNone {
			fields[i].Matcher = m
		}
	}
	bind(NameLen, MatcherSetDataLen)
	bind(NameAlen, MatcherCheckAlen)
	bind(NameType, MatcherCheckType)
	bind(NameCRC, MatcherCheckCRC)
}

func (l *FieldLayout) validate() error {
	_, hasData := l.index[NameData]
	_, hasLen := l.index[NameLen]
	_, hasAlen := l.index[NameAlen]
	_, hasCRC := l.index[NameCRC]
	_, hasType := l.index[NameType]

	if di, ok := l.index[NameData]; ok && l.fields[di].Kind == KindVariable && !hasLen {
		// DATA can still be sized without LEN if TYPE resolves it: every
		// PayloadMap variant must be fixed-size, since CheckType is the
		// only remaining way to learn DATA's size.
		payload := l.fields[di].Payload
		if !hasType || payload == nil {
			return &LayoutError{Layout: l.name, Reason: "DATA field is dynamic but layout has no LEN field and no TYPE-resolvable PayloadMap"}
		}
		variants, _ := payload.Variants()
		for _, v := range variants {
			if !v.Fixed {
				return &LayoutError{Layout: l.name, Reason: "DATA field has a variable-size payload variant but layout has no LEN field"}
			}
		}
	}
	if hasAlen && !hasLen {
		return &LayoutError{Layout: l.name, Reason: "ALEN field present without a LEN field"}
	}
	if hasCRC {
		anyInCRC := false
		for _, f := range l.fields {
			if f.Flags.Has(FlagIsInCRC) {
				anyInCRC = true
				break
			}
		}
		if !anyInCRC {
			return &LayoutError{Layout: l.name, Reason: "CRC field present but no field is flagged IS_IN_CRC"}
		}
	}
	if hasData && hasType {
		di := l.index[NameData]
		if l.fields[di].Kind == KindVariable && l.fields[di].Payload == nil {
			return &LayoutError{Layout: l.name, Reason: "TYPE field present but DATA field has no PayloadMap"}
		}
	}
	if hasData {
		di := l.index[NameData]
		if hasLen && l.index[NameLen] > di {
			return &LayoutError{Layout: l.name, Reason: "LEN field must be declared before DATA"}
		}
		if hasType && l.index[NameType] > di {
			return &LayoutError{Layout: l.name, Reason: "TYPE field must be declared before DATA"}
		}
	}
	return nil
}

// Name returns the layout's declared name, used in diagnostics.
func (l *FieldLayout) Name() string { return l.name }

// Get returns the spec for name, or ErrNoSuchField.
func (l *FieldLayout) Get(name FieldName) (FieldSpec, error) {
	i, ok := l.index[name]
	if !ok {
		return FieldSpec{}, fmt.Errorf("%w: %s", ErrNoSuchField, name)
	}
	return l.fields[i], nil
}

// MustGet returns the spec for name and panics if absent. Intended for
// construction-time or test code where the name is known to exist;
// never called from the RX/TX hot path.
func (l *FieldLayout) MustGet(name FieldName) FieldSpec {
	spec, err := l.Get(name)
	if err != nil {
		panic(err)
	}
	return spec
}

// Has reports whether the layout declares name.
func (l *FieldLayout) Has(name FieldName) bool {
	_, ok := l.index[name]
	return ok
}

// IndexOf returns the declaration-order position of name.
func (l *FieldLayout) IndexOf(name FieldName) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

// SizeOf returns the static size of name, if it has one (KindVariable
// fields have no static size).
func (l *FieldLayout) SizeOf(name FieldName) (int, bool) {
	spec, err := l.Get(name)
	if err != nil || spec.Kind == KindVariable {
		return 0, false
	}
	return spec.Size, true
}

// Iter returns the specs in declaration order. The returned slice must
// not be mutated by callers.
func (l *FieldLayout) Iter() []FieldSpec { return l.fields }

// Len returns the number of fields in the layout.
func (l *FieldLayout) Len() int { return len(l.fields) }

// At returns the spec at declaration-order index i.
func (l *FieldLayout) At(i int) FieldSpec { return l.fields[i] }
