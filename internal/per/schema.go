package per

import (
	"math"

	"github.com/pkg/errors"
)

// Type is a static schema declaration. Only the members relevant to Kind are
// consulted by the encoder and decoder.
type Type struct {
	Name string
	Kind Kind

	// KindSequence
	Fields []Field

	// KindChoice
	Alternatives []Alternative

	// KindList
	Item *Type

	// KindList, KindString, KindBytes
	Size SizeRange

	// KindInteger; nil means unconstrained.
	Range *IntRange

	// KindEnum
	Values []string
}

// Field is one component of a SEQUENCE.
type Field struct {
	Name     string
	Type     *Type
	Optional bool
}

// Alternative is one arm of a CHOICE.
type Alternative struct {
	Tag  string
	Type *Type
}

// IntRange is an inclusive INTEGER value constraint.
type IntRange struct {
	Lower int64
	Upper int64
}

// SizeRange constrains the number of items, octets or characters. When
// Bounded is false only Min applies and the count is sent as a general
// length determinant.
type SizeRange struct {
	Min     int
	Max     int
	Bounded bool
}

// Schema names a root type so that it can be looked up in a Codec.
type Schema struct {
	ID   string
	Root *Type
}

// Size returns a bounded size constraint.
func Size(min, max int) SizeRange {
	return SizeRange{Min: min, Max: max, Bounded: true}
}

// Fixed returns a size constraint with exactly n elements.
func Fixed(n int) SizeRange {
	return Size(n, n)
}

// AtLeast returns a size constraint with a lower bound only.
func AtLeast(min int) SizeRange {
	return SizeRange{Min: min}
}

// NewSequence declares a SEQUENCE.
func NewSequence(name string, fields ...Field) *Type {
	return &Type{Name: name, Kind: KindSequence, Fields: fields}
}

// Mandatory declares a mandatory SEQUENCE component.
func Mandatory(name string, fieldType *Type) Field {
	return Field{Name: name, Type: fieldType}
}

// Optional declares an OPTIONAL SEQUENCE component.
func Optional(name string, fieldType *Type) Field {
	return Field{Name: name, Type: fieldType, Optional: true}
}

// NewChoice declares a CHOICE.
func NewChoice(name string, alternatives ...Alternative) *Type {
	return &Type{Name: name, Kind: KindChoice, Alternatives: alternatives}
}

// Alt declares one CHOICE alternative.
func Alt(tag string, alternativeType *Type) Alternative {
	return Alternative{Tag: tag, Type: alternativeType}
}

// NewList declares a SEQUENCE OF item.
func NewList(name string, item *Type, size SizeRange) *Type {
	return &Type{Name: name, Kind: KindList, Item: item, Size: size}
}

// NewInteger declares a constrained INTEGER (lower..upper).
func NewInteger(name string, lower, upper int64) *Type {
	return &Type{Name: name, Kind: KindInteger, Range: &IntRange{Lower: lower, Upper: upper}}
}

// NewUnconstrainedInteger declares an INTEGER without value constraint.
func NewUnconstrainedInteger(name string) *Type {
	return &Type{Name: name, Kind: KindInteger}
}

// NewString declares a PrintableString with the given size constraint.
func NewString(name string, size SizeRange) *Type {
	return &Type{Name: name, Kind: KindString, Size: size}
}

// NewBytes declares an OCTET STRING with the given size constraint.
func NewBytes(name string, size SizeRange) *Type {
	return &Type{Name: name, Kind: KindBytes, Size: size}
}

// NewEnum declares an ENUMERATED with the given items, in index order.
func NewEnum(name string, values ...string) *Type {
	return &Type{Name: name, Kind: KindEnum, Values: values}
}

// alternativeIndex returns the index of tag in the choice, or -1.
func (t *Type) alternativeIndex(tag string) int {
	for index, alternative := range t.Alternatives {
		if alternative.Tag == tag {
			return index
		}
	}
	return -1
}

// enumIndex returns the index of item in the enumeration, or -1.
func (t *Type) enumIndex(item string) int {
	for index, value := range t.Values {
		if value == item {
			return index
		}
	}
	return -1
}

// Validate checks that a type tree is well formed: every choice and
// enumeration is non-empty, every range is ordered, names are unique and
// size bounds fit the length determinant.
func Validate(root *Type) error {
	return validateType(root, root.nameOrKind(), make(map[*Type]bool))
}

func validateType(t *Type, path string, visited map[*Type]bool) error {
	if t == nil {
		return errors.Errorf("%s: nil type", path)
	}
	if visited[t] {
		return nil
	}
	visited[t] = true

	switch t.Kind {
	case KindSequence:
		seen := make(map[string]bool, len(t.Fields))
		for _, field := range t.Fields {
			if field.Name == "" {
				return errors.Errorf("%s: unnamed field", path)
			}
			if seen[field.Name] {
				return errors.Errorf("%s: duplicated field %q", path, field.Name)
			}
			seen[field.Name] = true
			if err := validateType(field.Type, path+"."+field.Name, visited); err != nil {
				return err
			}
		}
	case KindChoice:
		if len(t.Alternatives) == 0 {
			return errors.Errorf("%s: choice without alternatives", path)
		}
		seen := make(map[string]bool, len(t.Alternatives))
		for _, alternative := range t.Alternatives {
			if seen[alternative.Tag] {
				return errors.Errorf("%s: duplicated alternative %q", path, alternative.Tag)
			}
			seen[alternative.Tag] = true
			if err := validateType(alternative.Type, path+"."+alternative.Tag, visited); err != nil {
				return err
			}
		}
	case KindList:
		if err := validateSize(t.Size, path); err != nil {
			return err
		}
		return validateType(t.Item, path+"[]", visited)
	case KindString, KindBytes:
		return validateSize(t.Size, path)
	case KindInteger:
		if t.Range != nil && t.Range.Lower > t.Range.Upper {
			return errors.Errorf("%s: integer range %d..%d is empty", path, t.Range.Lower, t.Range.Upper)
		}
	case KindEnum:
		if len(t.Values) == 0 {
			return errors.Errorf("%s: enumeration without items", path)
		}
	default:
		return errors.Errorf("%s: unknown kind %s", path, t.Kind)
	}

	return nil
}

func validateSize(size SizeRange, path string) error {
	if size.Min < 0 {
		return errors.Errorf("%s: negative minimum size", path)
	}
	if size.Bounded && size.Max < size.Min {
		return errors.Errorf("%s: size range %d..%d is empty", path, size.Min, size.Max)
	}
	if size.Bounded && size.Max > math.MaxInt32 {
		return errors.Errorf("%s: size bound %d too large", path, size.Max)
	}
	return nil
}

func (t *Type) nameOrKind() string {
	if t == nil {
		return "<nil>"
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}
