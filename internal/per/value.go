// Package per implements the schema-driven, bit-packed encoding used for E2AP
// and E2SM-KPM payloads. Values are modelled as a closed set of variants
// (Sequence, Choice, List, Integer, String, Bytes, Enum) and are encoded
// against static Type trees declared by the protocol packages.
//
// The encoding follows unaligned PER conventions: constrained integers use
// the minimal bit width of their range, choices and enumerations carry an
// explicit index, optional fields are announced by a presence bitmap and
// sequences-of are length prefixed.
package per

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates Value variants and Type declarations.
type Kind uint8

const (
	KindSequence Kind = iota + 1
	KindChoice
	KindList
	KindInteger
	KindString
	KindBytes
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "SEQUENCE"
	case KindChoice:
		return "CHOICE"
	case KindList:
		return "SEQUENCE OF"
	case KindInteger:
		return "INTEGER"
	case KindString:
		return "PrintableString"
	case KindBytes:
		return "OCTET STRING"
	case KindEnum:
		return "ENUMERATED"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a decoded or to-be-encoded protocol value. The set of
// implementations is closed to the variants declared in this file.
type Value interface {
	Kind() Kind
	isValue()
}

// Sequence maps field names to values. Absent optional fields are simply
// missing from the map.
type Sequence map[string]Value

// Choice carries exactly one alternative, identified by Tag.
type Choice struct {
	Tag   string
	Value Value
}

// List is an ordered SEQUENCE OF.
type List []Value

// Integer is a signed 64-bit INTEGER.
type Integer int64

// String is a character string (PrintableString on the wire).
type String string

// Bytes is an OCTET STRING.
type Bytes []byte

// Enum is an ENUMERATED value, identified by its item name.
type Enum string

func (Sequence) Kind() Kind { return KindSequence }
func (Choice) Kind() Kind   { return KindChoice }
func (List) Kind() Kind     { return KindList }
func (Integer) Kind() Kind  { return KindInteger }
func (String) Kind() Kind   { return KindString }
func (Bytes) Kind() Kind    { return KindBytes }
func (Enum) Kind() Kind     { return KindEnum }

func (Sequence) isValue() {}
func (Choice) isValue()   {}
func (List) isValue()     {}
func (Integer) isValue()  {}
func (String) isValue()   {}
func (Bytes) isValue()    {}
func (Enum) isValue()     {}

// Names returns the field names of the sequence in sorted order.
func (s Sequence) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PathError reports a failed Lookup step.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %s: %s", e.Path, e.Reason)
}

// Lookup walks a value along path. A step into a Sequence selects the named
// field; a step into a Choice requires the chosen tag to equal the step and
// yields the alternative's value.
func Lookup(value Value, path ...string) (Value, error) {
	current := value
	walked := make([]string, 0, len(path))

	for _, step := range path {
		walked = append(walked, step)

		switch typed := current.(type) {
		case Sequence:
			next, found := typed[step]
			if !found {
				return nil, &PathError{Path: strings.Join(walked, "."), Reason: "field not present"}
			}
			current = next
		case Choice:
			if typed.Tag != step {
				return nil, &PathError{
					Path:   strings.Join(walked, "."),
					Reason: fmt.Sprintf("choice carries %q", typed.Tag),
				}
			}
			current = typed.Value
		case nil:
			return nil, &PathError{Path: strings.Join(walked, "."), Reason: "nil value"}
		default:
			return nil, &PathError{
				Path:   strings.Join(walked, "."),
				Reason: fmt.Sprintf("cannot step into %s", current.Kind()),
			}
		}
	}

	return current, nil
}

// AsSequence asserts that value is a Sequence.
func AsSequence(value Value) (Sequence, error) {
	sequence, ok := value.(Sequence)
	if !ok {
		return nil, kindMismatch(KindSequence, value)
	}
	return sequence, nil
}

// AsChoice asserts that value is a Choice.
func AsChoice(value Value) (Choice, error) {
	choice, ok := value.(Choice)
	if !ok {
		return Choice{}, kindMismatch(KindChoice, value)
	}
	return choice, nil
}

// AsList asserts that value is a List.
func AsList(value Value) (List, error) {
	list, ok := value.(List)
	if !ok {
		return nil, kindMismatch(KindList, value)
	}
	return list, nil
}

// AsInteger asserts that value is an Integer.
func AsInteger(value Value) (int64, error) {
	integer, ok := value.(Integer)
	if !ok {
		return 0, kindMismatch(KindInteger, value)
	}
	return int64(integer), nil
}

// AsString asserts that value is a String.
func AsString(value Value) (string, error) {
	text, ok := value.(String)
	if !ok {
		return "", kindMismatch(KindString, value)
	}
	return string(text), nil
}

// AsBytes asserts that value is Bytes.
func AsBytes(value Value) ([]byte, error) {
	octets, ok := value.(Bytes)
	if !ok {
		return nil, kindMismatch(KindBytes, value)
	}
	return []byte(octets), nil
}

// AsEnum asserts that value is an Enum.
func AsEnum(value Value) (string, error) {
	item, ok := value.(Enum)
	if !ok {
		return "", kindMismatch(KindEnum, value)
	}
	return string(item), nil
}

func kindMismatch(expected Kind, value Value) error {
	if value == nil {
		return errors.Errorf("expected %s, got nil", expected)
	}
	return errors.Errorf("expected %s, got %s", expected, value.Kind())
}
