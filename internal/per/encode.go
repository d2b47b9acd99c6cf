package per

import (
	"fmt"
	"sort"
)

// Marshal encodes value against t. The result is always at least one octet.
func Marshal(t *Type, value Value) ([]byte, error) {
	writer := &bitWriter{}
	if err := encodeValue(writer, t, value, t.nameOrKind()); err != nil {
		return nil, err
	}
	return writer.bytes(), nil
}

func encodeValue(w *bitWriter, t *Type, value Value, path string) error {
	if t == nil {
		return encodeErrorf(path, "no type declared")
	}
	if value == nil {
		return encodeErrorf(path, "missing value for %s", t.Kind)
	}
	if value.Kind() != t.Kind {
		return encodeErrorf(path, "expected %s, got %s", t.Kind, value.Kind())
	}

	switch t.Kind {
	case KindSequence:
		return encodeSequence(w, t, value.(Sequence), path)
	case KindChoice:
		return encodeChoice(w, t, value.(Choice), path)
	case KindList:
		return encodeList(w, t, value.(List), path)
	case KindInteger:
		return encodeInteger(w, t, int64(value.(Integer)), path)
	case KindString:
		text := string(value.(String))
		if err := encodeCount(w, len(text), t.Size, path); err != nil {
			return err
		}
		w.writeOctets([]byte(text))
		return nil
	case KindBytes:
		octets := []byte(value.(Bytes))
		if err := encodeCount(w, len(octets), t.Size, path); err != nil {
			return err
		}
		w.writeOctets(octets)
		return nil
	case KindEnum:
		return encodeEnum(w, t, string(value.(Enum)), path)
	default:
		return encodeErrorf(path, "unsupported kind %s", t.Kind)
	}
}

func encodeSequence(w *bitWriter, t *Type, sequence Sequence, path string) error {
	known := 0
	for _, field := range t.Fields {
		if _, present := sequence[field.Name]; present {
			known++
		}
	}
	if known != len(sequence) {
		var unknown []string
		for name := range sequence {
			if !t.hasField(name) {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		return encodeErrorf(path+"."+unknown[0], "unknown field")
	}

	// presence bitmap for OPTIONAL components
	for _, field := range t.Fields {
		if !field.Optional {
			continue
		}
		_, present := sequence[field.Name]
		w.writeBit(present)
	}

	for _, field := range t.Fields {
		fieldPath := path + "." + field.Name
		fieldValue, present := sequence[field.Name]
		if !present {
			if field.Optional {
				continue
			}
			return encodeErrorf(fieldPath, "mandatory field missing")
		}
		if err := encodeValue(w, field.Type, fieldValue, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func encodeChoice(w *bitWriter, t *Type, choice Choice, path string) error {
	index := t.alternativeIndex(choice.Tag)
	if index < 0 {
		return encodeErrorf(path, "unknown alternative %q", choice.Tag)
	}
	w.writeBits(uint64(index), widthFor(uint64(len(t.Alternatives)-1)))
	return encodeValue(w, t.Alternatives[index].Type, choice.Value, path+"."+choice.Tag)
}

func encodeList(w *bitWriter, t *Type, list List, path string) error {
	if err := encodeCount(w, len(list), t.Size, path); err != nil {
		return err
	}
	for index, item := range list {
		if err := encodeValue(w, t.Item, item, fmt.Sprintf("%s[%d]", path, index)); err != nil {
			return err
		}
	}
	return nil
}

func encodeInteger(w *bitWriter, t *Type, value int64, path string) error {
	if t.Range == nil {
		octets := twosComplement(value)
		if err := w.writeLength(len(octets)); err != nil {
			return encodeErrorf(path, "%v", err)
		}
		w.writeOctets(octets)
		return nil
	}

	if value < t.Range.Lower || value > t.Range.Upper {
		return encodeErrorf(path, "value %d outside %d..%d", value, t.Range.Lower, t.Range.Upper)
	}
	span := uint64(t.Range.Upper) - uint64(t.Range.Lower)
	w.writeBits(uint64(value)-uint64(t.Range.Lower), widthFor(span))
	return nil
}

func encodeEnum(w *bitWriter, t *Type, item string, path string) error {
	index := t.enumIndex(item)
	if index < 0 {
		return encodeErrorf(path, "unknown enumeration item %q", item)
	}
	w.writeBits(uint64(index), widthFor(uint64(len(t.Values)-1)))
	return nil
}

// encodeCount writes the number of items, octets or characters.
func encodeCount(w *bitWriter, n int, size SizeRange, path string) error {
	if n < size.Min || (size.Bounded && n > size.Max) {
		if size.Bounded {
			return encodeErrorf(path, "size %d outside %d..%d", n, size.Min, size.Max)
		}
		return encodeErrorf(path, "size %d below minimum %d", n, size.Min)
	}
	if size.Bounded {
		w.writeBits(uint64(n-size.Min), widthFor(uint64(size.Max-size.Min)))
		return nil
	}
	if err := w.writeLength(n); err != nil {
		return encodeErrorf(path, "%v", err)
	}
	return nil
}

// twosComplement returns the minimal big-endian two's complement form.
func twosComplement(value int64) []byte {
	size := 1
	for ; size < 8; size++ {
		lower := -(int64(1) << uint(8*size-1))
		upper := (int64(1) << uint(8*size-1)) - 1
		if value >= lower && value <= upper {
			break
		}
	}
	out := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		out[i] = byte(value)
		value >>= 8
	}
	return out
}

func (t *Type) hasField(name string) bool {
	for _, field := range t.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}
