package per

import "fmt"

// Unmarshal decodes data against t. The whole input must be consumed up to
// the final padding octet.
func Unmarshal(t *Type, data []byte) (Value, error) {
	root := t.nameOrKind()
	if len(data) == 0 {
		return nil, &DecodeError{Offset: 0, Field: root, Reason: "empty input"}
	}

	reader := &bitReader{data: data}
	value, err := decodeValue(reader, t, root)
	if err != nil {
		return nil, err
	}

	// an empty encoding is carried in one zero octet
	consumed := reader.consumedOctets()
	if consumed == 0 {
		consumed = 1
	}
	if consumed < len(data) {
		return nil, &DecodeError{
			Offset: consumed * 8,
			Field:  root,
			Reason: fmt.Sprintf("%d trailing octets", len(data)-consumed),
		}
	}
	return value, nil
}

func decodeValue(r *bitReader, t *Type, path string) (Value, error) {
	if t == nil {
		return nil, r.fail(path, "no type declared")
	}

	switch t.Kind {
	case KindSequence:
		return decodeSequence(r, t, path)
	case KindChoice:
		return decodeChoice(r, t, path)
	case KindList:
		return decodeList(r, t, path)
	case KindInteger:
		return decodeInteger(r, t, path)
	case KindString:
		n, err := decodeCount(r, t.Size, path)
		if err != nil {
			return nil, err
		}
		octets, err := r.readOctets(n, path)
		if err != nil {
			return nil, err
		}
		return String(octets), nil
	case KindBytes:
		n, err := decodeCount(r, t.Size, path)
		if err != nil {
			return nil, err
		}
		octets, err := r.readOctets(n, path)
		if err != nil {
			return nil, err
		}
		return Bytes(octets), nil
	case KindEnum:
		width := widthFor(uint64(len(t.Values) - 1))
		index, err := r.readBits(width, path)
		if err != nil {
			return nil, err
		}
		if index >= uint64(len(t.Values)) {
			return nil, r.fail(path, "enumeration index %d out of range (%d items)", index, len(t.Values))
		}
		return Enum(t.Values[index]), nil
	default:
		return nil, r.fail(path, "unsupported kind %s", t.Kind)
	}
}

func decodeSequence(r *bitReader, t *Type, path string) (Value, error) {
	present := make([]bool, len(t.Fields))
	for index, field := range t.Fields {
		if !field.Optional {
			present[index] = true
			continue
		}
		bit, err := r.readBits(1, path)
		if err != nil {
			return nil, err
		}
		present[index] = bit == 1
	}

	sequence := make(Sequence, len(t.Fields))
	for index, field := range t.Fields {
		if !present[index] {
			continue
		}
		fieldValue, err := decodeValue(r, field.Type, path+"."+field.Name)
		if err != nil {
			return nil, err
		}
		sequence[field.Name] = fieldValue
	}
	return sequence, nil
}

func decodeChoice(r *bitReader, t *Type, path string) (Value, error) {
	width := widthFor(uint64(len(t.Alternatives) - 1))
	index, err := r.readBits(width, path)
	if err != nil {
		return nil, err
	}
	if index >= uint64(len(t.Alternatives)) {
		return nil, r.fail(path, "choice index %d out of range (%d alternatives)", index, len(t.Alternatives))
	}
	alternative := t.Alternatives[index]
	value, err := decodeValue(r, alternative.Type, path+"."+alternative.Tag)
	if err != nil {
		return nil, err
	}
	return Choice{Tag: alternative.Tag, Value: value}, nil
}

func decodeList(r *bitReader, t *Type, path string) (Value, error) {
	n, err := decodeCount(r, t.Size, path)
	if err != nil {
		return nil, err
	}
	// every item takes at least one bit unless the item type is empty, so a
	// count beyond the remaining bits is malformed and must not allocate
	if n > r.remaining() && !zeroWidth(t.Item) {
		return nil, r.fail(path, "count %d exceeds remaining input", n)
	}

	list := make(List, 0, min(n, r.remaining()+1))
	for index := 0; index < n; index++ {
		item, err := decodeValue(r, t.Item, fmt.Sprintf("%s[%d]", path, index))
		if err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, nil
}

func decodeInteger(r *bitReader, t *Type, path string) (Value, error) {
	if t.Range == nil {
		n, err := r.readLength(path)
		if err != nil {
			return nil, err
		}
		if n < 1 || n > 8 {
			return nil, r.fail(path, "integer length %d not in 1..8", n)
		}
		octets, err := r.readOctets(n, path)
		if err != nil {
			return nil, err
		}
		var value int64
		if octets[0]&0x80 != 0 {
			value = -1
		}
		for _, octet := range octets {
			value = value<<8 | int64(octet)
		}
		return Integer(value), nil
	}

	span := uint64(t.Range.Upper) - uint64(t.Range.Lower)
	offset, err := r.readBits(widthFor(span), path)
	if err != nil {
		return nil, err
	}
	if offset > span {
		return nil, r.fail(path, "integer offset %d exceeds range %d..%d", offset, t.Range.Lower, t.Range.Upper)
	}
	return Integer(int64(uint64(t.Range.Lower) + offset)), nil
}

func decodeCount(r *bitReader, size SizeRange, path string) (int, error) {
	if size.Bounded {
		span := uint64(size.Max - size.Min)
		offset, err := r.readBits(widthFor(span), path)
		if err != nil {
			return 0, err
		}
		if offset > span {
			return 0, r.fail(path, "size %d outside %d..%d", uint64(size.Min)+offset, size.Min, size.Max)
		}
		return size.Min + int(offset), nil
	}

	n, err := r.readLength(path)
	if err != nil {
		return 0, err
	}
	if n < size.Min {
		return 0, r.fail(path, "size %d below minimum %d", n, size.Min)
	}
	return n, nil
}

// zeroWidth reports whether values of t can be encoded in zero bits.
func zeroWidth(t *Type) bool {
	switch t.Kind {
	case KindInteger:
		return t.Range != nil && t.Range.Lower == t.Range.Upper
	case KindEnum:
		return len(t.Values) == 1
	case KindString, KindBytes, KindList:
		return t.Size.Bounded && t.Size.Max == 0
	case KindSequence:
		for _, field := range t.Fields {
			if field.Optional || !zeroWidth(field.Type) {
				return false
			}
		}
		return true
	case KindChoice:
		return len(t.Alternatives) == 1 && zeroWidth(t.Alternatives[0].Type)
	default:
		return false
	}
}
