package per

import (
	"fmt"
	"math/bits"
)

const (
	// general length determinant limits
	shortLengthLimit = 128
	longLengthLimit  = 16384
)

// bitWriter appends bits MSB first.
type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) writeBits(value uint64, width int) {
	for i := width - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (value>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> uint(w.nbits%8)
		}
		w.nbits++
	}
}

func (w *bitWriter) writeBit(set bool) {
	if set {
		w.writeBits(1, 1)
		return
	}
	w.writeBits(0, 1)
}

func (w *bitWriter) writeOctets(octets []byte) {
	for _, octet := range octets {
		w.writeBits(uint64(octet), 8)
	}
}

// writeLength emits a general length determinant. The caller reports the
// error with the right field path.
func (w *bitWriter) writeLength(n int) error {
	switch {
	case n < 0:
		return fmt.Errorf("negative length %d", n)
	case n < shortLengthLimit:
		w.writeBits(uint64(n), 8)
	case n < longLengthLimit:
		w.writeBits(uint64(0x8000|n), 16)
	default:
		return fmt.Errorf("length %d exceeds %d", n, longLengthLimit-1)
	}
	return nil
}

// bytes returns the encoding padded to a whole octet. An empty encoding is
// emitted as a single zero octet.
func (w *bitWriter) bytes() []byte {
	if len(w.buf) == 0 {
		return []byte{0x00}
	}
	return w.buf
}

// bitReader consumes bits MSB first and reports the field being decoded in
// every error it returns.
type bitReader struct {
	data []byte
	pos  int
}

func (r *bitReader) remaining() int {
	return len(r.data)*8 - r.pos
}

func (r *bitReader) fail(field, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Offset: r.pos, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (r *bitReader) readBits(width int, field string) (uint64, error) {
	if width > r.remaining() {
		return 0, r.fail(field, "truncated: need %d bits, %d left", width, r.remaining())
	}
	var value uint64
	for i := 0; i < width; i++ {
		octet := r.data[r.pos/8]
		bit := (octet >> uint(7-r.pos%8)) & 1
		value = value<<1 | uint64(bit)
		r.pos++
	}
	return value, nil
}

func (r *bitReader) readOctets(n int, field string) ([]byte, error) {
	if n*8 > r.remaining() {
		return nil, r.fail(field, "truncated: need %d octets, %d bits left", n, r.remaining())
	}
	out := make([]byte, n)
	for i := range out {
		octet, err := r.readBits(8, field)
		if err != nil {
			return nil, err
		}
		out[i] = byte(octet)
	}
	return out, nil
}

func (r *bitReader) readLength(field string) (int, error) {
	first, err := r.readBits(1, field)
	if err != nil {
		return 0, err
	}
	if first == 0 {
		n, err := r.readBits(7, field)
		return int(n), err
	}
	second, err := r.readBits(1, field)
	if err != nil {
		return 0, err
	}
	if second == 1 {
		return 0, r.fail(field, "fragmented length determinant not supported")
	}
	n, err := r.readBits(14, field)
	return int(n), err
}

// consumedOctets is the number of whole octets touched so far.
func (r *bitReader) consumedOctets() int {
	return (r.pos + 7) / 8
}

// widthFor is the number of bits needed to carry values 0..span.
func widthFor(span uint64) int {
	return bits.Len64(span)
}
