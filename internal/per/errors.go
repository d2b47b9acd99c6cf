package per

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnknownSchema is returned when a Codec is asked for a schema it does
// not hold.
var ErrUnknownSchema = errors.New("unknown schema")

// EncodeError reports a value that does not conform to its schema. Field is
// the dotted path of the offending component.
type EncodeError struct {
	Field  string
	Reason string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("per encode %s: %s", e.Field, e.Reason)
}

// DecodeError reports malformed input. Offset is the bit position at which
// decoding failed.
type DecodeError struct {
	Offset int
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("per decode %s at bit %d (octet %d): %s", e.Field, e.Offset, e.Offset/8, e.Reason)
}

func encodeErrorf(field, format string, args ...interface{}) *EncodeError {
	return &EncodeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
