package per

import (
	"encoding/hex"
	"encoding/json"

	"github.com/davecgh/go-spew/spew"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Dump renders a value tree for debug logs.
func Dump(value Value) string {
	return dumpConfig.Sdump(value)
}

// MarshalJSON renders a choice as a single-key object {tag: value}.
func (c Choice) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Value{c.Tag: c.Value})
}

// MarshalJSON renders octets as a hex string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}
