package per

import (
	"github.com/pkg/errors"
)

// Codec is an immutable set of schemas addressed by ID. It is safe for
// concurrent use once built.
type Codec struct {
	schemas map[string]*Type
}

// NewCodec validates and registers the given schemas.
func NewCodec(schemas ...Schema) (*Codec, error) {
	registered := make(map[string]*Type, len(schemas))
	for _, schema := range schemas {
		if schema.ID == "" {
			return nil, errors.New("schema without id")
		}
		if _, exists := registered[schema.ID]; exists {
			return nil, errors.Errorf("schema %q registered twice", schema.ID)
		}
		if err := Validate(schema.Root); err != nil {
			return nil, errors.Wrapf(err, "schema %q", schema.ID)
		}
		registered[schema.ID] = schema.Root
	}
	return &Codec{schemas: registered}, nil
}

// MustNewCodec is like NewCodec but panics on invalid schemas. It is meant
// for package-level codecs built from static declarations.
func MustNewCodec(schemas ...Schema) *Codec {
	codec, err := NewCodec(schemas...)
	if err != nil {
		panic(err)
	}
	return codec
}

// Encode encodes value with the schema registered under schemaID.
func (c *Codec) Encode(schemaID string, value Value) ([]byte, error) {
	root, err := c.lookup(schemaID)
	if err != nil {
		return nil, err
	}
	return Marshal(root, value)
}

// Decode decodes data with the schema registered under schemaID.
func (c *Codec) Decode(schemaID string, data []byte) (Value, error) {
	root, err := c.lookup(schemaID)
	if err != nil {
		return nil, err
	}
	return Unmarshal(root, data)
}

// Has reports whether schemaID is registered.
func (c *Codec) Has(schemaID string) bool {
	_, found := c.schemas[schemaID]
	return found
}

func (c *Codec) lookup(schemaID string) (*Type, error) {
	root, found := c.schemas[schemaID]
	if !found {
		return nil, errors.Wrapf(ErrUnknownSchema, "schema %q", schemaID)
	}
	return root, nil
}
