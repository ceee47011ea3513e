package index

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// FieldType converts field values between their readable form and the
// indexed byte form. Indexed bytes sort in value order.
type FieldType interface {
	Name() string
	ToIndexed(readable string) ([]byte, error)
	ToReadable(indexed []byte) string
}

// StrField stores values verbatim.
type StrField struct{}

func (StrField) Name() string { return "string" }

func (StrField) ToIndexed(readable string) ([]byte, error) {
	return []byte(readable), nil
}

func (StrField) ToReadable(indexed []byte) string {
	return string(indexed)
}

// IntField stores 64-bit integers as 8 big-endian bytes with the sign bit
// flipped, so byte order matches numeric order.
type IntField struct{}

func (IntField) Name() string { return "int" }

func (IntField) ToIndexed(readable string) ([]byte, error) {
	v, err := strconv.ParseInt(readable, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing int value %q: %w", readable, err)
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(v)^(1<<63))
	return out, nil
}

func (IntField) ToReadable(indexed []byte) string {
	if len(indexed) != 8 {
		return string(indexed)
	}
	return strconv.FormatInt(int64(binary.BigEndian.Uint64(indexed)^(1<<63)), 10)
}

// FieldTypeByName resolves the type names used in configuration.
func FieldTypeByName(name string) (FieldType, error) {
	switch name {
	case "", "string", "str":
		return StrField{}, nil
	case "int", "long":
		return IntField{}, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", name)
	}
}
