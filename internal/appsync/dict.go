package appsync

import (
	"encoding/binary"
	"fmt"
)

// MaxMessageSize bounds an encoded dictionary, header included.
const MaxMessageSize = 64

// TupleType tags the value encoding of one tuple.
type TupleType uint8

const (
	TypeBytes   TupleType = 0
	TypeCString TupleType = 1
	TypeUint    TupleType = 2
	TypeInt     TupleType = 3
)

func (t TupleType) String() string {
	switch t {
	case TypeBytes:
		return "bytes"
	case TypeCString:
		return "cstring"
	case TypeUint:
		return "uint"
	case TypeInt:
		return "int"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// tupleHeaderSize is key (4) + type (1) + length (2).
const tupleHeaderSize = 7

// Tuple is one key/value entry of a dictionary message.
type Tuple struct {
	Key   uint32
	Type  TupleType
	Value []byte
}

// IntTuple encodes v as a 4-byte signed integer.
func IntTuple(key uint32, v int32) Tuple {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return Tuple{Key: key, Type: TypeInt, Value: b}
}

// UintTuple encodes v as a 1-byte unsigned integer.
func UintTuple(key uint32, v uint8) Tuple {
	return Tuple{Key: key, Type: TypeUint, Value: []byte{v}}
}

// CStringTuple encodes s with its NUL terminator.
func CStringTuple(key uint32, s string) Tuple {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return Tuple{Key: key, Type: TypeCString, Value: b}
}

// Uint reads an unsigned value of width 1, 2 or 4.
func (t Tuple) Uint() (uint64, error) {
	if t.Type != TypeUint {
		return 0, fmt.Errorf("%w: key %d is %s, want uint", ErrMalformed, t.Key, t.Type)
	}
	switch len(t.Value) {
	case 1:
		return uint64(t.Value[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(t.Value)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(t.Value)), nil
	}
	return 0, fmt.Errorf("%w: key %d has uint width %d", ErrMalformed, t.Key, len(t.Value))
}

// Int reads a signed value of width 1, 2 or 4.
func (t Tuple) Int() (int64, error) {
	if t.Type != TypeInt {
		return 0, fmt.Errorf("%w: key %d is %s, want int", ErrMalformed, t.Key, t.Type)
	}
	switch len(t.Value) {
	case 1:
		return int64(int8(t.Value[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(t.Value))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(t.Value))), nil
	}
	return 0, fmt.Errorf("%w: key %d has int width %d", ErrMalformed, t.Key, len(t.Value))
}

// CString reads a NUL-terminated string. The terminator is required.
func (t Tuple) CString() (string, error) {
	if t.Type != TypeCString {
		return "", fmt.Errorf("%w: key %d is %s, want cstring", ErrMalformed, t.Key, t.Type)
	}
	n := len(t.Value)
	if n == 0 || t.Value[n-1] != 0 {
		return "", fmt.Errorf("%w: key %d cstring not terminated", ErrMalformed, t.Key)
	}
	for _, b := range t.Value[:n-1] {
		if b == 0 {
			return "", fmt.Errorf("%w: key %d cstring has embedded NUL", ErrMalformed, t.Key)
		}
	}
	return string(t.Value[:n-1]), nil
}

// EncodeDict serialises tuples as: count (u8), then per tuple key (u32le),
// type (u8), length (u16le) and the value bytes.
func EncodeDict(tuples []Tuple) ([]byte, error) {
	if len(tuples) > 255 {
		return nil, fmt.Errorf("%w: %d tuples", ErrMalformed, len(tuples))
	}
	size := 1
	for _, t := range tuples {
		size += tupleHeaderSize + len(t.Value)
	}
	if size > MaxMessageSize {
		return nil, fmt.Errorf("%w: encoded size %d exceeds %d", ErrMalformed, size, MaxMessageSize)
	}
	out := make([]byte, 0, size)
	out = append(out, byte(len(tuples)))
	for _, t := range tuples {
		out = binary.LittleEndian.AppendUint32(out, t.Key)
		out = append(out, byte(t.Type))
		out = binary.LittleEndian.AppendUint16(out, uint16(len(t.Value)))
		out = append(out, t.Value...)
	}
	return out, nil
}

// DecodeDict parses a dictionary produced by EncodeDict. Values alias raw.
func DecodeDict(raw []byte) ([]Tuple, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	if len(raw) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(raw), MaxMessageSize)
	}
	count := int(raw[0])
	rest := raw[1:]
	tuples := make([]Tuple, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < tupleHeaderSize {
			return nil, fmt.Errorf("%w: truncated header of tuple %d", ErrMalformed, i)
		}
		key := binary.LittleEndian.Uint32(rest[0:4])
		typ := TupleType(rest[4])
		n := int(binary.LittleEndian.Uint16(rest[5:7]))
		rest = rest[tupleHeaderSize:]
		if typ > TypeInt {
			return nil, fmt.Errorf("%w: tuple %d has unknown %s", ErrMalformed, i, typ)
		}
		if len(rest) < n {
			return nil, fmt.Errorf("%w: truncated value of tuple %d (want %d bytes, have %d)", ErrMalformed, i, n, len(rest))
		}
		tuples = append(tuples, Tuple{Key: key, Type: typ, Value: rest[:n:n]})
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return tuples, nil
}
