package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated    = errors.New("proto: truncated dictionary")
	ErrTupleType    = errors.New("proto: unexpected tuple type")
	ErrTooManyItems = errors.New("proto: too many tuples")
	ErrValueTooLong = errors.New("proto: tuple value too long")
)

// TupleType tags how a tuple value is to be read.
type TupleType uint8

const (
	TypeBytes   TupleType = 0
	TypeCString TupleType = 1
	TypeUint    TupleType = 2
	TypeInt     TupleType = 3
)

// DictHeaderLen is the leading tuple count byte.
const DictHeaderLen = 1

// TupleHeaderLen is key (4) + type (1) + length (2).
const TupleHeaderLen = 7

// Tuple is one keyed value of a message.
type Tuple struct {
	Key   Key
	Type  TupleType
	Value []byte
}

// Dict is one message: an ordered set of tuples.
type Dict []Tuple

// Find returns the first tuple with the given key.
func (d Dict) Find(key Key) (Tuple, bool) {
	for _, t := range d {
		if t.Key == key {
			return t, true
		}
	}
	return Tuple{}, false
}

// Has reports whether the dictionary carries key.
func (d Dict) Has(key Key) bool {
	_, ok := d.Find(key)
	return ok
}

// EncodedLen is the size of d on the wire.
func (d Dict) EncodedLen() int {
	n := DictHeaderLen
	for _, t := range d {
		n += TupleHeaderLen + len(t.Value)
	}
	return n
}

// EncodeDict serializes d.
//
// Layout (little-endian):
//   - u8: tuple count
//   - per tuple: u32 key, u8 type, u16 length, value bytes
func EncodeDict(d Dict) ([]byte, error) {
	if len(d) > 0xFF {
		return nil, ErrTooManyItems
	}
	buf := make([]byte, d.EncodedLen())
	buf[0] = uint8(len(d))
	off := DictHeaderLen
	for _, t := range d {
		if len(t.Value) > 0xFFFF {
			return nil, fmt.Errorf("%w: key %s", ErrValueTooLong, t.Key)
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(t.Key))
		buf[off+4] = uint8(t.Type)
		binary.LittleEndian.PutUint16(buf[off+5:off+7], uint16(len(t.Value)))
		off += TupleHeaderLen
		copy(buf[off:], t.Value)
		off += len(t.Value)
	}
	return buf, nil
}

// DecodeDict parses a serialized dictionary. Tuple values alias b.
func DecodeDict(b []byte) (Dict, error) {
	if len(b) < DictHeaderLen {
		return nil, ErrTruncated
	}
	count := int(b[0])
	d := make(Dict, 0, count)
	off := DictHeaderLen
	for i := 0; i < count; i++ {
		if len(b)-off < TupleHeaderLen {
			return nil, ErrTruncated
		}
		key := Key(binary.LittleEndian.Uint32(b[off : off+4]))
		typ := TupleType(b[off+4])
		l := int(binary.LittleEndian.Uint16(b[off+5 : off+7]))
		off += TupleHeaderLen
		if len(b)-off < l {
			return nil, ErrTruncated
		}
		d = append(d, Tuple{Key: key, Type: typ, Value: b[off : off+l]})
		off += l
	}
	return d, nil
}

func Int8(key Key, v int8) Tuple {
	return Tuple{Key: key, Type: TypeInt, Value: []byte{uint8(v)}}
}

func Uint8(key Key, v uint8) Tuple {
	return Tuple{Key: key, Type: TypeUint, Value: []byte{v}}
}

func Uint32(key Key, v uint32) Tuple {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return Tuple{Key: key, Type: TypeUint, Value: buf}
}

func Bool(key Key, v bool) Tuple {
	if v {
		return Uint8(key, 1)
	}
	return Uint8(key, 0)
}

func Bytes(key Key, b []byte) Tuple {
	return Tuple{Key: key, Type: TypeBytes, Value: b}
}

func CString(key Key, s string) Tuple {
	v := make([]byte, len(s)+1)
	copy(v, s)
	return Tuple{Key: key, Type: TypeCString, Value: v}
}

// AsInt8 reads a one-byte signed tuple.
func (t Tuple) AsInt8() (int8, error) {
	if t.Type != TypeInt || len(t.Value) != 1 {
		return 0, fmt.Errorf("%w: key %s type %d len %d", ErrTupleType, t.Key, t.Type, len(t.Value))
	}
	return int8(t.Value[0]), nil
}

// AsUint reads an unsigned tuple of 1, 2 or 4 bytes.
func (t Tuple) AsUint() (uint32, error) {
	if t.Type != TypeUint {
		return 0, fmt.Errorf("%w: key %s type %d", ErrTupleType, t.Key, t.Type)
	}
	switch len(t.Value) {
	case 1:
		return uint32(t.Value[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(t.Value)), nil
	case 4:
		return binary.LittleEndian.Uint32(t.Value), nil
	default:
		return 0, fmt.Errorf("%w: key %s uint len %d", ErrTupleType, t.Key, len(t.Value))
	}
}

// AsBytes returns the raw value of a byte-array tuple.
func (t Tuple) AsBytes() ([]byte, error) {
	if t.Type != TypeBytes {
		return nil, fmt.Errorf("%w: key %s type %d", ErrTupleType, t.Key, t.Type)
	}
	return t.Value, nil
}
