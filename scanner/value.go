package scanner

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// CompareMode selects how an observed value is judged against a reference
// value. In an initial scan the reference is the target value; in a
// narrowing rescan it is the value recorded by the previous pass.
type CompareMode int

const (
	CompareEqual CompareMode = iota
	CompareGreater
	CompareLess
	CompareChanged
	CompareUnchanged
)

func (m CompareMode) String() string {
	switch m {
	case CompareEqual:
		return "equal"
	case CompareGreater:
		return "greater"
	case CompareLess:
		return "less"
	case CompareChanged:
		return "changed"
	case CompareUnchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("CompareMode(%d)", int(m))
	}
}

// requiresBaseline reports whether the mode only makes sense against a
// value recorded by a previous pass.
func (m CompareMode) requiresBaseline() bool {
	return m == CompareChanged || m == CompareUnchanged
}

// requiresOrder reports whether the mode needs a numeric interpretation of
// the bytes.
func (m CompareMode) requiresOrder() bool {
	return m == CompareGreater || m == CompareLess
}

// ValueType identifies the typed interpretation of a scanned value.
type ValueType int

const (
	ValueBytes ValueType = iota // raw bytes, no numeric order
	ValueUint8
	ValueUint16
	ValueUint32
	ValueUint64
	ValueInt8
	ValueInt16
	ValueInt32
	ValueInt64
	ValueFloat32
	ValueFloat64
)

// Size returns the value width in bytes, or 0 for raw byte values whose
// width is carried by the pattern itself.
func (t ValueType) Size() int {
	switch t {
	case ValueUint8, ValueInt8:
		return 1
	case ValueUint16, ValueInt16:
		return 2
	case ValueUint32, ValueInt32, ValueFloat32:
		return 4
	case ValueUint64, ValueInt64, ValueFloat64:
		return 8
	default:
		return 0
	}
}

// Ordered reports whether values of this type support greater/less
// comparisons.
func (t ValueType) Ordered() bool {
	return t != ValueBytes
}

// Value is a typed scan target encoded as the little-endian bytes it
// occupies in target memory. Encoding and decoding round-trip
// byte-for-byte.
type Value struct {
	Type  ValueType
	Bytes []byte
}

func Uint8Value(v uint8) Value {
	return Value{Type: ValueUint8, Bytes: []byte{v}}
}

func Uint16Value(v uint16) Value {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return Value{Type: ValueUint16, Bytes: b}
}

func Uint32Value(v uint32) Value {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return Value{Type: ValueUint32, Bytes: b}
}

func Uint64Value(v uint64) Value {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return Value{Type: ValueUint64, Bytes: b}
}

func Int8Value(v int8) Value {
	return Value{Type: ValueInt8, Bytes: []byte{byte(v)}}
}

func Int16Value(v int16) Value {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return Value{Type: ValueInt16, Bytes: b}
}

func Int32Value(v int32) Value {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return Value{Type: ValueInt32, Bytes: b}
}

func Int64Value(v int64) Value {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return Value{Type: ValueInt64, Bytes: b}
}

func Float32Value(v float32) Value {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return Value{Type: ValueFloat32, Bytes: b}
}

func Float64Value(v float64) Value {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return Value{Type: ValueFloat64, Bytes: b}
}

func BytesValue(b []byte) Value {
	return Value{Type: ValueBytes, Bytes: b}
}

// Width returns the byte width of the value.
func (v Value) Width() int {
	return len(v.Bytes)
}

// compare judges observed against reference under the given mode. Both
// slices must have the value's width.
func compare(t ValueType, mode CompareMode, observed, reference []byte) (bool, error) {
	switch mode {
	case CompareEqual, CompareUnchanged:
		return bytes.Equal(observed, reference), nil
	case CompareChanged:
		return !bytes.Equal(observed, reference), nil
	case CompareGreater, CompareLess:
		if !t.Ordered() {
			return false, fmt.Errorf("%s comparison needs a numeric value type", mode)
		}
		ord := numericOrder(t, observed, reference)
		if mode == CompareGreater {
			return ord > 0, nil
		}
		return ord < 0, nil
	default:
		return false, fmt.Errorf("unknown compare mode %d", int(mode))
	}
}

// numericOrder returns -1, 0 or 1 as a orders against b.
func numericOrder(t ValueType, a, b []byte) int {
	switch t {
	case ValueUint8, ValueUint16, ValueUint32, ValueUint64:
		return orderUint(decodeUint(t, a), decodeUint(t, b))
	case ValueInt8, ValueInt16, ValueInt32, ValueInt64:
		return orderInt(decodeInt(t, a), decodeInt(t, b))
	case ValueFloat32:
		return orderFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(a))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case ValueFloat64:
		return orderFloat(math.Float64frombits(binary.LittleEndian.Uint64(a)),
			math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		return 0
	}
}

func decodeUint(t ValueType, b []byte) uint64 {
	switch t {
	case ValueUint8:
		return uint64(b[0])
	case ValueUint16:
		return uint64(binary.LittleEndian.Uint16(b))
	case ValueUint32:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func decodeInt(t ValueType, b []byte) int64 {
	switch t {
	case ValueInt8:
		return int64(int8(b[0]))
	case ValueInt16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case ValueInt32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return int64(binary.LittleEndian.Uint64(b))
	}
}

func orderUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func orderInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func orderFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
