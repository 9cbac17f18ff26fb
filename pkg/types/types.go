package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the element type carried by a Value.
type Kind string

const (
	KindInt8    Kind = "int8"
	KindInt16   Kind = "int16"
	KindInt32   Kind = "int32"
	KindInt64   Kind = "int64"
	KindUint8   Kind = "uint8"
	KindUint16  Kind = "uint16"
	KindUint32  Kind = "uint32"
	KindUint64  Kind = "uint64"
	KindFloat32 Kind = "float32"
	KindFloat64 Kind = "float64"
	KindString  Kind = "string"
)

// ElementSize returns the byte size of one element of the given kind. For
// the string kind, whose width Kind alone does not carry, and for unknown
// kinds it returns 0 and an error.
func ElementSize(k Kind) (int, error) {
	switch k {
	case KindInt8, KindUint8:
		return 1, nil
	case KindInt16, KindUint16:
		return 2, nil
	case KindInt32, KindUint32, KindFloat32:
		return 4, nil
	case KindInt64, KindUint64, KindFloat64:
		return 8, nil
	default:
		return 0, fmt.Errorf("types: kind %q has no fixed element size", k)
	}
}

// Endianness selects the byte order used by Value.Encode/Decode.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Dimensionality is the rank of a signal or value: 0 = scalar, 1 = vector,
// 2 = matrix.
type Dimensionality int

const (
	Scalar Dimensionality = 0
	Vector Dimensionality = 1
	Matrix Dimensionality = 2
)

// Value is a tagged union carrying one typed element. Composite signals are
// represented as slices of Value at the call sites that need them; Value
// itself is the single-element unit the byte-level codec works on.
type Value struct {
	Kind Kind

	i int64
	u uint64
	f float64
	s string
}

// NewInt constructs an integer Value, failing if v does not fit in the
// declared kind's range.
func NewInt(k Kind, v int64) (Value, error) {
	switch k {
	case KindInt8:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return Value{}, rangeErr(k, v)
		}
	case KindInt16:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return Value{}, rangeErr(k, v)
		}
	case KindInt32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return Value{}, rangeErr(k, v)
		}
	case KindInt64:
		// always in range
	default:
		return Value{}, fmt.Errorf("types: %q is not an integer kind", k)
	}
	return Value{Kind: k, i: v}, nil
}

// NewUint constructs an unsigned integer Value, failing on overflow.
func NewUint(k Kind, v uint64) (Value, error) {
	switch k {
	case KindUint8:
		if v > math.MaxUint8 {
			return Value{}, rangeErr(k, v)
		}
	case KindUint16:
		if v > math.MaxUint16 {
			return Value{}, rangeErr(k, v)
		}
	case KindUint32:
		if v > math.MaxUint32 {
			return Value{}, rangeErr(k, v)
		}
	case KindUint64:
		// always in range
	default:
		return Value{}, fmt.Errorf("types: %q is not an unsigned integer kind", k)
	}
	return Value{Kind: k, u: v}, nil
}

// NewFloat constructs a floating-point Value.
func NewFloat(k Kind, v float64) (Value, error) {
	switch k {
	case KindFloat32:
		if v != 0 && (math.Abs(v) > math.MaxFloat32 || (math.Abs(v) < math.SmallestNonzeroFloat32 && v != 0)) {
			return Value{}, rangeErr(k, v)
		}
	case KindFloat64:
	default:
		return Value{}, fmt.Errorf("types: %q is not a float kind", k)
	}
	return Value{Kind: k, f: v}, nil
}

// NewString constructs a fixed-width character-string Value.
func NewString(v string) Value {
	return Value{Kind: KindString, s: v}
}

func rangeErr(k Kind, v interface{}) error {
	return fmt.Errorf("types: value %v out of range for kind %q", v, k)
}

// Int returns the integer value, valid only when Kind is an integer kind.
func (v Value) Int() int64 { return v.i }

// Uint returns the unsigned value, valid only when Kind is an unsigned kind.
func (v Value) Uint() uint64 { return v.u }

// Float returns the float value, valid only when Kind is a float kind.
func (v Value) Float() float64 { return v.f }

// String returns the string value for KindString and the canonical
// textual literal (Text) for any other kind.
func (v Value) String() string {
	if v.Kind == KindString {
		return v.s
	}
	return v.Text()
}

// Text renders the value as its canonical textual literal, the inverse of
// ParseText for the same Kind.
func (v Value) Text() string {
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(v.u, 10)
	case KindFloat32, KindFloat64:
		bits := 64
		if v.Kind == KindFloat32 {
			bits = 32
		}
		return strconv.FormatFloat(v.f, 'g', -1, bits)
	case KindString:
		return v.s
	default:
		return ""
	}
}

// ParseText parses a textual literal into a Value of the given kind,
// failing rather than truncating on overflow.
func ParseText(k Kind, text string) (Value, error) {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("types: parse %q as %s: %w", text, k, err)
		}
		return NewInt(k, n)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("types: parse %q as %s: %w", text, k, err)
		}
		return NewUint(k, n)
	case KindFloat32, KindFloat64:
		bits := 64
		if k == KindFloat32 {
			bits = 32
		}
		f, err := strconv.ParseFloat(text, bits)
		if err != nil {
			return Value{}, fmt.Errorf("types: parse %q as %s: %w", text, k, err)
		}
		return NewFloat(k, f)
	case KindString:
		return NewString(text), nil
	default:
		return Value{}, fmt.Errorf("types: unknown kind %q", k)
	}
}

// Encode writes the value's byte pattern at the given endianness into dst,
// which must be at least as large as the kind's element size (or len(s) for
// a fixed-width string).
func (v Value) Encode(dst []byte, endian Endianness) error {
	order := endian.order()
	switch v.Kind {
	case KindInt8, KindUint8:
		if len(dst) < 1 {
			return shortBuf(1, len(dst))
		}
		if v.Kind == KindInt8 {
			dst[0] = byte(v.i)
		} else {
			dst[0] = byte(v.u)
		}
	case KindInt16:
		if len(dst) < 2 {
			return shortBuf(2, len(dst))
		}
		order.PutUint16(dst, uint16(v.i))
	case KindUint16:
		if len(dst) < 2 {
			return shortBuf(2, len(dst))
		}
		order.PutUint16(dst, uint16(v.u))
	case KindInt32:
		if len(dst) < 4 {
			return shortBuf(4, len(dst))
		}
		order.PutUint32(dst, uint32(v.i))
	case KindUint32:
		if len(dst) < 4 {
			return shortBuf(4, len(dst))
		}
		order.PutUint32(dst, uint32(v.u))
	case KindFloat32:
		if len(dst) < 4 {
			return shortBuf(4, len(dst))
		}
		order.PutUint32(dst, math.Float32bits(float32(v.f)))
	case KindInt64:
		if len(dst) < 8 {
			return shortBuf(8, len(dst))
		}
		order.PutUint64(dst, uint64(v.i))
	case KindUint64:
		if len(dst) < 8 {
			return shortBuf(8, len(dst))
		}
		order.PutUint64(dst, v.u)
	case KindFloat64:
		if len(dst) < 8 {
			return shortBuf(8, len(dst))
		}
		order.PutUint64(dst, math.Float64bits(v.f))
	case KindString:
		n := copy(dst, v.s)
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	default:
		return fmt.Errorf("types: encode: unknown kind %q", v.Kind)
	}
	return nil
}

// Decode reconstructs a Value of the given kind from its byte pattern at the
// given endianness.
func Decode(k Kind, src []byte, endian Endianness) (Value, error) {
	order := endian.order()
	switch k {
	case KindInt8:
		if len(src) < 1 {
			return Value{}, shortBuf(1, len(src))
		}
		return Value{Kind: k, i: int64(int8(src[0]))}, nil
	case KindUint8:
		if len(src) < 1 {
			return Value{}, shortBuf(1, len(src))
		}
		return Value{Kind: k, u: uint64(src[0])}, nil
	case KindInt16:
		if len(src) < 2 {
			return Value{}, shortBuf(2, len(src))
		}
		return Value{Kind: k, i: int64(int16(order.Uint16(src)))}, nil
	case KindUint16:
		if len(src) < 2 {
			return Value{}, shortBuf(2, len(src))
		}
		return Value{Kind: k, u: uint64(order.Uint16(src))}, nil
	case KindInt32:
		if len(src) < 4 {
			return Value{}, shortBuf(4, len(src))
		}
		return Value{Kind: k, i: int64(int32(order.Uint32(src)))}, nil
	case KindUint32:
		if len(src) < 4 {
			return Value{}, shortBuf(4, len(src))
		}
		return Value{Kind: k, u: uint64(order.Uint32(src))}, nil
	case KindFloat32:
		if len(src) < 4 {
			return Value{}, shortBuf(4, len(src))
		}
		return Value{Kind: k, f: float64(math.Float32frombits(order.Uint32(src)))}, nil
	case KindInt64:
		if len(src) < 8 {
			return Value{}, shortBuf(8, len(src))
		}
		return Value{Kind: k, i: int64(order.Uint64(src))}, nil
	case KindUint64:
		if len(src) < 8 {
			return Value{}, shortBuf(8, len(src))
		}
		return Value{Kind: k, u: order.Uint64(src)}, nil
	case KindFloat64:
		if len(src) < 8 {
			return Value{}, shortBuf(8, len(src))
		}
		return Value{Kind: k, f: math.Float64frombits(order.Uint64(src))}, nil
	case KindString:
		return Value{Kind: k, s: string(src)}, nil
	default:
		return Value{}, fmt.Errorf("types: decode: unknown kind %q", k)
	}
}

func shortBuf(need, got int) error {
	return fmt.Errorf("types: buffer too small: need %d bytes, have %d", need, got)
}

// Lossless reports whether a value declared as kind `from` can always be
// represented exactly as kind `to`. The broker planner does not call it:
// brokers copy raw bytes without conversion, so the planner checks
// SameLayout instead.
func Lossless(from, to Kind) bool {
	if from == to {
		return true
	}
	rank := map[Kind]int{
		KindInt8: 1, KindInt16: 2, KindInt32: 3, KindInt64: 4,
		KindUint8: 1, KindUint16: 2, KindUint32: 3, KindUint64: 4,
		KindFloat32: 5, KindFloat64: 6,
	}
	signed := map[Kind]bool{KindInt8: true, KindInt16: true, KindInt32: true, KindInt64: true}
	unsigned := map[Kind]bool{KindUint8: true, KindUint16: true, KindUint32: true, KindUint64: true}
	float := map[Kind]bool{KindFloat32: true, KindFloat64: true}

	switch {
	case signed[from] && signed[to]:
		return rank[to] >= rank[from]
	case unsigned[from] && unsigned[to]:
		return rank[to] >= rank[from]
	case unsigned[from] && signed[to]:
		// unsigned N bits -> signed needs one more bit of headroom
		return rank[to] > rank[from]
	case float[from] && float[to]:
		return rank[to] >= rank[from]
	case from == KindString && to == KindString:
		return true
	default:
		return false
	}
}

// SameLayout reports whether two kinds share the same byte size and the
// same interpretation category (integer vs float vs string), which is the
// condition under which a broker's raw byte copy (no per-element
// conversion) is valid between a function's declared kind and a data
// source's declared kind. Unlike Lossless, this rejects widening: a byte
// copy cannot grow a value, it can only reinterpret same-width bytes
// (e.g. int32 <-> uint32), so SameLayout(int16, int32) is false even
// though Lossless(int16, int32) is true.
func SameLayout(a, b Kind) bool {
	if a == b {
		return true
	}
	sizeOf := func(k Kind) int {
		n, _ := ElementSize(k)
		return n
	}
	integer := map[Kind]bool{
		KindInt8: true, KindInt16: true, KindInt32: true, KindInt64: true,
		KindUint8: true, KindUint16: true, KindUint32: true, KindUint64: true,
	}
	float := map[Kind]bool{KindFloat32: true, KindFloat64: true}
	if a == KindString || b == KindString {
		return false
	}
	if integer[a] && integer[b] {
		return sizeOf(a) == sizeOf(b)
	}
	if float[a] && float[b] {
		return sizeOf(a) == sizeOf(b)
	}
	return false
}
