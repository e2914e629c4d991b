// Package hashing implements the canonical value encoding and hash chain
// used to certify a page's action history.
package hashing

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// Kind tags a canonical Value the way scm's Scmer tags a runtime value,
// but Value carries only what is needed to serialize deterministically.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindSeq
	KindObject
	KindSet
	KindOrderedMap
	KindBigInt
)

// Field is one key/value pair of an Object, in insertion order.
type Field struct {
	Key string
	Val Value
}

// Pair is one key/value entry of an OrderedMap, in insertion order.
type Pair struct {
	Key Value
	Val Value
}

// Value is a closed sum type covering everything the wire protocol and the
// persisted page/board files need to serialize canonically: scalars,
// ordered sequences, string-keyed objects (insertion order), ordered sets
// and ordered maps (both encoded as tagged sequences per spec), and
// arbitrary-precision integers.
type Value struct {
	Kind  Kind
	B     bool
	I     int64
	F     float64
	S     string
	Bytes []byte
	Seq   []Value
	Obj   []Field
	Set   []Value
	Map   []Pair
	Big   *big.Int
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value           { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value       { return Value{Kind: KindFloat, F: f} }
func Str(s string) Value          { return Value{Kind: KindString, S: s} }
func Bin(b []byte) Value          { return Value{Kind: KindBytes, Bytes: b} }
func Seq(items ...Value) Value    { return Value{Kind: KindSeq, Seq: items} }
func Object(fields ...Field) Value { return Value{Kind: KindObject, Obj: fields} }
func Set(elems ...Value) Value    { return Value{Kind: KindSet, Set: elems} }
func OrderedMap(pairs ...Pair) Value { return Value{Kind: KindOrderedMap, Map: pairs} }
func BigInt(v *big.Int) Value     { return Value{Kind: KindBigInt, Big: v} }

// F builds an object field; shorthand used at call sites that build Objects.
func F(key string, v Value) Field { return Field{Key: key, Val: v} }

// P builds an ordered-map pair; shorthand used at call sites that build Maps.
func P(key, val Value) Pair { return Pair{Key: key, Val: val} }

// Encode produces the canonical, byte-stable serialization of v. Equivalent
// values always produce identical byte streams regardless of how the Go
// value was constructed, because every composite kind here carries its own
// explicit insertion order and every scalar has exactly one representation.
func Encode(v Value) []byte {
	w := newWriter()
	w.writeValue(v)
	return w.buf
}

type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{buf: make([]byte, 0, 64)} }

func (w *writer) writeTag(k Kind) { w.buf = append(w.buf, byte(k)) }

func (w *writer) writeUvarint(n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], n)
	w.buf = append(w.buf, tmp[:l]...)
}

func (w *writer) writeVarint(n int64) {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutVarint(tmp[:], n)
	w.buf = append(w.buf, tmp[:l]...)
}

func (w *writer) writeBytes(b []byte) {
	w.writeUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) writeString(s string) { w.writeBytes([]byte(s)) }

func (w *writer) writeValue(v Value) {
	w.writeTag(v.Kind)
	switch v.Kind {
	case KindNull:
		// no payload
	case KindBool:
		if v.B {
			w.buf = append(w.buf, 1)
		} else {
			w.buf = append(w.buf, 0)
		}
	case KindInt:
		w.writeVarint(v.I)
	case KindFloat:
		var bits [8]byte
		binary.BigEndian.PutUint64(bits[:], math.Float64bits(v.F))
		w.buf = append(w.buf, bits[:]...)
	case KindString:
		w.writeString(v.S)
	case KindBytes:
		w.writeBytes(v.Bytes)
	case KindSeq:
		w.writeUvarint(uint64(len(v.Seq)))
		for _, item := range v.Seq {
			w.writeValue(item)
		}
	case KindObject:
		w.writeUvarint(uint64(len(v.Obj)))
		for _, field := range v.Obj {
			w.writeString(field.Key)
			w.writeValue(field.Val)
		}
	case KindSet:
		w.writeUvarint(uint64(len(v.Set)))
		for _, elem := range v.Set {
			w.writeValue(elem)
		}
	case KindOrderedMap:
		w.writeUvarint(uint64(len(v.Map)))
		for _, pair := range v.Map {
			w.writeValue(pair.Key)
			w.writeValue(pair.Val)
		}
	case KindBigInt:
		bi := v.Big
		if bi == nil {
			bi = new(big.Int)
		}
		sign := byte(0)
		if bi.Sign() < 0 {
			sign = 1
		}
		w.buf = append(w.buf, sign)
		w.writeBytes(bi.Bytes())
	default:
		panic(fmt.Sprintf("hashing: unknown value kind %d", v.Kind))
	}
}

// Decode parses the byte stream produced by Encode back into a Value. It
// is Encode's exact inverse: Decode(Encode(v)) reproduces v field for
// field, which is what compile/persist/reload round-trips (spec section
// 9's "round-trip through canonical serialization") depend on.
func Decode(data []byte) (Value, error) {
	r := &reader{buf: data}
	v, err := r.readValue()
	if err != nil {
		return Value{}, err
	}
	if r.pos != len(r.buf) {
		return Value{}, fmt.Errorf("hashing: %d trailing byte(s) after decoded value", len(r.buf)-r.pos)
	}
	return v, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("hashing: unexpected end of input")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readUvarint() (uint64, error) {
	n, l := binary.Uvarint(r.buf[r.pos:])
	if l <= 0 {
		return 0, fmt.Errorf("hashing: malformed uvarint")
	}
	r.pos += l
	return n, nil
}

func (r *reader) readVarint() (int64, error) {
	n, l := binary.Varint(r.buf[r.pos:])
	if l <= 0 {
		return 0, fmt.Errorf("hashing: malformed varint")
	}
	r.pos += l
	return n, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)-r.pos) {
		return nil, fmt.Errorf("hashing: byte string length %d exceeds remaining input", n)
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *reader) readString() (string, error) {
	b, err := r.readBytes()
	return string(b), err
}

func (r *reader) readValue() (Value, error) {
	tag, err := r.readByte()
	if err != nil {
		return Value{}, err
	}
	switch Kind(tag) {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.readByte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt:
		i, err := r.readVarint()
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindFloat:
		if len(r.buf)-r.pos < 8 {
			return Value{}, fmt.Errorf("hashing: truncated float")
		}
		bits := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
		r.pos += 8
		return Float(math.Float64frombits(bits)), nil
	case KindString:
		s, err := r.readString()
		if err != nil {
			return Value{}, err
		}
		return Str(s), nil
	case KindBytes:
		b, err := r.readBytes()
		if err != nil {
			return Value{}, err
		}
		return Bin(b), nil
	case KindSeq:
		n, err := r.readUvarint()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, n)
		for i := range items {
			if items[i], err = r.readValue(); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindSeq, Seq: items}, nil
	case KindObject:
		n, err := r.readUvarint()
		if err != nil {
			return Value{}, err
		}
		fields := make([]Field, n)
		for i := range fields {
			key, err := r.readString()
			if err != nil {
				return Value{}, err
			}
			val, err := r.readValue()
			if err != nil {
				return Value{}, err
			}
			fields[i] = Field{Key: key, Val: val}
		}
		return Value{Kind: KindObject, Obj: fields}, nil
	case KindSet:
		n, err := r.readUvarint()
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, n)
		for i := range elems {
			if elems[i], err = r.readValue(); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindSet, Set: elems}, nil
	case KindOrderedMap:
		n, err := r.readUvarint()
		if err != nil {
			return Value{}, err
		}
		pairs := make([]Pair, n)
		for i := range pairs {
			key, err := r.readValue()
			if err != nil {
				return Value{}, err
			}
			val, err := r.readValue()
			if err != nil {
				return Value{}, err
			}
			pairs[i] = Pair{Key: key, Val: val}
		}
		return Value{Kind: KindOrderedMap, Map: pairs}, nil
	case KindBigInt:
		sign, err := r.readByte()
		if err != nil {
			return Value{}, err
		}
		mag, err := r.readBytes()
		if err != nil {
			return Value{}, err
		}
		bi := new(big.Int).SetBytes(mag)
		if sign == 1 {
			bi.Neg(bi)
		}
		return Value{Kind: KindBigInt, Big: bi}, nil
	default:
		return Value{}, fmt.Errorf("hashing: unknown value tag %d", tag)
	}
}
