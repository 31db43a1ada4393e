package contracts

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInteger
	KindDouble
	KindBoolean
	KindString
	KindSequence
	KindMapping
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a schema-free recursive JSON-shaped value. It is value-typed:
// constructors and accessors copy composite contents, so no two Values
// share mutable state.
//
// The wire format carries no type discriminants. Decoding tries variants in
// a fixed priority order (Integer, Double, Boolean, String, Sequence,
// Mapping, Null) and the first structurally valid interpretation wins; in
// particular a bare numeric literal without a fractional part is always an
// Integer, never a Double.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	b    bool
	s    string
	seq  []Value
	m    map[string]Value
}

// Null returns the null Value. The zero Value is also null.
func Null() Value { return Value{kind: KindNull} }

// Integer returns an integer Value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Double returns a floating-point Value.
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }

// Boolean returns a boolean Value.
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence returns a sequence Value holding a copy of items.
func Sequence(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, seq: cp}
}

// Mapping returns a mapping Value holding a copy of fields.
func Mapping(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindMapping, m: cp}
}

// Kind returns the variant held by the Value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the Value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer content. ok is false for any other kind.
func (v Value) Int64() (i int64, ok bool) { return v.i, v.kind == KindInteger }

// Float64 returns the double content. ok is false for any other kind.
func (v Value) Float64() (f float64, ok bool) { return v.f, v.kind == KindDouble }

// Bool returns the boolean content. ok is false for any other kind.
func (v Value) Bool() (b bool, ok bool) { return v.b, v.kind == KindBoolean }

// Str returns the string content. ok is false for any other kind.
func (v Value) Str() (s string, ok bool) { return v.s, v.kind == KindString }

// Items returns a copy of the sequence elements, or nil for other kinds.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	cp := make([]Value, len(v.seq))
	copy(cp, v.seq)
	return cp
}

// Fields returns a copy of the mapping entries, or nil for other kinds.
func (v Value) Fields() map[string]Value {
	if v.kind != KindMapping {
		return nil
	}
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp
}

// Field returns the mapping entry for key. ok is false when the Value is not
// a mapping or the key is absent.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Null(), false
	}
	e, ok := v.m[key]
	return e, ok
}

// Equal reports structural equality at every level.
func (v Value) Equal(w Value) bool {
	if v.kind != w.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.i == w.i
	case KindDouble:
		return v.f == w.f
	case KindBoolean:
		return v.b == w.b
	case KindString:
		return v.s == w.s
	case KindSequence:
		if len(v.seq) != len(w.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(w.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(w.m) {
			return false
		}
		for k, e := range v.m {
			o, ok := w.m[k]
			if !ok || !e.Equal(o) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// FromNative converts a Go value into a Value. Supported natives are nil,
// booleans, strings, integer and float types, json.Number, []any,
// map[string]any, and their Value-typed equivalents. Anything else is
// rejected with an *EncodeError before any bytes are sent.
func FromNative(native any) (Value, error) {
	switch n := native.(type) {
	case nil:
		return Null(), nil
	case Value:
		return n, nil
	case bool:
		return Boolean(n), nil
	case string:
		return String(n), nil
	case int:
		return Integer(int64(n)), nil
	case int8:
		return Integer(int64(n)), nil
	case int16:
		return Integer(int64(n)), nil
	case int32:
		return Integer(int64(n)), nil
	case int64:
		return Integer(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return Null(), &EncodeError{Value: native}
		}
		return Integer(int64(n)), nil
	case uint8:
		return Integer(int64(n)), nil
	case uint16:
		return Integer(int64(n)), nil
	case uint32:
		return Integer(int64(n)), nil
	case uint64:
		if n > math.MaxInt64 {
			return Null(), &EncodeError{Value: native}
		}
		return Integer(int64(n)), nil
	case float32:
		return Double(float64(n)), nil
	case float64:
		return Double(n), nil
	case json.Number:
		return numberValue(n)
	case []any:
		items := make([]Value, len(n))
		for i, e := range n {
			v, err := FromNative(e)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return Value{kind: KindSequence, seq: items}, nil
	case []Value:
		return Sequence(n...), nil
	case map[string]any:
		fields := make(map[string]Value, len(n))
		for k, e := range n {
			v, err := FromNative(e)
			if err != nil {
				return Null(), err
			}
			fields[k] = v
		}
		return Value{kind: KindMapping, m: fields}, nil
	case map[string]Value:
		return Mapping(n), nil
	default:
		return Null(), &EncodeError{Value: native}
	}
}

// FromNativeMap converts a map of Go values into a payload mapping.
func FromNativeMap(native map[string]any) (map[string]Value, error) {
	if native == nil {
		return nil, nil
	}
	fields := make(map[string]Value, len(native))
	for k, e := range native {
		v, err := FromNative(e)
		if err != nil {
			return nil, err
		}
		fields[k] = v
	}
	return fields, nil
}

// ToNative converts the Value back into plain Go types: nil, int64, float64,
// bool, string, []any and map[string]any.
func (v Value) ToNative() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindDouble:
		return v.f
	case KindBoolean:
		return v.b
	case KindString:
		return v.s
	case KindSequence:
		items := make([]any, len(v.seq))
		for i, e := range v.seq {
			items[i] = e.ToNative()
		}
		return items
	case KindMapping:
		fields := make(map[string]any, len(v.m))
		for k, e := range v.m {
			fields[k] = e.ToNative()
		}
		return fields
	default:
		return nil
	}
}

// Decode parses a single JSON value from data. Malformed input yields a
// *DecodeError.
func Decode(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Null(), err
	}
	return v, nil
}

// Encode serializes the Value canonically: integers without a decimal point,
// doubles always with one, mapping keys in sorted order.
func Encode(v Value) ([]byte, error) {
	return v.MarshalJSON()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encodeTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encodeTo(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindInteger:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return &EncodeError{Value: v.f}
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		// A double always carries a fractional marker so it decodes back
		// as a double, never an integer.
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		buf.WriteString(s)
	case KindBoolean:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindString:
		enc, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case KindSequence:
		buf.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encodeTo(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := v.m[k].encodeTo(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &EncodeError{Value: v}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if dec.More() {
		return &DecodeError{Reason: "trailing data after value"}
	}

	parsed, err := fromDecoded(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// fromDecoded converts a generically decoded JSON value, applying the
// integer-before-double priority for untyped numeric literals.
func fromDecoded(raw any) (Value, error) {
	switch r := raw.(type) {
	case nil:
		return Null(), nil
	case json.Number:
		return numberValue(r)
	case bool:
		return Boolean(r), nil
	case string:
		return String(r), nil
	case []any:
		items := make([]Value, len(r))
		for i, e := range r {
			v, err := fromDecoded(e)
			if err != nil {
				return Null(), err
			}
			items[i] = v
		}
		return Value{kind: KindSequence, seq: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(r))
		for k, e := range r {
			v, err := fromDecoded(e)
			if err != nil {
				return Null(), err
			}
			fields[k] = v
		}
		return Value{kind: KindMapping, m: fields}, nil
	default:
		return Null(), &DecodeError{Reason: "unexpected token"}
	}
}

func numberValue(n json.Number) (Value, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return Integer(i), nil
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return Double(f), nil
	}
	return Null(), &DecodeError{Reason: "unparsable numeric literal " + string(n)}
}
