package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ValueKind discriminates the variants of Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindArray
	KindObject
)

// Value is the generic argument tree passed to downstream tools. It is a
// tagged union rather than a bare any so the JSON conversion stays
// exhaustive: string, int64 for integral numbers, float64 otherwise,
// bool, null, ordered array, ordered object.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Arr   []Value
	Obj   *ValueMap
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func NullValue() Value           { return Value{Kind: KindNull} }

// MarshalJSON renders the value back into its JSON form. Object keys keep
// their original insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindArray:
		if v.Arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Arr)
	case KindObject:
		if v.Obj == nil {
			return []byte("{}"), nil
		}
		return v.Obj.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// ValueMap is a string-keyed mapping that preserves insertion order.
type ValueMap struct {
	keys []string
	vals map[string]Value
}

func NewValueMap() *ValueMap {
	return &ValueMap{vals: make(map[string]Value)}
}

func (m *ValueMap) Set(key string, v Value) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

func (m *ValueMap) Get(key string) (Value, bool) {
	v, ok := m.vals[key]
	return v, ok
}

func (m *ValueMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *ValueMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *ValueMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		encodedVal, err := json.Marshal(m.vals[key])
		if err != nil {
			return nil, err
		}
		buf.Write(encodedVal)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseArguments converts a JSON object text into an ordered Value
// mapping. Integral numbers become int64, everything else float64; the
// conversion recurses to arbitrary nesting depth.
func ParseArguments(text string) (*ValueMap, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, errors.New("parse arguments: top-level value must be a JSON object")
	}

	m, err := parseObject(dec)
	if err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("parse arguments: trailing data after object")
	}
	return m, nil
}

// parseObject consumes tokens after an opening '{' up to the matching '}'.
func parseObject(dec *json.Decoder) (*ValueMap, error) {
	m := NewValueMap()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is not a string: %v", keyTok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		m.Set(key, val)
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseArray(dec *json.Decoder) ([]Value, error) {
	arr := []Value{}
	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj, err := parseObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindObject, Obj: obj}, nil
		case '[':
			arr, err := parseArray(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindArray, Arr: arr}, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return numberValue(t)
	case nil:
		return NullValue(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// numberValue keeps integral numbers as int64 so downstream tools that
// expect integers never receive 1.0 for 1.
func numberValue(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err == nil {
			return IntValue(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return FloatValue(f), nil
}
