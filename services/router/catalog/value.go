// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	// KindAbsent means no value (JSON null or missing field).
	KindAbsent ValueKind = iota
	// KindInteger holds an int64.
	KindInteger
	// KindFloat holds a float64.
	KindFloat
	// KindString holds a string.
	KindString
	// KindList holds an ordered list of Values.
	KindList
)

// String returns the kind name for logs and error messages.
func (k ValueKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a tagged variant for parameter defaults and resolved parameter
// values: absent | integer | float | string | list.
//
// # Description
//
// A parameter's semantic type is inferred from the runtime type of its sample
// default value, so the catalog cannot rely on implicit dynamic typing. Value
// makes the variant explicit: an integer default stays an integer through
// JSON round trips (it is never silently widened to float64), which is what
// makes coercion exhaustive and testable.
//
// The zero Value is the absent variant.
//
// # Thread Safety
//
// Value is immutable after construction and safe for concurrent use.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	list []Value
}

// AbsentValue returns the absent variant.
func AbsentValue() Value { return Value{} }

// IntegerValue returns an integer Value.
func IntegerValue(i int64) Value { return Value{kind: KindInteger, i: i} }

// FloatValue returns a float Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// ListValue returns a list Value. The slice is not copied; callers must not
// mutate it afterwards.
func ListValue(vs []Value) Value { return Value{kind: KindList, list: vs} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// Int64 returns the integer payload. Zero unless Kind is KindInteger.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the float payload. Zero unless Kind is KindFloat.
func (v Value) Float64() float64 { return v.f }

// Str returns the string payload. Empty unless Kind is KindString.
func (v Value) Str() string { return v.s }

// List returns the list payload. Nil unless Kind is KindList.
func (v Value) List() []Value { return v.list }

// IsEmpty reports whether the value must be dropped from a downstream request:
// absent, empty string, or empty list.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindAbsent:
		return true
	case KindString:
		return v.s == ""
	case KindList:
		return len(v.list) == 0
	default:
		return false
	}
}

// Equal reports deep equality of two values, including the variant tag.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindAbsent:
		return true
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for idx := range v.list {
			if !v.list[idx].Equal(o.list[idx]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for prompts, query parameters, and logs.
// Absent renders as the empty string; lists render comma-separated.
func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return ""
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, 0, len(v.list))
		for _, e := range v.list {
			parts = append(parts, e.String())
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// MarshalJSON writes the variant back in its natural JSON form:
// absent -> null, integer -> number without fraction, float -> number,
// string -> string, list -> array.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindAbsent:
		return []byte("null"), nil
	case KindInteger:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, fmt.Errorf("catalog: cannot marshal value kind %d", v.kind)
	}
}

// UnmarshalJSON reads a JSON scalar or array into the matching variant.
// Numbers without a fractional part become integers; everything else that is
// numeric becomes a float. Booleans are kept as their string rendering (the
// downstream query is string-typed anyway).
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("catalog: decoding value: %w", err)
	}
	parsed, err := valueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// valueFromAny converts a decoded JSON value (with json.Number intact) into
// the tagged representation.
func valueFromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return AbsentValue(), nil
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return IntegerValue(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("catalog: unparseable number %q", t.String())
		}
		return FloatValue(f), nil
	case string:
		return StringValue(t), nil
	case bool:
		return StringValue(strconv.FormatBool(t)), nil
	case []any:
		list := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := valueFromAny(e)
			if err != nil {
				return Value{}, err
			}
			list = append(list, ev)
		}
		return ListValue(list), nil
	default:
		return Value{}, fmt.Errorf("catalog: unsupported value type %T", raw)
	}
}
