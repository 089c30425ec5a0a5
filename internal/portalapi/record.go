package portalapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrNotObject is returned when a payload is not a JSON object.
var ErrNotObject = errors.New("portalapi: payload is not an object")

// ErrNoValue is returned when none of the requested keys carries a usable value.
var ErrNoValue = errors.New("portalapi: no value")

// Record is a loosely-typed backend object. The backend is inconsistent
// about key spelling, so lookups take a list of candidate keys and use the
// first one present.
type Record map[string]any

// DecodeRecord parses raw as a JSON object, keeping numbers as json.Number.
func DecodeRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotObject
	}
	return rec, nil
}

// First returns the first non-null value among keys.
func (r Record) First(keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := r[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// Text returns the first value among keys as trimmed text. Numbers are
// rendered as sent.
func (r Record) Text(keys ...string) string {
	value, ok := r.First(keys...)
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Float returns the first value among keys as a number. Numeric strings
// such as "RM 1,250.40" are accepted.
func (r Record) Float(keys ...string) (float64, error) {
	value, ok := r.First(keys...)
	if !ok {
		return 0, ErrNoValue
	}
	switch v := value.(type) {
	case json.Number:
		return v.Float64()
	case string:
		cleaned := strings.TrimSpace(v)
		cleaned = strings.TrimPrefix(cleaned, "RM")
		cleaned = strings.ReplaceAll(strings.TrimSpace(cleaned), ",", "")
		return strconv.ParseFloat(cleaned, 64)
	}
	return 0, ErrNoValue
}

// Object returns the first nested object among keys.
func (r Record) Object(keys ...string) (Record, bool) {
	value, ok := r.First(keys...)
	if !ok {
		return nil, false
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	return Record(obj), true
}

// Raw re-encodes the first value among keys.
func (r Record) Raw(keys ...string) (json.RawMessage, bool) {
	value, ok := r.First(keys...)
	if !ok {
		return nil, false
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	return data, true
}
