// Package decode turns raw encoder datagrams into samples.
//
// The wire format is a UTF-8 JSON object:
//
//	{"encoder": {"pulses": 1024, "distance": 12.34, "timestamp": 56789}}
//
// Decode never fails the caller: every input maps to exactly one Result kind.
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Top-level and nested keys of the wire format.
const (
	KeyEncoder   = "encoder"
	KeyPulses    = "pulses"
	KeyDistance  = "distance"
	KeyTimestamp = "timestamp"
)

// Sample is one decoded encoder reading.
type Sample struct {
	Pulses    int64   `json:"pulses"`
	Distance  float64 `json:"distance"` // centimeters
	Timestamp int64   `json:"timestamp"` // milliseconds on the node clock
}

// Kind tags a Result.
type Kind int

const (
	KindOK Kind = iota
	KindMalformedEncoding
	KindMissingField
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindMalformedEncoding:
		return "malformed"
	case KindMissingField:
		return "missing-field"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrInvalidUTF8 is the cause of a malformed result for non UTF-8 payloads.
var ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")

// ErrTrailingData is the cause of a malformed result when bytes follow the JSON value.
var ErrTrailingData = errors.New("trailing data after JSON value")

// FieldError names the field that made a well-formed payload unusable.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Reason }

// Result is Ok(Sample) | MalformedEncoding | MissingField.
type Result struct {
	Kind   Kind
	Sample Sample
	// Err explains a failed decode; nil for KindOK.
	Err error
	// Partial holds the parsed JSON value for KindMissingField.
	Partial any
}

// OK reports whether the result carries a sample.
func (r Result) OK() bool { return r.Kind == KindOK }

// Encode renders s in the wire format a sensor node sends.
func Encode(s Sample) ([]byte, error) {
	return json.Marshal(map[string]Sample{KeyEncoder: s})
}

// Decode parses a datagram payload.
func Decode(payload []byte) Result {
	if !utf8.Valid(payload) {
		return Result{Kind: KindMalformedEncoding, Err: ErrInvalidUTF8}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return Result{Kind: KindMalformedEncoding, Err: err}
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Result{Kind: KindMalformedEncoding, Err: ErrTrailingData}
	}

	sample, err := extract(v)
	if err != nil {
		return Result{Kind: KindMissingField, Err: err, Partial: v}
	}

	return Result{Kind: KindOK, Sample: sample}
}

func extract(v any) (Sample, error) {
	root, ok := v.(map[string]any)
	if !ok {
		return Sample{}, &FieldError{Field: KeyEncoder, Reason: "payload is not an object"}
	}

	raw, ok := root[KeyEncoder]
	if !ok {
		return Sample{}, &FieldError{Field: KeyEncoder, Reason: "missing"}
	}

	enc, ok := raw.(map[string]any)
	if !ok {
		return Sample{}, &FieldError{Field: KeyEncoder, Reason: "not an object"}
	}

	var (
		s   Sample
		err error
	)

	if s.Pulses, err = intField(enc, KeyPulses); err != nil {
		return Sample{}, err
	}

	if s.Distance, err = numberField(enc, KeyDistance); err != nil {
		return Sample{}, err
	}

	if s.Timestamp, err = intField(enc, KeyTimestamp); err != nil {
		return Sample{}, err
	}

	return s, nil
}

func lookup(obj map[string]any, key string) (json.Number, error) {
	field := KeyEncoder + "." + key

	v, ok := obj[key]
	if !ok {
		return "", &FieldError{Field: field, Reason: "missing"}
	}

	n, ok := v.(json.Number)
	if !ok {
		return "", &FieldError{Field: field, Reason: fmt.Sprintf("not a number (%s)", kindOf(v))}
	}

	return n, nil
}

func intField(obj map[string]any, key string) (int64, error) {
	n, err := lookup(obj, key)
	if err != nil {
		return 0, err
	}

	i, err := n.Int64()
	if err != nil {
		return 0, &FieldError{Field: KeyEncoder + "." + key, Reason: fmt.Sprintf("not an integer (%s)", n)}
	}

	return i, nil
}

func numberField(obj map[string]any, key string) (float64, error) {
	n, err := lookup(obj, key)
	if err != nil {
		return 0, err
	}

	f, err := n.Float64()
	if err != nil {
		return 0, &FieldError{Field: KeyEncoder + "." + key, Reason: fmt.Sprintf("out of range (%s)", n)}
	}

	return f, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// RenderPartial renders a parsed value for diagnostics. Values that came out of
// Decode always marshal; anything else falls back to fmt.
func RenderPartial(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(b)
}

// RenderRaw renders payload bytes as text, dropping invalid UTF-8 sequences.
func RenderRaw(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "")
}
