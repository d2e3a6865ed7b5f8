// Package otlp holds helpers for building and reading OTLP attribute lists.
package otlp

import (
	"encoding/base64"
	"strconv"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
)

// String wraps v as an AnyValue.
func String(v string) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}
}

// KVString builds a string attribute.
func KVString(k, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: String(v)}
}

// KVInt builds an integer attribute.
func KVInt(k string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}}
}

// KVDouble builds a floating point attribute.
func KVDouble(k string, v float64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v}}}
}

// ExtractAttrs finds the attribute value by precedence: logAttrs > scopeAttrs > resourceAttrs.
// Returns the canonical string representation and true if the key was found.
func ExtractAttrs(key string, logAttrs, scopeAttrs, resourceAttrs []*commonpb.KeyValue) (string, bool) {
	if v, ok := findInKVs(key, logAttrs); ok {
		return v, true
	}

	if v, ok := findInKVs(key, scopeAttrs); ok {
		return v, true
	}

	if v, ok := findInKVs(key, resourceAttrs); ok {
		return v, true
	}

	return "", false
}

func findInKVs(key string, kvs []*commonpb.KeyValue) (string, bool) {
	for _, kv := range kvs {
		if kv.GetKey() == key {
			if kv.GetValue() == nil {
				return "", false
			}

			return AnyToString(kv.GetValue()), true
		}
	}

	return "", false
}

// AnyToString renders an AnyValue. Doubles use the shortest exact form.
func AnyToString(v *commonpb.AnyValue) string {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(x.BytesValue)
	default:
		return "<unknown>"
	}
}
