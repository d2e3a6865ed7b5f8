package decode

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	res := Decode([]byte(`{"encoder": {"pulses": 1024, "distance": 12.34, "timestamp": 56789}}`))

	require.True(t, res.OK())
	require.NoError(t, res.Err)
	require.Nil(t, res.Partial)
	assert.EqualValues(t, 1024, res.Sample.Pulses)
	assert.InDelta(t, 12.34, res.Sample.Distance, 0)
	assert.EqualValues(t, 56789, res.Sample.Timestamp)
}

func TestDecode_ExtraKeysIgnored(t *testing.T) {
	res := Decode([]byte(`{"node":"esp32","encoder":{"pulses":-5,"distance":-0.03,"timestamp":1,"rpm":3}}` + "\n"))

	require.Equal(t, KindOK, res.Kind)
	require.Equal(t, Sample{Pulses: -5, Distance: -0.03, Timestamp: 1}, res.Sample)
}

func TestDecode_IntegerDistance(t *testing.T) {
	res := Decode([]byte(`{"encoder":{"pulses":0,"distance":0,"timestamp":0}}`))

	require.Equal(t, KindOK, res.Kind)
	require.Equal(t, Sample{}, res.Sample)
}

func TestDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		want := Sample{
			Pulses:    rng.Int64N(1<<40) - 1<<39,
			Distance:  (rng.Float64() - 0.5) * 1e6,
			Timestamp: rng.Int64N(1 << 40),
		}

		payload, err := Encode(want)
		require.NoError(t, err)

		res := Decode(payload)
		require.Equalf(t, KindOK, res.Kind, "payload=%s", payload)
		require.Equalf(t, want, res.Sample, "payload=%s", payload)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not_json", []byte("not json")},
		{"empty", []byte{}},
		{"whitespace", []byte("   ")},
		{"truncated", []byte(`{"encoder":{"pulses":1`)},
		{"invalid_utf8", []byte{0xff, 0xfe, '{', '}'}},
		{"utf8_inside_string", []byte("{\"encoder\":\"\xc3\x28\"}")},
		{"trailing_garbage", []byte(`{"encoder":{}} x`)},
		{"two_values", []byte(`{} {}`)},
		{"binary", []byte{0x00, 0x01, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode(tt.payload)
			require.Equal(t, KindMalformedEncoding, res.Kind)
			require.Error(t, res.Err)
			require.False(t, res.OK())
			require.Nil(t, res.Partial)
		})
	}
}

func TestDecode_MalformedCauses(t *testing.T) {
	require.ErrorIs(t, Decode([]byte{0xff}).Err, ErrInvalidUTF8)
	require.ErrorIs(t, Decode([]byte(`{"a":1}{"b":2}`)).Err, ErrTrailingData)

	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, Decode([]byte("not json")).Err, &syntaxErr)
}

func TestDecode_MissingField(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
	}{
		{"foo", `{"foo": 1}`, "encoder"},
		{"empty_object", `{}`, "encoder"},
		{"array", `[1,2,3]`, "encoder"},
		{"number", `42`, "encoder"},
		{"string", `"encoder"`, "encoder"},
		{"null", `null`, "encoder"},
		{"encoder_not_object", `{"encoder": 5}`, "encoder"},
		{"no_pulses", `{"encoder":{"distance":1.5,"timestamp":2}}`, "encoder.pulses"},
		{"no_distance", `{"encoder":{"pulses":1,"timestamp":2}}`, "encoder.distance"},
		{"no_timestamp", `{"encoder":{"pulses":1,"distance":1.5}}`, "encoder.timestamp"},
		{"pulses_string", `{"encoder":{"pulses":"1","distance":1.5,"timestamp":2}}`, "encoder.pulses"},
		{"pulses_float", `{"encoder":{"pulses":1.5,"distance":1.5,"timestamp":2}}`, "encoder.pulses"},
		{"distance_null", `{"encoder":{"pulses":1,"distance":null,"timestamp":2}}`, "encoder.distance"},
		{"timestamp_bool", `{"encoder":{"pulses":1,"distance":1.5,"timestamp":true}}`, "encoder.timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode([]byte(tt.payload))
			require.Equal(t, KindMissingField, res.Kind)

			var fieldErr *FieldError
			require.ErrorAs(t, res.Err, &fieldErr)
			require.Equal(t, tt.field, fieldErr.Field)
		})
	}
}

func TestDecode_MissingFieldKeepsPartial(t *testing.T) {
	res := Decode([]byte(`{"foo": 1, "bar": [true, null]}`))

	require.Equal(t, KindMissingField, res.Kind)
	require.Equal(t, `{"bar":[true,null],"foo":1}`, RenderPartial(res.Partial))
	require.Equal(t, "encoder: missing", res.Err.Error())
}

func TestRenderPartial_Fallback(t *testing.T) {
	require.Equal(t, "null", RenderPartial(nil))
	// channels do not marshal
	ch := make(chan int)
	require.Equal(t, fmt.Sprintf("%v", ch), RenderPartial(ch))
}

func TestRenderRaw_DropsInvalidBytes(t *testing.T) {
	require.Equal(t, "not json", RenderRaw([]byte("not json")))
	require.Equal(t, "ab", RenderRaw([]byte{'a', 0xff, 0xfe, 'b'}))
	require.Equal(t, "", RenderRaw(nil))
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "ok", KindOK.String())
	require.Equal(t, "malformed", KindMalformedEncoding.String())
	require.Equal(t, "missing-field", KindMissingField.String())
	require.Equal(t, "kind(9)", Kind(9).String())
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"encoder":{"pulses":1024,"distance":12.34,"timestamp":56789}}`))
	f.Add([]byte(`{"foo": 1}`))
	f.Add([]byte("not json"))
	f.Add([]byte{0xff, 0x00})

	f.Fuzz(func(t *testing.T, payload []byte) {
		res := Decode(payload)

		switch res.Kind {
		case KindOK:
			require.NoError(t, res.Err)
		case KindMalformedEncoding, KindMissingField:
			require.Error(t, res.Err)
			_ = RenderRaw(payload)
			_ = RenderPartial(res.Partial)
		default:
			t.Fatalf("unexpected kind %v", res.Kind)
		}
	})
}
