package jsonvalue

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want any
	}{
		{"null", `null`, nil},
		{"string", `"esb"`, "esb"},
		{"escaped", `"a\"b"`, `a"b`},
		{"bool", `true`, true},
		{"int", `42`, int64(42)},
		{"negative", `-57`, int64(-57)},
		{"big", `18446744073709551615`, uint64(18446744073709551615)},
		{"float", `1.5`, 1.5},
		{"array", `[80, {"$hex": "e7e7e7ad42"}, {"$hex": "ff"}]`, []any{
			int64(80), []byte{0xe7, 0xe7, 0xe7, 0xad, 0x42}, []byte{0xff},
		}},
		{"object", `{"a": [1, null], "b": {"c": false}}`, map[string]any{
			"a": []any{int64(1), nil},
			"b": map[string]any{"c": false},
		}},
		{"empty", `[]`, []any{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := assert.New(t)
			v, err := Decode([]byte(tt.in))
			a.NoError(err)
			a.Equal(tt.want, v)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	for _, in := range []string{`[1,`, `{"a" 1}`, `1 2`, `{"$hex": "zz"}`} {
		_, err := Decode([]byte(in))
		a.Error(err, in)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	// так выглядит результат вызова после декодирования CBOR в any
	var v any
	b, err := cbor.Marshal(map[string]any{
		"firmware": []int64{1, 2, 0},
		"ack":      []any{true, []byte{0xff}, -40},
		"mode":     "esb",
		"none":     nil,
	})
	a.NoError(err)
	a.NoError(cbor.Unmarshal(b, &v))

	out, err := Encode(v)
	a.NoError(err)
	a.JSONEq(`{
		"ack": [true, {"$hex": "ff"}, -40],
		"firmware": [1, 2, 0],
		"mode": "esb",
		"none": null
	}`, string(out))
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()
	a := assert.New(t)

	in := map[string]any{
		"list": []any{int64(-1), "x", []byte{1, 2}},
		"n":    int64(7),
	}
	out, err := Encode(in)
	a.NoError(err)
	v, err := Decode(out)
	a.NoError(err)
	a.Equal(in, v)
}
