// Package jsonvalue converts between JSON text and the generic values
// exchanged with the RPC engine.
//
// JSON has no byte strings, so they are written as {"$hex": "e7e7e7ad42"}
// in both directions. Integral JSON numbers decode to int64 (uint64 when
// they do not fit), the rest to float64.
package jsonvalue

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

const hexKey = "$hex"

func Decode(data []byte) (any, error) {
	in := jlexer.Lexer{Data: data}
	v := decodeValue(&in)
	in.Consumed()
	if err := in.Error(); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeValue(in *jlexer.Lexer) any {
	switch {
	case !in.Ok():
		return nil
	case in.IsNull():
		in.Null()
		return nil
	case in.IsDelim('{'):
		return decodeObject(in)
	case in.IsDelim('['):
		in.Delim('[')
		arr := []any{}
		for !in.IsDelim(']') {
			arr = append(arr, decodeValue(in))
			in.WantComma()
		}
		in.Delim(']')
		return arr
	}

	raw := in.Raw()
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		s := jlexer.Lexer{Data: raw}
		return s.String()
	case 't':
		return true
	case 'f':
		return false
	}
	return decodeNumber(in, string(raw))
}

func decodeObject(in *jlexer.Lexer) any {
	obj := map[string]any{}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		obj[key] = decodeValue(in)
		in.WantComma()
	}
	in.Delim('}')

	if s, ok := obj[hexKey].(string); ok && len(obj) == 1 {
		b, err := hex.DecodeString(s)
		if err != nil {
			in.AddError(fmt.Errorf("decode %s: %w", hexKey, err))
			return nil
		}
		return b
	}
	return obj
}

func decodeNumber(in *jlexer.Lexer, s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		in.AddError(fmt.Errorf("invalid number %q", s))
		return nil
	}
	return f
}

// Encode writes v as JSON. Map keys are sorted.
func Encode(v any) ([]byte, error) {
	var w jwriter.Writer
	encodeValue(&w, v)
	return w.BuildBytes()
}

func encodeValue(w *jwriter.Writer, v any) {
	switch v := v.(type) {
	case nil:
		w.RawString("null")
	case bool:
		w.Bool(v)
	case string:
		w.String(v)
	case []byte:
		w.RawString(`{"` + hexKey + `":`)
		w.String(hex.EncodeToString(v))
		w.RawByte('}')
	case int:
		w.Int(v)
	case int8:
		w.Int8(v)
	case int16:
		w.Int16(v)
	case int32:
		w.Int32(v)
	case int64:
		w.Int64(v)
	case uint:
		w.Uint(v)
	case uint8:
		w.Uint8(v)
	case uint16:
		w.Uint16(v)
	case uint32:
		w.Uint32(v)
	case uint64:
		w.Uint64(v)
	case float32:
		w.Float32(v)
	case float64:
		w.Float64(v)
	case big.Int:
		w.RawString(v.String())
	case []any:
		w.RawByte('[')
		for i, e := range v {
			if i > 0 {
				w.RawByte(',')
			}
			encodeValue(w, e)
		}
		w.RawByte(']')
	case []string:
		w.RawByte('[')
		for i, e := range v {
			if i > 0 {
				w.RawByte(',')
			}
			w.String(e)
		}
		w.RawByte(']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		encodeObject(w, keys, func(k string) any { return v[k] })
	case map[any]any:
		keys := make([]string, 0, len(v))
		byKey := make(map[string]any, len(v))
		for k, e := range v {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			byKey[ks] = e
		}
		encodeObject(w, keys, func(k string) any { return byKey[k] })
	case cbor.Tag:
		encodeValue(w, v.Content)
	case cbor.SimpleValue:
		w.Uint8(uint8(v))
	default:
		w.String(fmt.Sprint(v))
	}
}

func encodeObject(w *jwriter.Writer, keys []string, get func(string) any) {
	sort.Strings(keys)
	w.RawByte('{')
	for i, k := range keys {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(k)
		w.RawByte(':')
		encodeValue(w, get(k))
	}
	w.RawByte('}')
}
