package rlp

import (
	"io"
	"math/big"
	"reflect"
)

// Encode writes the RLP encoding of val to w.
// val must be a supported type: bool, uint8/16/32/64, *big.Int,
// []byte, string, slice/array, or struct (exported fields only).
func Encode(w io.Writer, val interface{}) error {
	b, err := EncodeToBytes(val)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EncodeToBytes returns the RLP encoding of val.
func EncodeToBytes(val interface{}) ([]byte, error) {
	return encodeValue(reflect.ValueOf(val))
}

var bigIntType = reflect.TypeOf(big.Int{})

// indirect walks through pointer and interface layers, reporting ok=false
// (meaning: encode as an empty string) the moment it finds a nil.
func indirect(v reflect.Value) (out reflect.Value, ok bool) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, true
}

func encodeValue(v reflect.Value) ([]byte, error) {
	v, ok := indirect(v)
	if !ok {
		return []byte{0x80}, nil
	}

	if v.Type() == bigIntType {
		return encodeBigInt(v.Addr().Interface().(*big.Int)), nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return EncodeBool(v.Bool()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return AppendUint64(nil, v.Uint()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return AppendUint64(nil, uint64(v.Int())), nil
	case reflect.String:
		return encodeString([]byte(v.String())), nil
	case reflect.Slice:
		return encodeSliceOrArray(v)
	case reflect.Array:
		return encodeSliceOrArray(v)
	case reflect.Struct:
		return encodeStruct(v)
	case reflect.Invalid:
		return []byte{0x80}, nil
	default:
		return nil, ErrValueTooLarge
	}
}

// encodeSliceOrArray dispatches a slice or array to byte-string encoding
// when its element type is byte, and to list encoding otherwise. Go's
// reflect API exposes the same element/length/index operations for both
// kinds, so one function handles what used to be two near-identical cases.
func encodeSliceOrArray(v reflect.Value) ([]byte, error) {
	if v.Type().Elem().Kind() != reflect.Uint8 {
		return encodeList(v)
	}
	if v.Kind() == reflect.Slice {
		return encodeString(v.Bytes()), nil
	}
	b := make([]byte, v.Len())
	for i := range b {
		b[i] = byte(v.Index(i).Uint())
	}
	return encodeString(b), nil
}

func encodeBigInt(i *big.Int) []byte {
	if i.Sign() == 0 {
		return []byte{0x80}
	}
	return encodeString(i.Bytes())
}

func encodeString(data []byte) []byte {
	return AppendBytes(nil, data)
}

func encodeList(v reflect.Value) ([]byte, error) {
	var payload []byte
	for i := 0; i < v.Len(); i++ {
		enc, err := encodeValue(v.Index(i))
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return wrapList(payload), nil
}

func encodeStruct(v reflect.Value) ([]byte, error) {
	var payload []byte
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		enc, err := encodeValue(v.Field(i))
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return wrapList(payload), nil
}

// WrapList wraps an already-encoded RLP payload in a list header.
func WrapList(payload []byte) []byte {
	return wrapList(payload)
}

func wrapList(payload []byte) []byte {
	dst := AppendListHeader(make([]byte, 0, len(payload)+9), len(payload))
	return append(dst, payload...)
}
