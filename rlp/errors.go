package rlp

import "errors"

// Decode-time errors: the stream's bytes don't match what the caller or
// the canonical-encoding rules require.
var (
	// ErrExpectedString is returned when a list header is seen where a
	// string was expected.
	ErrExpectedString = errors.New("rlp: expected string")

	// ErrExpectedList is returned when a string header is seen where a
	// list was expected.
	ErrExpectedList = errors.New("rlp: expected list")

	// ErrEOL is returned by ListEnd when the current list still has
	// unread items.
	ErrEOL = errors.New("rlp: end of list")

	// ErrCanonSize is returned when a single byte below 0x80 is wrapped
	// in a one-byte string header instead of being encoded as itself.
	ErrCanonSize = errors.New("rlp: non-canonical size information")

	// ErrNonCanonicalSize is returned when a long-form header is used
	// for a payload of 55 bytes or fewer.
	ErrNonCanonicalSize = errors.New("rlp: non-canonical size")

	// ErrCanonInt is returned when an integer, or a long-form length
	// field, carries a leading zero byte, and when a bool is encoded as
	// anything other than the empty string, 0x00 or 0x01.
	ErrCanonInt = errors.New("rlp: non-canonical integer encoding")

	// ErrUint64Range is returned when a decoded integer doesn't fit in
	// 64 bits.
	ErrUint64Range = errors.New("rlp: uint64 overflow")
)

// ErrValueTooLarge is returned by the encoder for a value outside the set
// of supported Go types (bool, unsigned/signed integers, *big.Int, string,
// []byte, slice, array, struct).
var ErrValueTooLarge = errors.New("rlp: value too large")
