package rlp

import (
	"sync"
	"sync/atomic"
)

const (
	// pooledBufInitialCap is the starting capacity handed to a freshly
	// allocated pooled buffer.
	pooledBufInitialCap = 4096

	// pooledBufMaxCap caps what's returned to the pool; anything larger is
	// left for the GC rather than retained indefinitely.
	pooledBufMaxCap = 1 << 20
)

// EncoderPoolStats is a point-in-time snapshot of EncoderPool usage.
type EncoderPoolStats struct {
	Hits   int64
	Misses int64
	Items  int64
	Bytes  int64
}

// EncoderPool batches RLP item encoding through a pool of reusable buffers,
// for call sites that repeatedly build list payloads (transaction batches,
// log lists) and would otherwise allocate a fresh buffer every call.
type EncoderPool struct {
	bufs   sync.Pool
	hits   atomic.Int64
	misses atomic.Int64
	items  atomic.Int64
	bytes  atomic.Int64
}

// NewEncoderPool returns a ready-to-use pool.
func NewEncoderPool() *EncoderPool {
	ep := &EncoderPool{}
	ep.bufs.New = func() interface{} {
		ep.misses.Add(1)
		buf := make([]byte, 0, pooledBufInitialCap)
		return &buf
	}
	return ep
}

// Stats returns a snapshot of the pool's hit/miss/throughput counters.
func (ep *EncoderPool) Stats() EncoderPoolStats {
	return EncoderPoolStats{
		Hits:   ep.hits.Load(),
		Misses: ep.misses.Load(),
		Items:  ep.items.Load(),
		Bytes:  ep.bytes.Load(),
	}
}

func (ep *EncoderPool) acquire() *[]byte {
	buf := ep.bufs.Get().(*[]byte)
	ep.hits.Add(1)
	*buf = (*buf)[:0]
	return buf
}

func (ep *EncoderPool) release(buf *[]byte) {
	if cap(*buf) > pooledBufMaxCap {
		return
	}
	ep.bufs.Put(buf)
}

// EncodeBytes is a pooled equivalent of EncodeToBytes for a single value;
// it doesn't itself reuse a buffer (EncodeToBytes always allocates its own
// result) but keeps the pool's throughput counters consistent with batch
// calls made through the same pool.
func (ep *EncoderPool) EncodeBytes(val interface{}) ([]byte, error) {
	result, err := EncodeToBytes(val)
	if err != nil {
		return nil, err
	}
	ep.items.Add(1)
	ep.bytes.Add(int64(len(result)))
	return result, nil
}

// EncodeBatch RLP-encodes items individually and wraps the concatenation in
// a single list header — the shape used for transaction, log, and
// withdrawal lists.
func (ep *EncoderPool) EncodeBatch(items []interface{}) ([]byte, error) {
	buf := ep.acquire()
	defer ep.release(buf)

	for _, item := range items {
		enc, err := EncodeToBytes(item)
		if err != nil {
			return nil, err
		}
		*buf = append(*buf, enc...)
	}

	wrapped := WrapList(*buf)
	ep.items.Add(int64(len(items)))
	ep.bytes.Add(int64(len(wrapped)))

	out := make([]byte, len(wrapped))
	copy(out, wrapped)
	return out, nil
}

// EncodeUint64 encodes v without going through reflection.
func EncodeUint64(v uint64) []byte {
	return AppendUint64(nil, v)
}

// EncodeBytes32 encodes a fixed 32-byte value (hash, storage key).
func EncodeBytes32(data [32]byte) []byte {
	buf := make([]byte, 33)
	buf[0] = 0xa0
	copy(buf[1:], data[:])
	return buf
}

// EncodeBytes20 encodes a fixed 20-byte value (address).
func EncodeBytes20(data [20]byte) []byte {
	buf := make([]byte, 21)
	buf[0] = 0x94
	copy(buf[1:], data[:])
	return buf
}

// EncodeBool encodes a boolean without reflection.
func EncodeBool(v bool) []byte {
	if v {
		return []byte{0x01}
	}
	return []byte{0x80}
}

// AppendUint64 appends the RLP encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	switch {
	case v == 0:
		return append(dst, 0x80)
	case v < 128:
		return append(dst, byte(v))
	default:
		b := trimmedBigEndian(v)
		dst = append(dst, 0x80+byte(len(b)))
		return append(dst, b...)
	}
}

// AppendBytes appends the RLP string encoding of data to dst.
func AppendBytes(dst, data []byte) []byte {
	n := len(data)
	switch {
	case n == 1 && data[0] <= 0x7f:
		return append(dst, data[0])
	case n <= 55:
		dst = append(dst, 0x80+byte(n))
		return append(dst, data...)
	default:
		lb := trimmedBigEndian(uint64(n))
		dst = append(dst, 0xb7+byte(len(lb)))
		dst = append(dst, lb...)
		return append(dst, data...)
	}
}

// AppendListHeader appends an RLP list header sized for payloadSize bytes
// of already-encoded list items, which the caller appends separately.
func AppendListHeader(dst []byte, payloadSize int) []byte {
	if payloadSize <= 55 {
		return append(dst, 0xc0+byte(payloadSize))
	}
	lb := trimmedBigEndian(uint64(payloadSize))
	dst = append(dst, 0xf7+byte(len(lb)))
	return append(dst, lb...)
}

// EstimateListSize upper-bounds the encoded size of a list whose items
// already total payloadSize bytes — useful for pre-sizing a buffer.
func EstimateListSize(payloadSize int) int {
	if payloadSize <= 55 {
		return 1 + payloadSize
	}
	return 1 + byteLen(uint64(payloadSize)) + payloadSize
}

// EstimateStringSize upper-bounds the encoded size of a dataLen-byte string.
func EstimateStringSize(dataLen int) int {
	switch {
	case dataLen <= 55:
		return 1 + dataLen
	default:
		return 1 + byteLen(uint64(dataLen)) + dataLen
	}
}

// trimmedBigEndian returns u as big-endian bytes with no leading zero byte.
// u == 0 is handled by callers before this is reached.
func trimmedBigEndian(u uint64) []byte {
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
	for i, b := range buf {
		if b != 0 {
			return buf[i:]
		}
	}
	return buf[7:]
}

// byteLen returns how many bytes it takes to represent u in big-endian.
func byteLen(u uint64) int {
	n := 1
	for u >= 256 {
		u >>= 8
		n++
	}
	return n
}
