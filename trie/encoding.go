package trie

// Hex-prefix (HP) encoding, Ethereum Yellow Paper Appendix C.
//
// A key inside the trie is represented three different ways depending on
// context: as raw key bytes, as an expanded nibble sequence (one byte per
// hex digit, optionally ending in the terminator value), and as the packed
// "compact"/hex-prefix form actually stored in a shortNode. The functions
// below convert between those three representations.

// nibbleTerminator marks the end of a leaf key in its expanded nibble form.
// It is deliberately out of the 0x0-0xf nibble range so it can't collide
// with real key data.
const nibbleTerminator = 16

// hexToCompact packs an expanded nibble sequence into hex-prefix form. Bits
// 5 (0x20) and 4 (0x10) of the first output byte record whether the key
// terminates a leaf and whether the nibble count is odd; when odd, the spare nibble of
// that first byte carries the first data nibble instead of padding.
func hexToCompact(hex []byte) []byte {
	var flag byte
	if hasTerm(hex) {
		flag = 1 << 5
		hex = hex[:len(hex)-1]
	}

	odd := len(hex)&1 == 1
	out := make([]byte, len(hex)/2+1)
	out[0] = flag
	if odd {
		out[0] |= 1<<4 | hex[0]
		hex = hex[1:]
	}
	packNibbles(hex, out[1:])
	return out
}

// compactToHex expands hex-prefix encoded bytes back into the nibble
// sequence it came from, restoring the terminator if the encoding marked
// the key as a leaf.
func compactToHex(compact []byte) []byte {
	if len(compact) == 0 {
		return compact
	}
	flags := compact[0] >> 4
	odd := flags&1 != 0
	leaf := flags&2 != 0

	n := (len(compact) - 1) * 2
	if odd {
		n++
	}
	if leaf {
		n++
	}
	hex := make([]byte, n)

	i := 0
	if odd {
		hex[0] = compact[0] & 0x0f
		i = 1
	}
	for _, b := range compact[1:] {
		hex[i] = b >> 4
		hex[i+1] = b & 0x0f
		i += 2
	}
	if leaf {
		hex[len(hex)-1] = nibbleTerminator
	}
	return hex
}

// keybytesToHex expands a raw key into its nibble sequence, terminator
// included.
func keybytesToHex(key []byte) []byte {
	hex := make([]byte, len(key)*2+1)
	for i, b := range key {
		hex[i*2] = b >> 4
		hex[i*2+1] = b & 0x0f
	}
	hex[len(hex)-1] = nibbleTerminator
	return hex
}

// hexToKeybytes collapses an expanded nibble sequence of even length back
// into raw key bytes, dropping any terminator first.
func hexToKeybytes(hex []byte) []byte {
	if hasTerm(hex) {
		hex = hex[:len(hex)-1]
	}
	if len(hex)%2 != 0 {
		panic("trie: hexToKeybytes called with odd-length key")
	}
	key := make([]byte, len(hex)/2)
	packNibbles(hex, key)
	return key
}

// packNibbles folds consecutive nibble pairs into the bytes of dst.
func packNibbles(nibbles, dst []byte) {
	for i := 0; i+1 < len(nibbles); i += 2 {
		dst[i/2] = nibbles[i]<<4 | nibbles[i+1]
	}
}

// prefixLen returns how many leading elements a and b share.
func prefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// hasTerm reports whether the nibble sequence s ends in the terminator.
func hasTerm(s []byte) bool {
	return len(s) > 0 && s[len(s)-1] == nibbleTerminator
}
