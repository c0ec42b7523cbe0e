package value

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Canonical encoding tag bytes. The schema is frozen: any change must bump
// the plugin version and invalidate all caches.
const (
	TagBool   = 0x01
	TagInt    = 0x02
	TagFloat  = 0x03
	TagString = 0x04
	TagArray  = 0x05
	TagDict   = 0x06
)

// AppendCanonical appends the canonical byte encoding of v to buf:
// a tag byte, then a fixed-width or length-prefixed payload. Dict entries are
// emitted in lexicographic key order so the encoding is independent of map
// iteration order; floats are encoded through their NaN-normalized bits.
func (v Value) AppendCanonical(buf []byte) []byte {
	switch v.Kind {
	case KindBool:
		buf = append(buf, TagBool)
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt:
		buf = append(buf, TagInt)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Int))
	case KindFloat:
		buf = append(buf, TagFloat)
		buf = binary.LittleEndian.AppendUint64(buf, v.Float.Bits())
	case KindString:
		buf = append(buf, TagString)
		buf = AppendString(buf, v.Str)
	case KindArray:
		buf = append(buf, TagArray)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(v.Arr)))
		for _, e := range v.Arr {
			buf = e.AppendCanonical(buf)
		}
	case KindDict:
		buf = append(buf, TagDict)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(v.Map)))
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf = AppendString(buf, k)
			buf = v.Map[k].AppendCanonical(buf)
		}
	}
	return buf
}

// AppendString appends a length-prefixed UTF-8 string (no tag byte).
func AppendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(s)))
	return append(buf, s...)
}

// Digest64 returns the 64-bit content digest of a canonical encoding: the
// first 8 bytes of its SHA-256, read little-endian.
func Digest64(canonical []byte) uint64 {
	sum := sha256.Sum256(canonical)
	return binary.LittleEndian.Uint64(sum[:8])
}

// Hash returns the canonical 64-bit digest of v.
func (v Value) Hash() uint64 {
	return Digest64(v.AppendCanonical(nil))
}
