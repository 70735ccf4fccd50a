// Package record holds the fixed-size binary layouts exchanged with the
// companion: events (two variants), reminders and reminder lists.
//
// All multi-byte integers are little-endian. Layouts follow the device ABI,
// so an explicit pad byte appears where the device compiler aligns a 32-bit
// field. Strings are NUL-terminated inside their fixed buffer.
package record

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrMalformed      = errors.New("record: malformed buffer")
	ErrUnknownVariant = errors.New("record: unknown event variant")
)

// DecodeRecords returns views over buf at stride size. Trailing bytes shorter than
// one record are ignored. A buffer shorter than one record is malformed and
// yields no records.
func DecodeRecords(buf []byte, size int) ([][]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: record size %d", ErrMalformed, size)
	}
	n := len(buf) / size
	if n == 0 {
		return nil, fmt.Errorf("%w: %d bytes, record size %d", ErrMalformed, len(buf), size)
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = buf[i*size : (i+1)*size : (i+1)*size]
	}
	return out, nil
}

// Join concatenates encoded records.
func Join(recs [][]byte) []byte {
	n := 0
	for _, r := range recs {
		n += len(r)
	}
	out := make([]byte, 0, n)
	for _, r := range recs {
		out = append(out, r...)
	}
	return out
}

// getString reads a NUL-terminated string out of a fixed buffer. A buffer
// without a terminator is read whole.
func getString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// putString writes s into dst, truncating at a rune boundary so that a
// terminator always fits.
func putString(dst []byte, s string) {
	limit := len(dst) - 1
	if len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getBool(b byte) bool { return b != 0 }

func putBool(v bool) byte {
	if v {
		return 1
	}
	return 0
}
