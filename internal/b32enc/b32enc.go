// Package b32enc implements the lowercase, unpadded, 5-bit alphabet
// (a-z0-5) used to turn BlobIds, key hashes, and temp-file suffixes
// into filesystem-safe, case-insensitive names.
package b32enc

import "encoding/base32"

// Alphabet is the 32-symbol, case-insensitive alphabet btdt encodes
// filenames with: the 26 lowercase letters followed by the digits 0-5.
const Alphabet = "abcdefghijklmnopqrstuvwxyz012345"

var encoding = base32.NewEncoding(Alphabet).WithPadding(base32.NoPadding)

// Encode lowercases-encodes b with no padding.
func Encode(b []byte) string {
	return encoding.EncodeToString(b)
}

// Decode reverses Encode. It is tolerant of uppercase input since the
// alphabet is documented as case-insensitive.
func Decode(s string) ([]byte, error) {
	return encoding.DecodeString(lower(s))
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}
