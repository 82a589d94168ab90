package b32enc

import (
	"bytes"
	"strings"
	"testing"
	"testing/quick"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	err := quick.Check(func(b []byte) bool {
		decoded, err := Decode(Encode(b))
		if err != nil {
			return false
		}
		return bytes.Equal(decoded, b)
	}, nil)
	if err != nil {
		t.Error(err)
	}
}

func TestDecodeIsCaseInsensitive(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04}
	lower := Encode(b)
	upper := strings.ToUpper(lower)
	decoded, err := Decode(upper)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, b) {
		t.Fatalf("Decode(%q) = %x, want %x", upper, decoded, b)
	}
}

func TestEncodeUsesOnlyDocumentedAlphabet(t *testing.T) {
	b := bytes.Repeat([]byte{0xff}, 16)
	s := Encode(b)
	for _, r := range s {
		if !strings.ContainsRune(Alphabet, r) {
			t.Fatalf("Encode produced out-of-alphabet rune %q in %q", r, s)
		}
	}
}
