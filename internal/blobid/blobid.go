// Package blobid implements BlobId, the 16-byte random identifier
// under which cache blobs are stored.
package blobid

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jgosmann/btdt/internal/b32enc"
	"github.com/jgosmann/btdt/internal/btdterr"
)

// Size is the length of a BlobId in bytes.
const Size = 16

// BlobId is a 16-byte value drawn from a cryptographically strong RNG
// at set time. Collision probability is treated as negligible: there
// is deliberately no retry-on-collision logic anywhere in btdt.
type BlobId [Size]byte

// New draws a fresh BlobId from rng. If rng is nil, a thread-local
// cryptographically strong source is used (the production path);
// tests pass any other deterministic io.Reader to get reproducible
// fixtures, per the "Randomness injection" design note.
func New(rng io.Reader) (BlobId, error) {
	var u uuid.UUID
	var err error
	if rng == nil {
		u, err = uuid.NewRandom()
	} else {
		u, err = uuid.NewRandomFromReader(rng)
	}
	if err != nil {
		return BlobId{}, fmt.Errorf("generating blob id: %w", err)
	}
	return BlobId(u), nil
}

// String lowercase-encodes id with btdt's 5-bit filename alphabet.
func (id BlobId) String() string {
	return b32enc.Encode(id[:])
}

// Parse reverses String. It returns an error wrapping
// btdterr.ErrInvalidData if s does not decode to exactly Size bytes —
// the blob-size enumeration step of eviction relies on this to
// silently ignore foreign or truncated filenames under /blob.
func Parse(s string) (BlobId, error) {
	b, err := b32enc.Decode(s)
	if err != nil || len(b) != Size {
		return BlobId{}, fmt.Errorf("%w: invalid blob id %q", btdterr.ErrInvalidData, s)
	}
	var id BlobId
	copy(id[:], b)
	return id, nil
}

// FanOut splits the BlobId's string encoding into the two-character
// fan-out directory name and the remaining filename, per the
// /blob/<aa>/<rest> layout.
func (id BlobId) FanOut() (dir, rest string) {
	s := id.String()
	return s[:2], s[2:]
}

// Path returns the storage path of the blob: /blob/<aa>/<rest>.
func (id BlobId) Path() string {
	dir, rest := id.FanOut()
	return "blob/" + dir + "/" + rest
}
