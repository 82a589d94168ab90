// Package meta implements the fixed-width, in-place-mutable per-key
// metadata record: a schema version, the blob a key currently points
// at, and the last time the key was read.
package meta

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jgosmann/btdt/internal/b32enc"
	"github.com/jgosmann/btdt/internal/blobid"
	"github.com/jgosmann/btdt/internal/btdterr"
	"lukechampine.com/blake3"
)

// Version is the only schema version this package knows how to read
// or write. Any field reordering requires bumping this and teaching
// FromBytes about the old layout (or refusing it outright, as today).
const Version uint16 = 1

// Size is the fixed on-disk size of a Record in bytes: 2 (version) +
// 16 (BlobId) + 8 (unix seconds) + 4 (subsecond nanoseconds) + 10
// bytes of padding mandated by the fixed-width, zero-copy layout.
const Size = 40

const (
	offVersion  = 0
	offBlobID   = 2
	offSeconds  = 18
	offNanos    = 26
	payloadSize = offNanos + 4 // 30 bytes actually used; remainder is padding
)

// Record is a cache key's metadata: which blob it currently resolves
// to, and when it was last read.
type Record struct {
	BlobId       blobid.BlobId
	LastAccessed time.Time
}

// New builds a fresh Record for blob, stamped with now.
func New(blob blobid.BlobId, now time.Time) Record {
	return Record{BlobId: blob, LastAccessed: now}
}

// Bytes serializes r into btdt's fixed 40-byte meta record layout.
func (r Record) Bytes() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint16(buf[offVersion:], Version)
	copy(buf[offBlobID:], r.BlobId[:])
	binary.LittleEndian.PutUint64(buf[offSeconds:], uint64(r.LastAccessed.Unix()))
	binary.LittleEndian.PutUint32(buf[offNanos:], uint32(r.LastAccessed.Nanosecond()))
	return buf
}

// FromBytes parses buf into a Record. It returns an error wrapping
// btdterr.ErrInvalidData if buf is too short, the schema version is
// unrecognized, or the encoded timestamp does not form a valid Unix
// time.
func FromBytes(buf []byte) (Record, error) {
	if len(buf) < payloadSize {
		return Record{}, fmt.Errorf("%w: meta record too short (%d bytes)", btdterr.ErrInvalidData, len(buf))
	}
	version := binary.LittleEndian.Uint16(buf[offVersion:])
	if version != Version {
		return Record{}, fmt.Errorf("%w: unsupported meta schema version %d", btdterr.ErrInvalidData, version)
	}
	var id blobid.BlobId
	copy(id[:], buf[offBlobID:offBlobID+blobid.Size])
	secs := int64(binary.LittleEndian.Uint64(buf[offSeconds:]))
	nanos := int32(binary.LittleEndian.Uint32(buf[offNanos:]))
	if nanos < 0 || nanos >= int32(time.Second) {
		return Record{}, fmt.Errorf("%w: meta record has invalid nanosecond field %d", btdterr.ErrInvalidData, nanos)
	}
	return Record{
		BlobId:       id,
		LastAccessed: time.Unix(secs, int64(nanos)).UTC(),
	}, nil
}

// WithAccess returns a copy of r with LastAccessed set to now. Local
// cache Get calls this to rewrite the record in place on every hit.
func (r Record) WithAccess(now time.Time) Record {
	r.LastAccessed = now
	return r
}

// KeyFanOut returns the one-character fan-out directory that a cache
// key's meta record lives under: the first byte of BLAKE3(key),
// encoded with the same 5-bit alphabet as blob ids. This gives 32-way
// fan-out so no single directory holds the entire key space.
func KeyFanOut(key string) string {
	sum := blake3.Sum256([]byte(key))
	return b32enc.Encode(sum[:1])[:1]
}

// Path returns the storage path of key's meta record:
// /meta/<fanout>/<key>.
func Path(key string) string {
	return "meta/" + KeyFanOut(key) + "/" + key
}
