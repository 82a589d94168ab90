package storage

import (
	"fmt"
	"strings"

	"github.com/jgosmann/btdt/internal/btdterr"
)

// clean validates a storage path: it is '/'-delimited, interpreted
// relative to the storage root whether or not it starts with '/', and
// must never contain a ".." component that would let it escape the
// storage root. It returns the path with any leading/trailing slashes
// trimmed.
func clean(path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		switch p {
		case "", ".":
			return "", fmt.Errorf("%w: empty path component in %q", btdterr.ErrInvalidInput, path)
		case "..":
			return "", fmt.Errorf("%w: path %q escapes storage root", btdterr.ErrInvalidInput, path)
		}
	}
	return strings.Join(parts, "/"), nil
}
