// Package btdterr defines the error kinds shared by every layer of btdt.
//
// Callers are expected to test for a kind with errors.Is, not by
// inspecting a concrete type or matching strings:
//
//	_, err := storage.Get(ctx, path)
//	if errors.Is(err, btdterr.ErrNotFound) {
//	        // fall through to the next cache key
//	}
package btdterr

import "errors"

// Sentinel error kinds. These match the "Error kinds (not types)" list
// in the storage/cache/HTTP specification; every package in btdt wraps
// one of these with fmt.Errorf("%w", ...) rather than minting its own
// error type.
var (
	// ErrInvalidInput covers malformed paths, missing hosts, and empty
	// key lists where at least one key is required.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a file is missing from storage.
	ErrNotFound = errors.New("not found")
	// ErrIsADirectory is returned when a file operation is attempted
	// against a path that is a directory.
	ErrIsADirectory = errors.New("is a directory")
	// ErrNotADirectory is returned when a directory operation is
	// attempted against a path that is a plain file.
	ErrNotADirectory = errors.New("not a directory")
	// ErrDirectoryNotEmpty is returned by delete when the target is a
	// non-empty directory.
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	// ErrInvalidData is returned when a meta record, HTTP status line,
	// header, or chunk size fails to parse.
	ErrInvalidData = errors.New("invalid data")
	// ErrUnsupported is returned for HTTP features the client does not
	// implement: unknown transfer encodings, userinfo in URLs.
	ErrUnsupported = errors.New("unsupported")
	// ErrTransport covers network and TLS failures.
	ErrTransport = errors.New("transport error")
	// ErrAuthInvalid is returned when a bearer token cannot be parsed.
	ErrAuthInvalid = errors.New("invalid authorization token")
	// ErrAuthDenied is returned when a token parses but its policies
	// deny the requested operation.
	ErrAuthDenied = errors.New("authorization denied")
)

// PathError annotates an error with the storage path that produced it,
// mirroring the standard library's fs.PathError.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

// Path wraps err with the operation and path that produced it. If err
// is nil, Path returns nil.
func Path(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &PathError{Op: op, Path: path, Err: err}
}

// RemoteStatus is returned by the remote cache client when the server
// responds with a status code that is neither 2xx (success) nor 204
// (miss).
type RemoteStatus struct {
	Code int
	Body string
}

func (e *RemoteStatus) Error() string {
	if e.Body == "" {
		return "remote cache returned unexpected status"
	}
	return "remote cache returned unexpected status: " + e.Body
}

// Is reports whether target is ErrTransport, so callers that only
// care about "did the network layer misbehave" can use a single
// errors.Is check that also matches RemoteStatus.
func (e *RemoteStatus) Is(target error) bool {
	return target == ErrTransport
}
