package httpclient

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/jgosmann/btdt/internal/btdterr"
)

// ResponseStatus is the ReadResponseStatus state.
type ResponseStatus struct {
	c *conn
}

// Status reads and parses the status line, rejecting anything whose
// first token is not HTTP/1.1 or whose code is not three ASCII
// digits, and advances to ReadResponseHeaders.
func (r *ResponseStatus) Status() (code int, next *ResponseHeaders, err error) {
	line, err := readLine(r.c.br)
	if err != nil {
		return 0, nil, wrapTransport(err)
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, nil, fmt.Errorf("%w: malformed status line %q", btdterr.ErrInvalidData, line)
	}
	if parts[0] != "HTTP/1.1" {
		return 0, nil, fmt.Errorf("%w: unsupported HTTP version %q", btdterr.ErrInvalidData, parts[0])
	}
	if len(parts[1]) != 3 {
		return 0, nil, fmt.Errorf("%w: malformed status code %q", btdterr.ErrInvalidData, parts[1])
	}
	for _, d := range []byte(parts[1]) {
		if d < '0' || d > '9' {
			return 0, nil, fmt.Errorf("%w: malformed status code %q", btdterr.ErrInvalidData, parts[1])
		}
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: malformed status code %q", btdterr.ErrInvalidData, parts[1])
	}
	return code, &ResponseHeaders{c: r.c, code: code}, nil
}

// ResponseHeaders is the ReadResponseHeaders state.
type ResponseHeaders struct {
	c    *conn
	code int
}

// Headers reads header lines until the blank line terminator. Each
// line is split at the first ':'; surrounding whitespace is trimmed
// from the value. Keys are canonicalized so callers can look them up
// case-insensitively.
func (r *ResponseHeaders) Headers() (Headers, *ResponseBody, error) {
	h := make(Headers)
	for {
		line, err := readLine(r.c.br)
		if err != nil {
			return nil, nil, wrapTransport(err)
		}
		if line == "" {
			break
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, nil, fmt.Errorf("%w: malformed header line %q", btdterr.ErrInvalidData, line)
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		h[key] = append(h[key], value)
	}
	return h, &ResponseBody{c: r.c, headers: h}, nil
}

// Headers holds parsed response headers with canonicalized keys.
type Headers map[string][]string

// Get returns the first value for key, canonicalizing key the same
// way Headers does, or "" if absent.
func (h Headers) Get(key string) string {
	v := h[textproto.CanonicalMIMEHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// ResponseBody is the ReadResponseBody state.
type ResponseBody struct {
	c       *conn
	headers Headers
}

// Body selects the transfer mode from the already-parsed headers and
// returns a reader that EOFs at exactly the right point: bounded by
// Content-Length, or by the chunked terminator. Any other
// Transfer-Encoding is rejected as unsupported. A response with
// neither header is treated as a zero-length body (the server sends
// neither on its bodiless 204 responses).
func (r *ResponseBody) Body() (io.ReadCloser, int64, error) {
	if te := r.headers.Get("Transfer-Encoding"); te != "" {
		if te != "chunked" {
			return nil, -1, fmt.Errorf("%w: Transfer-Encoding %q", btdterr.ErrUnsupported, te)
		}
		return &chunkedReader{c: r.c}, -1, nil
	}
	if cl := r.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, -1, fmt.Errorf("%w: malformed Content-Length %q", btdterr.ErrInvalidData, cl)
		}
		return &fixedReader{c: r.c, remaining: n}, n, nil
	}
	return &fixedReader{c: r.c, remaining: 0}, 0, nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// fixedReader reads exactly remaining bytes off the connection, then
// EOFs; a connection that ends sooner yields a transport error
// wrapping io.ErrUnexpectedEOF. Close always tears down the connection: every request sends
// Connection: close, so a connection is never reused past one
// response.
type fixedReader struct {
	c         *conn
	remaining int64
}

func (f *fixedReader) Read(p []byte) (int, error) {
	if f.remaining == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > f.remaining {
		p = p[:f.remaining]
	}
	n, err := f.c.br.Read(p)
	f.remaining -= int64(n)
	if err == io.EOF && f.remaining > 0 {
		return n, wrapTransport(io.ErrUnexpectedEOF)
	}
	if err != nil && err != io.EOF {
		return n, wrapTransport(err)
	}
	return n, err
}

func (f *fixedReader) Close() error {
	return f.c.nc.Close()
}

// chunkedReader parses Transfer-Encoding: chunked, ignoring any
// trailer headers after the terminating zero-size chunk (btdt never
// sends trailers and has no use for reading them).
type chunkedReader struct {
	c         *conn
	remaining int64
	done      bool
}

func (ch *chunkedReader) Read(p []byte) (int, error) {
	if ch.done {
		return 0, io.EOF
	}
	if ch.remaining == 0 {
		size, err := ch.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if _, err := readLine(ch.c.br); err != nil {
				return 0, wrapTransport(err)
			}
			ch.done = true
			return 0, io.EOF
		}
		ch.remaining = size
	}
	if int64(len(p)) > ch.remaining {
		p = p[:ch.remaining]
	}
	n, err := ch.c.br.Read(p)
	ch.remaining -= int64(n)
	if err == io.EOF && ch.remaining > 0 {
		return n, wrapTransport(io.ErrUnexpectedEOF)
	}
	if err != nil && err != io.EOF {
		return n, wrapTransport(err)
	}
	if ch.remaining == 0 {
		if _, trailerErr := readLine(ch.c.br); trailerErr != nil {
			return n, wrapTransport(trailerErr)
		}
	}
	return n, nil
}

func (ch *chunkedReader) readChunkSize() (int64, error) {
	line, err := readLine(ch.c.br)
	if err != nil {
		return 0, wrapTransport(err)
	}
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx] // chunk extensions are accepted but ignored
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: malformed chunk size %q", btdterr.ErrInvalidData, line)
	}
	return size, nil
}

func (ch *chunkedReader) Close() error {
	return ch.c.nc.Close()
}
