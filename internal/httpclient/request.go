package httpclient

import (
	"fmt"

	"github.com/jgosmann/btdt/internal/btdterr"
)

// RequestHeaders is the AwaitingRequestHeaders state: the request line
// has been written, and only header lines may follow. It transitions
// to exactly one body state: NoBody, FixedBody, or ChunkedBody. Header
// is defined only on RequestHeaders, so the body writer types offer no
// way to add a header. The compiler does not stop a caller from
// calling Header on a RequestHeaders value kept after a body state was
// chosen; such a line is written into the body stream.
type RequestHeaders struct {
	c   *conn
	err error
}

// Header writes one request header line. It returns the receiver so
// calls can be chained.
func (r *RequestHeaders) Header(key, value string) *RequestHeaders {
	if r.err != nil {
		return r
	}
	_, r.err = fmt.Fprintf(r.c.bw, "%s: %s\r\n", key, value)
	return r
}

// NoBody finalizes a request with no body (e.g. GET) and advances to
// ReadResponseStatus.
func (r *RequestHeaders) NoBody() (*ResponseStatus, error) {
	if r.err != nil {
		return nil, wrapTransport(r.err)
	}
	if _, err := r.c.bw.WriteString("\r\n"); err != nil {
		return nil, wrapTransport(err)
	}
	if err := r.c.bw.Flush(); err != nil {
		return nil, wrapTransport(err)
	}
	return &ResponseStatus{c: r.c}, nil
}

// FixedBody finalizes the headers with a Content-Length of size and
// advances to AwaitingRequestBody(fixed). The returned writer rejects
// any attempt to write more or fewer than size bytes in total.
func (r *RequestHeaders) FixedBody(size int64) (*FixedBodyWriter, error) {
	if r.err != nil {
		return nil, wrapTransport(r.err)
	}
	if _, err := fmt.Fprintf(r.c.bw, "Content-Length: %d\r\n\r\n", size); err != nil {
		return nil, wrapTransport(err)
	}
	return &FixedBodyWriter{c: r.c, remaining: size}, nil
}

// ChunkedBody finalizes the headers with Transfer-Encoding: chunked
// and advances to AwaitingRequestBody(chunked).
func (r *RequestHeaders) ChunkedBody() (*ChunkedBodyWriter, error) {
	if r.err != nil {
		return nil, wrapTransport(r.err)
	}
	if _, err := r.c.bw.WriteString("Transfer-Encoding: chunked\r\n\r\n"); err != nil {
		return nil, wrapTransport(err)
	}
	return &ChunkedBodyWriter{c: r.c}, nil
}

// FixedBodyWriter is AwaitingRequestBody(fixed): exactly the declared
// number of bytes must be written before calling Response.
type FixedBodyWriter struct {
	c         *conn
	remaining int64
}

func (w *FixedBodyWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > w.remaining {
		return 0, fmt.Errorf("%w: write exceeds declared Content-Length by %d bytes", btdterr.ErrInvalidInput, int64(len(p))-w.remaining)
	}
	n, err := w.c.bw.Write(p)
	w.remaining -= int64(n)
	if err != nil {
		return n, wrapTransport(err)
	}
	return n, nil
}

// Response flushes the body and advances to ReadResponseStatus. It is
// an error to call this before every declared byte has been written.
func (w *FixedBodyWriter) Response() (*ResponseStatus, error) {
	if w.remaining != 0 {
		return nil, fmt.Errorf("%w: %d declared bytes were never written", btdterr.ErrInvalidInput, w.remaining)
	}
	if err := w.c.bw.Flush(); err != nil {
		return nil, wrapTransport(err)
	}
	return &ResponseStatus{c: w.c}, nil
}

// ChunkedBodyWriter is AwaitingRequestBody(chunked). Each Write call
// emits exactly one chunk.
type ChunkedBodyWriter struct {
	c   *conn
	err error
}

// Write emits one chunk: hex length, CRLF, data, CRLF. An empty write
// is a no-op, so callers can't accidentally emit the end-of-stream
// marker early by writing zero bytes.
func (w *ChunkedBodyWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, wrapTransport(w.err)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(w.c.bw, "%x\r\n", len(p)); err != nil {
		w.err = err
		return 0, wrapTransport(err)
	}
	n, err := w.c.bw.Write(p)
	if err != nil {
		w.err = err
		return n, wrapTransport(err)
	}
	if _, err := w.c.bw.WriteString("\r\n"); err != nil {
		w.err = err
		return n, wrapTransport(err)
	}
	return n, nil
}

// Response terminates the chunked body with the zero-size final chunk
// and advances to ReadResponseStatus.
func (w *ChunkedBodyWriter) Response() (*ResponseStatus, error) {
	if w.err != nil {
		return nil, wrapTransport(w.err)
	}
	if _, err := w.c.bw.WriteString("0\r\n\r\n"); err != nil {
		return nil, wrapTransport(err)
	}
	if err := w.c.bw.Flush(); err != nil {
		return nil, wrapTransport(err)
	}
	return &ResponseStatus{c: w.c}, nil
}

func wrapTransport(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", btdterr.ErrTransport, err)
}
