package http

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusNotFound   = 404
)

var statusText = map[int]string{
	StatusOK:         "OK",
	StatusBadRequest: "Bad Request",
	StatusNotFound:   "Not Found",
}

// writeHeader writes the status line and headers. Content-Type is only
// emitted when contentType is non-empty, which the handler does for 200s.
func writeHeader(w io.Writer, status int, contentType string, length uint64) error {
	buf := make([]byte, 0, 128)
	buf = append(buf, "HTTP/1.0 "...)
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, statusText[status]...)
	buf = append(buf, "\r\n"...)
	if contentType != "" {
		buf = append(buf, "Content-Type: "...)
		buf = append(buf, contentType...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "Content-Length: "...)
	buf = strconv.AppendUint(buf, length, 10)
	buf = append(buf, "\r\n\r\n"...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write %d header: %w", status, err)
	}
	return nil
}

// writeEmpty writes a bodiless response.
func writeEmpty(w io.Writer, status int) error {
	return writeHeader(w, status, "", 0)
}

// streamBody copies exactly length bytes from src to w in BufferSize chunks,
// starting with any bytes already read into head.
func streamBody(w io.Writer, head []byte, src io.Reader, length uint64) error {
	remaining := length

	if len(head) > 0 {
		if uint64(len(head)) > remaining {
			head = head[:remaining]
		}
		if _, err := w.Write(head); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		remaining -= uint64(len(head))
	}

	chunk := make([]byte, BufferSize)
	for remaining > 0 {
		want := chunk
		if remaining < uint64(len(want)) {
			want = want[:remaining]
		}

		n, err := src.Read(want)
		if n > 0 {
			if _, werr := w.Write(want[:n]); werr != nil {
				return fmt.Errorf("write body: %w", werr)
			}
			remaining -= uint64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if remaining > 0 {
					return fmt.Errorf("content shorter than announced, %d bytes missing: %w", remaining, io.ErrUnexpectedEOF)
				}
				return nil
			}
			return fmt.Errorf("read content: %w", err)
		}
	}
	return nil
}
