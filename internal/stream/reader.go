package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxLineSize bounds a single stream line. Snapshots of large runs
// travel as one line.
const MaxLineSize = 1024 * 1024

// ErrLineTooLong is returned by Next for a line longer than MaxLineSize.
// The line has already been skipped; the stream remains readable.
var ErrLineTooLong = errors.New("stream line too long")

// Reader yields event payloads from either framing the producer uses:
// plain NDJSON, one event per line, or server-sent events, where
// "data:" lines carry the payload and a blank line ends the event.
// SSE comments and the event, id and retry fields are skipped.
type Reader struct {
	br   *bufio.Reader
	line []byte   // current line, reused
	data [][]byte // pending SSE data lines
	next []byte   // raw line held back while pending data is flushed
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next payload. It returns io.EOF at a clean end of
// stream and ErrLineTooLong for an oversized line, after which reading
// can continue. Any other error comes from the underlying reader.
func (r *Reader) Next() ([]byte, error) {
	if r.next != nil {
		line := r.next
		r.next = nil
		return line, nil
	}

	for {
		line, err := r.readLine()
		if errors.Is(err, ErrLineTooLong) {
			// The oversized line may have been part of a pending SSE event.
			r.data = r.data[:0]
			return nil, err
		}
		if errors.Is(err, io.EOF) {
			if payload := r.flush(); payload != nil {
				return payload, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		switch {
		case len(bytes.TrimSpace(line)) == 0:
			if payload := r.flush(); payload != nil {
				return payload, nil
			}

		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			r.data = append(r.data, append([]byte(nil), v...))

		case line[0] == ':',
			bytes.HasPrefix(line, []byte("event:")),
			bytes.HasPrefix(line, []byte("id:")),
			bytes.HasPrefix(line, []byte("retry:")):
			// SSE metadata.

		default:
			raw := append([]byte(nil), line...)
			if payload := r.flush(); payload != nil {
				r.next = raw
				return payload, nil
			}
			return raw, nil
		}
	}
}

// readLine returns the next line without its terminator. The result is
// only valid until the next call. A line over MaxLineSize is consumed
// to its end and reported as ErrLineTooLong.
func (r *Reader) readLine() ([]byte, error) {
	r.line = r.line[:0]
	tooLong := false
	for {
		frag, err := r.br.ReadSlice('\n')
		if !tooLong {
			n := len(r.line) + len(bytes.TrimRight(frag, "\r\n"))
			if n > MaxLineSize {
				tooLong = true
				r.line = r.line[:0]
			} else {
				r.line = append(r.line, frag...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if tooLong {
				return nil, ErrLineTooLong
			}
			if len(r.line) == 0 {
				return nil, io.EOF
			}
		case err != nil:
			return nil, err
		}

		if tooLong {
			return nil, ErrLineTooLong
		}
		return bytes.TrimRight(r.line, "\r\n"), nil
	}
}

func (r *Reader) flush() []byte {
	if len(r.data) == 0 {
		return nil
	}
	payload := bytes.Join(r.data, []byte("\n"))
	r.data = r.data[:0]
	return payload
}
