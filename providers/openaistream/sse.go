package openaistream

import (
	"bufio"
	"bytes"
	"context"
	"io"
)

// SSESource frames an OpenAI-compatible SSE response body into one chunk per
// event, where a chunk is the event's concatenated data payload. It
// implements pipeline.ChunkSource.
//
// When the upstream closes the connection without sending the [DONE]
// sentinel, the source synthesizes one so the stream still terminates
// cleanly; some providers do this.
type SSESource struct {
	r      *bufio.Reader
	body   io.Closer
	done   bool
	closed bool
}

func NewSSESource(body io.ReadCloser) *SSESource {
	return &SSESource{r: bufio.NewReaderSize(body, 64*1024), body: body}
}

var doneSentinel = []byte("[DONE]")

func (s *SSESource) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.next()
	if err != nil {
		if err == io.EOF {
			s.done = true
			return append([]byte(nil), doneSentinel...), nil
		}
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(data), doneSentinel) {
		s.done = true
	}
	return data, nil
}

// next returns the next SSE event's concatenated data payload.
//
// It concatenates multiple `data:` lines with `\n`, per the SSE spec.
func (s *SSESource) next() ([]byte, error) {
	var dataLines [][]byte
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			// If we accumulated data before EOF, return it.
			if len(line) > 0 {
				line = bytes.TrimRight(line, "\r\n")
				if len(line) > 0 {
					dataLines = appendDataLine(dataLines, line)
				}
			}
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) == 0 {
				continue
			}
			return bytes.Join(dataLines, []byte("\n")), nil
		}

		// Comment line.
		if line[0] == ':' {
			continue
		}
		dataLines = appendDataLine(dataLines, line)
	}
}

func appendDataLine(dst [][]byte, line []byte) [][]byte {
	if !bytes.HasPrefix(line, []byte("data:")) {
		return dst
	}
	val := line[len("data:"):]
	if len(val) > 0 && val[0] == ' ' {
		val = val[1:]
	}
	return append(dst, append([]byte(nil), val...))
}

func (s *SSESource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
