package sse

import (
	"bytes"
	"fmt"
	"io"
)

const defaultChunkSize = 4096

// LineScanner yields the payload of every `data: ` line read from r.
// Bytes after the last newline are carried over to the next read so that a
// line is only handed out once it is complete. An unterminated trailing line
// at end of input is dropped.
type LineScanner struct {
	r       io.Reader
	chunk   []byte
	carry   []byte
	pending [][]byte
	err     error
}

func NewLineScanner(r io.Reader) *LineScanner {
	return newLineScanner(r, defaultChunkSize)
}

func newLineScanner(r io.Reader, chunkSize int) *LineScanner {
	return &LineScanner{r: r, chunk: make([]byte, chunkSize)}
}

// Next returns the next data payload, io.EOF at end of input, or a wrapped
// read error.
func (s *LineScanner) Next() ([]byte, error) {
	for {
		for len(s.pending) > 0 {
			line := s.pending[0]
			s.pending = s.pending[1:]
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if bytes.HasPrefix(line, []byte(DataPrefix)) {
				return line[len(DataPrefix):], nil
			}
		}
		if s.err != nil {
			return nil, s.err
		}
		s.fill()
	}
}

func (s *LineScanner) fill() {
	n, err := s.r.Read(s.chunk)
	if n > 0 {
		data := append(s.carry, s.chunk[:n]...)
		for {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				break
			}
			s.pending = append(s.pending, data[:i])
			data = data[i+1:]
		}
		s.carry = append([]byte(nil), data...)
	}
	switch {
	case err == io.EOF:
		s.err = io.EOF
		s.carry = nil
	case err != nil:
		s.err = fmt.Errorf("read stream: %w", err)
	}
}
