package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DataPrefix starts every event line on the wire.
const DataPrefix = "data: "

// Writer encodes events as `data: {json}\n\n` frames.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Write sends one event and flushes it to the peer when possible.
func (w *Writer) Write(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	frame := make([]byte, 0, len(DataPrefix)+len(b)+2)
	frame = append(frame, DataPrefix...)
	frame = append(frame, b...)
	frame = append(frame, '\n', '\n')

	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
