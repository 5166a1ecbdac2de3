package sse

import (
	"encoding/json"
	"io"

	"wiki-explorer/internal/common/logger"
)

// Decoder reads article stream events from an io.Reader.
type Decoder struct {
	scanner *LineScanner
	log     logger.Logger
}

func NewDecoder(r io.Reader, log logger.Logger) *Decoder {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Decoder{scanner: NewLineScanner(r), log: log}
}

// Next returns the next event. Lines that are not valid JSON are logged and
// skipped. At the end of input Next returns io.EOF.
func (d *Decoder) Next() (Event, error) {
	for {
		payload, err := d.scanner.Next()
		if err != nil {
			return Event{}, err
		}

		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			d.log.Warn("Failed to parse stream event", map[string]interface{}{
				"line":  string(payload),
				"error": err.Error(),
			})
			continue
		}
		if e.Type == "" {
			d.log.Warn("Stream event without type", map[string]interface{}{
				"line": string(payload),
			})
			continue
		}
		return e, nil
	}
}
