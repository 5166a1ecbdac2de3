// internal/sse/event.go
package sse

import (
	"encoding/json"
	"fmt"

	"wiki-explorer/internal/models"
)

type EventType string

const (
	EventContent EventType = "content"
	EventSources EventType = "sources"
	EventError   EventType = "error"
)

// Event is one message of the article stream. Payload is a JSON string for
// content and error events and a JSON array of sources for sources events.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func ContentEvent(text string) Event {
	return Event{Type: EventContent, Payload: mustMarshal(text)}
}

func SourcesEvent(sources []models.Source) Event {
	if sources == nil {
		sources = []models.Source{}
	}
	return Event{Type: EventSources, Payload: mustMarshal(sources)}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Payload: mustMarshal(message)}
}

// Text decodes a string payload. It fails for sources events.
func (e Event) Text() (string, error) {
	var s string
	if err := json.Unmarshal(e.Payload, &s); err != nil {
		return "", fmt.Errorf("%s event payload is not a string: %w", e.Type, err)
	}
	return s, nil
}

// Sources decodes the payload of a sources event.
func (e Event) Sources() ([]models.Source, error) {
	if e.Type != EventSources {
		return nil, fmt.Errorf("event type %q carries no sources", e.Type)
	}
	var out []models.Source
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode sources payload: %w", err)
	}
	return out, nil
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// strings and []models.Source always marshal
		panic(err)
	}
	return b
}
