package explorer

import (
	"context"
	"errors"

	"wiki-explorer/internal/client"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

type State string

const (
	StateIdle           State = "idle"
	StateDisambiguating State = "disambiguating"
	StateChoicePending  State = "choice-pending"
	StateStreaming      State = "streaming"
)

const unknownErrorMessage = "unknown error"

var (
	// ErrQueryRequired is returned for a blank query. No request is made.
	ErrQueryRequired = errors.New("please enter a topic to search")
	// ErrSuperseded is returned by a search that a newer search replaced.
	ErrSuperseded = errors.New("search superseded by a newer search")
)

// Snapshot is a copy of the session state. It is safe to keep.
type Snapshot struct {
	State   State
	Query   string
	Topic   string
	Article *models.Article
	Choices []models.DisambiguationChoice
	Err     string
}

// Busy reports whether a search is in flight.
func (s Snapshot) Busy() bool {
	return s.State == StateDisambiguating || s.State == StateStreaming
}

// Observer is notified after every state change, in change order. Observers
// run outside the state lock but must not start a search themselves.
type Observer interface {
	SessionChanged(Snapshot)
	ContentAppended(delta string)
}

// EventStream is an open article stream.
type EventStream interface {
	Next() (sse.Event, error)
	Close() error
}

// Relay is the session's view of the relay.
type Relay interface {
	GetDisambiguation(ctx context.Context, query string) []models.DisambiguationChoice
	FetchArticleStream(ctx context.Context, query string) (EventStream, error)
}

type clientRelay struct {
	c *client.Client
}

// FromClient adapts a relay client to the session.
func FromClient(c *client.Client) Relay {
	return clientRelay{c: c}
}

func (r clientRelay) GetDisambiguation(ctx context.Context, query string) []models.DisambiguationChoice {
	return r.c.GetDisambiguation(ctx, query)
}

func (r clientRelay) FetchArticleStream(ctx context.Context, query string) (EventStream, error) {
	stream, err := r.c.FetchArticleStream(ctx, query)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
