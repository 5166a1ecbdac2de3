// internal/explorer/session.go
package explorer

import (
	"context"
	"io"
	"strings"
	"sync"

	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

// Session drives one user's searches: disambiguation, choice, streaming.
// Starting a search cancels the one in flight; events still arriving for
// the cancelled search are dropped.
type Session struct {
	relay Relay
	log   logger.Logger

	// notifyMu orders observer callbacks; mu guards the fields below it.
	notifyMu   sync.Mutex
	mu         sync.Mutex
	state      State
	query      string
	topic      string
	article    *models.Article
	choices    []models.DisambiguationChoice
	errMsg     string
	generation uint64
	cancel     context.CancelFunc
	observers  []Observer
}

func NewSession(relay Relay, log logger.Logger) *Session {
	return &Session{
		relay: relay,
		log:   log.With(map[string]interface{}{"component": "explorer"}),
		state: StateIdle,
	}
}

// Subscribe registers o for all future changes.
func (s *Session) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:   s.state,
		Query:   s.query,
		Topic:   s.topic,
		Article: s.article.Clone(),
		Err:     s.errMsg,
	}
	if s.choices != nil {
		snap.Choices = append([]models.DisambiguationChoice(nil), s.choices...)
	}
	return snap
}

// Search runs the full flow for a user-entered query and blocks until the
// session is idle again or waiting for a choice. A stream failure is
// recorded in the session and also returned.
func (s *Session) Search(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		s.rejectBlank()
		return ErrQueryRequired
	}

	runCtx, gen := s.begin(ctx, func() {
		s.state = StateDisambiguating
		s.query = query
		s.topic = ""
		s.article = nil
		s.choices = nil
		s.errMsg = ""
	})
	defer s.release(gen)

	choices := s.relay.GetDisambiguation(runCtx, query)
	if err := runCtx.Err(); err != nil {
		return s.abort(gen, err)
	}

	if len(choices) > 1 {
		if !s.update(gen, func() {
			s.state = StateChoicePending
			s.choices = choices
		}, "") {
			return ErrSuperseded
		}
		s.log.Debug("Query is ambiguous", map[string]interface{}{"query": query, "choices": len(choices)})
		return nil
	}

	return s.stream(runCtx, gen, query)
}

// Select streams topic directly, without disambiguation. It serves both a
// chosen candidate and an activated concept link. Pending choices are
// discarded.
func (s *Session) Select(ctx context.Context, topic string) error {
	if strings.TrimSpace(topic) == "" {
		s.rejectBlank()
		return ErrQueryRequired
	}

	runCtx, gen := s.begin(ctx, func() {
		s.choices = nil
		s.errMsg = ""
	})
	defer s.release(gen)

	return s.stream(runCtx, gen, topic)
}

// Cancel stops the search in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) stream(ctx context.Context, gen uint64, topic string) error {
	if !s.update(gen, func() {
		s.state = StateStreaming
		s.topic = topic
		s.choices = nil
		s.article = &models.Article{Title: topic}
	}, "") {
		return ErrSuperseded
	}

	es, err := s.relay.FetchArticleStream(ctx, topic)
	if err != nil {
		return s.fail(ctx, gen, err)
	}
	defer es.Close()

	sourcesSeen := false
	for {
		e, err := es.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.fail(ctx, gen, err)
		}

		ok := true
		switch e.Type {
		case sse.EventContent:
			text, terr := e.Text()
			if terr != nil {
				s.log.Warn("Ignoring content event", map[string]interface{}{"error": terr.Error()})
				continue
			}
			ok = s.update(gen, func() { s.article.Content += text }, text)
		case sse.EventSources:
			if sourcesSeen {
				s.log.Warn("Ignoring repeated sources event", map[string]interface{}{"topic": topic})
				continue
			}
			sources, serr := e.Sources()
			if serr != nil {
				s.log.Warn("Ignoring sources event", map[string]interface{}{"error": serr.Error()})
				continue
			}
			sourcesSeen = true
			ok = s.update(gen, func() { s.article.Sources = sources }, "")
		default:
			s.log.Debug("Ignoring unknown event", map[string]interface{}{"type": string(e.Type)})
		}
		if !ok {
			return ErrSuperseded
		}
	}

	if !s.update(gen, func() { s.state = StateIdle }, "") {
		return ErrSuperseded
	}
	return nil
}

// fail records a stream failure: the article is cleared and the message shown.
func (s *Session) fail(ctx context.Context, gen uint64, err error) error {
	if ctx.Err() != nil {
		return s.abort(gen, ctx.Err())
	}
	msg := err.Error()
	if msg == "" {
		msg = unknownErrorMessage
	}
	s.log.Warn("Article stream failed", map[string]interface{}{"error": msg})
	if !s.update(gen, func() {
		s.state = StateIdle
		s.article = nil
		s.errMsg = msg
	}, "") {
		return ErrSuperseded
	}
	return err
}

// abort handles cancellation. A superseded search leaves the state alone;
// a search cancelled by its caller returns to idle keeping what arrived.
func (s *Session) abort(gen uint64, err error) error {
	if !s.update(gen, func() { s.state = StateIdle }, "") {
		return ErrSuperseded
	}
	return err
}

func (s *Session) rejectBlank() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.cancel != nil {
		// a search is in flight; leave its state alone
		s.mu.Unlock()
		return
	}
	s.errMsg = ErrQueryRequired.Error()
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	for _, o := range observers {
		o.SessionChanged(snap)
	}
}

// begin supersedes any running search and returns the context and
// generation for the new one.
func (s *Session) begin(ctx context.Context, reset func()) (context.Context, uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	reset()
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	for _, o := range observers {
		o.SessionChanged(snap)
	}
	return runCtx, gen
}

// release cancels the run's context once it is done.
func (s *Session) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// update applies mutate if gen is still the current search and notifies
// observers. It reports false when the search was superseded.
func (s *Session) update(gen uint64, mutate func(), delta string) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return false
	}
	mutate()
	snap, observers := s.snapshotLocked(), s.observersLocked()
	s.mu.Unlock()

	for _, o := range observers {
		if delta != "" {
			o.ContentAppended(delta)
		}
		o.SessionChanged(snap)
	}
	return true
}

func (s *Session) observersLocked() []Observer {
	return append([]Observer(nil), s.observers...)
}
