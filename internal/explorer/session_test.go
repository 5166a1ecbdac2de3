package explorer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiki-explorer/internal/client"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

// ==========================
// Fakes
// ==========================

type step struct {
	event sse.Event
	err   error
	wait  <-chan struct{}
}

type fakeStream struct {
	ctx    context.Context
	steps  []step
	closed bool
}

func (f *fakeStream) Next() (sse.Event, error) {
	if len(f.steps) == 0 {
		return sse.Event{}, io.EOF
	}
	st := f.steps[0]
	f.steps = f.steps[1:]
	if st.wait != nil {
		select {
		case <-st.wait:
		case <-f.ctx.Done():
			return sse.Event{}, f.ctx.Err()
		}
	}
	if st.err != nil {
		return sse.Event{}, st.err
	}
	return st.event, nil
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

type fakeRelay struct {
	mu            sync.Mutex
	choices       map[string][]models.DisambiguationChoice
	streams       map[string][]step
	openErr       error
	disambiguated []string
	streamed      []string
	opened        []*fakeStream
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		choices: map[string][]models.DisambiguationChoice{},
		streams: map[string][]step{},
	}
}

func (f *fakeRelay) GetDisambiguation(_ context.Context, query string) []models.DisambiguationChoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disambiguated = append(f.disambiguated, query)
	return f.choices[query]
}

func (f *fakeRelay) FetchArticleStream(ctx context.Context, query string) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamed = append(f.streamed, query)
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{ctx: ctx, steps: append([]step(nil), f.streams[query]...)}
	f.opened = append(f.opened, s)
	return s, nil
}

type recorder struct {
	mu        sync.Mutex
	snapshots []Snapshot
	deltas    []string
}

func (r *recorder) SessionChanged(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) ContentAppended(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, delta)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, s := range r.snapshots {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

func content(s string) step { return step{event: sse.ContentEvent(s)} }

func sources(src ...models.Source) step { return step{event: sse.SourcesEvent(src)} }

func newSession(t *testing.T, relay Relay) (*Session, *recorder) {
	t.Helper()
	s := NewSession(relay, logger.NewTestLogger(t))
	rec := &recorder{}
	s.Subscribe(rec)
	return s, rec
}

var jaguarChoices = []models.DisambiguationChoice{
	{Topic: "Jaguar (animal)", Description: "A big cat of the Americas"},
	{Topic: "Jaguar (car brand)", Description: "A British car maker"},
}

// ==========================
// Scenarios
// ==========================

func TestSearch_AmbiguousShowsChoicesThenSelectStreams(t *testing.T) {
	relay := newFakeRelay()
	relay.choices["Jaguar"] = jaguarChoices
	relay.streams["Jaguar (animal)"] = []step{content("The jaguar is a [[big cat]].")}

	s, rec := newSession(t, relay)

	require.NoError(t, s.Search(context.Background(), "Jaguar"))
	snap := s.Snapshot()
	assert.Equal(t, StateChoicePending, snap.State)
	assert.Equal(t, jaguarChoices, snap.Choices)
	assert.Nil(t, snap.Article)
	assert.Empty(t, relay.streamed, "no streaming before a choice is made")

	require.NoError(t, s.Select(context.Background(), "Jaguar (animal)"))
	snap = s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Choices)
	assert.Equal(t, "Jaguar", snap.Query)
	require.NotNil(t, snap.Article)
	assert.Equal(t, "Jaguar (animal)", snap.Article.Title)
	assert.Equal(t, "The jaguar is a [[big cat]].", snap.Article.Content)

	assert.Equal(t, []string{"Jaguar"}, relay.disambiguated, "select skips disambiguation")
	assert.Equal(t, []string{"Jaguar (animal)"}, relay.streamed)
	assert.Equal(t, []State{StateDisambiguating, StateChoicePending, StateStreaming, StateIdle}, rec.states())
}

func TestSearch_UnambiguousStreamsImmediately(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["Mount Everest"] = []step{
		content("Mount Everest "),
		content("is Earth's highest "),
		content("[[mountain]]."),
		sources(models.Source{URI: "https://a", Title: "A"}, models.Source{URI: "https://b", Title: "B"}),
	}

	s, rec := newSession(t, relay)
	require.NoError(t, s.Search(context.Background(), "Mount Everest"))

	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, &models.Article{
		Title:   "Mount Everest",
		Content: "Mount Everest is Earth's highest [[mountain]].",
		Sources: []models.Source{{URI: "https://a", Title: "A"}, {URI: "https://b", Title: "B"}},
	}, snap.Article)
	assert.Equal(t, []string{"Mount Everest ", "is Earth's highest ", "[[mountain]]."}, rec.deltas)
	assert.Equal(t, []State{StateDisambiguating, StateStreaming, StateIdle}, rec.states())
	assert.True(t, relay.opened[0].closed)
}

func TestSearch_SingleCandidateIsUnambiguous(t *testing.T) {
	relay := newFakeRelay()
	relay.choices["Everest"] = []models.DisambiguationChoice{{Topic: "Mount Everest"}}

	s, rec := newSession(t, relay)
	require.NoError(t, s.Search(context.Background(), "Everest"))

	assert.Equal(t, []string{"Everest"}, relay.streamed)
	for _, snap := range rec.snapshots {
		assert.NotEqual(t, StateChoicePending, snap.State)
	}
}

func TestSearch_BlankQuery(t *testing.T) {
	relay := newFakeRelay()
	s, _ := newSession(t, relay)

	assert.ErrorIs(t, s.Search(context.Background(), "   "), ErrQueryRequired)
	assert.ErrorIs(t, s.Select(context.Background(), ""), ErrQueryRequired)
	assert.Empty(t, relay.disambiguated)
	assert.Empty(t, relay.streamed)
	assert.Equal(t, ErrQueryRequired.Error(), s.Snapshot().Err)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

// ==========================
// Stream assembly
// ==========================

func TestStream_StreamingStartsWithEmptyArticle(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["x"] = []step{content("a")}

	s, rec := newSession(t, relay)
	require.NoError(t, s.Search(context.Background(), "x"))

	var first *Snapshot
	for i := range rec.snapshots {
		if rec.snapshots[i].State == StateStreaming {
			first = &rec.snapshots[i]
			break
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, &models.Article{Title: "x"}, first.Article)
}

func TestStream_OnlyFirstSourcesEventHonored(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["x"] = []step{
		sources(models.Source{URI: "https://first"}),
		content("text"),
		sources(models.Source{URI: "https://second"}),
	}

	s, _ := newSession(t, relay)
	require.NoError(t, s.Search(context.Background(), "x"))
	assert.Equal(t, []models.Source{{URI: "https://first"}}, s.Snapshot().Article.Sources)
}

func TestStream_SourcesReplacedNotMerged(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["a"] = []step{sources(models.Source{URI: "https://a"})}
	relay.streams["b"] = []step{sources(models.Source{URI: "https://b"})}

	s, _ := newSession(t, relay)
	require.NoError(t, s.Search(context.Background(), "a"))
	require.NoError(t, s.Select(context.Background(), "b"))
	assert.Equal(t, []models.Source{{URI: "https://b"}}, s.Snapshot().Article.Sources)
}

func TestStream_ErrorEventClearsArticle(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["x"] = []step{
		content("partial"),
		{err: &client.StreamError{Message: "Language model request failed: quota"}},
	}

	s, _ := newSession(t, relay)
	err := s.Search(context.Background(), "x")

	var streamErr *client.StreamError
	require.ErrorAs(t, err, &streamErr)
	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Article)
	assert.Equal(t, "Language model request failed: quota", snap.Err)
}

func TestStream_SetupFailure(t *testing.T) {
	relay := newFakeRelay()
	relay.openErr = &client.RelayError{Status: 500, Message: "failed to fetch article stream"}

	s, _ := newSession(t, relay)
	require.Error(t, s.Search(context.Background(), "x"))

	snap := s.Snapshot()
	assert.Nil(t, snap.Article)
	assert.Equal(t, "failed to fetch article stream", snap.Err)
	assert.Equal(t, StateIdle, snap.State)
}

func TestStream_EmptyErrorMessageFallsBack(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["x"] = []step{{err: errors.New("")}}

	s, _ := newSession(t, relay)
	require.Error(t, s.Search(context.Background(), "x"))
	assert.Equal(t, unknownErrorMessage, s.Snapshot().Err)
}

func TestStream_NewSearchClearsPreviousError(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["bad"] = []step{{err: errors.New("boom")}}
	relay.streams["good"] = []step{content("ok")}

	s, _ := newSession(t, relay)
	require.Error(t, s.Search(context.Background(), "bad"))
	require.NoError(t, s.Search(context.Background(), "good"))

	snap := s.Snapshot()
	assert.Empty(t, snap.Err)
	assert.Equal(t, "ok", snap.Article.Content)
}

// ==========================
// Cancellation
// ==========================

func TestSearch_NewSearchSupersedesInFlight(t *testing.T) {
	gate := make(chan struct{})
	relay := newFakeRelay()
	relay.streams["slow"] = []step{content("slow-1 "), {event: sse.ContentEvent("slow-late"), wait: gate}}
	relay.streams["fast"] = []step{content("fast")}

	s, _ := newSession(t, relay)

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.Search(context.Background(), "slow") }()

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Article != nil && snap.Article.Content == "slow-1 "
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Search(context.Background(), "fast"))
	close(gate)

	assert.ErrorIs(t, <-firstDone, ErrSuperseded)
	snap := s.Snapshot()
	assert.Equal(t, "fast", snap.Article.Title)
	assert.Equal(t, "fast", snap.Article.Content)
	assert.Equal(t, StateIdle, snap.State)
}

func TestSearch_CancelKeepsPartialArticle(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	relay := newFakeRelay()
	relay.streams["x"] = []step{content("partial"), {event: sse.ContentEvent("never"), wait: gate}}

	s, _ := newSession(t, relay)
	done := make(chan error, 1)
	go func() { done <- s.Search(context.Background(), "x") }()

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.Article != nil && snap.Article.Content == "partial"
	}, time.Second, 5*time.Millisecond)

	s.Cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, "partial", snap.Article.Content)
	assert.Empty(t, snap.Err)
}

func TestSnapshot_IsACopy(t *testing.T) {
	relay := newFakeRelay()
	relay.streams["x"] = []step{content("a"), sources(models.Source{URI: "https://a"})}

	s, _ := newSession(t, relay)
	require.NoError(t, s.Search(context.Background(), "x"))

	snap := s.Snapshot()
	snap.Article.Content = "mutated"
	snap.Article.Sources[0].URI = "mutated"
	assert.Equal(t, "a", s.Snapshot().Article.Content)
	assert.Equal(t, "https://a", s.Snapshot().Article.Sources[0].URI)
}
