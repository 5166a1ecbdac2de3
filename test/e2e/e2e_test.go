// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiki-explorer/internal/client"
	"wiki-explorer/internal/common/cache"
	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/explorer"
	"wiki-explorer/internal/gemini"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/relay"
	"wiki-explorer/internal/render"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGemini answers generateContent with canned disambiguation lists and
// streamGenerateContent with canned article chunks, keyed by query.
type fakeGemini struct {
	mu            sync.Mutex
	disambiguated int
	choices       map[string]string
	articles      map[string][]string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-goog-api-key") != "e2e-key" {
		http.Error(w, `{"error":{"code":403,"message":"bad key"}}`, http.StatusForbidden)
		return
	}
	body, _ := io.ReadAll(r.Body)
	prompt := string(body)

	switch {
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		f.mu.Lock()
		f.disambiguated++
		f.mu.Unlock()
		answer := "[]"
		for q, list := range f.choices {
			if strings.Contains(prompt, q) {
				answer = list
			}
		}
		fmt.Fprint(w, textResponse(answer, ""))
	case strings.HasSuffix(r.URL.Path, ":streamGenerateContent"):
		w.Header().Set("Content-Type", "text/event-stream")
		for q, chunks := range f.articles {
			if !strings.Contains(prompt, q) {
				continue
			}
			for _, c := range chunks {
				fmt.Fprint(w, "data: "+c+"\r\n\r\n")
				w.(http.Flusher).Flush()
			}
		}
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGemini) disambiguations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disambiguated
}

func textResponse(text, grounding string) string {
	candidate := map[string]interface{}{
		"content": map[string]interface{}{
			"parts": []interface{}{map[string]interface{}{"text": text}},
		},
	}
	if grounding != "" {
		candidate["groundingMetadata"] = json.RawMessage(grounding)
	}
	b, _ := json.Marshal(map[string]interface{}{"candidates": []interface{}{candidate}})
	return string(b)
}

type stack struct {
	gemini  *fakeGemini
	relay   *httptest.Server
	session *explorer.Session
	redis   *miniredis.Miniredis
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := logger.NewTestLogger(t)

	fake := &fakeGemini{
		choices: map[string]string{
			`\"Jaguar\"`: `[{"topic":"Jaguar (animal)","description":"A big cat of the Americas"},` +
				`{"topic":"Jaguar (car brand)","description":"A British car maker"}]`,
		},
		articles: map[string][]string{
			`\"Mount Everest\"`: {
				textResponse("Everest is the highest [[mountain]] ", ""),
				textResponse("in the [[Himalayas]].", `{"groundingChunks":[{"web":{"uri":"https://a.example","title":"Old A"}}]}`),
				textResponse("", `{"groundingChunks":[{"web":{"uri":"https://a.example","title":"A"}},{"web":{"uri":"https://b.example"}}]}`),
			},
			`\"Jaguar (animal)\"`: {
				textResponse("The jaguar is a large [[cat]].", ""),
			},
			`\"Broken\"`: {
				textResponse("partial", ""),
				`{"error":{"code":500,"message":"model overloaded"}}`,
			},
		},
	}
	upstream := httptest.NewServer(fake)
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)

	cfg := &config.Config{
		App:     config.AppConfig{Name: "wiki-explorer-e2e", Version: "e2e"},
		Server:  config.ServerConfig{AllowedOrigins: "*", RateLimitPerMinute: 100},
		Article: config.ArticleConfig{Language: "English", UnknownSourceTitle: "Unknown source"},
		Cache:   config.CacheConfig{Enabled: true, Address: mr.Addr(), TTL: 60, Prefix: "e2e:"},
		Gemini: config.GeminiConfig{
			BaseURL:             upstream.URL,
			APIKey:              "e2e-key",
			Model:               "gemini-2.5-flash",
			DisambiguateTimeout: 2000,
			MaxDisambiguations:  5,
		},
	}

	model, err := gemini.NewClient(cfg, log)
	require.NoError(t, err)
	rc := cache.NewRedis(cfg.Cache)
	t.Cleanup(func() { _ = rc.Close() })

	svc := relay.NewService(cfg, model, rc, nil, log)
	server := httptest.NewServer(relay.NewRouter(cfg, relay.NewHandler(cfg, svc, rc, log), log))
	t.Cleanup(server.Close)

	c := client.NewClient(config.ClientConfig{RelayURL: server.URL, DisambiguateTimeout: 2000}, log)
	return &stack{
		gemini:  fake,
		relay:   server,
		session: explorer.NewSession(explorer.FromClient(c), log),
		redis:   mr,
	}
}

func TestE2E_DirectArticle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	require.NoError(t, s.session.Search(ctx, "Mount Everest"))

	snap := s.session.Snapshot()
	assert.Equal(t, explorer.StateIdle, snap.State)
	assert.Empty(t, snap.Err)
	require.NotNil(t, snap.Article)
	assert.Equal(t, "Mount Everest", snap.Article.Title)
	assert.Equal(t, "Everest is the highest [[mountain]] in the [[Himalayas]].", snap.Article.Content)
	assert.Equal(t, []models.Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example", Title: "Unknown source"},
	}, snap.Article.Sources)

	var out strings.Builder
	topics, err := render.Terminal{}.Article(&out, snap.Article)
	require.NoError(t, err)
	assert.Equal(t, []string{"mountain", "Himalayas"}, topics)
	assert.Contains(t, out.String(), "mountain[1]")
	assert.Contains(t, out.String(), "  (1) A <https://a.example>")
}

func TestE2E_DisambiguationThenSelect(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	require.NoError(t, s.session.Search(ctx, "Jaguar"))
	snap := s.session.Snapshot()
	require.Equal(t, explorer.StateChoicePending, snap.State)
	require.Len(t, snap.Choices, 2)
	assert.Equal(t, "Jaguar (car brand)", snap.Choices[1].Topic)

	require.NoError(t, s.session.Select(ctx, snap.Choices[0].Topic))
	snap = s.session.Snapshot()
	assert.Equal(t, explorer.StateIdle, snap.State)
	require.NotNil(t, snap.Article)
	assert.Equal(t, "Jaguar (animal)", snap.Article.Title)
	assert.Equal(t, []string{"cat"}, render.Links(snap.Article.Content))
	assert.Empty(t, snap.Article.Sources)

	// The second lookup is served from the relay cache.
	before := s.gemini.disambiguations()
	require.NoError(t, s.session.Search(ctx, "  jaguar "))
	assert.Equal(t, before, s.gemini.disambiguations())
	assert.Equal(t, explorer.StateChoicePending, s.session.Snapshot().State)
}

func TestE2E_UpstreamErrorEvent(t *testing.T) {
	s := newStack(t)

	err := s.session.Search(context.Background(), "Broken")

	var streamErr *client.StreamError
	require.ErrorAs(t, err, &streamErr)
	snap := s.session.Snapshot()
	assert.Equal(t, explorer.StateIdle, snap.State)
	assert.Nil(t, snap.Article)
	assert.Contains(t, snap.Err, "model overloaded")
}

func TestE2E_RelayHealthAndReadiness(t *testing.T) {
	s := newStack(t)

	resp, err := http.Get(s.relay.URL + relay.EndPointHealth)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.relay.URL + relay.EndPointReady)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.redis.Close()
	resp, err = http.Get(s.relay.URL + relay.EndPointReady)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestE2E_MethodNotAllowed(t *testing.T) {
	s := newStack(t)

	resp, err := http.Get(s.relay.URL + relay.EndPointGenerate)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
