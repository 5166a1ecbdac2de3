package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "disambiguate", body["operation"])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(2 * time.Second)
	resp, err := client.PostJSON(context.Background(), server.URL,
		map[string]string{"operation": "disambiguate", "query": "Jaguar"},
		map[string]string{"X-Request-ID": "req-1"})
	require.NoError(t, err)
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "[]", string(data))
}

func TestClient_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewStreamingClient().PostJSON(ctx, server.URL, map[string]string{}, nil)
	assert.Error(t, err)
}

func TestClient_UnmarshalableBody(t *testing.T) {
	_, err := NewClient(time.Second).PostJSON(context.Background(), "http://127.0.0.1:0", make(chan int), nil)
	assert.ErrorContains(t, err, "marshal request")
}
