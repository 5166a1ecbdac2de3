// internal/client/client.go
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"wiki-explorer/internal/common/config"
	httpclient "wiki-explorer/internal/common/http"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

const (
	generatePath       = "/api/generate"
	defaultStreamError = "failed to fetch article stream"
	maxErrorBody       = 64 << 10
)

// RelayError is a non-2xx answer from the relay.
type RelayError struct {
	Status  int
	Message string
}

func (e *RelayError) Error() string {
	return e.Message
}

// StreamError is an error event received in the middle of an article stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// Client talks to the relay's /api/generate endpoint.
type Client struct {
	endpoint string
	http     *httpclient.Client
	stream   *httpclient.Client
	log      logger.Logger
}

func NewClient(cfg config.ClientConfig, log logger.Logger) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.RelayURL, "/") + generatePath,
		http:     httpclient.NewClient(config.GetDuration(cfg.DisambiguateTimeout)),
		stream:   httpclient.NewStreamingClient(),
		log:      log.With(map[string]interface{}{"component": "relay-client"}),
	}
}

func (c *Client) post(ctx context.Context, hc *httpclient.Client, op models.Operation, query string) (*http.Response, string, error) {
	requestID := uuid.New().String()
	resp, err := hc.PostJSON(ctx, c.endpoint, models.GenerateRequest{Operation: op, Query: query},
		map[string]string{"X-Request-ID": requestID})
	return resp, requestID, err
}

// GetDisambiguation returns the candidate meanings of query, or an empty list
// when the query is unambiguous. Failures are logged and also yield an empty
// list. A single candidate counts as unambiguous.
func (c *Client) GetDisambiguation(ctx context.Context, query string) []models.DisambiguationChoice {
	resp, requestID, err := c.post(ctx, c.http, models.OperationDisambiguate, query)
	log := c.log.With(map[string]interface{}{"requestId": requestID, "query": query})
	if err != nil {
		log.Warn("Disambiguation request failed, proceeding as unambiguous", map[string]interface{}{"error": err.Error()})
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("Disambiguation rejected, proceeding as unambiguous", map[string]interface{}{
			"status": resp.StatusCode,
			"error":  relayMessage(resp, "failed to get disambiguation choices"),
		})
		return nil
	}

	var choices []models.DisambiguationChoice
	if err := json.NewDecoder(resp.Body).Decode(&choices); err != nil {
		log.Warn("Disambiguation response unreadable, proceeding as unambiguous", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if len(choices) <= 1 {
		return nil
	}
	return choices
}

// FetchArticleStream opens an article stream. The caller must Close it.
func (c *Client) FetchArticleStream(ctx context.Context, query string) (*Stream, error) {
	resp, requestID, err := c.post(ctx, c.stream, models.OperationStreamArticle, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("server communication error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &RelayError{Status: resp.StatusCode, Message: relayMessage(resp, defaultStreamError)}
	}

	log := c.log.With(map[string]interface{}{"requestId": requestID, "query": query})
	return &Stream{
		ctx:     ctx,
		body:    resp.Body,
		decoder: sse.NewDecoder(resp.Body, log),
	}, nil
}

// relayMessage extracts the relay's {"error": ...} message.
func relayMessage(resp *http.Response, fallback string) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fallback
	}
	var body models.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return fallback
	}
	return body.Error
}

// Stream iterates the events of one article stream.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	decoder *sse.Decoder
}

// Next returns the next content or sources event. It returns io.EOF when the
// relay closes the stream, a *StreamError for an error event, and a wrapped
// error when reading fails.
func (s *Stream) Next() (sse.Event, error) {
	e, err := s.decoder.Next()
	if err == io.EOF {
		return sse.Event{}, io.EOF
	}
	if err != nil {
		if s.ctx.Err() != nil {
			return sse.Event{}, s.ctx.Err()
		}
		return sse.Event{}, fmt.Errorf("server communication error: %w", err)
	}
	if e.Type == sse.EventError {
		msg, terr := e.Text()
		if terr != nil || msg == "" {
			msg = "unknown stream error"
		}
		return sse.Event{}, &StreamError{Message: msg}
	}
	return e, nil
}

func (s *Stream) Close() error {
	return s.body.Close()
}
