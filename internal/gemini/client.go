// internal/gemini/client.go
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/errors"
	httpclient "wiki-explorer/internal/common/http"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

const (
	opDisambiguate  = "disambiguate"
	opStreamArticle = "streamArticle"

	maxErrorBody = 1 << 20
)

// Client calls the Gemini REST API. It is built once at startup and shared
// read-only by all requests.
type Client struct {
	baseURL         string
	apiKey          string
	model           string
	language        string
	maxChoices      int
	thinkingBudget  int
	searchTool      bool
	disambiguateTTL time.Duration
	http            *httpclient.Client
	stream          *httpclient.Client
	log             logger.Logger
}

// NewClient returns an error when no API key is configured.
func NewClient(cfg *config.Config, log logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.Gemini.APIKey)
	if apiKey == "" {
		return nil, config.ErrAPIKeyMissing
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.Gemini.BaseURL, "/"),
		apiKey:          apiKey,
		model:           strings.TrimSpace(cfg.Gemini.Model),
		language:        cfg.Article.Language,
		maxChoices:      cfg.Gemini.MaxDisambiguations,
		thinkingBudget:  cfg.Gemini.ThinkingBudget,
		searchTool:      !cfg.Gemini.DisableSearchTool,
		disambiguateTTL: config.GetDuration(cfg.Gemini.DisambiguateTimeout),
		http:            httpclient.NewClient(config.GetDuration(cfg.Gemini.DisambiguateTimeout)),
		stream:          httpclient.NewStreamingClient(),
		log:             log.With(map[string]interface{}{"component": "gemini", "model": cfg.Gemini.Model}),
	}, nil
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/models/%s:%s", c.baseURL, c.model, method)
}

func (c *Client) headers() map[string]string {
	return map[string]string{"x-goog-api-key": c.apiKey}
}

// Disambiguate asks the model for the distinct meanings of query. The answer
// is validated against the choice schema and capped at the configured limit.
func (c *Client) Disambiguate(ctx context.Context, query string) ([]models.DisambiguationChoice, error) {
	if c.disambiguateTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.disambiguateTTL)
		defer cancel()
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: buildDisambiguationPrompt(query, c.language, c.maxChoices)}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema(c.language),
		},
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("generateContent"), body, c.headers())
	if err != nil {
		return nil, transportError(ctx, opDisambiguate, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, transportError(ctx, opDisambiguate, err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, errors.NewInvalidUpstreamResponseError(fmt.Sprintf("decode response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewUpstreamFailedError(opDisambiguate, statusError(resp.StatusCode, parsed.Error))
	}

	text := strings.TrimSpace(parsed.text())
	if text == "" {
		text = "[]"
	}

	result, err := choiceListSchema.ValidateBytes([]byte(text))
	if err != nil {
		return nil, errors.NewInvalidUpstreamResponseError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewInvalidUpstreamResponseError(result.Error())
	}

	var choices []models.DisambiguationChoice
	if err := json.Unmarshal([]byte(text), &choices); err != nil {
		return nil, errors.NewInvalidUpstreamResponseError(err.Error())
	}

	out := make([]models.DisambiguationChoice, 0, len(choices))
	for _, ch := range choices {
		ch.Topic = strings.TrimSpace(ch.Topic)
		if ch.Topic == "" {
			continue
		}
		out = append(out, ch)
		if c.maxChoices > 0 && len(out) == c.maxChoices {
			break
		}
	}

	c.log.Debug("Disambiguation completed", map[string]interface{}{
		"query":      query,
		"candidates": len(out),
	})
	return out, nil
}

// StreamArticle opens one streaming generation for query and calls fn for
// every chunk in arrival order. An error returned by fn stops the stream and
// is returned unchanged.
func (c *Client) StreamArticle(ctx context.Context, query string, fn func(Chunk) error) error {
	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: buildArticlePrompt(query, c.language)}}}},
		GenerationConfig: &generationConfig{ThinkingConfig: &thinkingConfig{ThinkingBudget: c.thinkingBudget}},
	}
	if c.searchTool {
		body.Tools = []tool{{GoogleSearch: &googleSearch{}}}
	}

	resp, err := c.stream.PostJSON(ctx, c.endpoint("streamGenerateContent")+"?alt=sse", body, c.headers())
	if err != nil {
		return transportError(ctx, opStreamArticle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var parsed generateResponse
		_ = json.Unmarshal(raw, &parsed)
		return errors.NewUpstreamFailedError(opStreamArticle, statusError(resp.StatusCode, parsed.Error))
	}

	scanner := sse.NewLineScanner(resp.Body)
	chunks := 0
	for {
		payload, err := scanner.Next()
		if err == io.EOF {
			c.log.Debug("Article stream completed", map[string]interface{}{
				"query":  query,
				"chunks": chunks,
			})
			return nil
		}
		if err != nil {
			return transportError(ctx, opStreamArticle, err)
		}

		var parsed generateResponse
		if err := json.Unmarshal(payload, &parsed); err != nil {
			c.log.Warn("Skipping malformed upstream chunk", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if parsed.Error != nil {
			return errors.NewUpstreamFailedError(opStreamArticle, statusError(parsed.Error.Code, parsed.Error))
		}

		chunks++
		if err := fn(Chunk{Text: parsed.text(), Citations: parsed.citations()}); err != nil {
			return err
		}
	}
}

func statusError(status int, apiErr *apiError) error {
	if apiErr != nil && apiErr.Message != "" {
		return fmt.Errorf("gemini http %d: %s", status, apiErr.Message)
	}
	return fmt.Errorf("gemini http %d: %s", status, http.StatusText(status))
}

// transportError keeps caller cancellation distinguishable from upstream faults.
func transportError(ctx context.Context, op string, err error) error {
	switch ctx.Err() {
	case context.Canceled:
		return ctx.Err()
	case context.DeadlineExceeded:
		return errors.NewUpstreamTimeoutError(op, err)
	}
	return errors.NewUpstreamFailedError(op, err)
}
