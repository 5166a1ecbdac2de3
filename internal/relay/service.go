// internal/relay/service.go
package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/errors"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/common/metrics"
	"wiki-explorer/internal/common/observability"
	"wiki-explorer/internal/gemini"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

// Generator is the upstream model. *gemini.Client implements it.
type Generator interface {
	Disambiguate(ctx context.Context, query string) ([]models.DisambiguationChoice, error)
	StreamArticle(ctx context.Context, query string, fn func(gemini.Chunk) error) error
}

// Cache stores disambiguation answers. *cache.RedisClient implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error
}

type Service struct {
	generator   Generator
	cache       Cache
	cacheTTL    time.Duration
	cachePrefix string
	placeholder string
	obs         *observability.Observability
	log         logger.Logger
}

// NewService wires the relay operations. cache may be nil.
func NewService(cfg *config.Config, generator Generator, cache Cache, obs *observability.Observability, log logger.Logger) *Service {
	if obs == nil {
		obs = observability.NewNoop(cfg.App.Name)
	}
	return &Service{
		generator:   generator,
		cache:       cache,
		cacheTTL:    time.Duration(cfg.Cache.TTL) * time.Second,
		cachePrefix: cfg.Cache.Prefix,
		placeholder: cfg.Article.UnknownSourceTitle,
		obs:         obs,
		log:         log.With(map[string]interface{}{"component": "relay"}),
	}
}

func (s *Service) cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return s.cachePrefix + hex.EncodeToString(sum[:])
}

// Disambiguate returns the candidate meanings of query. The result is never nil.
func (s *Service) Disambiguate(ctx context.Context, query string) (choices []models.DisambiguationChoice, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewQueryRequiredError()
	}

	start := time.Now()
	ctx, span := s.obs.StartSpan(ctx, "relay.disambiguate", attribute.String("query", query))
	defer func() {
		s.finish(ctx, models.OperationDisambiguate, start, err)
		observability.EndSpan(span, err)
	}()

	log := s.log.With(map[string]interface{}{"operation": string(models.OperationDisambiguate), "query": query})

	if s.cache != nil {
		var cached []models.DisambiguationChoice
		found, cerr := s.cache.GetJSON(ctx, s.cacheKey(query), &cached)
		switch {
		case cerr != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Warn("Disambiguation cache read failed", map[string]interface{}{"error": cerr.Error()})
		case found:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			if cached == nil {
				cached = []models.DisambiguationChoice{}
			}
			return cached, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	choices, err = s.generator.Disambiguate(ctx, query)
	if err != nil {
		log.Error("Disambiguation failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if choices == nil {
		choices = []models.DisambiguationChoice{}
	}
	metrics.DisambiguationCandidates.Observe(float64(len(choices)))
	span.SetAttributes(attribute.Int("candidates", len(choices)))

	if s.cache != nil {
		if cerr := s.cache.SetJSON(ctx, s.cacheKey(query), choices, s.cacheTTL); cerr != nil {
			log.Warn("Disambiguation cache write failed", map[string]interface{}{"error": cerr.Error()})
		}
	}

	log.Info("Disambiguation completed", map[string]interface{}{"candidates": len(choices)})
	return choices, nil
}

// StreamArticle relays one generation as protocol events. Content is emitted
// as it arrives; sources are deduplicated and emitted once at the end. An
// upstream failure is reported as a single error event and is not returned.
// The returned error is non-nil only when emit fails or ctx is cancelled.
func (s *Service) StreamArticle(ctx context.Context, query string, emit func(sse.Event) error) (err error) {
	if strings.TrimSpace(query) == "" {
		return errors.NewQueryRequiredError()
	}

	start := time.Now()
	ctx, span := s.obs.StartSpan(ctx, "relay.streamArticle", attribute.String("query", query))
	metrics.StreamsActive.Inc()

	var upstreamErr error
	defer func() {
		metrics.StreamsActive.Dec()
		outcome := err
		if outcome == nil {
			outcome = upstreamErr
		}
		s.finish(ctx, models.OperationStreamArticle, start, outcome)
		observability.EndSpan(span, outcome)
	}()

	log := s.log.With(map[string]interface{}{"operation": string(models.OperationStreamArticle), "query": query})

	send := func(e sse.Event) error {
		if err := emit(e); err != nil {
			return err
		}
		metrics.StreamEvents.WithLabelValues(string(e.Type)).Inc()
		return nil
	}

	var emitErr error
	var collected []models.Source
	fragments := 0

	upstreamErr = s.generator.StreamArticle(ctx, query, func(chunk gemini.Chunk) error {
		if chunk.Text != "" {
			if err := send(sse.ContentEvent(chunk.Text)); err != nil {
				emitErr = err
				return err
			}
			fragments++
		}
		if len(chunk.Citations) > 0 {
			collected = append(collected, NormalizeCitations(chunk.Citations, s.placeholder)...)
		}
		return nil
	})

	switch {
	case emitErr != nil:
		log.Warn("Client stopped receiving the stream", map[string]interface{}{"error": emitErr.Error()})
		return emitErr
	case ctx.Err() != nil:
		log.Info("Article stream cancelled", map[string]interface{}{"fragments": fragments})
		return ctx.Err()
	case upstreamErr != nil:
		log.Error("Article stream failed", map[string]interface{}{
			"error":     upstreamErr.Error(),
			"fragments": fragments,
		})
		return send(sse.ErrorEvent(StreamErrorMessage(upstreamErr)))
	}

	sources := DedupeSources(collected)
	if len(sources) > 0 {
		if err := send(sse.SourcesEvent(sources)); err != nil {
			return err
		}
	}

	log.Info("Article stream completed", map[string]interface{}{
		"fragments": fragments,
		"sources":   len(sources),
	})
	return nil
}

// StreamErrorMessage is the human-readable text carried by an error event.
func StreamErrorMessage(err error) string {
	std := errors.Normalize(err)
	if std.Code == errors.ErrCodeInternal {
		return err.Error()
	}
	if cause := std.Unwrap(); cause != nil {
		return std.Message + ": " + cause.Error()
	}
	if std.Details != "" {
		return std.Message + ": " + std.Details
	}
	return std.Message
}

func (s *Service) finish(ctx context.Context, op models.Operation, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = strings.ToLower(string(errors.CodeOf(err)))
	}
	elapsed := time.Since(start)
	metrics.RelayRequests.WithLabelValues(string(op), status).Inc()
	metrics.RelayRequestDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
	s.obs.RecordOperation(ctx, string(op), status, elapsed)
}
