// internal/relay/handler.go
package relay

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/errors"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/models"
	"wiki-explorer/internal/sse"
)

// Pinger reports backend readiness. *cache.RedisClient implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	config  *config.Config
	service *Service
	pinger  Pinger
	errors  *errors.ErrorHandler
	log     logger.Logger
}

// NewHandler builds the HTTP surface of the relay. pinger may be nil.
func NewHandler(cfg *config.Config, service *Service, pinger Pinger, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{"component": "relay-http"})
	return &Handler{
		config:  cfg,
		service: service,
		pinger:  pinger,
		errors:  errors.NewErrorHandler(log),
		log:     log,
	}
}

// Generate serves POST /api/generate.
func (h *Handler) Generate(c *gin.Context) {
	var req models.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errors.Respond(c, errors.NewInvalidRequestError(err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.errors.Respond(c, errors.NewQueryRequiredError())
		return
	}

	switch req.Operation {
	case models.OperationDisambiguate:
		choices, err := h.service.Disambiguate(c.Request.Context(), req.Query)
		if err != nil {
			h.errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, choices)
	case models.OperationStreamArticle:
		h.streamArticle(c, req.Query)
	default:
		h.errors.Respond(c, errors.NewInvalidOperationError(string(req.Operation)))
	}
}

func (h *Handler) streamArticle(c *gin.Context, query string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	w := sse.NewWriter(c.Writer)
	if err := h.service.StreamArticle(c.Request.Context(), query, w.Write); err != nil {
		fields := map[string]interface{}{"error": err.Error()}
		if requestID, ok := c.Get(requestIDKey); ok {
			fields["requestId"] = requestID
		}
		h.log.Debug("Stream closed early", fields)
	}
}

// MethodNotAllowed answers every non-POST request to a relay route.
func (h *Handler) MethodNotAllowed(c *gin.Context) {
	h.errors.Respond(c, errors.NewMethodNotAllowedError(c.Request.Method))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.config.App.Name,
		"version": h.config.App.Version,
	})
}

// Ready checks the cache when one is configured.
func (h *Handler) Ready(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request.Context()); err != nil {
			h.errors.Respond(c, errors.NewCacheFailedError(err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
