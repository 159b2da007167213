package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ytgate/internal/auth"
	"ytgate/internal/media"
	"ytgate/internal/quota"
)

// Handler serves the protected media lookup endpoint.
type Handler struct {
	resolver media.Resolver
	logger   *slog.Logger
}

// NewHandler creates the protected-endpoint handler.
func NewHandler(resolver media.Resolver, logger *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		logger:   logger.With("component", "api"),
	}
}

// RequestIDMiddleware tags each request with a generated id for log
// correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// LookupHandler forwards the query to the upstream media resolver and returns
// its descriptor verbatim. It runs behind the quota gate middleware, so the
// request has already consumed one unit of daily quota by the time it gets
// here.
func (h *Handler) LookupHandler(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	info, err := h.resolver.Resolve(c.Request.Context(), query)
	if err != nil {
		h.logger.Warn("Media resolution failed", "request_id", c.GetString("request_id"), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to resolve media for query"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// SetupRoutes mounts the protected endpoint behind the quota gate.
func SetupRoutes(router *gin.Engine, gate *quota.Gate, handler *Handler) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Use /yt?query=song+name&apikey=YOUR_KEY to get an audio stream URL."})
	})

	protected := router.Group("/yt")
	protected.Use(auth.GateMiddleware(gate))
	protected.GET("", handler.LookupHandler)
}
