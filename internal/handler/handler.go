package handler

import (
	"context"
	"net/http"

	"signal-relay/internal/domain"
	"signal-relay/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type SignalService interface {
	SubmitSignal(ctx context.Context, payload map[string]any) (domain.SubmitResult, error)
	RecentSignals(ctx context.Context, limit int) ([]domain.ArchivedSignal, error)
}

type WebhookConfig struct {
	// Secret, when set, must be sent as X-Webhook-Secret or ?secret=.
	Secret          string
	RateLimitPerMin int
}

type Handler struct {
	tracer  trace.Tracer
	signals SignalService
	secret  string
	limiter *ratelimit.Limiter
}

func New(tracer trace.Tracer, signals SignalService, cfg WebhookConfig) *Handler {
	return &Handler{
		tracer:  tracer,
		signals: signals,
		secret:  cfg.Secret,
		limiter: ratelimit.New(cfg.RateLimitPerMin),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(requestID())
	r.GET("/health", h.Health)

	protected := r.Group("/", requireSecret(h.secret), rateLimit(h.limiter))
	protected.POST("/webhook/signal", h.SubmitSignal)
	protected.POST("/signal", h.SubmitSignal)
	protected.GET("/api/signals/recent", h.RecentSignals)
}

// Health godoc
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
