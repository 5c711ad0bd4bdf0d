package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"signal-relay/internal/domain"
	"signal-relay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const maxWebhookBody = 1 << 20

// SubmitSignal godoc
// @Summary      Submit a trading signal
// @Description  Accepts a TradingView-style alert payload, normalizes it and fans it out to operators and subscribers.
// @Tags         signals
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Secret  header  string  false  "Webhook secret"
// @Param        payload           body    object  true   "Signal payload (instrument, direction or price/sl, entry, tp1..tp3, timeframe, ...)"
// @Success      200  {object}  domain.SubmitResult
// @Failure      400  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      429  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /webhook/signal [post]
func (h *Handler) SubmitSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.submit-signal")
	defer span.End()

	payload, err := decodePayload(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "error": "body must be a JSON object"})
		return
	}

	result, err := h.signals.SubmitSignal(ctx, payload)
	switch {
	case errors.Is(err, domain.ErrInvalidSignal):
		c.JSON(http.StatusBadRequest, gin.H{"accepted": false, "error": err.Error()})
		return
	case err != nil:
		span.RecordError(err)
		log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("signal submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"accepted": false, "error": "signal could not be distributed"})
		return
	}

	span.SetAttributes(
		attribute.String("signal_id", result.SignalID),
		attribute.Int("recipients_notified", result.RecipientsNotified),
	)
	c.JSON(http.StatusOK, result)
}

// RecentSignals godoc
// @Summary      List recently archived signals
// @Tags         signals
// @Produce      json
// @Param        limit  query  int  false  "Number of signals (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals/recent [get]
func (h *Handler) RecentSignals(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.recent-signals")
	defer span.End()

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	signals, err := h.signals.RecentSignals(ctx, limit)
	if errors.Is(err, service.ErrArchiveDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal archive unavailable"})
		return
	}
	if err != nil {
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// decodePayload reads a JSON object regardless of content type; TradingView posts
// alerts as text/plain. Numbers stay json.Number so prices keep their digits.
func decodePayload(r io.Reader) (map[string]any, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(body)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("empty payload")
	}
	return payload, nil
}
