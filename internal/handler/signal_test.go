package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-relay/internal/domain"
	"signal-relay/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type stubDistributor struct {
	got  []domain.NormalizedSignal
	sent int
}

func (s *stubDistributor) Distribute(ctx context.Context, sig domain.NormalizedSignal) (domain.DistributionResult, error) {
	s.got = append(s.got, sig)
	return domain.DistributionResult{Sent: s.sent, Recipients: s.sent}, nil
}

type stubArchive struct {
	recent    []domain.ArchivedSignal
	lastLimit int
	err       error
}

func (s *stubArchive) InsertSignal(ctx context.Context, sig domain.NormalizedSignal) error {
	return nil
}

func (s *stubArchive) ListRecent(ctx context.Context, limit int) ([]domain.ArchivedSignal, error) {
	s.lastLimit = limit
	return s.recent, s.err
}

func newTestRouter(svc SignalService, cfg WebhookConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(trace.NewNoopTracerProvider().Tracer("handler-test"), svc, cfg)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestSubmitSignalAccepted(t *testing.T) {
	dist := &stubDistributor{sent: 2}
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), dist, nil)
	r := newTestRouter(svc, WebhookConfig{})

	body := `{"instrument":"eurusd","signal":"buy","price":1.08500,"sl":1.08,"tp1":1.09,"interval":"H1"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp domain.SubmitResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !resp.Accepted || resp.RecipientsNotified != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(dist.got) != 1 || dist.got[0].Instrument != "EURUSD" {
		t.Fatalf("expected one EURUSD signal, got %+v", dist.got)
	}
	if dist.got[0].Entry != "1.08500" {
		t.Fatalf("expected entry digits preserved, got %q", dist.got[0].Entry)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected X-Request-ID on response")
	}
}

func TestSubmitSignalAliasRoute(t *testing.T) {
	dist := &stubDistributor{}
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), dist, nil)
	r := newTestRouter(svc, WebhookConfig{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/signal", strings.NewReader(`{"instrument":"BTCUSD","direction":"sell","entry":"64000"}`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(dist.got) != 1 {
		t.Fatalf("expected distribution, got %d", len(dist.got))
	}
}

func TestSubmitSignalRejectsInvalidPayload(t *testing.T) {
	dist := &stubDistributor{}
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), dist, nil)
	r := newTestRouter(svc, WebhookConfig{})

	for _, body := range []string{`{"instrument":"EURUSD"}`, `not json`, `[]`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, w.Code)
		}
	}
	if len(dist.got) != 0 {
		t.Fatalf("invalid payloads must not be distributed, got %d", len(dist.got))
	}
}

func TestSubmitSignalRequiresSecret(t *testing.T) {
	dist := &stubDistributor{}
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), dist, nil)
	r := newTestRouter(svc, WebhookConfig{Secret: "s3cret"})
	body := `{"instrument":"EURUSD","direction":"buy","entry":"1.1"}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body))
	req.Header.Set("X-Webhook-Secret", "s3cret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with header secret, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/signal?secret=s3cret", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with query secret, got %d", w.Code)
	}
}

func TestSubmitSignalRateLimited(t *testing.T) {
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), &stubDistributor{}, nil)
	r := newTestRouter(svc, WebhookConfig{RateLimitPerMin: 1})
	body := `{"instrument":"EURUSD","direction":"buy","entry":"1.1"}`

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/signal", strings.NewReader(body)))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}
}

func TestRecentSignals(t *testing.T) {
	archive := &stubArchive{recent: []domain.ArchivedSignal{{
		NormalizedSignal: domain.NormalizedSignal{ID: "EURUSD_BUY_1h_1", Instrument: "EURUSD", CreatedAt: time.Unix(0, 0).UTC()},
		Deliveries:       4,
	}}}
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), &stubDistributor{}, archive)
	r := newTestRouter(svc, WebhookConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/signals/recent?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if archive.lastLimit != 5 {
		t.Fatalf("expected limit 5, got %d", archive.lastLimit)
	}
	var resp struct {
		Signals []domain.ArchivedSignal `json:"signals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(resp.Signals) != 1 || resp.Signals[0].Deliveries != 4 {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestRecentSignalsBadLimitAndNoArchive(t *testing.T) {
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), &stubDistributor{}, nil)
	r := newTestRouter(svc, WebhookConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/signals/recent?limit=500", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/signals/recent", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRecentSignalsArchiveError(t *testing.T) {
	archive := &stubArchive{err: errors.New("connection refused")}
	svc := service.NewSignalService(trace.NewNoopTracerProvider().Tracer("handler-test"), &stubDistributor{}, archive)
	r := newTestRouter(svc, WebhookConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/signals/recent", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHealthKeepsRequestID(t *testing.T) {
	r := newTestRouter(nil, WebhookConfig{Secret: "x"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}
