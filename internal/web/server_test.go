package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database/mock"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/training"
)

type stubSession struct {
	retrains int
}

func (s *stubSession) Snapshot() session.Snapshot {
	return session.Snapshot{SessionID: "s-1", Lock: "closed", Reed: "unknown"}
}

func (s *stubSession) Retrain(context.Context) (*training.Model, error) {
	s.retrains++
	return nil, training.ErrInsufficientData
}

func newTestServer(t *testing.T, token string) (*Server, *stubSession) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.SetLock(true)

	sess := &stubSession{}
	srv := NewServer(&config.WebConfig{Host: "127.0.0.1", Port: 0, APIToken: token}, Deps{
		DeviceID: "front-door-01",
		Session:  sess,
		Store:    mock.NewMockStore(),
		Registry: registry,
	})
	return srv, sess
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t, "")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/status", http.StatusOK},
		{http.MethodGet, "/api/v1/identities", http.StatusOK},
		{http.MethodPost, "/api/v1/train", http.StatusUnprocessableEntity},
		{http.MethodGet, "/api/v1/train", http.StatusMethodNotAllowed},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestTrainRequiresToken(t *testing.T) {
	srv, sess := newTestServer(t, "s3cret")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/train", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if sess.retrains != 0 {
		t.Fatal("expected no retrain without token")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/train", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if sess.retrains != 1 {
		t.Errorf("expected retrain with token, got %d calls (status %d)", sess.retrains, rec.Code)
	}

	// Reads stay open.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status to be readable without token, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "facegate_lock_open 1") {
		t.Errorf("expected lock gauge in metrics output, got:\n%s", rec.Body.String())
	}
}
