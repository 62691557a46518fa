package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/avalon-platform/identity-service/internal/infra/database"
)

func performReadiness(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, readinessResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/readyz", h.Readiness)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(rec, req)

	var body readinessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readiness body: %v", err)
	}
	return rec, body
}

func TestStatusAlwaysOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(func() database.InitStatus {
		return database.InitStatus{State: database.StateFaulted}
	})

	router := gin.New()
	router.GET("/healthz", h.Status)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("liveness must not depend on initialization, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" || body.StartedAt.IsZero() {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadinessCommitted(t *testing.T) {
	h := NewHealthHandler(func() database.InitStatus {
		return database.InitStatus{State: database.StateCommitted, Attempt: 1}
	})

	rec, body := performReadiness(t, h)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body.Status != string(database.HealthHealthy) {
		t.Fatalf("expected healthy, got %q", body.Status)
	}
	if body.Init.State != string(database.StateCommitted) || body.Init.Attempt != 1 {
		t.Fatalf("unexpected init snapshot: %+v", body.Init)
	}
}

func TestReadinessWhileMigrating(t *testing.T) {
	h := NewHealthHandler(func() database.InitStatus {
		return database.InitStatus{State: database.StateMigrating, Attempt: 2}
	})

	rec, body := performReadiness(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while in flight, got %d", rec.Code)
	}
	if body.Status != string(database.HealthDegraded) {
		t.Fatalf("expected degraded, got %q", body.Status)
	}
}

func TestReadinessFaulted(t *testing.T) {
	h := NewHealthHandler(func() database.InitStatus {
		return database.InitStatus{
			State:   database.StateFaulted,
			Attempt: 5,
			Detail:  "migrations failed",
		}
	})

	rec, body := performReadiness(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body.Status != string(database.HealthUnhealthy) {
		t.Fatalf("expected unhealthy, got %q", body.Status)
	}
	if body.Init.Detail != "migrations failed" {
		t.Fatalf("expected failure detail surfaced, got %q", body.Init.Detail)
	}
}

func TestReadinessCheckDowngradesHealthy(t *testing.T) {
	h := NewHealthHandler(
		func() database.InitStatus {
			return database.InitStatus{State: database.StateCommitted}
		},
		WithReadinessCheck("database", func(context.Context) error { return nil }),
		WithReadinessCheck("cache", func(context.Context) error {
			return errors.New("connection refused")
		}),
	)

	rec, body := performReadiness(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when a check fails, got %d", rec.Code)
	}
	if body.Status != string(database.HealthDegraded) {
		t.Fatalf("failed check must downgrade to degraded, got %q", body.Status)
	}
	if body.Checks["database"] != "ok" {
		t.Fatalf("passing check must report ok, got %q", body.Checks["database"])
	}
	if body.Checks["cache"] != "connection refused" {
		t.Fatalf("failing check must report its error, got %q", body.Checks["cache"])
	}
}

func TestReadinessCheckDoesNotUpgradeFaulted(t *testing.T) {
	h := NewHealthHandler(
		func() database.InitStatus {
			return database.InitStatus{State: database.StateFaulted}
		},
		WithReadinessCheck("database", func(context.Context) error { return nil }),
	)

	_, body := performReadiness(t, h)
	if body.Status != string(database.HealthUnhealthy) {
		t.Fatalf("checks must never upgrade the verdict, got %q", body.Status)
	}
}
