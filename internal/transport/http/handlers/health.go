package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avalon-platform/identity-service/internal/infra/database"
)

// ReadinessCheck probes a single downstream dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler exposes liveness and readiness information. Readiness reports
// the store initializer snapshot without ever blocking on the initialization
// sequence itself.
type HealthHandler struct {
	startedAt  time.Time
	initStatus func() database.InitStatus
	checks     map[string]ReadinessCheck
}

// HealthOption customizes the health handler.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe run on /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandler) {
		h.checks[name] = check
	}
}

// NewHealthHandler builds a health handler around the initializer snapshot.
func NewHealthHandler(initStatus func() database.InitStatus, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		startedAt:  time.Now().UTC(),
		initStatus: initStatus,
		checks:     make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type healthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

type initResponse struct {
	State   string `json:"state"`
	Attempt int    `json:"attempt,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Init   initResponse      `json:"init"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Status reports process liveness.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
	})
}

// Readiness reports whether the service can serve traffic. The verdict
// follows the initializer: committed is healthy, terminal failure is
// unhealthy, and an in-flight sequence is degraded. Dependency probes can
// only downgrade a healthy verdict.
func (h *HealthHandler) Readiness(c *gin.Context) {
	status := h.initStatus()
	health := status.Health()

	resp := readinessResponse{
		Init: initResponse{
			State:   string(status.State),
			Attempt: status.Attempt,
			Detail:  status.Detail,
		},
	}

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				if health == database.HealthHealthy {
					health = database.HealthDegraded
				}
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	resp.Status = string(health)

	code := http.StatusOK
	if health != database.HealthHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
