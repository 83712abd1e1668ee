package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoPinger is satisfied by *mongo.Client.
type MongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// HealthResponse is the payload of GET /healthz.
type HealthResponse struct {
	Status       string            `json:"status"`
	Backend      string            `json:"backend"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
}

// HealthHandler reports liveness and the state of the active store.
type HealthHandler struct {
	backend     string
	mongo       MongoPinger
	pingTimeout time.Duration
	startTime   time.Time
}

// NewHealthHandler constructs a HealthHandler. mongo may be nil when the file store is active.
func NewHealthHandler(backend string, mongo MongoPinger, pingTimeout time.Duration) *HealthHandler {
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	return &HealthHandler{
		backend:     backend,
		mongo:       mongo,
		pingTimeout: pingTimeout,
		startTime:   time.Now(),
	}
}

// Health handles GET /healthz requests.
func (h *HealthHandler) Health(c echo.Context) error {
	deps := map[string]string{"mongodb": "not configured"}
	status := "healthy"

	if h.mongo != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.pingTimeout)
		defer cancel()
		if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
			deps["mongodb"] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			deps["mongodb"] = "healthy"
		}
	}

	resp := HealthResponse{
		Status:       status,
		Backend:      h.backend,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: deps,
	}
	if status != "healthy" {
		return c.JSON(http.StatusServiceUnavailable, APIResponse{Status: "error", Message: "service degraded", Data: resp})
	}
	return Success(c, http.StatusOK, "service healthy", resp)
}
