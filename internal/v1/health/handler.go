package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Carbonfreezer/multiplayer/internal/v1/bus"
	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"go.uber.org/zap"
)

// Handler manages health check endpoints.
type Handler struct {
	lobbyBus *bus.Service
}

// NewHandler creates a new health check handler. lobbyBus may be nil when the
// relay is running single-instance without the optional cross-pod bus.
func NewHandler(lobbyBus *bus.Service) *Handler {
	return &Handler{lobbyBus: lobbyBus}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	busStatus := h.checkBus(ctx)
	checks["lobby_bus"] = busStatus
	if busStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkBus verifies the optional cross-pod lobby bus connectivity.
func (h *Handler) checkBus(ctx context.Context) string {
	if h.lobbyBus == nil {
		// Single-instance mode: no bus configured, considered healthy.
		return "healthy"
	}

	if err := h.lobbyBus.Ping(ctx); err != nil {
		logging.Error(ctx, "lobby bus health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// MarshalJSON implements custom JSON marshaling for better formatting
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
