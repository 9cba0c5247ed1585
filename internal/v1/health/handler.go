package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RoseWrightdev/media-orchestrator/internal/v1/bus"
	"github.com/RoseWrightdev/media-orchestrator/internal/v1/logging"
	"go.uber.org/zap"
)

// WorkerPoolChecker reports on the in-process media-router worker pool.
// Satisfied by *mediaworker.Pool; kept as an interface here so health does
// not need to import mediaworker, mirroring the teacher's SFUChecker seam.
type WorkerPoolChecker interface {
	ActiveWorkerCount() int
	WantedWorkerCount() int
}

// StorePinger reports on the metadata store connection.
// Satisfied by *store.Store.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	redisService *bus.Service
	workerPool   WorkerPoolChecker
	store        StorePinger
}

// NewHandler creates a new health check handler.
func NewHandler(redisService *bus.Service, workerPool WorkerPoolChecker, store StorePinger) *Handler {
	return &Handler{
		redisService: redisService,
		workerPool:   workerPool,
		store:        store,
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live — returns 200 if the process is alive, no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready — returns 200 only if all critical dependencies are healthy,
// 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	workerStatus := h.checkWorkerPool()
	checks["worker_pool"] = workerStatus
	if workerStatus != "healthy" {
		allHealthy = false
	}

	storeStatus := h.checkStore(ctx)
	checks["metadata_store"] = storeStatus
	if storeStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy" // single-instance mode, no Redis available
	}
	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// checkWorkerPool reports unhealthy if fewer workers are live than wanted —
// the supervisor may still be mid-respawn, which is a degraded-but-surfaced state.
func (h *Handler) checkWorkerPool() string {
	if h.workerPool == nil {
		return "healthy"
	}
	if h.workerPool.ActiveWorkerCount() < h.workerPool.WantedWorkerCount() {
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkStore(ctx context.Context) string {
	if h.store == nil {
		return "healthy"
	}
	if err := h.store.Ping(ctx); err != nil {
		logging.Error(ctx, "metadata store health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// MarshalJSON implements custom JSON marshaling for better formatting.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
