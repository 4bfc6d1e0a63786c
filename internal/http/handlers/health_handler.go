package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthProbeTimeout = 2 * time.Second

// HealthResponse reports service and dependency liveness.
type HealthResponse struct {
	// healthy, degraded (cache down) or unhealthy (database down)
	Status   string `json:"status"   example:"healthy"`
	Cache    string `json:"cache"    example:"connected"`
	Database string `json:"database" example:"connected"`
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unknown"
	}
	if err := p.Ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}

// Health godoc
// @ID          health
// @Summary     Liveness and dependency status
// @Description A cache outage only degrades the service since history is rebuilt from the database.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "healthy",
		Cache:    probe(ctx, h.cache),
		Database: probe(ctx, h.database),
	}
	status := http.StatusOK
	switch {
	case resp.Database == "disconnected":
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	case resp.Cache == "disconnected":
		resp.Status = "degraded"
	}
	ok(c, status, resp)
}

// Root answers GET / so probes and humans see the service is up.
func (h *Handlers) Root(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"message": "chat API is running"})
}
