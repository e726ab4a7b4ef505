package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health. The service is degraded
// when no fetch strategy is configured.
func Health(f Fetcher, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		engines := f.Engines()
		status := "healthy"
		if len(engines) == 0 {
			status = "degraded"
		}
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Engines: engines,
			Version: Version,
		})
	}
}
