package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
)

// Extract returns a handler for POST /api/v1/extract: poll the page until
// the element at locator shows real content.
func Extract(x TextExtractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		text, err := x.Extract(c.Request.Context(), req.FetchRequest())
		timing := models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
		if err != nil {
			se := scrapeError(err)
			c.JSON(errorStatus(se), models.ExtractResponse{Error: se.ToDetail(), Timing: timing})
			return
		}
		c.JSON(http.StatusOK, models.ExtractResponse{Success: true, Text: text, Timing: timing})
	}
}
