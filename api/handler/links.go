package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/models"
)

// Links returns a handler for POST /api/v1/links. It extracts the absolute
// links of the posted HTML, or of the page at url when no HTML is posted.
func Links(f Fetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LinksRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		html := req.HTML
		if strings.TrimSpace(html) == "" {
			if req.URL == "" {
				badRequest(c, models.NewScrapeError(models.ErrCodeInvalidInput, "url or html is required", nil))
				return
			}
			resp, err := f.Dispatch(c.Request.Context(), req.URL)
			if err != nil {
				se := scrapeError(err)
				c.JSON(errorStatus(se), models.LinksResponse{Error: se.ToDetail()})
				return
			}
			if !resp.OK() {
				c.JSON(http.StatusBadGateway, models.LinksResponse{Error: &models.ErrorDetail{
					Code:    models.ErrCodeNavigation,
					Message: resp.ErrorName + ": " + resp.ErrorMessage,
				}})
				return
			}
			html = resp.Body
		}

		set, err := cleaner.ExtractLinks(html)
		if err != nil {
			se := scrapeError(err)
			c.JSON(errorStatus(se), models.LinksResponse{Error: se.ToDetail()})
			return
		}
		links := cleaner.SortedLinks(set)
		c.JSON(http.StatusOK, models.LinksResponse{Success: true, Links: links, Total: len(links)})
	}
}
