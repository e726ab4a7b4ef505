package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/cleaner"
	"github.com/use-agent/harvest/models"
)

// Fetch returns a handler for POST /api/v1/fetch.
//
// The page goes through the fallback chain. A page no strategy could load
// is still a 200 response with success=false and the last strategy's
// status and error fields; only bad input and cancellation are HTTP errors.
// With max_age set, a cached response of that age or younger is served.
func Fetch(f Fetcher, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.PageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.Defaults()

		cacheStatus := ""
		maxAge := time.Duration(req.MaxAge) * time.Millisecond
		var resp *models.FetchResponse
		if cc != nil && maxAge > 0 {
			if cached, hit := cc.GetFresh(req.URL, maxAge); hit {
				resp, cacheStatus = cached, "hit"
			} else {
				cacheStatus = "miss"
			}
		}

		var navMs int64
		if resp == nil {
			navStart := time.Now()
			var err error
			resp, err = f.Dispatch(c.Request.Context(), req.URL)
			navMs = time.Since(navStart).Milliseconds()
			if err != nil {
				se := scrapeError(err)
				c.JSON(errorStatus(se), models.PageResponse{
					URL:    req.URL,
					Error:  se.ToDetail(),
					Timing: models.TimingInfo{TotalMs: time.Since(start).Milliseconds(), NavigationMs: navMs},
				})
				return
			}
			if cc != nil && resp.OK() {
				cc.Set(req.URL, resp)
			}
		}

		content := resp.Body
		if req.OutputFormat == "markdown" && content != "" {
			md, err := cleaner.ToMarkdown(content, req.URL)
			if err != nil {
				se := scrapeError(err)
				c.JSON(errorStatus(se), models.PageResponse{URL: req.URL, Error: se.ToDetail()})
				return
			}
			content = md
		}

		c.JSON(http.StatusOK, models.PageResponse{
			Success:      resp.OK(),
			URL:          req.URL,
			StatusCode:   resp.StatusCode,
			Content:      content,
			ErrorName:    resp.ErrorName,
			ErrorMessage: resp.ErrorMessage,
			EngineUsed:   resp.Engine,
			CacheStatus:  cacheStatus,
			Timing:       models.TimingInfo{TotalMs: time.Since(start).Milliseconds(), NavigationMs: navMs},
		})
	}
}
