package handler

import (
	"github.com/gin-gonic/gin"

	"alphafeed/internal/feed"
)

type FeedHandler struct {
	Feed *feed.Service
}

func (h *FeedHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/feed", h.get)
}

// @Summary Aggregated signal feed
// @Description Market-derived signals first, then chat signals. Never fails; check is_real_data.
// @Tags feed
// @Param limit query int false "max entries per source"
// @Param sort query string false "source|confidence|time"
// @Param mark_processed query bool false "mark returned chat signals processed"
// @Success 200 {object} map[string]any
// @Router /api/v1/feed [get]
func (h *FeedHandler) get(c *gin.Context) {
	if h.Feed == nil {
		Ok(c, feed.Response{Entries: []feed.Entry{}, Stats: feed.ComputeStats(nil)}, nil)
		return
	}
	resp := h.Feed.Fetch(c.Request.Context(), feed.FetchOptions{
		Limit:         intQuery(c, "limit", 0),
		Sort:          c.Query("sort"),
		MarkProcessed: boolQueryDefault(c, "mark_processed", false),
	})
	Ok(c, resp, map[string]any{
		"is_real_data": resp.IsRealData,
		"degraded":     resp.Degraded,
	})
}
