package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alphafeed/internal/market"
	"alphafeed/internal/repository"
)

type PipelineHandler struct {
	Repo repository.Repository
	// Market is nil when the configured provider does not report health.
	Market    market.HealthReporter
	PollScope string
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/pipeline")
	group.GET("/health", h.health)
}

// @Summary Pipeline health
// @Description Message and signal counts, unprocessed backlog, last-hour signals by source, provider and poller state.
// @Tags pipeline
// @Success 200 {object} map[string]any
// @Router /api/v1/pipeline/health [get]
func (h *PipelineHandler) health(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	ctx := c.Request.Context()

	unprocessed := false
	messagesTotal, _ := h.Repo.CountMessages(ctx, nil)
	backlog, _ := h.Repo.CountMessages(ctx, &unprocessed)

	signalsTotal, _ := h.Repo.CountSignals(ctx, repository.ListSignalsParams{})
	pending, _ := h.Repo.CountSignals(ctx, repository.ListSignalsParams{Processed: &unprocessed})

	since := time.Now().UTC().Add(-1 * time.Hour)
	lastHour, _ := h.Repo.CountSignalsBySourceSince(ctx, since)

	enabled := true
	channels, _ := h.Repo.ListChannels(ctx, repository.ListChannelsParams{Limit: 1000, Enabled: &enabled})

	out := gin.H{
		"messages_total":         messagesTotal,
		"messages_unprocessed":   backlog,
		"signals_total":          signalsTotal,
		"signals_unprocessed":    pending,
		"signals_last_hour":      lastHour,
		"channels_enabled_count": len(channels),
	}
	if h.Market != nil {
		out["market_provider"] = h.Market.Health()
	}
	if h.PollScope != "" {
		if state, err := h.Repo.GetSyncState(ctx, h.PollScope); err == nil && state != nil {
			out["telegram_poll"] = gin.H{
				"cursor":          state.Cursor,
				"last_success_at": state.LastSuccessAt,
				"last_attempt_at": state.LastAttemptAt,
				"last_error":      state.LastError,
			}
		}
	}
	Ok(c, out, nil)
}
