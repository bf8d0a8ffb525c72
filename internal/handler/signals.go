package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alphafeed/internal/repository"
)

type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/signals")
	group.GET("", h.list)
	group.POST("/processed", h.markProcessed)
}

// @Summary List stored signals
// @Tags signals
// @Param source query string false "telegram|market"
// @Param source_id query string false "chat id or provider:SYMBOL"
// @Param token query string false "ticker"
// @Param processed query bool false "processed flag"
// @Param min_confidence query int false "minimum confidence"
// @Param since query string false "RFC3339 or duration such as 6h"
// @Param order_by query string false "created_at|confidence|performance"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} map[string]any
// @Router /api/v1/signals [get]
func (h *SignalHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	var token *string
	if v := strQueryPtr(c, "token"); v != nil {
		up := strings.ToUpper(strings.TrimPrefix(*v, "$"))
		token = &up
	}
	orderBy := strings.TrimSpace(c.Query("order_by"))
	if orderBy == "" {
		orderBy = "created_at"
	}
	params := repository.ListSignalsParams{
		Limit:         limit,
		Offset:        offset,
		Source:        strQueryPtr(c, "source"),
		SourceID:      strQueryPtr(c, "source_id"),
		Token:         token,
		Processed:     boolQueryPtr(c, "processed"),
		MinConfidence: intQueryPtr(c, "min_confidence"),
		Since:         timeQueryPtr(c, "since"),
		OrderBy:       orderBy,
		Asc:           boolPtr(false),
	}
	items, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

type markProcessedRequest struct {
	IDs []uint64 `json:"ids"`
}

// @Summary Mark signals processed
// @Tags signals
// @Accept json
// @Param body body markProcessedRequest true "signal ids"
// @Success 200 {object} map[string]any
// @Router /api/v1/signals/processed [post]
func (h *SignalHandler) markProcessed(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req markProcessedRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		Error(c, http.StatusBadRequest, "ids required", nil)
		return
	}
	if len(req.IDs) > 1000 {
		Error(c, http.StatusBadRequest, "too many ids", nil)
		return
	}
	n, err := h.Repo.MarkSignalsProcessed(c.Request.Context(), req.IDs)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"updated": n}, nil)
}
