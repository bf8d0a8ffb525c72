package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alphafeed/internal/extractor"
	"alphafeed/internal/scorer"
)

type Extractor interface {
	Extract(text string, isBot bool) (*extractor.Result, scorer.Scored, bool)
}

type ExtractHandler struct {
	Extractor Extractor
}

func (h *ExtractHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/extract", h.extract)
}

type extractRequest struct {
	Text  string `json:"text"`
	IsBot bool   `json:"is_bot"`
}

type extractResponse struct {
	Found     bool              `json:"found"`
	Extracted *extractor.Result `json:"extracted,omitempty"`
	Scored    *scorer.Scored    `json:"scored,omitempty"`
}

// @Summary Dry-run extraction
// @Description Extracts and scores a message without storing anything.
// @Tags signals
// @Accept json
// @Param body body extractRequest true "message text"
// @Success 200 {object} map[string]any
// @Router /api/v1/extract [post]
func (h *ExtractHandler) extract(c *gin.Context) {
	if h.Extractor == nil {
		Error(c, http.StatusInternalServerError, "extractor unavailable", nil)
		return
	}
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		Error(c, http.StatusBadRequest, "text required", nil)
		return
	}
	r, s, ok := h.Extractor.Extract(req.Text, req.IsBot)
	if !ok {
		Ok(c, extractResponse{}, nil)
		return
	}
	Ok(c, extractResponse{Found: true, Extracted: r, Scored: &s}, nil)
}
