package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alphafeed/internal/ingest"
	"alphafeed/internal/repository"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Webhook bodies are single updates; anything larger is not from Telegram.
const maxUpdateBytes = 1 << 20

type RawIngestor interface {
	IngestRaw(ctx context.Context, body []byte) (ingest.Result, error)
}

type TelegramHandler struct {
	Ingestor RawIngestor
	Repo     repository.Repository
	Secret   string
	Logger   *zap.Logger
}

func (h *TelegramHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/telegram")
	group.POST("/webhook", h.webhook)
	group.GET("/channels", h.listChannels)
	group.PUT("/channels/:id", h.putChannel)
}

// @Summary Telegram webhook
// @Description Accepts one Bot API update. Answers 200 for anything decodable so Telegram does not retry.
// @Tags telegram
// @Accept json
// @Success 200 {object} map[string]bool
// @Failure 401 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /api/v1/telegram/webhook [post]
func (h *TelegramHandler) webhook(c *gin.Context) {
	if h.Secret != "" {
		got := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			Error(c, http.StatusUnauthorized, "invalid secret token", nil)
			return
		}
	}
	if h.Ingestor == nil {
		Error(c, http.StatusInternalServerError, "ingestor unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateBytes))
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable body", nil)
		return
	}
	res, err := h.Ingestor.IngestRaw(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, ingest.ErrUndecodable) {
			Error(c, http.StatusInternalServerError, "undecodable update", nil)
			return
		}
		h.logger().Warn("webhook ingest incomplete", zap.String("outcome", string(res.Outcome)), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// @Summary List tracked chats
// @Tags telegram
// @Param enabled query bool false "filter by enabled"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Success 200 {object} map[string]any
// @Router /api/v1/telegram/channels [get]
func (h *TelegramHandler) listChannels(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListChannels(c.Request.Context(), repository.ListChannelsParams{
		Limit:   limit,
		Offset:  offset,
		Enabled: boolQueryPtr(c, "enabled"),
		OrderBy: "last_seen_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, int64(len(items))))
}

type putChannelRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Mute or unmute a chat
// @Tags telegram
// @Accept json
// @Param id path string true "chat id"
// @Param body body putChannelRequest true "enabled flag"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/v1/telegram/channels/{id} [put]
func (h *TelegramHandler) putChannel(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	var req putChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil || id == "" {
		Error(c, http.StatusBadRequest, "enabled required", nil)
		return
	}
	if err := h.Repo.SetChannelEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		repoError(c, err)
		return
	}
	item, err := h.Repo.GetChannel(c.Request.Context(), id)
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *TelegramHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
