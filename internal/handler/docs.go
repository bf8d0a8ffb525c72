package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const docsMarkdown = `# Alpha Feed

Turns Telegram chat messages and market snapshots into scored trading signals
and serves them as one feed.

## Ingest

- Webhook mode: Telegram posts updates to POST /api/v1/telegram/webhook.
  Set telegram.webhook_secret to require X-Telegram-Bot-Api-Secret-Token.
- Poll mode: getUpdates runs on cron.telegram_poll; the offset is kept in sync_state.

## Auth

With auth.enabled, /api/*, /swagger and /docs need an HS256 bearer token.
The webhook, /healthz, /readyz and /metrics stay open.

## Routes

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- GET /api/v1/feed
- GET /api/v1/signals
- POST /api/v1/signals/processed
- POST /api/v1/extract
- POST /api/v1/telegram/webhook
- GET /api/v1/telegram/channels
- PUT /api/v1/telegram/channels/:id
- GET /api/v1/settings
- GET /api/v1/settings/switches
- PUT /api/v1/settings/switches/:name
- GET /api/v1/pipeline/health
`

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, docsMarkdown)
	})
}
