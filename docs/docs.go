// Package docs registers the OpenAPI document served at /swagger. Regenerate
// with `swag init -g cmd/alphafeed/main.go -o docs` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/healthz": {"get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}},
        "/readyz": {"get": {"tags": ["health"], "summary": "Readiness check", "responses": {"200": {"description": "OK"}, "503": {"description": "store unreachable"}}}},
        "/api/v1/feed": {"get": {"tags": ["feed"], "summary": "Aggregated signal feed",
            "parameters": [
                {"type": "integer", "name": "limit", "in": "query"},
                {"type": "string", "name": "sort", "in": "query", "enum": ["source", "confidence", "time"]},
                {"type": "boolean", "name": "mark_processed", "in": "query"}
            ],
            "responses": {"200": {"description": "OK"}}}},
        "/api/v1/signals": {"get": {"tags": ["signals"], "summary": "List stored signals",
            "parameters": [
                {"type": "string", "name": "source", "in": "query"},
                {"type": "string", "name": "source_id", "in": "query"},
                {"type": "string", "name": "token", "in": "query"},
                {"type": "boolean", "name": "processed", "in": "query"},
                {"type": "integer", "name": "min_confidence", "in": "query"},
                {"type": "string", "name": "since", "in": "query"},
                {"type": "string", "name": "order_by", "in": "query"},
                {"type": "integer", "name": "limit", "in": "query"},
                {"type": "integer", "name": "offset", "in": "query"}
            ],
            "responses": {"200": {"description": "OK"}}}},
        "/api/v1/signals/processed": {"post": {"tags": ["signals"], "summary": "Mark signals processed", "responses": {"200": {"description": "OK"}, "400": {"description": "ids required"}}}},
        "/api/v1/extract": {"post": {"tags": ["signals"], "summary": "Dry-run extraction", "responses": {"200": {"description": "OK"}, "400": {"description": "text required"}}}},
        "/api/v1/telegram/webhook": {"post": {"tags": ["telegram"], "summary": "Telegram webhook", "responses": {"200": {"description": "OK"}, "401": {"description": "bad secret"}, "500": {"description": "undecodable update"}}}},
        "/api/v1/telegram/channels": {"get": {"tags": ["telegram"], "summary": "List tracked chats", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/telegram/channels/{id}": {"put": {"tags": ["telegram"], "summary": "Mute or unmute a chat",
            "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "unknown chat"}}}},
        "/api/v1/settings": {"get": {"tags": ["settings"], "summary": "List settings", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/settings/{key}": {
            "get": {"tags": ["settings"], "summary": "Get one setting", "parameters": [{"type": "string", "name": "key", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}},
            "put": {"tags": ["settings"], "summary": "Write one setting", "parameters": [{"type": "string", "name": "key", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/api/v1/settings/switches": {"get": {"tags": ["settings"], "summary": "List feature switches", "responses": {"200": {"description": "OK"}}}},
        "/api/v1/settings/switches/{name}": {"put": {"tags": ["settings"], "summary": "Toggle a feature switch",
            "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
            "responses": {"200": {"description": "OK"}, "404": {"description": "unknown switch"}}}},
        "/api/v1/pipeline/health": {"get": {"tags": ["pipeline"], "summary": "Pipeline health", "responses": {"200": {"description": "OK"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Alpha Feed API",
	Description:      "Chat and market trading signals, scored and merged into one feed.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
