package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the agent.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>authbridge — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the agent's session surface.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "authbridge", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Pass credentials through to the auth provider",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["email","password"],"properties":{"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "signed in, snapshot returned" }, "401": { "description": "provider rejected the credentials" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Sign out and clear local session state", "responses": { "200": { "description": "cleared snapshot returned" } } }
    },
    "/api/v1/session": {
      "get": { "summary": "Current auth state snapshot", "responses": { "200": { "description": "user, sessionUser, authenticated, loading" } } }
    },
    "/api/v1/session/events": {
      "get": { "summary": "Server-sent events stream of auth state snapshots", "responses": { "200": { "description": "text/event-stream" } } }
    },
    "/api/v1/avatar": {
      "get": { "summary": "Cached avatar of the signed-in user", "responses": { "200": { "description": "image bytes" }, "404": { "description": "no avatar cached" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
