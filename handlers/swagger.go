package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the device auth service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>gogotex-device-auth Swagger</title>
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

// Minimal OpenAPI document describing the device authorization endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "gogotex-device-auth", "version": "v0.1.0" },
  "paths": {
    "/auth/device/code": {
      "post": {
        "summary": "Start a device authorization flow",
        "responses": { "200": { "description": "device code, user code and verification uri" }, "502": { "description": "identity provider error" } }
      }
    },
    "/auth/device/token": {
      "post": {
        "summary": "Exchange a completed device code (or provider access token) for a session token",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"device_code":{"type":"string"},"access_token":{"type":"string"}}}}}},
        "responses": {
          "200": { "description": "user and session token" },
          "202": { "description": "authorization pending" },
          "403": { "description": "user denied access" },
          "404": { "description": "unknown or expired device code" },
          "502": { "description": "identity provider error" }
        }
      }
    },
    "/api/v1/me": {
      "get": { "summary": "Get the signed-in user", "responses": { "200": { "description": "user" }, "401": { "description": "missing or invalid session token" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
