package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	api "driftwood/pkg/api/driftwood"
	"driftwood/pkg/version"
)

// GetInfo describes the service surface for API consumers.
func GetInfo(c *gin.Context) {
	c.JSON(http.StatusOK, api.InfoResponse{
		Name:        "driftwood",
		Version:     version.Version,
		Description: "Media resolution gateway with durable channel-backed caching",
		Endpoints: map[string]string{
			"GET /content":               "Resolve a query to streamable media (requires API key)",
			"GET /stream/:session_id":    "Redirect to the transient media URL for a session",
			"GET /health":                "Service and dependency health",
			"GET /metrics":               "Prometheus metrics",
			"GET /info":                  "This document",
			"POST /admin/keys":           "Create an API key (admin token)",
			"GET /admin/keys":            "List API keys, masked (admin token)",
			"DELETE /admin/keys/:key_id": "Delete an API key (admin token)",
			"GET /admin/stats":           "Usage statistics (admin token)",
		},
		Parameters: map[string]string{
			"query":   "Watch URL, bare 11-character video ID, or free-text search",
			"video":   "true for the video variant, defaults to audio",
			"api_key": "Credential, also accepted as the X-API-Key header",
		},
	})
}
