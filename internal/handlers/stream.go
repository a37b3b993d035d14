package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"driftwood/pkg/api/common"
)

// GetStream redeems a session token with a redirect to its transient
// media URL. Possession of the token is the only capability checked.
func GetStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	streamSession, ok := broker.Resolve(sessionID)
	if !ok {
		streamRedirects.WithLabelValues("miss").Inc()
		c.JSON(http.StatusNotFound, common.ErrorResponse{Error: "Session not found or expired"})
		return
	}

	streamRedirects.WithLabelValues("redirect").Inc()
	c.Redirect(http.StatusFound, streamSession.TargetURL)
}
