package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"driftwood/pkg/api/common"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

const credentialKey = "credential"

// CredentialFromContext returns the admitted credential set by
// RequireAPIKey, or nil outside a gated handler.
func CredentialFromContext(c *gin.Context) *models.Credential {
	value, ok := c.Get(credentialKey)
	if !ok {
		return nil
	}
	cred, _ := value.(*models.Credential)
	return cred
}

// RequireAPIKey gates a route on a valid credential, taken from the
// api_key query parameter or the X-API-Key header. After the handler runs
// it records usage (successful responses only) and appends a request log
// entry, both off the request path.
func RequireAPIKey(store *Keystore, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Query("api_key")
		if keyID == "" {
			keyID = c.GetHeader("X-API-Key")
		}
		if keyID == "" {
			c.JSON(http.StatusUnauthorized, common.ErrorResponse{Error: "API key required"})
			c.Abort()
			return
		}

		cred, err := store.Admit(c.Request.Context(), keyID)
		if err != nil {
			status := http.StatusUnauthorized
			message := "Invalid API key"
			switch {
			case errors.Is(err, ErrKeyExpired):
				message = "API key expired"
			case errors.Is(err, ErrQuotaExceeded):
				message = "Daily quota exceeded"
			case !errors.Is(err, ErrKeyNotFound):
				status = http.StatusInternalServerError
				message = "Authorization check failed"
				logger.WithFields(logging.Fields{"error": err.Error()}).Error("Credential admission failed")
			}
			c.JSON(status, common.ErrorResponse{Error: message})
			c.Abort()
			return
		}

		c.Set(credentialKey, cred)
		c.Set("key_id", cred.KeyID)
		start := time.Now()
		c.Next()

		entry := &models.RequestLogEntry{
			KeyID:      cred.KeyID,
			Endpoint:   c.FullPath(),
			SourceIP:   c.ClientIP(),
			StatusCode: c.Writer.Status(),
			Latency:    time.Since(start),
			QueryText:  c.Query("query"),
		}
		if len(c.Errors) > 0 {
			entry.ErrorText = c.Errors.String()
		}

		// Detached from the request context so a client disconnect does
		// not drop the accounting writes.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if entry.StatusCode < 400 {
				store.RecordUsage(ctx, cred.KeyID)
			}
			store.LogRequest(ctx, entry)
		}()
	}
}

// RequireAdminToken gates the administrative surface on a static bearer
// token from the service environment.
func RequireAdminToken(adminToken string, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			token = c.GetHeader("X-Admin-Token")
		}

		if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			logger.WithFields(logging.Fields{
				"ip":   c.ClientIP(),
				"path": c.Request.URL.Path,
			}).Warn("Rejected admin request")
			c.JSON(http.StatusUnauthorized, common.ErrorResponse{Error: "Unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
