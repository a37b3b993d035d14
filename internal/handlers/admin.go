package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"driftwood/pkg/api/common"
	api "driftwood/pkg/api/driftwood"
	"driftwood/pkg/logging"
)

// CreateKey mints a new credential. The full key value appears in this
// response only; listings mask it.
func CreateKey(c *gin.Context) {
	var req api.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "owner is required"})
		return
	}

	cred, err := keystore.CreateKey(c.Request.Context(), req.Owner, req.DailyLimit, req.ExpiryDays, req.IsAdmin)
	if err != nil {
		logger.WithFields(logging.Fields{"owner": req.Owner, "error": err.Error()}).
			Error("Failed to create API key")
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{Error: "Failed to create key"})
		return
	}

	logger.WithFields(logging.Fields{
		"owner":    cred.Owner,
		"is_admin": cred.IsAdmin,
	}).Info("Created API key")

	c.JSON(http.StatusCreated, api.CreateKeyResponse{
		KeyID:      cred.KeyID,
		Owner:      cred.Owner,
		DailyLimit: cred.DailyLimit,
		ExpiresAt:  cred.ExpiresAt,
	})
}

// maskKey hides the middle of a key value for listings.
func maskKey(keyID string) string {
	if len(keyID) <= 12 {
		return keyID
	}
	return keyID[:8] + "..." + keyID[len(keyID)-4:]
}

// ListKeys returns every credential with masked key values.
func ListKeys(c *gin.Context) {
	creds, err := keystore.ListKeys(c.Request.Context())
	if err != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("Failed to list API keys")
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{Error: "Failed to list keys"})
		return
	}

	keys := make([]api.KeySummary, 0, len(creds))
	for _, cred := range creds {
		keys = append(keys, api.KeySummary{
			KeyID:      maskKey(cred.KeyID),
			Owner:      cred.Owner,
			IsAdmin:    cred.IsAdmin,
			DailyLimit: cred.DailyLimit,
			DailyUsed:  cred.DailyUsed,
			TotalUsed:  cred.TotalUsed,
			CreatedAt:  cred.CreatedAt,
			ExpiresAt:  cred.ExpiresAt,
			LastUsed:   cred.LastUsed,
		})
	}

	c.JSON(http.StatusOK, api.ListKeysResponse{Keys: keys, Count: len(keys)})
}

// DeleteKey removes a credential by its full key value.
func DeleteKey(c *gin.Context) {
	keyID := c.Param("key_id")

	existed, err := keystore.DeleteKey(c.Request.Context(), keyID)
	if err != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("Failed to delete API key")
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{Error: "Failed to delete key"})
		return
	}
	if !existed {
		c.JSON(http.StatusNotFound, common.ErrorResponse{Error: "Key not found"})
		return
	}

	logger.WithFields(logging.Fields{"key_id": maskKey(keyID)}).Info("Deleted API key")
	c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Message: "Key deleted"})
}

// GetStats serves aggregate usage statistics.
func GetStats(c *gin.Context) {
	stats, err := keystore.Stats(c.Request.Context())
	if err != nil {
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("Failed to aggregate usage stats")
		c.JSON(http.StatusInternalServerError, common.ErrorResponse{Error: "Failed to load stats"})
		return
	}

	top := make([]api.EndpointCount, 0, len(stats.TopEndpoints))
	for endpoint, count := range stats.TopEndpoints {
		top = append(top, api.EndpointCount{Endpoint: endpoint, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Endpoint < top[j].Endpoint
	})

	c.JSON(http.StatusOK, api.UsageStatsResponse{
		TotalRequests: stats.TotalRequests,
		TodayRequests: stats.TodayRequests,
		TotalKeys:     stats.TotalKeys,
		ActiveKeys:    stats.ActiveKeys,
		ErrorRate:     stats.ErrorRate,
		TopEndpoints:  top,
	})
}
