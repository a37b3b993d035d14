package driftwood

import (
	"time"
)

// ContentResponse is the envelope for GET /content.
type ContentResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Duration      int64  `json:"duration"`
	Link          string `json:"link"`
	Channel       string `json:"channel"`
	Views         int64  `json:"views"`
	Thumbnail     string `json:"thumbnail"`
	StreamURL     string `json:"stream_url"`
	DirectURL     string `json:"direct_url"`
	StreamType    string `json:"stream_type"`
	Substituted   bool   `json:"substituted,omitempty"`
	Cached        bool   `json:"cached"`
	DurablyCached bool   `json:"durably_cached"`
	DurableRef    string `json:"durable_ref,omitempty"`
	DurableKind   string `json:"durable_kind,omitempty"`
	DurableURL    string `json:"durable_url,omitempty"`
}

// CreateKeyRequest is the admin request to mint a credential.
type CreateKeyRequest struct {
	Owner      string `json:"owner" binding:"required"`
	DailyLimit int64  `json:"daily_limit"`
	ExpiryDays int    `json:"expiry_days"`
	IsAdmin    bool   `json:"is_admin"`
}

// CreateKeyResponse returns the full key value exactly once, at creation.
type CreateKeyResponse struct {
	KeyID      string    `json:"key_id"`
	Owner      string    `json:"owner"`
	DailyLimit int64     `json:"daily_limit"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// KeySummary is a credential listing entry with the key value masked.
type KeySummary struct {
	KeyID      string     `json:"key_id"`
	Owner      string     `json:"owner"`
	IsAdmin    bool       `json:"is_admin"`
	DailyLimit int64      `json:"daily_limit"`
	DailyUsed  int64      `json:"daily_used"`
	TotalUsed  int64      `json:"total_used"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
}

// ListKeysResponse wraps the admin key listing.
type ListKeysResponse struct {
	Keys  []KeySummary `json:"keys"`
	Count int          `json:"count"`
}

// EndpointCount is one row of the top-endpoints aggregation.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// UsageStatsResponse is the admin usage statistics envelope.
type UsageStatsResponse struct {
	TotalRequests int64           `json:"total_requests"`
	TodayRequests int64           `json:"today_requests"`
	TotalKeys     int64           `json:"total_keys"`
	ActiveKeys    int64           `json:"active_keys"`
	ErrorRate     float64         `json:"error_rate"`
	TopEndpoints  []EndpointCount `json:"top_endpoints"`
}

// InfoResponse describes the service for GET /info.
type InfoResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
	Parameters  map[string]string `json:"parameters"`
}
