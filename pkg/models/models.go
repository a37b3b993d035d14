package models

import (
	"time"
)

// MediaKind is the audio or video variant of the same content.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// Other returns the opposite media kind, used for cache substitution.
func (k MediaKind) Other() MediaKind {
	if k == MediaKindAudio {
		return MediaKindVideo
	}
	return MediaKindAudio
}

// Valid reports whether the kind is one of the two known variants.
func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// FileExtension returns the scratch-file extension for a kind.
func (k MediaKind) FileExtension() string {
	if k == MediaKindVideo {
		return ".mp4"
	}
	return ".m4a"
}

// Credential is a quota-gated API key.
type Credential struct {
	KeyID      string     `json:"key_id"`
	Owner      string     `json:"owner"`
	IsAdmin    bool       `json:"is_admin"`
	DailyLimit int64      `json:"daily_limit"`
	DailyUsed  int64      `json:"daily_used"`
	TotalUsed  int64      `json:"total_used"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
	LastReset  time.Time  `json:"last_reset"`
}

// ContentInfo is the result of one upstream resolution: metadata plus a
// transient direct-media URL for the requested kind.
type ContentInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DurationSecs int64     `json:"duration"`
	Channel      string    `json:"channel"`
	Views        int64     `json:"views"`
	Thumbnail    string    `json:"thumbnail"`
	Link         string    `json:"link"`
	DirectURL    string    `json:"direct_url"`
	Kind         MediaKind `json:"kind"`
}

// ContentRecord is a durable cache entry. Created once by the archiver
// after a successful blob upload; never updated in place.
type ContentRecord struct {
	ContentID    string    `json:"content_id"`
	MediaKind    MediaKind `json:"media_kind"`
	DurableRef   string    `json:"durable_ref"`
	Title        string    `json:"title"`
	DurationSecs int64     `json:"duration_seconds"`
	Channel      string    `json:"channel"`
	ViewCount    int64     `json:"view_count"`
	ThumbnailURL string    `json:"thumbnail_url"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// StreamSession is an ephemeral redirect mapping. Process-local, lost on
// restart.
type StreamSession struct {
	SessionID string    `json:"session_id"`
	ContentID string    `json:"content_id"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestLogEntry is an append-only observability record. Written on every
// gated request; never read back by the serving path.
type RequestLogEntry struct {
	KeyID      string        `json:"key_id"`
	Endpoint   string        `json:"endpoint"`
	SourceIP   string        `json:"source_ip"`
	StatusCode int           `json:"status_code"`
	Latency    time.Duration `json:"latency"`
	QueryText  string        `json:"query_text"`
	ErrorText  string        `json:"error_text"`
	Timestamp  time.Time     `json:"timestamp"`
}
