package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"

	"driftwood/pkg/clients"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

const (
	defaultResolverBaseURL = "https://www.clipto.com"
	defaultSearchBaseURL   = "https://www.youtube.com"
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// ErrNoMatchingMedia is returned when the upstream responds but offers no
// asset of the requested media kind.
var ErrNoMatchingMedia = errors.New("upstream offered no matching media")

var searchResultPattern = regexp.MustCompile(`"videoId":"([0-9A-Za-z_-]{11})"`)

// Config represents the configuration for the resolution client
type Config struct {
	ResolverBaseURL string
	SearchBaseURL   string
	UserAgent       string
	Timeout         time.Duration
	Logger          logging.Logger
}

// Client resolves video metadata and transient direct-media URLs through
// the upstream resolution API, and finds identifiers via search.
type Client struct {
	rest      *resty.Client
	baseURL   string
	searchURL string
	userAgent string
	logger    logging.Logger
}

// NewClient creates a new resolution client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.ResolverBaseURL == "" {
		config.ResolverBaseURL = defaultResolverBaseURL
	}
	if config.SearchBaseURL == "" {
		config.SearchBaseURL = defaultSearchBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	rest := resty.New().
		SetTransport(clients.DefaultTransport()).
		SetTimeout(config.Timeout).
		SetHeader("User-Agent", config.UserAgent)

	return &Client{
		rest:      rest,
		baseURL:   config.ResolverBaseURL,
		searchURL: config.SearchBaseURL,
		userAgent: config.UserAgent,
		logger:    config.Logger,
	}
}

type csrfResponse struct {
	Token string `json:"token"`
}

type mediaEntry struct {
	URL          string `json:"url"`
	Ext          string `json:"ext"`
	Quality      string `json:"quality"`
	IsAudio      bool   `json:"is_audio"`
	AudioQuality string `json:"audioQuality"`
}

type resolveResponse struct {
	Title     string       `json:"title"`
	Thumbnail string       `json:"thumbnail"`
	Duration  float64      `json:"duration"`
	Channel   string       `json:"channel"`
	Views     int64        `json:"views"`
	Medias    []mediaEntry `json:"medias"`
}

// Resolve fetches metadata and a transient direct-media URL for a video ID.
// The upstream requires a CSRF handshake before the media listing call, so
// this costs two outbound round trips. No retries: retry policy belongs to
// the caller.
func (c *Client) Resolve(ctx context.Context, videoID string, kind models.MediaKind) (*models.ContentInfo, error) {
	watchURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)

	var csrf csrfResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseURL+"/media-downloader/youtube-downloader").
		SetResult(&csrf).
		Get(c.baseURL + "/api/csrf")
	if err != nil {
		return nil, fmt.Errorf("csrf handshake: %w", err)
	}
	if resp.IsError() || csrf.Token == "" {
		return nil, fmt.Errorf("csrf handshake: upstream returned %d", resp.StatusCode())
	}

	var resolved resolveResponse
	resp, err = c.rest.R().
		SetContext(ctx).
		SetHeader("x-xsrf-token", csrf.Token).
		SetHeader("Cookie", "XSRF-TOKEN="+csrf.Token).
		SetHeader("Origin", c.baseURL).
		SetHeader("Referer", c.baseURL+"/media-downloader/youtube-downloader").
		SetBody(map[string]string{"url": watchURL}).
		SetResult(&resolved).
		Post(c.baseURL + "/api/youtube")
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", videoID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("resolve %s: upstream returned %d", videoID, resp.StatusCode())
	}

	directURL := pickMedia(resolved.Medias, kind)
	if directURL == "" {
		return nil, fmt.Errorf("resolve %s (%s): %w", videoID, kind, ErrNoMatchingMedia)
	}

	channel := resolved.Channel
	if channel == "" {
		channel = "Unknown Channel"
	}

	return &models.ContentInfo{
		ID:           videoID,
		Title:        resolved.Title,
		DurationSecs: int64(resolved.Duration + 0.5),
		Channel:      channel,
		Views:        resolved.Views,
		Thumbnail:    resolved.Thumbnail,
		Link:         watchURL,
		DirectURL:    directURL,
		Kind:         kind,
	}, nil
}

// pickMedia selects the asset for the requested kind. Video wants a 720p
// MP4 that carries audio; audio prefers a dedicated audio asset and falls
// back to any entry flagged audio-capable.
func pickMedia(medias []mediaEntry, kind models.MediaKind) string {
	if kind == models.MediaKindVideo {
		for _, m := range medias {
			if m.Ext == "mp4" && (m.Quality == "720p" || m.Quality == "hd720") && (m.IsAudio || m.AudioQuality != "") {
				return m.URL
			}
		}
		return ""
	}

	for _, m := range medias {
		if m.Ext == "m4a" && m.AudioQuality != "" {
			return m.URL
		}
	}
	for _, m := range medias {
		if m.IsAudio || m.AudioQuality != "" {
			return m.URL
		}
	}
	return ""
}

// SearchTopResult issues a single search and returns the first video ID
// found in the results page.
func (c *Client) SearchTopResult(ctx context.Context, query string) (string, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(c.searchURL + "/results?search_query=" + url.QueryEscape(query))
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("search %q: upstream returned %d", query, resp.StatusCode())
	}

	match := searchResultPattern.FindSubmatch(resp.Body())
	if match == nil {
		return "", nil
	}
	return string(match[1]), nil
}

// Ping checks upstream reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.rest.R().SetContext(ctx).Get(c.baseURL + "/api/csrf")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("upstream returned %d", resp.StatusCode())
	}
	return nil
}
