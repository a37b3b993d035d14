package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"driftwood/pkg/clients/youtube"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

// Resolution failure kinds. The HTTP layer maps NotResolvable and
// NoSuitableStream to 404 and UpstreamUnavailable to 502.
var (
	ErrNotResolvable       = errors.New("query did not resolve to any content")
	ErrUpstreamUnavailable = errors.New("resolution upstream unavailable")
	ErrNoSuitableStream    = errors.New("no suitable stream for requested kind")
)

var (
	watchURLPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&#/]|$)`)
	bareIDPattern   = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
)

// Upstream is the outbound resolution surface, satisfied by the real
// client and by test fakes.
type Upstream interface {
	Resolve(ctx context.Context, videoID string, kind models.MediaKind) (*models.ContentInfo, error)
	SearchTopResult(ctx context.Context, query string) (string, error)
}

// Resolver turns a free-form query into resolved content: it classifies
// the query as a watch URL, a bare video ID, or search text, then asks the
// upstream for metadata and a transient direct-media URL.
type Resolver struct {
	upstream Upstream
	logger   logging.Logger
}

// New creates a resolver over the given upstream.
func New(upstream Upstream, logger logging.Logger) *Resolver {
	return &Resolver{upstream: upstream, logger: logger}
}

// classify extracts a video ID from a query, searching when the query is
// neither a recognizable URL nor a bare ID.
func (r *Resolver) classify(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNotResolvable
	}

	if strings.Contains(query, "youtube.com") || strings.Contains(query, "youtu.be") {
		match := watchURLPattern.FindStringSubmatch(query)
		if match == nil {
			return "", fmt.Errorf("unrecognized watch URL: %w", ErrNotResolvable)
		}
		return match[1], nil
	}

	if bareIDPattern.MatchString(query) {
		return query, nil
	}

	videoID, err := r.upstream.SearchTopResult(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search: %v: %w", err, ErrUpstreamUnavailable)
	}
	if videoID == "" {
		return "", fmt.Errorf("no search results: %w", ErrNotResolvable)
	}
	return videoID, nil
}

// Resolve produces resolved content for a query and media kind.
func (r *Resolver) Resolve(ctx context.Context, query string, kind models.MediaKind) (*models.ContentInfo, error) {
	videoID, err := r.classify(ctx, query)
	if err != nil {
		return nil, err
	}

	info, err := r.upstream.Resolve(ctx, videoID, kind)
	if err != nil {
		if errors.Is(err, youtube.ErrNoMatchingMedia) {
			return nil, fmt.Errorf("%s: %w", videoID, ErrNoSuitableStream)
		}
		r.logger.WithFields(logging.Fields{
			"video_id": videoID,
			"kind":     string(kind),
			"error":    err.Error(),
		}).Warn("Upstream resolution failed")
		return nil, fmt.Errorf("%s: %w", videoID, ErrUpstreamUnavailable)
	}

	return info, nil
}
