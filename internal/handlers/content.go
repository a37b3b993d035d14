package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"driftwood/internal/resolver"
	"driftwood/pkg/api/common"
	api "driftwood/pkg/api/driftwood"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

// GetContent serves the primary content operation: admit (done by
// middleware), resolve, probe the durable cache, mint a session, and on a
// cache miss archive synchronously before responding. The session always
// wraps the freshly resolved URL; archived references are surfaced
// alongside it, never redirected to.
func GetContent(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "query parameter required"})
		return
	}

	kind := models.MediaKindAudio
	if c.Query("video") == "true" || c.Query("video") == "1" {
		kind = models.MediaKindVideo
	}

	ctx := c.Request.Context()

	info, err := resolve.Resolve(ctx, query, kind)
	if err != nil {
		status := http.StatusInternalServerError
		message := "Resolution failed"
		switch {
		case errors.Is(err, resolver.ErrNotResolvable):
			status = http.StatusNotFound
			message = "No content found for query"
		case errors.Is(err, resolver.ErrNoSuitableStream):
			status = http.StatusNotFound
			message = "No suitable stream for requested media kind"
		case errors.Is(err, resolver.ErrUpstreamUnavailable):
			status = http.StatusBadGateway
			message = "Resolution upstream unavailable"
		}
		c.Error(err)
		c.JSON(status, common.ErrorResponse{Error: message})
		return
	}

	// A lookup failure must not take down content serving; treat it as a
	// miss and move on.
	hit, err := contentStore.Lookup(ctx, info.ID, kind)
	if err != nil {
		logger.WithFields(logging.Fields{
			"content_id": info.ID,
			"error":      err.Error(),
		}).Warn("Durable cache lookup failed")
		hit = nil
	}

	streamSession := broker.Create(info.ID, info.DirectURL)

	response := api.ContentResponse{
		ID:         info.ID,
		Title:      info.Title,
		Duration:   info.DurationSecs,
		Link:       info.Link,
		Channel:    info.Channel,
		Views:      info.Views,
		Thumbnail:  info.Thumbnail,
		StreamURL:  "/stream/" + streamSession.SessionID,
		DirectURL:  info.DirectURL,
		StreamType: string(kind),
	}

	if hit != nil {
		response.Cached = true
		response.DurablyCached = true
		response.DurableRef = hit.Record.DurableRef
		response.DurableKind = string(hit.Record.MediaKind)
		response.Substituted = hit.Substituted
		response.DurableURL = durableURL(ctx, hit.Record.DurableRef)
		contentRequests.WithLabelValues(string(kind), "hit").Inc()
		c.JSON(http.StatusOK, response)
		return
	}

	contentRequests.WithLabelValues(string(kind), "miss").Inc()

	if archive == nil {
		logger.WithFields(logging.Fields{"content_id": info.ID}).
			Warn("Archiver not configured, serving without durable cache")
		c.JSON(http.StatusOK, response)
		return
	}

	record, err := archive.Archive(ctx, info)
	if err != nil {
		archiveFailures.Inc()
		logger.WithFields(logging.Fields{
			"content_id": info.ID,
			"kind":       string(kind),
			"error":      err.Error(),
		}).Error("Archive failed, serving without durable cache")
	} else {
		response.DurablyCached = true
		response.DurableRef = record.DurableRef
		response.DurableKind = string(record.MediaKind)
		response.DurableURL = durableURL(ctx, record.DurableRef)
	}

	c.JSON(http.StatusOK, response)
}

// durableURL resolves a durable reference to a direct URL, best effort.
func durableURL(ctx context.Context, durableRef string) string {
	if durableURLs == nil || durableRef == "" {
		return ""
	}
	urlCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url, err := durableURLs.FileURL(urlCtx, durableRef)
	if err != nil {
		logger.WithFields(logging.Fields{
			"durable_ref": durableRef,
			"error":       err.Error(),
		}).Warn("Failed to resolve durable URL")
		return ""
	}
	return url
}
