package handlers

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"driftwood/internal/archiver"
	"driftwood/internal/auth"
	"driftwood/internal/content"
	"driftwood/internal/resolver"
	"driftwood/internal/session"
	"driftwood/pkg/logging"
	"driftwood/pkg/monitoring"
)

// DurableURLResolver turns a durable blob reference into a downloadable
// URL. Satisfied by the Telegram client.
type DurableURLResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Config carries the wired dependencies for the handler package.
type Config struct {
	Keystore     *auth.Keystore
	ContentStore *content.Store
	Resolver     *resolver.Resolver
	Archiver     *archiver.Archiver
	Broker       *session.Broker
	DurableURLs  DurableURLResolver
	Logger       logging.Logger
	Metrics      *monitoring.MetricsCollector
}

var (
	keystore     *auth.Keystore
	contentStore *content.Store
	resolve      *resolver.Resolver
	archive      *archiver.Archiver
	broker       *session.Broker
	durableURLs  DurableURLResolver
	logger       logging.Logger

	contentRequests *prometheus.CounterVec
	archiveFailures prometheus.Counter
	streamRedirects *prometheus.CounterVec
)

// Init sets up package-level handler dependencies
func Init(cfg Config) {
	keystore = cfg.Keystore
	contentStore = cfg.ContentStore
	resolve = cfg.Resolver
	archive = cfg.Archiver
	broker = cfg.Broker
	durableURLs = cfg.DurableURLs
	logger = cfg.Logger

	// Counters survive re-initialization; the registry rejects duplicates.
	if contentRequests != nil {
		return
	}
	contentRequests = cfg.Metrics.NewCounter(
		"content_requests_total",
		"Content requests by media kind and cache outcome",
		[]string{"kind", "cache"},
	)
	archiveFailures = cfg.Metrics.NewCounter(
		"archive_failures_total",
		"Archive attempts that failed to produce a durable reference",
		[]string{},
	).WithLabelValues()
	streamRedirects = cfg.Metrics.NewCounter(
		"stream_redirects_total",
		"Stream session redirects by outcome",
		[]string{"outcome"},
	)
}
